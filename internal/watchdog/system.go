package watchdog

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// SystemConfig holds the host resource thresholds.
type SystemConfig struct {
	CPUPercentMax    float64
	MemoryPercentMax float64
	DiskPercentMax   float64
	DiskPath         string
	MicrophoneDevice string
	NetworkProbeAddr string
}

// SystemCheck validates host-level resources: CPU load, memory pressure,
// disk headroom, microphone presence, and network reachability of the cloud
// endpoint.
type SystemCheck struct {
	cfg SystemConfig

	prevIdle  uint64
	prevTotal uint64
}

// NewSystemCheck builds the host resource check.
func NewSystemCheck(cfg SystemConfig) *SystemCheck {
	if cfg.DiskPath == "" {
		cfg.DiskPath = "/"
	}
	return &SystemCheck{cfg: cfg}
}

// Name implements Check.
func (c *SystemCheck) Name() string { return "system-resources" }

// Layer implements Check.
func (c *SystemCheck) Layer() Layer { return LayerSystem }

// Check implements Check.
func (c *SystemCheck) Check(ctx context.Context) error {
	if err := c.checkCPU(); err != nil {
		return err
	}
	if err := c.checkMemory(); err != nil {
		return err
	}
	if err := c.checkDisk(); err != nil {
		return err
	}
	if err := c.checkMicrophone(); err != nil {
		return err
	}
	return c.checkNetwork(ctx)
}

// checkCPU computes utilization between successive polls from
// /proc/stat's aggregate line. The first poll only seeds the counters.
func (c *SystemCheck) checkCPU() error {
	raw, err := os.ReadFile("/proc/stat")
	if err != nil {
		return fmt.Errorf("read /proc/stat: %w", err)
	}
	line, _, _ := strings.Cut(string(raw), "\n")
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return fmt.Errorf("unexpected /proc/stat format")
	}

	var total, idle uint64
	for i, field := range fields[1:] {
		value, parseErr := strconv.ParseUint(field, 10, 64)
		if parseErr != nil {
			continue
		}
		total += value
		if i == 3 || i == 4 { // idle + iowait
			idle += value
		}
	}

	prevIdle, prevTotal := c.prevIdle, c.prevTotal
	c.prevIdle, c.prevTotal = idle, total
	if prevTotal == 0 || total <= prevTotal {
		return nil
	}

	busy := float64((total-prevTotal)-(idle-prevIdle)) / float64(total-prevTotal) * 100
	if busy > c.cfg.CPUPercentMax {
		return fmt.Errorf("system cpu %.1f%% exceeds %.1f%%", busy, c.cfg.CPUPercentMax)
	}
	return nil
}

func (c *SystemCheck) checkMemory() error {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return fmt.Errorf("sysinfo: %w", err)
	}
	total := uint64(info.Totalram) * uint64(info.Unit)
	free := (uint64(info.Freeram) + uint64(info.Bufferram)) * uint64(info.Unit)
	if total == 0 {
		return nil
	}
	used := float64(total-free) / float64(total) * 100
	if used > c.cfg.MemoryPercentMax {
		return fmt.Errorf("system memory %.1f%% exceeds %.1f%%", used, c.cfg.MemoryPercentMax)
	}
	return nil
}

func (c *SystemCheck) checkDisk() error {
	var stat unix.Statfs_t
	if err := unix.Statfs(c.cfg.DiskPath, &stat); err != nil {
		return fmt.Errorf("statfs %s: %w", c.cfg.DiskPath, err)
	}
	if stat.Blocks == 0 {
		return nil
	}
	used := float64(stat.Blocks-stat.Bavail) / float64(stat.Blocks) * 100
	if used > c.cfg.DiskPercentMax {
		return fmt.Errorf("disk usage %.1f%% on %s exceeds %.1f%%", used, c.cfg.DiskPath, c.cfg.DiskPercentMax)
	}
	return nil
}

// checkMicrophone confirms a capture device node exists. With no explicit
// device configured, any ALSA capture device counts.
func (c *SystemCheck) checkMicrophone() error {
	if c.cfg.MicrophoneDevice != "" {
		if _, err := os.Stat(c.cfg.MicrophoneDevice); err != nil {
			return fmt.Errorf("microphone device %s missing: %w", c.cfg.MicrophoneDevice, err)
		}
		return nil
	}

	entries, err := os.ReadDir("/dev/snd")
	if err != nil {
		return fmt.Errorf("no sound devices: %w", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "pcmC") && strings.HasSuffix(entry.Name(), "c") {
			return nil
		}
	}
	return fmt.Errorf("no capture device under /dev/snd")
}

func (c *SystemCheck) checkNetwork(ctx context.Context) error {
	if c.cfg.NetworkProbeAddr == "" {
		return nil
	}
	dialer := net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.NetworkProbeAddr)
	if err != nil {
		return fmt.Errorf("network probe %s: %w", c.cfg.NetworkProbeAddr, err)
	}
	return conn.Close()
}
