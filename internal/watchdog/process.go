package watchdog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// procStat is one sample of a process's CPU and memory from /proc.
type procStat struct {
	pid       int
	comm      string
	cpuTicks  uint64
	rssBytes  uint64
	sampledAt time.Time
}

// findProcesses scans /proc for processes whose comm matches name.
func findProcesses(name string) ([]procStat, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("read /proc: %w", err)
	}

	var stats []procStat
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		stat, err := readProcStat(pid)
		if err != nil {
			continue
		}
		if stat.comm == name {
			stats = append(stats, stat)
		}
	}
	return stats, nil
}

// readProcStat parses /proc/<pid>/stat. The comm field is parenthesized and
// may contain spaces, so fields are located relative to the closing paren.
func readProcStat(pid int) (procStat, error) {
	raw, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return procStat{}, err
	}
	line := string(raw)

	open := strings.IndexByte(line, '(')
	closing := strings.LastIndexByte(line, ')')
	if open < 0 || closing < open {
		return procStat{}, fmt.Errorf("malformed stat for pid %d", pid)
	}

	fields := strings.Fields(line[closing+1:])
	// After the comm: field 1 is state, utime is field 12, stime field 13,
	// rss (pages) field 22 in this slice.
	if len(fields) < 23 {
		return procStat{}, fmt.Errorf("short stat for pid %d", pid)
	}
	utime, _ := strconv.ParseUint(fields[11], 10, 64)
	stime, _ := strconv.ParseUint(fields[12], 10, 64)
	rssPages, _ := strconv.ParseUint(fields[21], 10, 64)

	return procStat{
		pid:       pid,
		comm:      line[open+1 : closing],
		cpuTicks:  utime + stime,
		rssBytes:  rssPages * uint64(os.Getpagesize()),
		sampledAt: time.Now(),
	}, nil
}

// clockTicksPerSecond is the kernel's USER_HZ; 100 on every platform we
// target.
const clockTicksPerSecond = 100

// ProcessCheck verifies a monitored process is alive and inside its CPU and
// memory budgets. CPU is measured between successive polls.
type ProcessCheck struct {
	ProcessName  string
	CPUMax       float64 // percent
	MemoryMBMax  float64
	RequireAlive bool

	prev map[int]procStat
}

// NewProcessCheck builds a check for one monitored process name.
func NewProcessCheck(name string, cpuMax, memoryMBMax float64, requireAlive bool) *ProcessCheck {
	return &ProcessCheck{
		ProcessName:  name,
		CPUMax:       cpuMax,
		MemoryMBMax:  memoryMBMax,
		RequireAlive: requireAlive,
		prev:         make(map[int]procStat),
	}
}

// Name implements Check.
func (c *ProcessCheck) Name() string { return "process:" + c.ProcessName }

// Layer implements Check.
func (c *ProcessCheck) Layer() Layer { return LayerProcess }

// Check implements Check.
func (c *ProcessCheck) Check(_ context.Context) error {
	stats, err := findProcesses(c.ProcessName)
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		if c.RequireAlive {
			return fmt.Errorf("process %s not running", c.ProcessName)
		}
		c.prev = make(map[int]procStat)
		return nil
	}

	next := make(map[int]procStat, len(stats))
	defer func() { c.prev = next }()

	for _, stat := range stats {
		next[stat.pid] = stat

		if memoryMB := float64(stat.rssBytes) / (1 << 20); memoryMB > c.MemoryMBMax {
			return fmt.Errorf("process %s (pid %d) memory %.0f MB exceeds %.0f MB",
				c.ProcessName, stat.pid, memoryMB, c.MemoryMBMax)
		}

		prev, ok := c.prev[stat.pid]
		if !ok {
			continue
		}
		elapsed := stat.sampledAt.Sub(prev.sampledAt).Seconds()
		if elapsed <= 0 {
			continue
		}
		cpuSeconds := float64(stat.cpuTicks-prev.cpuTicks) / clockTicksPerSecond
		if cpuPercent := cpuSeconds / elapsed * 100; cpuPercent > c.CPUMax {
			return fmt.Errorf("process %s (pid %d) cpu %.1f%% exceeds %.1f%%",
				c.ProcessName, stat.pid, cpuPercent, c.CPUMax)
		}
	}
	return nil
}
