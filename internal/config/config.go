package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	SocketPath string `toml:"socket_path"`
}

// Audio contains microphone capture and VAD configuration.
type Audio struct {
	CaptureCommand    string   `toml:"capture_command"`
	CaptureArgs       []string `toml:"capture_args"`
	SampleRate        int      `toml:"sample_rate"`
	FrameMillis       int      `toml:"frame_millis"`
	SegmentSeconds    float64  `toml:"segment_seconds"`
	CaptureQueueSize  int      `toml:"capture_queue_size"`
	SegmentQueueSize  int      `toml:"segment_queue_size"`
	VADAggressiveness int      `toml:"vad_aggressiveness"`
	EnergyThresholdDB float64  `toml:"energy_threshold_db"`
	NoiseSuppression  bool     `toml:"noise_suppression"`
}

// Cloud contains configuration for the hosted transcription endpoint.
type Cloud struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	DailyLimit     int    `toml:"daily_limit"`
}

// Local contains configuration for the on-device recognizer and its
// networked fallback.
type Local struct {
	Enabled         bool     `toml:"enabled"`
	Command         string   `toml:"command"`
	Args            []string `toml:"args"`
	TimeoutSeconds  int      `toml:"timeout_seconds"`
	FallbackURL     string   `toml:"fallback_url"`
	FallbackTimeout int      `toml:"fallback_timeout_seconds"`
}

// Recognition contains command phrases and source behavior.
type Recognition struct {
	CommandPhrases []string `toml:"command_phrases"`
	Cloud          Cloud    `toml:"cloud"`
	Local          Local    `toml:"local"`
}

// IPC contains channel timing configuration.
type IPC struct {
	ConnectTimeoutSeconds int `toml:"connect_timeout_seconds"`
	RetryIntervalMillis   int `toml:"retry_interval_millis"`
	AckTimeoutSeconds     int `toml:"ack_timeout_seconds"`
}

// Shutdown contains the platform shutdown action configuration.
type Shutdown struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

// Watchdog contains health polling configuration.
type Watchdog struct {
	PollIntervalSeconds       int      `toml:"poll_interval_seconds"`
	DependencyIntervalHours   int      `toml:"dependency_interval_hours"`
	MonitoredProcesses        []string `toml:"monitored_processes"`
	ProcessCPUPercentMax      float64  `toml:"process_cpu_percent_max"`
	ProcessMemoryMBMax        float64  `toml:"process_memory_mb_max"`
	SystemCPUPercentMax       float64  `toml:"system_cpu_percent_max"`
	SystemMemoryPercentMax    float64  `toml:"system_memory_percent_max"`
	SystemDiskPercentMax      float64  `toml:"system_disk_percent_max"`
	NetworkProbeAddr          string   `toml:"network_probe_addr"`
	MicrophoneDevice          string   `toml:"microphone_device"`
	RestartGracePeriodSeconds int      `toml:"restart_grace_period_seconds"`
}

// Notifications contains ntfy push notification configuration.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Config is the root configuration for both VoiceGuard processes.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Audio         Audio         `toml:"audio"`
	Recognition   Recognition   `toml:"recognition"`
	IPC           IPC           `toml:"ipc"`
	Shutdown      Shutdown      `toml:"shutdown"`
	Watchdog      Watchdog      `toml:"watchdog"`
	Notifications Notifications `toml:"notifications"`
	LogLevel      string        `toml:"log_level"`
	LogFormat     string        `toml:"log_format"`
}

// DefaultConfigPath returns the expected config file location.
func DefaultConfigPath() string {
	if env := strings.TrimSpace(os.Getenv("VOICEGUARD_CONFIG")); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "voiceguard.toml"
	}
	return filepath.Join(home, ".config", "voiceguard", "config.toml")
}

// Load reads the config file at path (or the default location when empty),
// applies defaults, and validates the result. A missing file yields the
// default configuration.
func Load(path string) (*Config, string, error) {
	resolved := strings.TrimSpace(path)
	if resolved == "" {
		resolved = DefaultConfigPath()
	}

	cfg := Default()
	data, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, resolved, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// Defaults only.
	default:
		return nil, resolved, fmt.Errorf("read config %s: %w", resolved, err)
	}

	cfg.applyFallbacks()
	if err := cfg.Validate(); err != nil {
		return nil, resolved, err
	}
	return cfg, resolved, nil
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// SocketPath returns the IPC socket location.
func (c *Config) SocketPath() string {
	if strings.TrimSpace(c.Paths.SocketPath) != "" {
		return c.Paths.SocketPath
	}
	return filepath.Join(c.Paths.DataDir, "voiceguard.sock")
}

// DatabasePath returns the settings/credential database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "voiceguard.db")
}
