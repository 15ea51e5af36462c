package config

import (
	"os"
	"path/filepath"
)

// Default returns a configuration with every field set to its default value.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".local", "share", "voiceguard")

	return &Config{
		Paths: Paths{
			DataDir: dataDir,
			LogDir:  filepath.Join(dataDir, "logs"),
		},
		Audio: Audio{
			CaptureCommand:    "arecord",
			CaptureArgs:       []string{"-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "raw"},
			SampleRate:        16000,
			FrameMillis:       30,
			SegmentSeconds:    3.0,
			CaptureQueueSize:  100,
			SegmentQueueSize:  50,
			VADAggressiveness: 2,
			EnergyThresholdDB: -30,
			NoiseSuppression:  true,
		},
		Recognition: Recognition{
			CommandPhrases: []string{
				"emergency shutdown",
				"kill switch",
				"force stop",
				"shutdown now",
			},
			Cloud: Cloud{
				Enabled:        true,
				BaseURL:        "https://openrouter.ai/api/v1",
				Model:          "openai/whisper-large-v3",
				TimeoutSeconds: 5,
				DailyLimit:     50,
			},
			Local: Local{
				Enabled:         true,
				Command:         "pocketsphinx",
				Args:            []string{"single", "-"},
				TimeoutSeconds:  5,
				FallbackTimeout: 5,
			},
		},
		IPC: IPC{
			ConnectTimeoutSeconds: 30,
			RetryIntervalMillis:   1000,
			AckTimeoutSeconds:     5,
		},
		Shutdown: Shutdown{
			Command: "shutdown",
			Args:    []string{"-h", "now"},
		},
		Watchdog: Watchdog{
			PollIntervalSeconds:       30,
			DependencyIntervalHours:   6,
			MonitoredProcesses:        []string{"voiceguardd", "voiceguard-helper"},
			ProcessCPUPercentMax:      50,
			ProcessMemoryMBMax:        1024,
			SystemCPUPercentMax:       80,
			SystemMemoryPercentMax:    85,
			SystemDiskPercentMax:      90,
			NetworkProbeAddr:          "openrouter.ai:443",
			RestartGracePeriodSeconds: 60,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
		},
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// applyFallbacks fills fields the user left zeroed after unmarshalling.
func (c *Config) applyFallbacks() {
	def := Default()
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = def.Audio.SampleRate
	}
	if c.Audio.FrameMillis <= 0 {
		c.Audio.FrameMillis = def.Audio.FrameMillis
	}
	if c.Audio.SegmentSeconds <= 0 {
		c.Audio.SegmentSeconds = def.Audio.SegmentSeconds
	}
	if c.Audio.CaptureQueueSize <= 0 {
		c.Audio.CaptureQueueSize = def.Audio.CaptureQueueSize
	}
	if c.Audio.SegmentQueueSize <= 0 {
		c.Audio.SegmentQueueSize = def.Audio.SegmentQueueSize
	}
	if c.Audio.EnergyThresholdDB == 0 {
		c.Audio.EnergyThresholdDB = def.Audio.EnergyThresholdDB
	}
	if len(c.Recognition.CommandPhrases) == 0 {
		c.Recognition.CommandPhrases = def.Recognition.CommandPhrases
	}
	if c.Recognition.Cloud.TimeoutSeconds <= 0 {
		c.Recognition.Cloud.TimeoutSeconds = def.Recognition.Cloud.TimeoutSeconds
	}
	if c.Recognition.Cloud.DailyLimit <= 0 {
		c.Recognition.Cloud.DailyLimit = def.Recognition.Cloud.DailyLimit
	}
	if c.Recognition.Local.TimeoutSeconds <= 0 {
		c.Recognition.Local.TimeoutSeconds = def.Recognition.Local.TimeoutSeconds
	}
	if c.Recognition.Local.FallbackTimeout <= 0 {
		c.Recognition.Local.FallbackTimeout = def.Recognition.Local.FallbackTimeout
	}
	if c.IPC.ConnectTimeoutSeconds <= 0 {
		c.IPC.ConnectTimeoutSeconds = def.IPC.ConnectTimeoutSeconds
	}
	if c.IPC.RetryIntervalMillis <= 0 {
		c.IPC.RetryIntervalMillis = def.IPC.RetryIntervalMillis
	}
	if c.IPC.AckTimeoutSeconds <= 0 {
		c.IPC.AckTimeoutSeconds = def.IPC.AckTimeoutSeconds
	}
	if c.Watchdog.PollIntervalSeconds <= 0 {
		c.Watchdog.PollIntervalSeconds = def.Watchdog.PollIntervalSeconds
	}
	if c.Watchdog.DependencyIntervalHours <= 0 {
		c.Watchdog.DependencyIntervalHours = def.Watchdog.DependencyIntervalHours
	}
	if c.Watchdog.ProcessCPUPercentMax <= 0 {
		c.Watchdog.ProcessCPUPercentMax = def.Watchdog.ProcessCPUPercentMax
	}
	if c.Watchdog.ProcessMemoryMBMax <= 0 {
		c.Watchdog.ProcessMemoryMBMax = def.Watchdog.ProcessMemoryMBMax
	}
	if c.Watchdog.SystemCPUPercentMax <= 0 {
		c.Watchdog.SystemCPUPercentMax = def.Watchdog.SystemCPUPercentMax
	}
	if c.Watchdog.SystemMemoryPercentMax <= 0 {
		c.Watchdog.SystemMemoryPercentMax = def.Watchdog.SystemMemoryPercentMax
	}
	if c.Watchdog.SystemDiskPercentMax <= 0 {
		c.Watchdog.SystemDiskPercentMax = def.Watchdog.SystemDiskPercentMax
	}
	if c.Watchdog.RestartGracePeriodSeconds <= 0 {
		c.Watchdog.RestartGracePeriodSeconds = def.Watchdog.RestartGracePeriodSeconds
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = def.Notifications.RequestTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = def.LogFormat
	}
	if c.Shutdown.Command == "" {
		c.Shutdown.Command = def.Shutdown.Command
		c.Shutdown.Args = def.Shutdown.Args
	}
	if c.Audio.CaptureCommand == "" {
		c.Audio.CaptureCommand = def.Audio.CaptureCommand
		c.Audio.CaptureArgs = def.Audio.CaptureArgs
	}
}
