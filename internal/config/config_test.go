package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, resolved, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if resolved == "" {
		t.Fatal("resolved path must be reported")
	}

	defaults := Default()
	if cfg.Audio.SampleRate != defaults.Audio.SampleRate {
		t.Fatalf("sample rate = %d", cfg.Audio.SampleRate)
	}
	if len(cfg.Recognition.CommandPhrases) == 0 {
		t.Fatal("defaults must carry command phrases")
	}
	if cfg.Shutdown.Command == "" {
		t.Fatal("defaults must carry a shutdown command")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
log_level = "debug"

[audio]
sample_rate = 48000
vad_aggressiveness = -1

[recognition]
command_phrases = ["emergency shutdown"]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if cfg.Audio.SampleRate != 48000 {
		t.Fatalf("sample rate = %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.VADAggressiveness != -1 {
		t.Fatalf("vad aggressiveness = %d", cfg.Audio.VADAggressiveness)
	}
	// Untouched sections keep their defaults.
	if cfg.Shutdown.Command == "" {
		t.Fatal("shutdown command lost during merge")
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[audio\nsample_rate = 16000"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, err := Load(path); err == nil {
		t.Fatal("malformed TOML must fail")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults pass",
			mutate: func(*Config) {},
		},
		{
			name:    "missing data dir",
			mutate:  func(c *Config) { c.Paths.DataDir = " " },
			wantErr: "paths.data_dir",
		},
		{
			name:    "unsupported sample rate",
			mutate:  func(c *Config) { c.Audio.SampleRate = 44100 },
			wantErr: "audio.sample_rate",
		},
		{
			name:    "bad frame size",
			mutate:  func(c *Config) { c.Audio.FrameMillis = 25 },
			wantErr: "audio.frame_millis",
		},
		{
			name:    "aggressiveness out of range",
			mutate:  func(c *Config) { c.Audio.VADAggressiveness = 4 },
			wantErr: "audio.vad_aggressiveness",
		},
		{
			name:   "energy detector sentinel allowed",
			mutate: func(c *Config) { c.Audio.VADAggressiveness = -1 },
		},
		{
			name:    "segment too long",
			mutate:  func(c *Config) { c.Audio.SegmentSeconds = 11 },
			wantErr: "audio.segment_seconds",
		},
		{
			name:    "no command phrases",
			mutate:  func(c *Config) { c.Recognition.CommandPhrases = nil },
			wantErr: "command_phrases",
		},
		{
			name:    "blank command phrase",
			mutate:  func(c *Config) { c.Recognition.CommandPhrases = []string{"kill switch", "  "} },
			wantErr: "empty phrase",
		},
		{
			name: "cloud enabled without url",
			mutate: func(c *Config) {
				c.Recognition.Cloud.Enabled = true
				c.Recognition.Cloud.BaseURL = ""
			},
			wantErr: "base_url",
		},
		{
			name:    "missing shutdown command",
			mutate:  func(c *Config) { c.Shutdown.Command = "" },
			wantErr: "shutdown.command",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestSocketPathFallsBackToDataDir(t *testing.T) {
	cfg := Default()
	cfg.Paths.DataDir = "/var/lib/voiceguard"
	cfg.Paths.SocketPath = ""
	if got := cfg.SocketPath(); got != "/var/lib/voiceguard/voiceguard.sock" {
		t.Fatalf("socket path = %q", got)
	}

	cfg.Paths.SocketPath = "/run/voiceguard.sock"
	if got := cfg.SocketPath(); got != "/run/voiceguard.sock" {
		t.Fatalf("explicit socket path = %q", got)
	}
}

func TestWriteSampleParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample", "config.toml")
	if err := WriteSample(path); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if _, _, err := Load(path); err != nil {
		t.Fatalf("sample config must load cleanly: %v", err)
	}
}
