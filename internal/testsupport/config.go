// Package testsupport provides shared fixtures for package tests: temp-dir
// configurations and settings stores.
package testsupport

import (
	"path/filepath"
	"testing"

	"voiceguard/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.SocketPath = filepath.Join(base, "voiceguard.sock")
	cfg.Recognition.Cloud.Enabled = false
	cfg.Recognition.Local.Enabled = false
	cfg.Watchdog.NetworkProbeAddr = ""

	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return cfg
}

// WithCommandPhrases overrides the command phrase list.
func WithCommandPhrases(phrases ...string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Recognition.CommandPhrases = phrases
	}
}
