package testsupport

import (
	"testing"

	"voiceguard/internal/config"
	"voiceguard/internal/settings"
)

// NewStore opens a settings store backed by the test config's data dir and
// closes it on cleanup.
func NewStore(t testing.TB, cfg *config.Config) *settings.Store {
	t.Helper()

	store, err := settings.Open(cfg.DatabasePath())
	if err != nil {
		t.Fatalf("open settings store: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := store.Close(); closeErr != nil {
			t.Errorf("close settings store: %v", closeErr)
		}
	})
	return store
}
