package settings

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "voiceguard.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSetGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, KeyConfidenceThreshold, 0.75); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := store.GetFloat(ctx, KeyConfidenceThreshold, 0.6); got != 0.75 {
		t.Fatalf("threshold = %v", got)
	}

	if err := store.Set(ctx, KeyTestMode, true); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !store.GetBool(ctx, KeyTestMode, false) {
		t.Fatal("test mode flag lost")
	}

	if err := store.Set(ctx, KeyConfirmationDelay, 7); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := store.GetInt(ctx, KeyConfirmationDelay, 3); got != 7 {
		t.Fatalf("delay = %v", got)
	}
}

func TestGetFallbackWhenAbsent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if got := store.GetInt(ctx, "no-such-key", 42); got != 42 {
		t.Fatalf("fallback int = %v", got)
	}
	if got := store.GetString(ctx, "no-such-key", "standby"); got != "standby" {
		t.Fatalf("fallback string = %q", got)
	}
}

func TestSetOverwritesValue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, KeyMaxDailyAPICalls, 100); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, KeyMaxDailyAPICalls, 200); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if got := store.GetInt(ctx, KeyMaxDailyAPICalls, 0); got != 200 {
		t.Fatalf("value = %v", got)
	}
}

func TestSeedDefaultsDoesNotOverwrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, KeyConfirmationDelay, 10); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.SeedDefaults(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if got := store.GetInt(ctx, KeyConfirmationDelay, 0); got != 10 {
		t.Fatalf("seeding overwrote an operator value: %v", got)
	}
	if got := store.GetFloat(ctx, KeyConfidenceThreshold, 0); got != DefaultConfidenceThreshold {
		t.Fatalf("missing key not seeded: %v", got)
	}
	if store.GetBool(ctx, KeyTestMode, true) {
		t.Fatal("test mode must seed to false")
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voiceguard.db")
	ctx := context.Background()

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Set(ctx, KeyNoiseSuppression, false); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	if reopened.GetBool(ctx, KeyNoiseSuppression, true) {
		t.Fatal("persisted value lost across reopen")
	}
}
