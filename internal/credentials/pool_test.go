package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"voiceguard/internal/logging"
	"voiceguard/internal/settings"
)

func newTestPool(t *testing.T, secrets []string, dailyLimit int) (*Pool, *Store) {
	t.Helper()

	store, err := settings.Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	credStore := NewStore(store.DB())
	for _, secret := range secrets {
		if _, err := credStore.Add(ctx, secret); err != nil {
			t.Fatalf("add credential: %v", err)
		}
	}

	pool, err := NewPool(ctx, credStore, dailyLimit, logging.NewNop())
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	return pool, credStore
}

func TestAcquireEnforcesSpacing(t *testing.T) {
	pool, _ := newTestPool(t, []string{"key-a"}, 10)

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	pool.now = func() time.Time { return now }

	ctx := context.Background()
	if _, err := pool.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	// Same instant: inside the 6 second spacing window.
	if _, err := pool.Acquire(ctx); !errors.Is(err, ErrNoneAvailable) {
		t.Fatalf("err = %v, want ErrNoneAvailable", err)
	}

	now = now.Add(6 * time.Second)
	if _, err := pool.Acquire(ctx); err != nil {
		t.Fatalf("acquire after spacing: %v", err)
	}
}

func TestAcquirePrefersLeastUsed(t *testing.T) {
	pool, _ := newTestPool(t, []string{"key-a", "key-b"}, 10)

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	pool.now = func() time.Time { return now }

	ctx := context.Background()
	first, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	second, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("rotation must pick the unused key second")
	}

	// Both used once; after the spacing window the least used wins again.
	now = now.Add(10 * time.Second)
	third, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if third.DailyUsage != 2 {
		t.Fatalf("third acquire usage = %d, want 2", third.DailyUsage)
	}
}

func TestAcquireRespectsDailyQuota(t *testing.T) {
	pool, _ := newTestPool(t, []string{"key-a"}, 2)

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	pool.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := pool.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		now = now.Add(10 * time.Second)
	}
	if _, err := pool.Acquire(ctx); !errors.Is(err, ErrNoneAvailable) {
		t.Fatalf("err = %v, want ErrNoneAvailable after quota", err)
	}

	// Next day the counter rolls over.
	now = now.Add(24 * time.Hour)
	if _, err := pool.Acquire(ctx); err != nil {
		t.Fatalf("acquire next day: %v", err)
	}
}

func TestMarkExhaustedBurnsQuota(t *testing.T) {
	pool, _ := newTestPool(t, []string{"key-a"}, 50)

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	pool.now = func() time.Time { return now }

	ctx := context.Background()
	cred, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	pool.MarkExhausted(ctx, cred.ID)

	now = now.Add(time.Minute)
	if _, err := pool.Acquire(ctx); !errors.Is(err, ErrNoneAvailable) {
		t.Fatalf("err = %v, want ErrNoneAvailable after 429", err)
	}
}

func TestUsagePersistsAcrossPools(t *testing.T) {
	pool, credStore := newTestPool(t, []string{"key-a"}, 10)

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	pool.now = func() time.Time { return now }

	ctx := context.Background()
	if _, err := pool.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	reloaded, err := NewPool(ctx, credStore, 10, logging.NewNop())
	if err != nil {
		t.Fatalf("reload pool: %v", err)
	}
	usage := reloaded.UsageSnapshot()
	if len(usage) != 1 {
		t.Fatalf("snapshot size = %d", len(usage))
	}
	for _, count := range usage {
		if count != 1 {
			t.Fatalf("persisted usage = %d, want 1", count)
		}
	}
}
