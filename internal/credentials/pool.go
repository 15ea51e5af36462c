package credentials

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"voiceguard/internal/logging"
)

// ErrNoneAvailable is returned when every credential is either rate-spaced or
// out of daily quota.
var ErrNoneAvailable = errors.New("no credential available")

// minSpacing is the minimum gap between two uses of the same credential.
const minSpacing = 6 * time.Second

// Pool rotates between credentials, spreading load so no single key burns
// through its daily quota while others sit idle.
type Pool struct {
	store      *Store
	logger     *slog.Logger
	dailyLimit int

	mu    sync.Mutex
	creds []*Credential

	// now is swappable for tests.
	now func() time.Time
}

// NewPool loads active credentials from store. dailyLimit is the per-key
// request budget per calendar day.
func NewPool(ctx context.Context, store *Store, dailyLimit int, logger *slog.Logger) (*Pool, error) {
	creds, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	pool := &Pool{
		store:      store,
		logger:     logging.NewComponentLogger(logger, "credentials"),
		dailyLimit: dailyLimit,
		creds:      creds,
		now:        time.Now,
	}
	pool.logger.Info("credential pool loaded", logging.Int("credentials", len(creds)))
	return pool, nil
}

// Size returns the number of loaded credentials.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}

// Acquire picks the least-used credential that is inside its daily quota and
// past its rate spacing, records the use, and returns it. Counters roll over
// when the calendar day changes.
func (p *Pool) Acquire(ctx context.Context) (*Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	today := now.UTC().Truncate(24 * time.Hour)

	var best *Credential
	for _, cred := range p.creds {
		if !cred.Active {
			continue
		}
		if cred.LastResetDate.Before(today) {
			cred.DailyUsage = 0
			cred.LastResetDate = today
		}
		if cred.DailyUsage >= p.dailyLimit {
			continue
		}
		if !cred.LastUsed.IsZero() && now.Sub(cred.LastUsed) < minSpacing {
			continue
		}
		if best == nil || cred.DailyUsage < best.DailyUsage {
			best = cred
		}
	}
	if best == nil {
		return nil, ErrNoneAvailable
	}

	best.DailyUsage++
	best.LastUsed = now
	if err := p.store.UpdateUsage(ctx, best.ID, best.DailyUsage, best.LastResetDate, best.LastUsed); err != nil {
		p.logger.Warn("credential usage write failed",
			logging.Int64("credential_id", best.ID),
			logging.Error(err))
	}
	return best, nil
}

// MarkExhausted burns the remaining daily quota for id. Used when the
// provider answers 429: the key is done for the day regardless of our own
// counter.
func (p *Pool) MarkExhausted(ctx context.Context, id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, cred := range p.creds {
		if cred.ID != id {
			continue
		}
		cred.DailyUsage = p.dailyLimit
		if err := p.store.UpdateUsage(ctx, cred.ID, cred.DailyUsage, cred.LastResetDate, cred.LastUsed); err != nil {
			p.logger.Warn("credential exhaustion write failed",
				logging.Int64("credential_id", cred.ID),
				logging.Error(err))
		}
		p.logger.Warn("credential exhausted for the day", logging.Int64("credential_id", cred.ID))
		return
	}
}

// UsageSnapshot reports per-credential daily usage for status output.
func (p *Pool) UsageSnapshot() map[int64]int {
	p.mu.Lock()
	defer p.mu.Unlock()

	usage := make(map[int64]int, len(p.creds))
	for _, cred := range p.creds {
		usage[cred.ID] = cred.DailyUsage
	}
	return usage
}
