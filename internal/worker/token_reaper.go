package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/careportal-api/internal/repository"
	"github.com/jwalitptl/careportal-api/pkg/logger"
	"github.com/jwalitptl/careportal-api/pkg/metrics"
)

// TokenReaper deletes opaque tokens that expired more than grace ago.
// Expiry is enforced at consumption time; this only keeps the table small.
type TokenReaper struct {
	tokens   repository.TokenRepository
	interval time.Duration
	grace    time.Duration
	log      *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewTokenReaper(tokens repository.TokenRepository, interval, grace time.Duration, log *logger.Logger, m *metrics.Metrics) *TokenReaper {
	if interval <= 0 {
		interval = time.Hour
	}
	if grace < 0 {
		grace = 0
	}
	if log == nil {
		log = logger.Nop()
	}
	return &TokenReaper{
		tokens:   tokens,
		interval: interval,
		grace:    grace,
		log:      log,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start reaps once immediately and then on every tick until ctx is done.
func (w *TokenReaper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("token reaper started", "interval", w.interval.String(), "grace", w.grace.String())
	for {
		if _, err := w.Reap(ctx); err != nil {
			w.log.Error(err, "token reap failed")
		}
		select {
		case <-ctx.Done():
			w.log.Info("token reaper stopped")
			return
		case <-ticker.C:
		}
	}
}

// Reap runs one cleanup pass.
func (w *TokenReaper) Reap(ctx context.Context) (int64, error) {
	cutoff := w.now().Add(-w.grace)

	rows, err := w.tokens.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reap expired tokens: %w", err)
	}
	w.metrics.Reaped(rows)
	if rows > 0 {
		w.log.Info("reaped expired tokens", "count", rows, "cutoff", cutoff.Format(time.RFC3339))
	}
	return rows, nil
}
