package setup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/modbot/internal/store"
)

// Janitor deletes expired setup sessions on a cron schedule.
type Janitor struct {
	sessions store.SetupStore
	expr     string
	now      func() time.Time
}

// NewJanitor validates expr and returns a Janitor for it.
func NewJanitor(sessions store.SetupStore, expr string) (*Janitor, error) {
	if _, err := gronx.NextTickAfter(expr, time.Now(), false); err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", expr, err)
	}
	return &Janitor{sessions: sessions, expr: expr, now: time.Now}, nil
}

// Run purges on every schedule tick until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(j.expr, j.now(), false)
		if err != nil {
			slog.Error("setup janitor: schedule failed", "expr", j.expr, "error", err)
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := j.PurgeOnce(ctx); err != nil {
			slog.Warn("setup janitor: purge failed", "error", err)
		}
	}
}

// PurgeOnce deletes sessions that have already expired.
func (j *Janitor) PurgeOnce(ctx context.Context) (int64, error) {
	n, err := j.sessions.PurgeExpiredSetupSessions(ctx, j.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("setup janitor: purged expired sessions", "count", n)
	}
	return n, nil
}
