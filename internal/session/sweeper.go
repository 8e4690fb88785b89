package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// DefaultPurgeSchedule runs the expired-session sweep every 15 minutes.
const DefaultPurgeSchedule = "*/15 * * * *"

// Sweeper purges expired sessions on a cron schedule.
type Sweeper struct {
	store    *Store
	schedule string
}

// NewSweeper validates schedule and returns a sweeper for store.
func NewSweeper(store *Store, schedule string) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultPurgeSchedule
	}
	if !gronx.IsValid(schedule) {
		return nil, fmt.Errorf("invalid purge schedule: %s", schedule)
	}
	return &Sweeper{store: store, schedule: schedule}, nil
}

// RunOnce deletes every session expired at now.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.store.PurgeExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("expired sessions purged", "count", n)
	}
	return n, nil
}

// Run sweeps at every tick of the schedule until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	slog.Info("session sweeper started", "schedule", s.schedule)
	for {
		next, err := gronx.NextTickAfter(s.schedule, time.Now().UTC(), false)
		wait := time.Until(next)
		if err != nil {
			slog.Error("session sweeper next tick failed", "schedule", s.schedule, "error", err)
			wait = time.Minute
		}

		select {
		case <-ctx.Done():
			slog.Info("session sweeper stopped")
			return
		case <-time.After(wait):
		}

		if _, err := s.RunOnce(ctx, time.Now()); err != nil {
			slog.Error("session purge failed", "error", err)
		}
	}
}
