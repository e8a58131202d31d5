package jobs

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Retention defaults: entries older than 30 days are removed, once a day at
// 02:00 local time.
const (
	retentionWindow = 30 * 24 * time.Hour
	sweepHour       = 2
)

// LogPurger is the slice of storage the sweeper needs.
type LogPurger interface {
	DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// RetentionSweeper deletes log entries that fell out of the retention window.
type RetentionSweeper struct {
	store  LogPurger
	window time.Duration
	pause  func(ctx context.Context, d time.Duration)
	now    func() time.Time
}

// NewRetentionSweeper creates the sweeper. A window of zero or less selects
// the default 30 days.
func NewRetentionSweeper(store LogPurger, window time.Duration) *RetentionSweeper {
	if window <= 0 {
		window = retentionWindow
	}
	return &RetentionSweeper{
		store:  store,
		window: window,
		pause:  sleepCtx,
		now:    time.Now,
	}
}

// Run sweeps once a day at the scheduled hour until ctx is cancelled. A
// failed sweep is not retried immediately; the next occurrence catches up.
func (s *RetentionSweeper) Run(ctx context.Context) {
	for {
		next := nextSweepTime(s.now())
		s.pause(ctx, next.Sub(s.now()))
		if ctx.Err() != nil {
			return
		}
		s.Sweep(ctx)
	}
}

// Sweep deletes every entry older than the retention window and logs the
// count. Running it twice in a row is safe; the second pass deletes nothing.
func (s *RetentionSweeper) Sweep(ctx context.Context) {
	cutoff := s.now().Add(-s.window)
	deleted, err := s.store.DeleteLogsBefore(ctx, cutoff)
	if err != nil {
		log.Errorf("log cleanup: %v", err)
		return
	}
	log.Infof("log cleanup removed %d entries", deleted)
}

func nextSweepTime(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), sweepHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
