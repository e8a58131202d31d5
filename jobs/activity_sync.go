// Package jobs hosts the recurring background work: the GitHub activity sync
// and the log retention sweep. Jobs never fail their caller; every per-item
// failure is logged and the batch moves on.
package jobs

import (
	"context"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"devboard/bus"
	"devboard/domain"
)

// UserSource is the slice of storage the sync job needs.
type UserSource interface {
	ListGithubUsers(ctx context.Context) ([]domain.User, error)
	SaveActivity(ctx context.Context, id string, snap domain.ActivitySnapshot, syncedAt time.Time) error
}

// Fetcher produces an activity snapshot for one credential.
type Fetcher interface {
	Fetch(ctx context.Context, token string) (*domain.ActivitySnapshot, error)
}

// Publisher pushes events to a user's room.
type Publisher interface {
	Publish(ctx context.Context, room, name string, payload any) error
}

// SnapshotCache keeps the latest snapshot warm for new stream connections.
type SnapshotCache interface {
	StoreActivity(ctx context.Context, userID string, snap domain.ActivitySnapshot)
}

const startupGrace = 5 * time.Second

// ActivitySync periodically refreshes every credentialed user's GitHub
// activity, strictly one user at a time with a pacing delay between users to
// stay inside the upstream rate limits.
type ActivitySync struct {
	store   UserSource
	fetcher Fetcher
	bus     Publisher
	cache   SnapshotCache

	interval time.Duration
	pace     time.Duration
	pause    func(ctx context.Context, d time.Duration)
	now      func() time.Time

	running atomic.Bool
}

// NewActivitySync creates the sync job. interval is the cycle period, pace
// the mandatory per-user delay.
func NewActivitySync(store UserSource, fetcher Fetcher, b Publisher, cache SnapshotCache, interval, pace time.Duration) *ActivitySync {
	return &ActivitySync{
		store:    store,
		fetcher:  fetcher,
		bus:      b,
		cache:    cache,
		interval: interval,
		pace:     pace,
		pause:    sleepCtx,
		now:      time.Now,
	}
}

// Run executes one cycle shortly after startup, then one per interval, until
// ctx is cancelled. The period is independent of cycle duration; a tick that
// lands mid-cycle is dropped.
func (s *ActivitySync) Run(ctx context.Context) {
	s.pause(ctx, startupGrace)
	if ctx.Err() != nil {
		return
	}
	s.RunCycle(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle performs one pass over all users holding a GitHub credential.
// Only one cycle runs at a time; an overlapping trigger is a no-op.
func (s *ActivitySync) RunCycle(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		log.Debug("activity sync already running, dropping trigger")
		return
	}
	defer s.running.Store(false)

	users, err := s.store.ListGithubUsers(ctx)
	if err != nil {
		log.Errorf("activity sync: list users: %v", err)
		return
	}
	log.Infof("activity sync: starting cycle for %d users", len(users))
	for _, u := range users {
		s.syncUser(ctx, u)
		s.pause(ctx, s.pace)
		if ctx.Err() != nil {
			return
		}
	}
	log.Info("activity sync: cycle complete")
}

func (s *ActivitySync) syncUser(ctx context.Context, u domain.User) {
	snap, err := s.fetcher.Fetch(ctx, u.GithubToken)
	if err != nil {
		log.Errorf("activity sync: fetch for %s: %v", u.ID, err)
		return
	}
	if err := s.store.SaveActivity(ctx, u.ID, *snap, s.now()); err != nil {
		log.Errorf("activity sync: persist for %s: %v", u.ID, err)
		return
	}
	s.cache.StoreActivity(ctx, u.ID, *snap)
	if err := s.bus.Publish(ctx, bus.RoomForUser(u.ID), bus.EventActivityUpdate, snap); err != nil {
		log.Errorf("activity sync: publish for %s: %v", u.ID, err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
