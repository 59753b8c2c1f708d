// Package maintenance runs background housekeeping on the local state store.
package maintenance

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"tether/internal/sessions"
)

// Scheduler prunes stale entries from the cached session snapshot on a cron
// schedule. Only local cache rows are touched; the remote store is never
// modified from here.
type Scheduler struct {
	store  *sessions.Store
	maxAge time.Duration
	log    *zap.Logger
	cron   *cron.Cron
}

// NewScheduler builds a Scheduler. Start must be called to arm it.
func NewScheduler(store *sessions.Store, maxAge time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		store:  store,
		maxAge: maxAge,
		log:    log,
		cron:   cron.New(cron.WithSeconds()),
	}
}

// Start arms the pruner with a six-field cron expression.
func (s *Scheduler) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.prune); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("snapshot pruner armed",
		zap.String("schedule", schedule),
		zap.Duration("max_age", s.maxAge))
	return nil
}

// Stop halts the scheduler, waiting for a running prune to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) prune() {
	n, err := s.store.PruneSnapshot(s.maxAge)
	if err != nil {
		s.log.Warn("snapshot prune failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("pruned stale cached sessions", zap.Int64("count", n))
	}
}
