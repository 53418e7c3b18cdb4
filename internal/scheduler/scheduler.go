// Package scheduler reloads the current playlist source on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/voyagen/mbient/internal/cache"
	"github.com/voyagen/mbient/internal/logger"
)

// Reloader reloads whatever source it currently holds.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Scheduler runs Reload on every cron tick. When a Redis handle is set the
// tick only runs while holding a shared lock, so one replica refreshes at a time.
type Scheduler struct {
	cron     *cron.Cron
	reloader Reloader
	redis    *cache.Redis
	timeout  time.Duration
	log      logger.Logger
	ctx      context.Context
}

// New parses spec (standard 5-field cron) and prepares a scheduler.
// rds may be nil.
func New(spec string, r Reloader, rds *cache.Redis, timeout time.Duration, log logger.Logger) (*Scheduler, error) {
	if timeout <= 0 {
		timeout = time.Minute
	}
	s := &Scheduler{
		cron:     cron.New(),
		reloader: r,
		redis:    rds,
		timeout:  timeout,
		log:      log,
		ctx:      context.Background(),
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("scheduler: parse %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the cron loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.log.Logf("scheduler started")
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
		s.log.Logf("scheduler stopped")
	}()
}

func (s *Scheduler) tick() {
	if err := s.runOnce(s.ctx); err != nil {
		s.log.Warnf("scheduled refresh: %v", err)
	}
}

func (s *Scheduler) runOnce(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	if s.redis != nil {
		unlock, err := cache.TryLock(ctx, s.redis, cache.RefreshLock, s.timeout)
		if errors.Is(err, cache.ErrLocked) {
			s.log.Debugf("scheduled refresh skipped: another instance holds the lock")
			return nil
		}
		if err != nil {
			return err
		}
		defer unlock()
	}

	start := time.Now()
	if err := s.reloader.Reload(ctx); err != nil {
		return err
	}
	s.log.Debugf("scheduled refresh done in %s", time.Since(start))
	return nil
}
