package cache

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler periodically flushes dirty entries, the way
// taskManager.Start registers periodic jobs against a single
// gocron.Scheduler for the process. It does not sweep expired
// entries; those are dropped only when Get finds them expired.
type Scheduler struct {
	sched gocron.Scheduler
	cache *Cache
}

// NewScheduler creates a gocron-backed scheduler bound to cache.
func NewScheduler(cache *Cache) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("cache: create scheduler: %w", err)
	}
	return &Scheduler{sched: s, cache: cache}, nil
}

// Start registers the write-back flush job at the given interval and
// starts the scheduler. onFlushError, if non-nil, is called with any
// error FlushDirty returns.
func (s *Scheduler) Start(flushInterval time.Duration, onFlushError func(error)) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(flushInterval),
		gocron.NewTask(func() {
			if _, err := s.cache.FlushDirty(); err != nil && onFlushError != nil {
				onFlushError(err)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("cache: register flush job: %w", err)
	}
	s.sched.Start()
	return nil
}

// Shutdown stops the scheduler, waiting for any in-flight job.
func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}
