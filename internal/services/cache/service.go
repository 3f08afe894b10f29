// Package cache provides the crawler's result caches: a map-backed memory
// cache and an in-memory badger store, both bounded by a TTL.
package cache

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pharmyrus/internal/common"
	"github.com/ternarybob/pharmyrus/internal/interfaces"
)

const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// NewResultCache creates the cache selected by config.CacheBackend
func NewResultCache(config common.CrawlerConfig, logger arbor.ILogger) (interfaces.ResultCache, error) {
	ttl := config.CacheTTLDuration()

	switch config.CacheBackend {
	case "", BackendMemory:
		return NewMemoryCache(ttl, logger), nil
	case BackendBadger:
		return NewBadgerCache(ttl, logger)
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", config.CacheBackend)
	}
}

// Sweeper evicts expired entries on a cron schedule.
type Sweeper struct {
	cache  interfaces.ResultCache
	cron   *cron.Cron
	logger arbor.ILogger
}

// NewSweeper creates a sweeper for cache
func NewSweeper(cache interfaces.ResultCache, logger arbor.ILogger) *Sweeper {
	return &Sweeper{
		cache:  cache,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start schedules sweeps. schedule accepts standard cron specs and
// descriptors such as "@every 5m". An empty schedule disables sweeping.
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		s.logger.Debug().Msg("Cache sweeping disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(schedule, func() { s.RunNow() }); err != nil {
		return fmt.Errorf("invalid cache sweep schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", schedule).
		Msg("Cache sweeper started")
	return nil
}

// RunNow performs one sweep and returns the number of evicted entries
func (s *Sweeper) RunNow() int {
	startTime := time.Now()
	removed := s.cache.Sweep()
	if removed > 0 {
		s.logger.Debug().
			Int("removed", removed).
			Int("remaining", s.cache.Len()).
			Dur("duration", time.Since(startTime)).
			Msg("Expired cache entries swept")
	}
	return removed
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Debug().Msg("Cache sweeper stopped")
}
