package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/ternarybob/pharmyrus/internal/interfaces"
	"github.com/ternarybob/pharmyrus/internal/metrics"
	"github.com/ternarybob/pharmyrus/internal/models"
)

// PageCrawler performs one extraction attempt on a leased page
type PageCrawler interface {
	Crawl(ctx context.Context, page interfaces.PageSession, identifier string) (*models.ExtractionResult, error)
	DetailURL(identifier string) string
}

// PoolConfig holds pool settings
type PoolConfig struct {
	Size                int
	DefaultJurisdiction string
}

// PoolStats is a point-in-time view of the pool
type PoolStats struct {
	Size         int   `json:"size"`
	Active       int64 `json:"active"`
	Peak         int64 `json:"peak"`
	CacheHits    int64 `json:"cache_hits"`
	CacheMisses  int64 `json:"cache_misses"`
	CacheEntries int   `json:"cache_entries"`
	Closed       bool  `json:"closed"`
}

// Pool bounds concurrent page sessions, retries extractions and caches
// valid results. Waiting callers are served in arrival order.
type Pool struct {
	factory interfaces.SessionFactory
	crawler PageCrawler
	retry   *RetryPolicy
	cache   interfaces.ResultCache
	config  PoolConfig
	logger  arbor.ILogger
	metrics *metrics.Collector

	sem      *semaphore.Weighted
	inflight singleflight.Group

	// closing is cancelled by Close and bounds every shared crawl
	closing context.Context
	stop    context.CancelFunc

	active atomic.Int64
	peak   atomic.Int64
	hits   atomic.Int64
	misses atomic.Int64
	closed atomic.Bool
}

// NewPool creates a pool that leases at most config.Size sessions at once
func NewPool(factory interfaces.SessionFactory, crawler PageCrawler, retry *RetryPolicy, cache interfaces.ResultCache, config PoolConfig, logger arbor.ILogger) *Pool {
	if config.Size < 1 {
		config.Size = 1
	}
	if retry == nil {
		retry = NewRetryPolicy()
	}
	config.DefaultJurisdiction = strings.ToUpper(strings.TrimSpace(config.DefaultJurisdiction))

	logger.Debug().
		Int("pool_size", config.Size).
		Int("max_attempts", retry.MaxAttempts).
		Dur("attempt_timeout", retry.AttemptTimeout).
		Str("default_jurisdiction", config.DefaultJurisdiction).
		Msg("Crawler pool created")

	closing, stop := context.WithCancel(context.Background())
	return &Pool{
		factory: factory,
		crawler: crawler,
		retry:   retry,
		cache:   cache,
		config:  config,
		logger:  logger,
		sem:     semaphore.NewWeighted(int64(config.Size)),
		closing: closing,
		stop:    stop,
	}
}

// WithMetrics attaches a metrics collector
func (p *Pool) WithMetrics(collector *metrics.Collector) *Pool {
	p.metrics = collector
	return p
}

// Lease is exclusive use of one page session. Release must be called
// exactly once; extra calls are ignored.
type Lease struct {
	Session interfaces.PageSession
	release func()
	once    sync.Once
}

// Release closes the session and frees the slot
func (l *Lease) Release() {
	l.once.Do(l.release)
}

// Acquire blocks until a session slot is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	session, err := p.factory.NewSession(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, fmt.Errorf("failed to open page session: %w", err)
	}

	active := p.active.Add(1)
	for {
		peak := p.peak.Load()
		if active <= peak || p.peak.CompareAndSwap(peak, active) {
			break
		}
	}
	p.metrics.LeaseAcquired()

	lease := &Lease{Session: session}
	lease.release = func() {
		if err := session.Close(); err != nil {
			p.logger.Debug().Err(err).Msg("Failed to close page session")
		}
		p.active.Add(-1)
		p.metrics.LeaseReleased()
		p.sem.Release(1)
	}
	return lease, nil
}

// FetchPatent returns the extraction for identifier, from cache when a
// fresh entry exists. Concurrent calls for the same identifier and
// jurisdiction share one crawl; the crawl is detached from the caller that
// started it, so each caller is bounded only by its own ctx. A valid
// partial result is returned without error. When nothing usable was
// extracted the best attempt, if any, is returned with the error.
func (p *Pool) FetchPatent(ctx context.Context, identifier, jurisdiction string) (*models.ExtractionResult, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	wo, err := NormalizeIdentifier(identifier)
	if err != nil {
		return nil, err
	}
	juris := p.jurisdiction(jurisdiction)
	key := cacheKey(wo, juris)

	if cached, ok := p.cache.Get(key); ok {
		p.hits.Add(1)
		p.metrics.CacheLookup(true)
		cached.Debug.FromCache = true
		p.logger.Debug().
			Str("patent", wo).
			Str("jurisdiction", juris).
			Msg("Patent served from cache")
		return cached, nil
	}
	p.misses.Add(1)
	p.metrics.CacheLookup(false)

	ch := p.inflight.DoChan(key, func() (any, error) {
		fetchCtx, cancel := p.detach(ctx)
		defer cancel()
		return p.fetch(fetchCtx, wo, juris)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		result, _ := res.Val.(*models.ExtractionResult)
		if res.Shared {
			result = result.Clone()
		}
		return result, res.Err
	}
}

// detach derives a context for a shared crawl. It keeps ctx's values but
// not its deadline or cancellation, and ends when the pool is closed. The
// retry policy bounds the crawl itself.
func (p *Pool) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(p.closing, cancel)
	return fetchCtx, func() {
		stop()
		cancel()
	}
}

// fetch leases a session and runs the retry loop, keeping the attempt
// with the most populated fields.
func (p *Pool) fetch(ctx context.Context, wo, juris string) (*models.ExtractionResult, error) {
	startTime := time.Now()

	lease, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	var best *models.ExtractionResult
	var attemptErrors []string

	attempts, err := p.retry.ExecuteWithRetry(ctx, p.logger, func(ctx context.Context, attempt int) error {
		result, err := p.crawler.Crawl(ctx, lease.Session, wo)
		if result != nil && (best == nil || result.Record.PopulatedFields() >= best.Record.PopulatedFields()) {
			best = result
		}
		if err != nil {
			attemptErrors = append(attemptErrors, fmt.Sprintf("attempt %d: %v", attempt, err))
			if IsRetryable(err) {
				p.metrics.CrawlAttempt("retry")
			} else {
				p.metrics.CrawlAttempt("failed")
			}
			return err
		}
		p.metrics.CrawlAttempt("success")
		return nil
	})

	if best == nil {
		best = &models.ExtractionResult{
			Record: models.NewPatentRecord(wo, p.crawler.DetailURL(wo)),
			Debug:  models.NewExtractionDebug(),
		}
	}
	best.Debug.Attempts = attempts
	best.Debug.Errors = append(best.Debug.Errors, attemptErrors...)
	applyJurisdiction(best, juris)

	duration := time.Since(startTime)
	p.metrics.CrawlFinished(best.Valid, duration)

	if err != nil && !best.Valid {
		p.logger.Warn().
			Str("patent", wo).
			Int("attempts", attempts).
			Int("fields", best.Record.PopulatedFields()).
			Dur("duration", duration).
			Err(err).
			Msg("Patent extraction failed")
		return best, fmt.Errorf("failed to fetch %s: %w", wo, err)
	}
	if err != nil {
		// Partial data is still a usable extraction
		best.Debug.Errors = append(best.Debug.Errors, err.Error())
		p.logger.Warn().
			Str("patent", wo).
			Int("attempts", attempts).
			Int("fields", best.Record.PopulatedFields()).
			Err(err).
			Msg("Keeping partial patent extraction")
	}

	if best.Valid {
		if err := p.cache.Set(cacheKey(wo, juris), best); err != nil {
			p.logger.Warn().Err(err).Str("patent", wo).Msg("Failed to cache patent")
		}
	}

	p.logger.Info().
		Str("patent", wo).
		Int("attempts", attempts).
		Int("worldwide_apps", best.Debug.TotalWorldwideApps).
		Int("jurisdiction_patents", best.Debug.JurisdictionFound).
		Dur("duration", duration).
		Msg("Patent extracted")

	return best, nil
}

// FetchMany fetches every identifier concurrently, bounded by the pool
// size, and returns outcomes in input order.
func (p *Pool) FetchMany(ctx context.Context, identifiers []string, jurisdiction string) []models.FetchOutcome {
	outcomes := make([]models.FetchOutcome, len(identifiers))

	var wg sync.WaitGroup
	for i, id := range identifiers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := p.FetchPatent(ctx, id, jurisdiction)
			outcomes[i] = models.FetchOutcome{Identifier: id, Result: result, Err: err}
			if err != nil {
				outcomes[i].Error = err.Error()
			}
		}()
	}
	wg.Wait()

	return outcomes
}

// Stats returns the current pool counters
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Size:         p.config.Size,
		Active:       p.active.Load(),
		Peak:         p.peak.Load(),
		CacheHits:    p.hits.Load(),
		CacheMisses:  p.misses.Load(),
		CacheEntries: p.cache.Len(),
		Closed:       p.closed.Load(),
	}
}

// Close rejects new fetches, cancels crawls in flight and closes the cache.
// Leases already held stay valid until released.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.stop()
	p.logger.Debug().
		Int64("peak_leases", p.peak.Load()).
		Int64("cache_hits", p.hits.Load()).
		Msg("Crawler pool closed")
	return p.cache.Close()
}

func (p *Pool) jurisdiction(jurisdiction string) string {
	juris := strings.ToUpper(strings.TrimSpace(jurisdiction))
	if juris == "" {
		return p.config.DefaultJurisdiction
	}
	return juris
}

// applyJurisdiction selects the entries filed in juris. The full worldwide
// map is left untouched.
func applyJurisdiction(result *models.ExtractionResult, juris string) {
	record := result.Record
	record.JurisdictionPatents = record.FilterJurisdiction(juris)
	result.Debug.JurisdictionFound = len(record.JurisdictionPatents)
	result.Debug.CountryFilterApplied = juris
	result.Valid = record.IsValid()
}

func cacheKey(wo, juris string) string {
	return wo + "|" + juris
}
