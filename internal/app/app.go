package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pharmyrus/internal/clinicaltrials"
	"github.com/ternarybob/pharmyrus/internal/common"
	"github.com/ternarybob/pharmyrus/internal/httpclient"
	"github.com/ternarybob/pharmyrus/internal/inpi"
	"github.com/ternarybob/pharmyrus/internal/interfaces"
	"github.com/ternarybob/pharmyrus/internal/metrics"
	"github.com/ternarybob/pharmyrus/internal/openfda"
	"github.com/ternarybob/pharmyrus/internal/pubchem"
	"github.com/ternarybob/pharmyrus/internal/serpapi"
	"github.com/ternarybob/pharmyrus/internal/services/cache"
	"github.com/ternarybob/pharmyrus/internal/services/crawler"
	"github.com/ternarybob/pharmyrus/internal/services/pipeline"
)

// Options select how page sessions are produced
type Options struct {
	// SnapshotStages replays saved detail page HTML instead of launching
	// browsers. Stage 0 is the page after navigation, later stages follow
	// tab clicks.
	SnapshotStages []string
}

// App holds all application components and dependencies
type App struct {
	Config  *common.Config
	Logger  arbor.ILogger
	Metrics *metrics.Collector

	// Crawler
	Cache    interfaces.ResultCache
	Sweeper  *cache.Sweeper
	Browsers *crawler.BrowserPool // nil in snapshot mode
	Crawler  *crawler.WIPOCrawler
	Pool     *crawler.Pool

	// Lookup services, nil when not configured
	Synonyms interfaces.SynonymLookup
	Search   interfaces.SearchEngine
	Registry interfaces.RegistryLookup
	Approval interfaces.ApprovalLookup
	Trials   interfaces.TrialsLookup

	Pipeline *pipeline.Orchestrator

	metricsServer *http.Server
	closed        bool
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger, opts Options) (*App, error) {
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewCollector(),
	}

	if err := app.initCache(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	if err := app.initCrawler(opts); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize crawler: %w", err)
	}

	app.initSources()
	app.initPipeline()

	if cfg.Metrics.Enabled {
		app.startMetricsServer()
	}

	logger.Info().
		Int("pool_size", cfg.Crawler.PoolSize).
		Str("cache_backend", cfg.Crawler.CacheBackend).
		Bool("snapshot_mode", len(opts.SnapshotStages) > 0).
		Bool("metrics", cfg.Metrics.Enabled).
		Msg("Application initialized")

	return app, nil
}

func (a *App) initCache() error {
	resultCache, err := cache.NewResultCache(a.Config.Crawler, a.Logger)
	if err != nil {
		return err
	}
	a.Cache = resultCache

	a.Sweeper = cache.NewSweeper(resultCache, a.Logger)
	if err := a.Sweeper.Start(a.Config.Crawler.CacheSweepSchedule); err != nil {
		return err
	}
	return nil
}

func (a *App) initCrawler(opts Options) error {
	cc := a.Config.Crawler

	var factory interfaces.SessionFactory
	if len(opts.SnapshotStages) > 0 {
		factory = &crawler.SnapshotFactory{Stages: opts.SnapshotStages, RevealAfterPolls: 1}
		a.Logger.Info().
			Int("stages", len(opts.SnapshotStages)).
			Msg("Replaying saved pages instead of launching browsers")
	} else {
		a.Browsers = crawler.NewBrowserPool(crawler.BrowserPoolConfig{
			Instances:      browserInstances(cc.PoolSize),
			UserAgent:      cc.UserAgent,
			AcceptLanguage: cc.AcceptLanguage,
			Headless:       cc.Headless,
			DisableGPU:     cc.DisableGPU,
			NoSandbox:      cc.NoSandbox,
			PollInterval:   common.ParseDuration(cc.PollInterval, 250*time.Millisecond),
		}, a.Logger)
		if err := a.Browsers.Start(); err != nil {
			a.Browsers = nil
			return err
		}
		factory = a.Browsers
	}

	a.Crawler = crawler.NewWIPOCrawler(crawler.WIPOCrawlerConfig{
		BaseURL:      cc.BaseURL,
		ContentWait:  common.ParseDuration(cc.ContentWait, 10*time.Second),
		RequestDelay: common.ParseDuration(cc.RequestDelay, 0),
	}, a.Logger)

	retry := crawler.NewRetryPolicy()
	retry.MaxAttempts = cc.MaxRetries
	retry.AttemptTimeout = cc.SessionTimeoutDuration()
	retry.InitialBackoff = common.ParseDuration(cc.RetryBaseDelay, retry.InitialBackoff)
	retry.MaxBackoff = common.ParseDuration(cc.RetryMaxDelay, retry.MaxBackoff)
	retry.Jitter = cc.RetryJitter

	a.Pool = crawler.NewPool(factory, a.Crawler, retry, a.Cache, crawler.PoolConfig{
		Size:                cc.PoolSize,
		DefaultJurisdiction: cc.DefaultJurisdiction,
	}, a.Logger).WithMetrics(a.Metrics)

	return nil
}

// browserInstances shares tabs across a few browsers; each session is a tab
func browserInstances(poolSize int) int {
	switch {
	case poolSize <= 2:
		return 1
	case poolSize <= 6:
		return 2
	default:
		return 3
	}
}

// initSources creates one client per configured lookup service. Interface
// fields are only assigned real clients so an unconfigured service stays nil.
func (a *App) initSources() {
	src := a.Config.Sources

	a.Synonyms = pubchem.NewClient(
		pubchem.WithBaseURL(src.PubChem.BaseURL),
		pubchem.WithHTTPClient(sourceHTTPClient(src.PubChem, pubchem.DefaultTimeout)),
		pubchem.WithRateLimit(src.PubChem.RateLimit),
		pubchem.WithLogger(a.Logger),
	)

	if src.SerpAPI.APIKey != "" {
		a.Search = serpapi.NewClient(src.SerpAPI.APIKey,
			serpapi.WithBaseURL(src.SerpAPI.BaseURL),
			serpapi.WithHTTPClient(sourceHTTPClient(src.SerpAPI, serpapi.DefaultTimeout)),
			serpapi.WithRateLimit(src.SerpAPI.RateLimit),
			serpapi.WithLogger(a.Logger),
		)
	} else {
		a.Logger.Warn().Msg("No search API key configured, candidate discovery is disabled")
	}

	a.Registry = inpi.NewClient(
		inpi.WithBaseURL(src.INPI.BaseURL),
		inpi.WithHTTPClient(sourceHTTPClient(src.INPI, inpi.DefaultTimeout)),
		inpi.WithRateLimit(src.INPI.RateLimit),
		inpi.WithLogger(a.Logger),
	)

	a.Approval = openfda.NewClient(
		openfda.WithBaseURL(src.OpenFDA.BaseURL),
		openfda.WithAPIKey(src.OpenFDA.APIKey),
		openfda.WithHTTPClient(sourceHTTPClient(src.OpenFDA, openfda.DefaultTimeout)),
		openfda.WithRateLimit(src.OpenFDA.RateLimit),
		openfda.WithLogger(a.Logger),
	)

	a.Trials = clinicaltrials.NewClient(
		clinicaltrials.WithBaseURL(src.ClinicalTrials.BaseURL),
		clinicaltrials.WithHTTPClient(sourceHTTPClient(src.ClinicalTrials, clinicaltrials.DefaultTimeout)),
		clinicaltrials.WithRateLimit(src.ClinicalTrials.RateLimit),
		clinicaltrials.WithLogger(a.Logger),
	)

	a.Logger.Debug().
		Bool("search_enabled", a.Search != nil).
		Msg("Lookup services configured")
}

func sourceHTTPClient(cfg common.SourceConfig, fallback time.Duration) *http.Client {
	return httpclient.NewDefaultHTTPClient(common.ParseDuration(cfg.Timeout, fallback))
}

func (a *App) initPipeline() {
	a.Pipeline = pipeline.NewOrchestrator(pipeline.Dependencies{
		Synonyms: a.Synonyms,
		Search:   a.Search,
		Patents:  a.Pool,
		Registry: a.Registry,
		Approval: a.Approval,
		Trials:   a.Trials,
	}, pipeline.NewConfig(a.Config.Pipeline), a.Logger).WithMetrics(a.Metrics)
}

func (a *App) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())

	a.metricsServer = &http.Server{
		Addr:              a.Config.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Str("address", a.Config.Metrics.Address).Msg("Metrics server failed")
		}
	}()

	a.Logger.Info().
		Str("address", a.Config.Metrics.Address).
		Msg("Metrics server listening")
}

// Close stops background work and releases browsers and the cache. It is
// safe to call more than once.
func (a *App) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	var errs []error

	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
		cancel()
	}

	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}

	if a.Pool != nil {
		stats := a.Pool.Stats()
		a.Logger.Debug().
			Int64("peak_sessions", stats.Peak).
			Int64("cache_hits", stats.CacheHits).
			Int64("cache_misses", stats.CacheMisses).
			Msg("Crawler pool closing")
		if err := a.Pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("crawler pool: %w", err))
		}
	}

	if a.Browsers != nil {
		if err := a.Browsers.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("browser pool: %w", err))
		}
	}

	// The pool owns the cache once created
	if a.Pool == nil && a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache: %w", err))
		}
	}

	a.Logger.Info().Msg("Application closed")
	return errors.Join(errs...)
}
