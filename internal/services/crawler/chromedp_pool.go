package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pharmyrus/internal/interfaces"
)

// BrowserPool owns a fixed set of headless browser instances and opens a
// new tab per page session, picking browsers round-robin.
// It implements interfaces.SessionFactory.
type BrowserPool struct {
	browsers         []context.Context
	browserCancels   []context.CancelFunc
	allocatorCancels []context.CancelFunc
	mu               sync.Mutex
	config           BrowserPoolConfig
	currentIndex     int
	sessionsOpened   int
	logger           arbor.ILogger
	initialized      bool
}

// BrowserPoolConfig holds configuration for the browser pool
type BrowserPoolConfig struct {
	Instances      int           `json:"instances"`
	UserAgent      string        `json:"user_agent"`
	AcceptLanguage string        `json:"accept_language"`
	Headless       bool          `json:"headless"`
	DisableGPU     bool          `json:"disable_gpu"`
	NoSandbox      bool          `json:"no_sandbox"`
	StartupTimeout time.Duration `json:"startup_timeout"`
	PollInterval   time.Duration `json:"poll_interval"`
}

// NewBrowserPool creates an unstarted browser pool
func NewBrowserPool(config BrowserPoolConfig, logger arbor.ILogger) *BrowserPool {
	if config.UserAgent == "" {
		config.UserAgent = "Mozilla/5.0 (compatible; Pharmyrus)"
	}
	if config.StartupTimeout <= 0 {
		config.StartupTimeout = 30 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 250 * time.Millisecond
	}
	return &BrowserPool{
		config: config,
		logger: logger,
	}
}

// Start launches and tests every browser instance. It succeeds when at
// least one instance started.
func (p *BrowserPool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return fmt.Errorf("browser pool already started")
	}
	if p.config.Instances <= 0 {
		return fmt.Errorf("instances must be greater than 0, got: %d", p.config.Instances)
	}

	p.browsers = make([]context.Context, 0, p.config.Instances)
	p.browserCancels = make([]context.CancelFunc, 0, p.config.Instances)
	p.allocatorCancels = make([]context.CancelFunc, 0, p.config.Instances)
	p.currentIndex = 0

	p.logger.Info().
		Int("instances", p.config.Instances).
		Bool("headless", p.config.Headless).
		Msg("Starting browser pool")

	var lastErr error
	for i := 0; i < p.config.Instances; i++ {
		if err := p.createBrowserInstance(i); err != nil {
			lastErr = err
			p.logger.Warn().
				Err(err).
				Int("browser_index", i).
				Msg("Failed to create browser instance")
		}
	}

	if len(p.browsers) == 0 {
		p.cleanupInstances()
		return fmt.Errorf("failed to create any browser instances, last error: %w", lastErr)
	}
	if len(p.browsers) < p.config.Instances {
		p.logger.Warn().
			Int("requested", p.config.Instances).
			Int("created", len(p.browsers)).
			Err(lastErr).
			Msg("Created fewer browser instances than requested")
	}

	p.initialized = true
	p.logger.Info().
		Int("browsers_created", len(p.browsers)).
		Msg("Browser pool started")

	return nil
}

// createBrowserInstance starts one browser and runs a startup test (mutex held)
func (p *BrowserPool) createBrowserInstance(index int) error {
	startTime := time.Now()

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.config.Headless),
		chromedp.Flag("disable-gpu", p.config.DisableGPU),
		chromedp.Flag("no-sandbox", p.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(p.config.UserAgent),
		chromedp.WindowSize(viewportWidth, viewportHeight),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	// The first Run allocates the browser and must not use a cancellable child
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return fmt.Errorf("browser instance failed to launch: %w", err)
	}

	testCtx, testCancel := context.WithTimeout(browserCtx, p.config.StartupTimeout)
	defer testCancel()

	var title string
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank"), chromedp.Title(&title)); err != nil {
		browserCancel()
		allocatorCancel()
		return fmt.Errorf("browser instance failed startup test: %w", err)
	}

	p.browsers = append(p.browsers, browserCtx)
	p.browserCancels = append(p.browserCancels, browserCancel)
	p.allocatorCancels = append(p.allocatorCancels, allocatorCancel)

	p.logger.Debug().
		Int("browser_index", index).
		Dur("startup_time", time.Since(startTime)).
		Msg("Browser instance created and tested")

	return nil
}

// NewSession opens a tab in the next browser with the request headers and
// viewport applied.
func (p *BrowserPool) NewSession(ctx context.Context) (interfaces.PageSession, error) {
	p.mu.Lock()
	if !p.initialized || len(p.browsers) == 0 {
		p.mu.Unlock()
		return nil, fmt.Errorf("browser pool not started")
	}
	index := p.currentIndex % len(p.browsers)
	p.currentIndex = (p.currentIndex + 1) % len(p.browsers)
	p.sessionsOpened++
	browserCtx := p.browsers[index]
	p.mu.Unlock()

	tabCtx, cancel := chromedp.NewContext(browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	session := newChromedpSession(tabCtx, cancel, p.config.PollInterval)
	if err := session.setup(ctx, p.config.AcceptLanguage); err != nil {
		cancel()
		return nil, err
	}

	p.logger.Trace().
		Int("browser_index", index).
		Msg("Page session opened")

	return session, nil
}

// Shutdown closes every browser, bounded by 30 seconds
func (p *BrowserPool) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}

	startTime := time.Now()
	browserCount := len(p.browsers)

	done := make(chan struct{})
	go func() {
		p.cleanupInstances()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		p.logger.Warn().
			Int("browser_count", browserCount).
			Msg("Browser pool shutdown timed out")
	}

	p.initialized = false
	p.logger.Info().
		Int("browsers_shutdown", browserCount).
		Dur("shutdown_time", time.Since(startTime)).
		Msg("Browser pool shut down")

	return nil
}

// cleanupInstances cancels all browser and allocator contexts (mutex held)
func (p *BrowserPool) cleanupInstances() {
	for _, cancel := range p.browserCancels {
		if cancel != nil {
			cancel()
		}
	}
	for _, cancel := range p.allocatorCancels {
		if cancel != nil {
			cancel()
		}
	}
	p.browsers = nil
	p.browserCancels = nil
	p.allocatorCancels = nil
	p.currentIndex = 0
}

// Stats returns statistics about the browser pool
func (p *BrowserPool) Stats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	return map[string]interface{}{
		"instances":       p.config.Instances,
		"active_browsers": len(p.browsers),
		"started":         p.initialized,
		"sessions_opened": p.sessionsOpened,
	}
}
