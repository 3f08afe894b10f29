package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/ternarybob/pharmyrus/internal/interfaces"
)

const (
	viewportWidth  = 1920
	viewportHeight = 1080
)

// clickScript finds the locator's element in the live page and clicks it.
// Arguments are JSON-encoded strings.
const clickScript = `(function(css, contains, next) {
	var nodes = Array.prototype.slice.call(document.querySelectorAll(css));
	if (contains) {
		var needle = contains.toLowerCase();
		nodes = nodes.filter(function(n) { return (n.textContent || '').toLowerCase().indexOf(needle) >= 0; });
	}
	if (next) {
		nodes = nodes.map(function(n) {
			var s = n.nextElementSibling;
			return s && s.matches(next) ? s : null;
		}).filter(function(n) { return n !== null; });
	}
	if (nodes.length === 0) { return false; }
	nodes[0].scrollIntoView({block: 'center'});
	nodes[0].click();
	return true;
})(%s, %s, %s)`

// chromedpSession is one browser tab. Queries run against a goquery
// snapshot of the DOM that is refreshed after navigation, clicks and on
// every wait poll.
type chromedpSession struct {
	tabCtx       context.Context
	cancel       context.CancelFunc
	pollInterval time.Duration

	mu   sync.Mutex
	doc  *goquery.Document
	url  string
	done bool
}

func newChromedpSession(tabCtx context.Context, cancel context.CancelFunc, pollInterval time.Duration) *chromedpSession {
	return &chromedpSession{
		tabCtx:       tabCtx,
		cancel:       cancel,
		pollInterval: pollInterval,
	}
}

// setup enables the network domain, sets Accept-Language and the viewport
func (s *chromedpSession) setup(ctx context.Context, acceptLanguage string) error {
	actions := []chromedp.Action{
		network.Enable(),
		chromedp.EmulateViewport(viewportWidth, viewportHeight),
	}
	if acceptLanguage != "" {
		actions = append(actions, network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": acceptLanguage,
		}))
	}
	if err := s.run(ctx, actions...); err != nil {
		return fmt.Errorf("failed to prepare tab: %w", err)
	}
	return nil
}

// run executes actions on the tab, bounded by ctx's deadline and
// cancellation.
func (s *chromedpSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *chromedpSession) Navigate(ctx context.Context, url string) error {
	s.invalidate()

	runCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(url))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &NavigationError{URL: url, Transient: true, Err: err}
	}
	if resp != nil && resp.Status >= 400 {
		transient := resp.Status >= 500 || resp.Status == 429
		return &NavigationError{URL: url, Transient: transient, Err: fmt.Errorf("status %d", resp.Status)}
	}

	if err := chromedp.Run(runCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &NavigationError{URL: url, Transient: true, Err: err}
	}

	s.mu.Lock()
	s.url = url
	s.mu.Unlock()
	return nil
}

func (s *chromedpSession) Click(ctx context.Context, locators []interfaces.Locator) (interfaces.Locator, error) {
	for _, loc := range locators {
		script, err := buildClickScript(loc)
		if err != nil {
			return interfaces.Locator{}, err
		}

		var clicked bool
		if err := s.run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
			if ctx.Err() != nil {
				return interfaces.Locator{}, ctx.Err()
			}
			continue
		}
		if clicked {
			s.invalidate()
			return loc, nil
		}
	}
	return interfaces.Locator{}, ErrElementNotFound
}

func (s *chromedpSession) WaitForCondition(ctx context.Context, pred func(ctx context.Context) bool, maxWait time.Duration) error {
	return pollCondition(ctx, pred, maxWait, s.pollInterval, s.invalidate)
}

func (s *chromedpSession) QueryAll(ctx context.Context, loc interfaces.Locator) ([]interfaces.DOMNode, error) {
	doc, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return resolveLocator(doc.Selection, loc), nil
}

func (s *chromedpSession) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

func (s *chromedpSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	s.doc = nil
	s.cancel()
	return nil
}

// snapshot returns the cached DOM or captures a new one
func (s *chromedpSession) snapshot(ctx context.Context) (*goquery.Document, error) {
	s.mu.Lock()
	doc := s.doc
	s.mu.Unlock()
	if doc != nil {
		return doc, nil
	}

	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("failed to capture page: %w", err)
	}
	doc, err := createDocument(html)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return doc, nil
}

func (s *chromedpSession) invalidate() {
	s.mu.Lock()
	s.doc = nil
	s.mu.Unlock()
}

// buildClickScript renders clickScript for loc
func buildClickScript(loc interfaces.Locator) (string, error) {
	if loc.CSS == "" {
		return "", fmt.Errorf("locator has no CSS selector")
	}
	args := make([]any, 0, 3)
	for _, v := range []string{loc.CSS, loc.Contains, loc.Next} {
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		args = append(args, string(encoded))
	}
	return fmt.Sprintf(clickScript, args...), nil
}
