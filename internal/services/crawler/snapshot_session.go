package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/pharmyrus/internal/interfaces"
)

// SnapshotSession replays saved page HTML instead of driving a browser.
// Stages[0] is the page after navigation; each successful Click moves to the
// next stage once RevealAfterPolls condition polls have happened, which
// mimics content that arrives asynchronously after a tab click.
// It backs the offline replay mode of the CLI.
type SnapshotSession struct {
	Stages           []string
	RevealAfterPolls int
	PollInterval     time.Duration

	mu           sync.Mutex
	stage        int
	pendingStage int
	polls        int
	doc          *goquery.Document
	url          string
	closed       bool
}

// NewSnapshotSession creates a session over one or more HTML stages
func NewSnapshotSession(stages ...string) *SnapshotSession {
	return &SnapshotSession{
		Stages:       stages,
		PollInterval: 10 * time.Millisecond,
		pendingStage: -1,
	}
}

func (s *SnapshotSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.Stages) == 0 {
		return &NavigationError{URL: url, Transient: false, Err: fmt.Errorf("no snapshot loaded")}
	}
	s.url = url
	s.stage = 0
	s.pendingStage = -1
	s.polls = 0
	return s.loadLocked()
}

func (s *SnapshotSession) Click(ctx context.Context, locators []interfaces.Locator) (interfaces.Locator, error) {
	if err := ctx.Err(); err != nil {
		return interfaces.Locator{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return interfaces.Locator{}, ErrElementNotFound
	}
	for _, loc := range locators {
		if len(resolveLocator(s.doc.Selection, loc)) == 0 {
			continue
		}
		if s.stage+1 < len(s.Stages) {
			s.pendingStage = s.stage + 1
			s.polls = 0
			if s.RevealAfterPolls <= 0 {
				s.revealLocked()
			}
		}
		return loc, nil
	}
	return interfaces.Locator{}, ErrElementNotFound
}

func (s *SnapshotSession) WaitForCondition(ctx context.Context, pred func(ctx context.Context) bool, maxWait time.Duration) error {
	return pollCondition(ctx, pred, maxWait, s.PollInterval, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.polls++
		if s.pendingStage >= 0 && s.polls >= s.RevealAfterPolls {
			s.revealLocked()
		}
	})
}

func (s *SnapshotSession) QueryAll(ctx context.Context, loc interfaces.Locator) ([]interfaces.DOMNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return nil, nil
	}
	return resolveLocator(s.doc.Selection, loc), nil
}

func (s *SnapshotSession) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

func (s *SnapshotSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close has been called
func (s *SnapshotSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *SnapshotSession) revealLocked() {
	if s.pendingStage < 0 {
		return
	}
	s.stage = s.pendingStage
	s.pendingStage = -1
	// Parse errors leave the previous stage in place
	_ = s.loadLocked()
}

func (s *SnapshotSession) loadLocked() error {
	doc, err := createDocument(s.Stages[s.stage])
	if err != nil {
		return err
	}
	s.doc = doc
	return nil
}

// SnapshotFactory hands out snapshot sessions over the same stages
type SnapshotFactory struct {
	Stages           []string
	RevealAfterPolls int
}

func (f *SnapshotFactory) NewSession(ctx context.Context) (interfaces.PageSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := NewSnapshotSession(f.Stages...)
	s.RevealAfterPolls = f.RevealAfterPolls
	return s, nil
}
