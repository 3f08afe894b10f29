package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/pharmyrus/internal/interfaces"
	"github.com/ternarybob/pharmyrus/internal/models"
)

// faultySession fails every query for one CSS selector and otherwise
// delegates to a snapshot
type faultySession struct {
	*SnapshotSession
	failCSS string
}

func (s *faultySession) QueryAll(ctx context.Context, loc interfaces.Locator) ([]interfaces.DOMNode, error) {
	if loc.CSS == s.failCSS {
		return nil, errors.New("node detached")
	}
	return s.SnapshotSession.QueryAll(ctx, loc)
}

func navigated(t *testing.T, stages ...string) *SnapshotSession {
	t.Helper()
	s := NewSnapshotSession(stages...)
	require.NoError(t, s.Navigate(context.Background(), "https://patentscope.wipo.int/search/en/detail.jsf?docId=WO2016168716"))
	return s
}

func TestChain_FirstMatchWins(t *testing.T) {
	page := navigated(t, `<html><body><div class="b">second</div><div class="c">third</div></body></html>`)

	chain := NewChain(FieldTitle,
		Strategy[string]{Name: "a", Locator: css("div.a"), Extract: firstText(1, 0)},
		Strategy[string]{Name: "b", Locator: css("div.b"), Extract: firstText(1, 0)},
		Strategy[string]{Name: "c", Locator: css("div.c"), Extract: firstText(1, 0)},
	)

	match := chain.Run(context.Background(), page)
	require.True(t, match.Found)
	assert.Equal(t, "second", match.Value)
	assert.Equal(t, "b", match.Strategy)
	assert.Equal(t, 2, match.Index)
	require.Len(t, match.Attempts, 2, "strategies after the match are not tried")
	assert.Equal(t, models.StrategyMiss, match.Attempts[0].Outcome)
	assert.Equal(t, models.StrategyMatched, match.Attempts[1].Outcome)
	assert.Equal(t, FieldTitle, match.Attempts[1].Field)
}

func TestChain_FaultsAreNonMatches(t *testing.T) {
	page := &faultySession{
		SnapshotSession: navigated(t, `<html><body><div class="ok">value</div><div class="boom">x</div></body></html>`),
		failCSS:         "div.broken",
	}

	chain := NewChain(FieldAbstract,
		Strategy[string]{Name: "broken", Locator: css("div.broken"), Extract: firstText(1, 0)},
		Strategy[string]{Name: "panics", Locator: css("div.boom"), Extract: func([]interfaces.DOMNode) (string, bool) {
			panic("unexpected markup")
		}},
		Strategy[string]{Name: "ok", Locator: css("div.ok"), Extract: firstText(1, 0)},
	)

	match := chain.Run(context.Background(), page)
	require.True(t, match.Found)
	assert.Equal(t, "value", match.Value)
	assert.Equal(t, 3, match.Index)

	require.Len(t, match.Attempts, 3)
	assert.Equal(t, models.StrategyFault, match.Attempts[0].Outcome)
	assert.Contains(t, match.Attempts[0].Detail, "node detached")
	assert.Equal(t, models.StrategyFault, match.Attempts[1].Outcome)
	assert.Contains(t, match.Attempts[1].Detail, "panicked")
}

func TestChain_NoMatchIsNotAnError(t *testing.T) {
	page := navigated(t, emptyPage())

	chain := DefaultStrategies(DefaultBaseURL).Title
	match := chain.Run(context.Background(), page)

	assert.False(t, match.Found)
	assert.Equal(t, 0, match.Index)
	assert.Empty(t, match.Value)
	assert.Len(t, match.Attempts, chain.Len())
}

func TestChain_StopsOnCancelledContext(t *testing.T) {
	page := navigated(t, detailPage())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	match := DefaultStrategies(DefaultBaseURL).Title.Run(ctx, page)
	assert.False(t, match.Found)
	assert.Empty(t, match.Attempts)
}

func TestChain_AppendKeepsOrder(t *testing.T) {
	page := navigated(t, `<html><body><span class="late">appended</span></body></html>`)

	set := DefaultStrategies(DefaultBaseURL)
	before := set.Title.Len()
	set.Title.Append(Strategy[string]{Name: "span.late", Locator: css("span.late"), Extract: firstText(1, 0)})

	match := set.Title.Run(context.Background(), page)
	require.True(t, match.Found)
	assert.Equal(t, before+1, match.Index)
	assert.Equal(t, "appended", match.Value)
}

func TestDefaultStrategies_Catalogue(t *testing.T) {
	set := DefaultStrategies(DefaultBaseURL)
	assert.GreaterOrEqual(t, set.Count(), 40)
	assert.GreaterOrEqual(t, len(set.Tabs), 5)
	assert.GreaterOrEqual(t, set.Rows.Len(), 4)
}

func TestDefaultStrategies_DetailPage(t *testing.T) {
	page := navigated(t, detailPage())
	set := DefaultStrategies(DefaultBaseURL)
	ctx := context.Background()

	tests := []struct {
		name     string
		run      func() (any, string)
		want     any
		strategy string
	}{
		{
			name:     "title",
			run:      func() (any, string) { m := set.Title.Run(ctx, page); return m.Value, m.Strategy },
			want:     "Substituted pyrazole compounds as androgen receptor modulators",
			strategy: "h3.tab_title",
		},
		{
			name:     "applicant",
			run:      func() (any, string) { m := set.Applicant.Run(ctx, page); return m.Value, m.Strategy },
			want:     "ORION CORPORATION",
			strategy: "label:Applicant",
		},
		{
			name:     "inventors",
			run:      func() (any, string) { m := set.Inventors.Run(ctx, page); return m.Value, m.Strategy },
			want:     []string{"Gerd WOHLFAHRT", "Olli TORMAKANGAS"},
			strategy: "label:Inventor",
		},
		{
			name:     "filing date",
			run:      func() (any, string) { m := set.FilingDate.Run(ctx, page); return m.Value, m.Strategy },
			want:     "14.04.2016",
			strategy: "row:Filing Date",
		},
		{
			name:     "priority date",
			run:      func() (any, string) { m := set.PriorityDate.Run(ctx, page); return m.Value, m.Strategy },
			want:     "15.04.2015",
			strategy: "row:Priority",
		},
		{
			name:     "classification keeps slashes",
			run:      func() (any, string) { m := set.Classification.Run(ctx, page); return m.Value, m.Strategy },
			want:     []string{"C07D 231/12", "A61K 31/415"},
			strategy: "label:IPC",
		},
		{
			name:     "pdf link is absolute",
			run:      func() (any, string) { m := set.PDFLink.Run(ctx, page); return m.Value, m.Strategy },
			want:     "https://patentscope.wipo.int/search/docs/WO2016168716.pdf",
			strategy: `a[href*="pdf"]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, strategy := tt.run()
			assert.Equal(t, tt.want, value)
			assert.Equal(t, tt.strategy, strategy)
		})
	}
}

func TestSnapshotSession_WaitIsBounded(t *testing.T) {
	page := navigated(t, emptyPage())

	start := time.Now()
	err := page.WaitForCondition(context.Background(), func(context.Context) bool { return false }, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrWaitTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSnapshotSession_WaitBoundsStalledCondition(t *testing.T) {
	page := navigated(t, emptyPage())

	start := time.Now()
	err := page.WaitForCondition(context.Background(), func(ctx context.Context) bool {
		<-ctx.Done()
		return false
	}, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrWaitTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPollCondition(t *testing.T) {
	t.Run("holds on a later poll", func(t *testing.T) {
		polls := 0
		err := pollCondition(context.Background(), func(context.Context) bool {
			return polls >= 3
		}, time.Second, time.Millisecond, func() { polls++ })
		assert.NoError(t, err)
		assert.Equal(t, 3, polls)
	})

	t.Run("zero wait checks once", func(t *testing.T) {
		calls := 0
		err := pollCondition(context.Background(), func(ctx context.Context) bool {
			calls++
			return ctx.Err() == nil && calls > 1
		}, 0, time.Millisecond, nil)
		assert.ErrorIs(t, err, ErrWaitTimeout)
		assert.Equal(t, 1, calls)
	})

	t.Run("parent cancellation wins", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := pollCondition(ctx, func(context.Context) bool { return false }, time.Second, time.Millisecond, nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrWaitTimeout)
	})
}
