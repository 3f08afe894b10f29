package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pharmyrus/internal/models"
)

func TestBuildQueryPlan(t *testing.T) {
	devCodes := []string{"ODM-201", "BAY-1841788", "BAY1841788", "ODM201", "BAY 1841788", "EXTRA-1"}

	t.Run("default plan is capped", func(t *testing.T) {
		plan := DefaultConfig().Discovery
		queries := BuildQueryPlan("darolutamide", devCodes, plan)

		require.Len(t, queries, 20)
		assert.Equal(t, "darolutamide patent WO2011", queries[0])
		assert.Equal(t, "darolutamide patent WO2024", queries[13])
		assert.Equal(t, "ODM-201 patent WO", queries[14])
		assert.Equal(t, `"ODM-201" WO patent`, queries[15])
		assert.Equal(t, `"BAY1841788" WO patent`, queries[19])
	})

	t.Run("full plan order", func(t *testing.T) {
		plan := DiscoveryPlan{YearFrom: 2015, YearTo: 2016, Companies: []string{"Orion Corporation", " "}, MaxDevCodes: 1, MaxQueries: 100}
		queries := BuildQueryPlan("darolutamide", devCodes, plan)
		assert.Equal(t, []string{
			"darolutamide patent WO2015",
			"darolutamide patent WO2016",
			"ODM-201 patent WO",
			`"ODM-201" WO patent`,
			"darolutamide Orion Corporation patent",
			`"darolutamide" pharmaceutical patent WO`,
			`"darolutamide" compound patent WO`,
		}, queries)
	})

	t.Run("no dev codes", func(t *testing.T) {
		plan := DiscoveryPlan{YearFrom: 2020, YearTo: 2020, MaxDevCodes: 5, MaxQueries: 100}
		queries := BuildQueryPlan("aspirin", nil, plan)
		assert.Len(t, queries, 3)
		for _, q := range queries {
			assert.Contains(t, q, "aspirin")
		}
	})
}

func TestExtractWONumbers(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{text: "WO2016168716 - Pyrazole compounds", want: []string{"WO2016168716"}},
		{text: "see WO 2011/051540 and wo-2012 160392", want: []string{"WO2011051540", "WO2012160392"}},
		{text: "https://patents.google.com/patent/WO2016168716A1/en", want: []string{"WO2016168716"}},
		{text: "US9657003B2 only", want: []string{}},
		{text: "WO16168716 is too short", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractWONumbers(tt.text))
		})
	}
}

// scriptedSearch answers by query and fails queries containing "fail"
type scriptedSearch struct {
	mu       sync.Mutex
	queries  []string
	inflight int
	peak     int
}

func (s *scriptedSearch) Search(ctx context.Context, query string, num int) ([]models.SearchResult, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.inflight++
	if s.inflight > s.peak {
		s.peak = s.inflight
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inflight--
		s.mu.Unlock()
	}()

	if strings.Contains(query, "fail") {
		return nil, errors.New("upstream error")
	}
	return []models.SearchResult{
		{Title: "WO2016168716 Pyrazole compounds", Snippet: "also WO 2011/051540", Link: "https://example.org"},
		{Title: "Unrelated", Snippet: query, Link: "https://patents.google.com/patent/WO2016168716A1"},
	}, nil
}

func TestDiscoverCandidates(t *testing.T) {
	engine := &scriptedSearch{}
	queries := []string{"a", "b", "fail 1", "c", "fail 2", "d"}
	plan := DiscoveryPlan{Concurrency: 2, ResultsPerQuery: 10}

	payload, errs := discoverCandidates(context.Background(), engine, queries, plan, arbor.NewLogger())

	assert.Equal(t, []string{"WO2011051540", "WO2016168716"}, payload.Candidates)
	assert.Equal(t, 6, payload.QueriesPlanned)
	assert.Equal(t, 6, payload.QueriesRun)
	assert.Equal(t, 2, payload.QueriesFailed)
	assert.Equal(t, 12, payload.TotalFound)
	assert.Len(t, errs, 2)
	assert.LessOrEqual(t, engine.peak, 2)
}
