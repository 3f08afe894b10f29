package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pharmyrus/internal/metrics"
	"github.com/ternarybob/pharmyrus/internal/models"
)

func testConfig() Config {
	config := DefaultConfig()
	config.RequestTimeout = 5 * time.Second
	for layer := range config.LayerTimeouts {
		config.LayerTimeouts[layer] = 2 * time.Second
	}
	config.Discovery = DiscoveryPlan{
		YearFrom:        2016,
		YearTo:          2016,
		MaxDevCodes:     1,
		MaxQueries:      10,
		ResultsPerQuery: 10,
		Concurrency:     2,
	}
	config.RegistryTerms = 1
	return config
}

// assertPipelineRuns checks that exactly one run was counted, under result
func assertPipelineRuns(t *testing.T, collector *metrics.Collector, result string) {
	t.Helper()
	expected := fmt.Sprintf(`
# HELP pharmyrus_pipeline_runs_total Completed pipeline runs by result
# TYPE pharmyrus_pipeline_runs_total counter
pharmyrus_pipeline_runs_total{result=%q} 1
`, result)
	require.NoError(t, testutil.GatherAndCompare(collector.Registry(), strings.NewReader(expected), "pharmyrus_pipeline_runs_total"))
}

func newTestOrchestrator(deps Dependencies, config Config) *Orchestrator {
	o := NewOrchestrator(deps, config, arbor.NewLogger())
	o.newRunID = func() string { return "run_test" }
	return o
}

type happyMocks struct {
	synonyms *mockSynonyms
	search   *mockSearch
	registry *mockRegistry
	approval *mockApproval
	trials   *mockTrials
	patents  *fakePatents
}

func newHappyMocks() *happyMocks {
	m := &happyMocks{
		synonyms: &mockSynonyms{},
		search:   &mockSearch{},
		registry: &mockRegistry{},
		approval: &mockApproval{},
		trials:   &mockTrials{},
		patents: &fakePatents{results: map[string]*models.ExtractionResult{
			"WO2011051540": patentResult("WO2011051540", "Androgen receptor modulating compounds", "BR", "US", "EP", "JP"),
			"WO2016168716": patentResult("WO2016168716", "Pyrazole compounds", "CN", "EP"),
		}},
	}

	m.synonyms.On("Resolve", mock.Anything, "darolutamide").Return(&models.SynonymPayload{
		CID:       67171867,
		Synonyms:  []string{"darolutamide", "ODM-201", "1297538-32-9"},
		DevCodes:  []string{"ODM-201", "BAY-1841788"},
		CAS:       "1297538-32-9",
		IUPACName: "N-[(2S)-1-[3-(3-chloro-4-cyanophenyl)pyrazol-1-yl]propan-2-yl]-5-(1-hydroxyethyl)-1H-pyrazole-3-carboxamide",
	}, nil)

	m.search.On("Search", mock.Anything, mock.Anything, 10).Return([]models.SearchResult{
		{Title: "WO2016168716 Pyrazole compounds", Snippet: "continuation of WO 2011/051540"},
	}, nil)

	m.registry.On("Search", mock.Anything, "darolutamide").Return([]models.RegistryPatent{
		{Number: "BR112012008823", Applicant: "ORION CORPORATION", Term: "darolutamide"},
	}, nil)
	m.registry.On("Search", mock.Anything, "ODM-201").Return([]models.RegistryPatent{
		{Number: "BR112012008823", Applicant: "ORION CORPORATION", Term: "ODM-201"},
		{Number: "BR112017022083", Applicant: "ORION CORPORATION", Term: "ODM-201"},
	}, nil)

	m.approval.On("ApprovalStatus", mock.Anything, "darolutamide").Return(&models.ApprovalPayload{
		Status:   "Approved",
		Products: []models.ApprovalProduct{{BrandName: "Nubeqa"}},
		Total:    1,
	}, nil)

	m.trials.On("Trials", mock.Anything, "darolutamide").Return(&models.TrialsPayload{
		Total:    3,
		ByPhase:  map[string]int{"PHASE3": 3},
		ByStatus: map[string]int{"COMPLETED": 3},
	}, nil)

	return m
}

func (m *happyMocks) deps() Dependencies {
	return Dependencies{
		Synonyms: m.synonyms,
		Search:   m.search,
		Patents:  m.patents,
		Registry: m.registry,
		Approval: m.approval,
		Trials:   m.trials,
	}
}

func TestOrchestrator_AllLayersSucceed(t *testing.T) {
	mocks := newHappyMocks()
	collector := metrics.NewCollector()
	o := newTestOrchestrator(mocks.deps(), testConfig()).WithMetrics(collector)

	report, err := o.Run(context.Background(), models.PipelineRequest{Molecule: " darolutamide "})
	require.NoError(t, err)

	assert.Equal(t, "run_test", report.RunID)
	assert.Equal(t, "darolutamide", report.Molecule)
	assert.Equal(t, testConfig().DefaultLimit, report.Limit)
	assert.Equal(t, models.LayerOrder, report.MergedLayers)
	require.Len(t, report.Layers, 6)
	for i, layer := range report.Layers {
		assert.Equal(t, models.LayerOrder[i], layer.Name)
		assert.Equal(t, models.LayerSuccess, layer.Status, layer.Name)
	}
	assert.Empty(t, report.Errors)

	// Discovery used the first development code
	mocks.search.AssertCalled(t, "Search", mock.Anything, "ODM-201 patent WO", 10)
	mocks.search.AssertNotCalled(t, "Search", mock.Anything, "BAY-1841788 patent WO", 10)
	assert.Equal(t, []string{"WO2011051540", "WO2016168716"}, report.Discovery.Candidates)

	require.Len(t, mocks.patents.calls, 1)
	assert.Equal(t, []string{"WO2011051540", "WO2016168716"}, mocks.patents.calls[0])
	assert.Equal(t, 2, report.Patents.Valid)

	assert.Equal(t, []string{"darolutamide", "ODM-201"}, report.Registry.Terms)
	assert.Len(t, report.Registry.Patents, 3)

	// WO patents first, registry duplicates collapsed
	numbers := []string{}
	for _, p := range report.AllPatents {
		numbers = append(numbers, p.Number)
	}
	assert.Equal(t, []string{"WO2011051540", "WO2016168716", "BR112012008823", "BR112017022083"}, numbers)
	assert.Equal(t, 4, report.AllPatents[0].WorldwideApps)

	summary := report.ExecutiveSummary
	require.NotNil(t, summary)
	assert.Equal(t, "Darolutamide", summary.CommercialName)
	assert.Len(t, []rune(summary.GenericName), genericNameLimit)
	assert.Equal(t, "1297538-32-9", summary.CAS)
	assert.Equal(t, 4, summary.TotalPatents)
	assert.Equal(t, 4, summary.TotalFamilies)
	assert.Equal(t, map[string]int{"BR": 3, "US": 1, "EP": 2, "JP": 1, "CN": 1, "WO": 2}, summary.ByJurisdiction)
	assert.Equal(t, 5, summary.FamilyCountries)
	assert.Equal(t, "Approved", summary.ApprovalStatus)
	assert.Equal(t, 3, summary.ClinicalTrials)
	assert.Equal(t, 6, summary.LayersSucceeded)
	assert.Equal(t, float64(1), summary.ConsistencyScore)

	assertPipelineRuns(t, collector, "ok")
}

func TestOrchestrator_SynonymFailureDegradesDependants(t *testing.T) {
	mocks := newHappyMocks()
	synonyms := &mockSynonyms{}
	synonyms.On("Resolve", mock.Anything, "darolutamide").Return(nil, errors.New("pubchem unavailable"))
	deps := mocks.deps()
	deps.Synonyms = synonyms

	report, err := newTestOrchestrator(deps, testConfig()).Run(context.Background(), models.PipelineRequest{Molecule: "darolutamide"})
	require.NoError(t, err)

	assert.Equal(t, models.LayerFailed, report.Layer(models.LayerSynonyms).Status)
	assert.Contains(t, report.Errors[models.LayerSynonyms], "pubchem unavailable")
	assert.Nil(t, report.Synonyms)

	for _, call := range mocks.search.Calls {
		assert.NotContains(t, call.Arguments.String(1), "ODM-201", "no dev-code queries without synonyms")
	}
	assert.Equal(t, []string{"darolutamide"}, report.Registry.Terms)
	mocks.registry.AssertNotCalled(t, "Search", mock.Anything, "ODM-201")

	assert.Equal(t, models.LayerSuccess, report.Layer(models.LayerDiscovery).Status)
	assert.Equal(t, models.LayerSuccess, report.Layer(models.LayerJurisdiction).Status)
	assert.Empty(t, report.ExecutiveSummary.CAS)
	assert.Equal(t, 5, report.ExecutiveSummary.LayersSucceeded)
}

func TestOrchestrator_LayerTimeout(t *testing.T) {
	mocks := newHappyMocks()
	deps := mocks.deps()
	deps.Trials = blockingTrials{}

	config := testConfig()
	config.LayerTimeouts[models.LayerTrials] = 50 * time.Millisecond

	startTime := time.Now()
	report, err := newTestOrchestrator(deps, config).Run(context.Background(), models.PipelineRequest{Molecule: "darolutamide"})
	require.NoError(t, err)
	assert.Less(t, time.Since(startTime), 2*time.Second)

	trials := report.Layer(models.LayerTrials)
	assert.Equal(t, models.LayerTimedOut, trials.Status)
	assert.NotEmpty(t, trials.Error)
	assert.Nil(t, report.Trials)
	assert.NotContains(t, report.MergedLayers, models.LayerTrials)
	assert.Equal(t, 0, report.ExecutiveSummary.ClinicalTrials)
	assert.Equal(t, models.LayerSuccess, report.Layer(models.LayerApproval).Status)
}

func TestOrchestrator_RequestDeadlineWhileWaiting(t *testing.T) {
	mocks := newHappyMocks()
	deps := mocks.deps()
	deps.Synonyms = slowSynonyms{delay: time.Second}

	config := testConfig()
	config.RequestTimeout = 100 * time.Millisecond

	report, err := newTestOrchestrator(deps, config).Run(context.Background(), models.PipelineRequest{Molecule: "darolutamide"})
	require.NoError(t, err, "approval and trials still merged")

	assert.Equal(t, models.LayerTimedOut, report.Layer(models.LayerSynonyms).Status)
	for _, name := range []string{models.LayerDiscovery, models.LayerJurisdiction, models.LayerPatentDetails} {
		layer := report.Layer(name)
		assert.Equal(t, models.LayerTimedOut, layer.Status, name)
		assert.True(t, strings.HasPrefix(layer.Error, "waiting for"), name)
	}
	assert.Equal(t, []string{models.LayerApproval, models.LayerTrials}, report.MergedLayers)
	assert.Empty(t, report.AllPatents)
}

func TestOrchestrator_RecoversLayerPanic(t *testing.T) {
	mocks := newHappyMocks()
	deps := mocks.deps()
	deps.Approval = panickingApproval{}

	report, err := newTestOrchestrator(deps, testConfig()).Run(context.Background(), models.PipelineRequest{Molecule: "darolutamide"})
	require.NoError(t, err)

	approval := report.Layer(models.LayerApproval)
	assert.Equal(t, models.LayerFailed, approval.Status)
	assert.Contains(t, approval.Error, "panic in layer:approval")
	assert.Equal(t, "Unknown", report.ExecutiveSummary.ApprovalStatus)
}

func TestOrchestrator_TotalFailure(t *testing.T) {
	collector := metrics.NewCollector()
	o := newTestOrchestrator(Dependencies{}, testConfig()).WithMetrics(collector)

	report, err := o.Run(context.Background(), models.PipelineRequest{Molecule: "darolutamide"})
	assert.ErrorIs(t, err, ErrTotalFailure)
	require.NotNil(t, report)
	require.Len(t, report.Layers, 6)
	for _, layer := range report.Layers {
		assert.Equal(t, models.LayerFailed, layer.Status, layer.Name)
	}
	assert.Empty(t, report.MergedLayers)
	assert.Empty(t, report.AllPatents)
	assert.Len(t, report.Errors, 6)
	assertPipelineRuns(t, collector, "failed")
}

func TestOrchestrator_JurisdictionFilterAndLimit(t *testing.T) {
	mocks := newHappyMocks()

	report, err := newTestOrchestrator(mocks.deps(), testConfig()).Run(context.Background(), models.PipelineRequest{
		Molecule:     "darolutamide",
		Jurisdiction: "us",
		Limit:        1,
	})
	require.NoError(t, err)

	assert.Equal(t, "US", report.Jurisdiction)
	assert.Equal(t, []string{"WO2011051540"}, mocks.patents.calls[0])
	assert.Equal(t, []string{"US"}, mocks.patents.juris)
	require.Len(t, report.Patents.Patents, 1)
	assert.Equal(t, 0, report.Patents.Filtered)
}

func TestOrchestrator_RunPipelineDefaultsLimit(t *testing.T) {
	mocks := newHappyMocks()
	config := testConfig()

	report, err := newTestOrchestrator(mocks.deps(), config).RunPipeline(context.Background(), " darolutamide ", "", 0)
	require.NoError(t, err)

	assert.Equal(t, "darolutamide", report.Molecule)
	assert.Equal(t, config.DefaultLimit, report.Limit)
	assert.Empty(t, report.Jurisdiction)
}

func TestOrchestrator_FiltersPatentsOutsideJurisdiction(t *testing.T) {
	mocks := newHappyMocks()

	report, err := newTestOrchestrator(mocks.deps(), testConfig()).Run(context.Background(), models.PipelineRequest{
		Molecule:     "darolutamide",
		Jurisdiction: "JP",
	})
	require.NoError(t, err)

	require.Len(t, report.Patents.Patents, 1)
	assert.Equal(t, "WO2011051540", report.Patents.Patents[0].Record.PublicationNumber)
	assert.Equal(t, 1, report.Patents.Filtered)
	assert.Equal(t, 2, report.Patents.Valid)
}

func TestOrchestrator_PartialPatentDetails(t *testing.T) {
	mocks := newHappyMocks()
	mocks.patents.errs = map[string]error{"WO2016168716": errors.New("page never loaded")}

	report, err := newTestOrchestrator(mocks.deps(), testConfig()).Run(context.Background(), models.PipelineRequest{Molecule: "darolutamide"})
	require.NoError(t, err)

	layer := report.Layer(models.LayerPatentDetails)
	assert.Equal(t, models.LayerPartial, layer.Status)
	assert.Equal(t, 1, layer.DataPoints)
	assert.Contains(t, report.Patents.Failed["WO2016168716"], "page never loaded")
	assert.Contains(t, report.MergedLayers, models.LayerPatentDetails)
}

func TestOrchestrator_KeepsValidPartialPatents(t *testing.T) {
	mocks := newHappyMocks()
	mocks.patents.degraded = map[string]error{
		"WO2011051540": context.DeadlineExceeded,
		"WO2016168716": context.DeadlineExceeded,
	}

	report, err := newTestOrchestrator(mocks.deps(), testConfig()).Run(context.Background(), models.PipelineRequest{Molecule: "darolutamide"})
	require.NoError(t, err)

	layer := report.Layer(models.LayerPatentDetails)
	require.NotNil(t, layer)
	assert.Equal(t, models.LayerSuccess, layer.Status)
	assert.Equal(t, 2, layer.DataPoints)

	require.NotNil(t, report.Patents)
	require.Len(t, report.Patents.Patents, 2)
	assert.Empty(t, report.Patents.Failed)
	for _, patent := range report.Patents.Patents {
		assert.Contains(t, patent.Debug.Errors, context.DeadlineExceeded.Error())
	}
}

func TestOrchestrator_InvalidRequest(t *testing.T) {
	o := newTestOrchestrator(newHappyMocks().deps(), testConfig())

	tests := []models.PipelineRequest{
		{Molecule: ""},
		{Molecule: "x"},
		{Molecule: "darolutamide", Jurisdiction: "BRA"},
		{Molecule: "darolutamide", Jurisdiction: "B1"},
	}
	for _, req := range tests {
		_, err := o.Run(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest, "%+v", req)
	}
}

func TestOrchestrator_EmptyDiscoveryIsPartial(t *testing.T) {
	mocks := newHappyMocks()
	search := &mockSearch{}
	search.On("Search", mock.Anything, mock.Anything, 10).Return([]models.SearchResult{}, nil)
	deps := mocks.deps()
	deps.Search = search

	report, err := newTestOrchestrator(deps, testConfig()).Run(context.Background(), models.PipelineRequest{Molecule: "darolutamide"})
	require.NoError(t, err)

	assert.Equal(t, models.LayerPartial, report.Layer(models.LayerDiscovery).Status)
	assert.Equal(t, models.LayerPartial, report.Layer(models.LayerPatentDetails).Status)
	assert.Empty(t, mocks.patents.calls)
	assert.Equal(t, []string{"BR112012008823", "BR112017022083"}, []string{report.AllPatents[0].Number, report.AllPatents[1].Number})
}
