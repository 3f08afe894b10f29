package pipeline

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ternarybob/pharmyrus/internal/models"
)

type mockSynonyms struct{ mock.Mock }

func (m *mockSynonyms) Resolve(ctx context.Context, molecule string) (*models.SynonymPayload, error) {
	args := m.Called(ctx, molecule)
	payload, _ := args.Get(0).(*models.SynonymPayload)
	return payload, args.Error(1)
}

type mockSearch struct{ mock.Mock }

func (m *mockSearch) Search(ctx context.Context, query string, num int) ([]models.SearchResult, error) {
	args := m.Called(ctx, query, num)
	results, _ := args.Get(0).([]models.SearchResult)
	return results, args.Error(1)
}

type mockRegistry struct{ mock.Mock }

func (m *mockRegistry) Country() string { return "BR" }

func (m *mockRegistry) Search(ctx context.Context, term string) ([]models.RegistryPatent, error) {
	args := m.Called(ctx, term)
	patents, _ := args.Get(0).([]models.RegistryPatent)
	return patents, args.Error(1)
}

type mockApproval struct{ mock.Mock }

func (m *mockApproval) ApprovalStatus(ctx context.Context, molecule string) (*models.ApprovalPayload, error) {
	args := m.Called(ctx, molecule)
	payload, _ := args.Get(0).(*models.ApprovalPayload)
	return payload, args.Error(1)
}

type mockTrials struct{ mock.Mock }

func (m *mockTrials) Trials(ctx context.Context, molecule string) (*models.TrialsPayload, error) {
	args := m.Called(ctx, molecule)
	payload, _ := args.Get(0).(*models.TrialsPayload)
	return payload, args.Error(1)
}

// fakePatents serves canned extraction results by identifier. errs fail
// without a result; degraded errors come back alongside the result.
type fakePatents struct {
	results  map[string]*models.ExtractionResult
	errs     map[string]error
	degraded map[string]error
	calls    [][]string
	juris    []string
}

func (f *fakePatents) FetchPatent(ctx context.Context, identifier, jurisdiction string) (*models.ExtractionResult, error) {
	if err := f.errs[identifier]; err != nil {
		return nil, err
	}
	return f.results[identifier], f.degraded[identifier]
}

func (f *fakePatents) FetchMany(ctx context.Context, identifiers []string, jurisdiction string) []models.FetchOutcome {
	f.calls = append(f.calls, append([]string{}, identifiers...))
	f.juris = append(f.juris, jurisdiction)
	outcomes := make([]models.FetchOutcome, len(identifiers))
	for i, id := range identifiers {
		result, err := f.FetchPatent(ctx, id, jurisdiction)
		outcomes[i] = models.FetchOutcome{Identifier: id, Result: result, Err: err}
	}
	return outcomes
}

// blockingTrials waits for the context, modelling a hung service
type blockingTrials struct{}

func (blockingTrials) Trials(ctx context.Context, molecule string) (*models.TrialsPayload, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// slowSynonyms answers after delay unless ctx ends first
type slowSynonyms struct{ delay time.Duration }

func (s slowSynonyms) Resolve(ctx context.Context, molecule string) (*models.SynonymPayload, error) {
	select {
	case <-time.After(s.delay):
		return &models.SynonymPayload{Synonyms: []string{molecule}, DevCodes: []string{}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// panickingApproval simulates a programming error inside a layer
type panickingApproval struct{}

func (panickingApproval) ApprovalStatus(ctx context.Context, molecule string) (*models.ApprovalPayload, error) {
	var payload *models.ApprovalPayload
	_ = payload.Status
	return payload, nil
}

func patentResult(wo, title string, countries ...string) *models.ExtractionResult {
	record := models.NewPatentRecord(wo, "https://patentscope.wipo.int/search/en/detail.jsf?docId="+wo)
	record.Title = title
	record.Applicant = "ORION CORPORATION"
	record.FilingDate = "14.04.2016"
	record.Countries = countries
	for i, c := range countries {
		record.WorldwideApplications["2017"] = append(record.WorldwideApplications["2017"], models.WorldwideApplicationEntry{
			CountryCode:       c,
			FilingDate:        "01.02.2017",
			ApplicationNumber: wo + "-" + c,
			LegalStatus:       []string{"Granted", "Pending"}[i%2],
		})
	}
	return &models.ExtractionResult{Record: record, Debug: models.NewExtractionDebug(), Valid: true}
}
