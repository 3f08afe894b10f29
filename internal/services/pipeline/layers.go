package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/pharmyrus/internal/httpclient"
	"github.com/ternarybob/pharmyrus/internal/models"
)

// layerOutcome is what a layer body reports back to runLayer.
type layerOutcome struct {
	status     models.LayerStatus
	payload    any
	dataPoints int
	details    map[string]any
	err        error
}

func failed(err error) layerOutcome {
	return layerOutcome{status: models.LayerFailed, err: err}
}

// completed is success when data was found and partial otherwise, or when
// some sub-requests failed.
func completed(payload any, dataPoints int, details map[string]any, subErrs []error) layerOutcome {
	out := layerOutcome{
		status:     models.LayerSuccess,
		payload:    payload,
		dataPoints: dataPoints,
		details:    details,
	}
	if dataPoints == 0 || len(subErrs) > 0 {
		out.status = models.LayerPartial
	}
	if len(subErrs) > 0 {
		out.err = errors.Join(subErrs...)
	}
	return out
}

func (o *Orchestrator) synonymsLayer(ctx context.Context, molecule string) layerOutcome {
	if o.synonyms == nil {
		return failed(errNotConfigured)
	}
	payload, err := o.synonyms.Resolve(ctx, molecule)
	if err != nil {
		if errors.Is(err, httpclient.ErrNotFound) && ctx.Err() == nil {
			empty := &models.SynonymPayload{Synonyms: []string{}, DevCodes: []string{}}
			return completed(empty, 0, map[string]any{"found": false}, nil)
		}
		return failed(err)
	}
	return completed(payload, len(payload.Synonyms), map[string]any{
		"cid":       payload.CID,
		"dev_codes": len(payload.DevCodes),
		"synonyms":  len(payload.Synonyms),
	}, nil)
}

func (o *Orchestrator) discoveryLayer(ctx context.Context, molecule string, devCodes []string) layerOutcome {
	if o.search == nil {
		return failed(errNotConfigured)
	}
	queries := BuildQueryPlan(molecule, devCodes, o.config.Discovery)
	payload, errs := discoverCandidates(ctx, o.search, queries, o.config.Discovery, o.logger)
	if err := ctx.Err(); err != nil {
		return failed(err)
	}
	if len(queries) > 0 && payload.QueriesFailed == len(queries) {
		return failed(fmt.Errorf("all %d discovery queries failed: %w", len(queries), errors.Join(errs...)))
	}
	return completed(payload, len(payload.Candidates), map[string]any{
		"queries_planned": payload.QueriesPlanned,
		"queries_failed":  payload.QueriesFailed,
		"dev_codes_used":  min(len(devCodes), max(o.config.Discovery.MaxDevCodes, 0)),
	}, errs)
}

func (o *Orchestrator) patentDetailsLayer(ctx context.Context, candidates []string, req models.PipelineRequest) layerOutcome {
	if o.patents == nil {
		return failed(errNotConfigured)
	}
	ids := candidates
	if len(ids) > req.Limit {
		ids = ids[:req.Limit]
	}

	payload := &models.PatentDetailsPayload{
		Patents:   []*models.ExtractionResult{},
		Requested: len(ids),
		Failed:    map[string]string{},
	}
	if len(ids) == 0 {
		return completed(payload, 0, map[string]any{"requested": 0}, nil)
	}

	var errs []error
	for _, outcome := range o.patents.FetchMany(ctx, ids, req.Jurisdiction) {
		result := outcome.Result
		usable := result != nil && result.Valid
		if outcome.Err != nil && !usable {
			payload.Failed[outcome.Identifier] = outcome.Err.Error()
			errs = append(errs, outcome.Err)
			continue
		}
		if !usable {
			payload.Failed[outcome.Identifier] = "no usable data extracted"
			continue
		}
		if outcome.Err != nil {
			// Partial data stays in the report; the error travels in its debug
			result.Debug.Errors = append(result.Debug.Errors, outcome.Err.Error())
		}
		payload.Valid++
		if req.Jurisdiction != "" && !containsString(result.Record.Countries, req.Jurisdiction) {
			payload.Filtered++
			continue
		}
		payload.Patents = append(payload.Patents, result)
	}

	if err := ctx.Err(); err != nil && payload.Valid == 0 {
		return failed(err)
	}
	if payload.Valid == 0 && len(errs) == len(ids) {
		return failed(fmt.Errorf("all %d patent extractions failed: %w", len(ids), errors.Join(errs...)))
	}
	return completed(payload, len(payload.Patents), map[string]any{
		"requested": payload.Requested,
		"valid":     payload.Valid,
		"filtered":  payload.Filtered,
		"failed":    len(payload.Failed),
	}, errs)
}

func (o *Orchestrator) jurisdictionLayer(ctx context.Context, molecule string, devCodes []string) layerOutcome {
	if o.registry == nil {
		return failed(errNotConfigured)
	}
	terms := []string{molecule}
	terms = append(terms, devCodes[:min(len(devCodes), max(o.config.RegistryTerms, 0))]...)

	payload := &models.RegistryPayload{
		Country: o.registry.Country(),
		Patents: []models.RegistryPatent{},
		Terms:   terms,
	}
	var errs []error
	for _, term := range terms {
		if ctx.Err() != nil {
			break
		}
		patents, err := o.registry.Search(ctx, term)
		if err != nil {
			errs = append(errs, fmt.Errorf("term %q: %w", term, err))
			continue
		}
		payload.Patents = append(payload.Patents, patents...)
	}

	if err := ctx.Err(); err != nil {
		return failed(err)
	}
	if len(errs) == len(terms) {
		return failed(errors.Join(errs...))
	}
	return completed(payload, len(payload.Patents), map[string]any{
		"country": payload.Country,
		"terms":   len(terms),
	}, errs)
}

func (o *Orchestrator) approvalLayer(ctx context.Context, molecule string) layerOutcome {
	if o.approval == nil {
		return failed(errNotConfigured)
	}
	payload, err := o.approval.ApprovalStatus(ctx, molecule)
	if err != nil {
		return failed(err)
	}
	return completed(payload, len(payload.Products), map[string]any{"status": payload.Status}, nil)
}

func (o *Orchestrator) trialsLayer(ctx context.Context, molecule string) layerOutcome {
	if o.trials == nil {
		return failed(errNotConfigured)
	}
	payload, err := o.trials.Trials(ctx, molecule)
	if err != nil {
		return failed(err)
	}
	return completed(payload, payload.Total, map[string]any{
		"phases":    len(payload.ByPhase),
		"sponsors":  len(payload.Sponsors),
		"countries": len(payload.Countries),
	}, nil)
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
