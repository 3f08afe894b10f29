// Package pipeline runs the six-layer patent intelligence search for a
// molecule and merges the layer payloads into one report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/pharmyrus/internal/common"
	"github.com/ternarybob/pharmyrus/internal/interfaces"
	"github.com/ternarybob/pharmyrus/internal/metrics"
	"github.com/ternarybob/pharmyrus/internal/models"
)

// Dependencies are the lookup services the layers call. A nil dependency
// makes its layer fail without affecting the others.
type Dependencies struct {
	Synonyms interfaces.SynonymLookup
	Search   interfaces.SearchEngine
	Patents  interfaces.PatentFetcher
	Registry interfaces.RegistryLookup
	Approval interfaces.ApprovalLookup
	Trials   interfaces.TrialsLookup
}

// Orchestrator schedules the layers. Synonyms, approval and trials start
// at once; discovery and jurisdiction wait for synonyms; patent details
// wait for discovery.
type Orchestrator struct {
	synonyms interfaces.SynonymLookup
	search   interfaces.SearchEngine
	patents  interfaces.PatentFetcher
	registry interfaces.RegistryLookup
	approval interfaces.ApprovalLookup
	trials   interfaces.TrialsLookup

	config   Config
	logger   arbor.ILogger
	metrics  *metrics.Collector
	validate *validator.Validate
	now      func() time.Time
	newRunID func() string
}

// NewOrchestrator creates an orchestrator over deps.
func NewOrchestrator(deps Dependencies, config Config, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{
		synonyms: deps.Synonyms,
		search:   deps.Search,
		patents:  deps.Patents,
		registry: deps.Registry,
		approval: deps.Approval,
		trials:   deps.Trials,
		config:   config,
		logger:   logger,
		validate: validator.New(),
		now:      time.Now,
		newRunID: common.NewRunID,
	}
}

// WithMetrics attaches a metrics collector
func (o *Orchestrator) WithMetrics(collector *metrics.Collector) *Orchestrator {
	o.metrics = collector
	return o
}

// layerRun tracks one scheduled layer. done is closed once result is set.
type layerRun struct {
	done   chan struct{}
	result models.PipelineLayerResult
}

// payload returns the layer payload when its status is mergeable
func (r *layerRun) payload() any {
	if r.result.Status.Merged() {
		return r.result.Payload
	}
	return nil
}

// RunPipeline runs the full search for molecule. An empty jurisdiction
// disables the country filter; a zero limit takes the configured default.
func (o *Orchestrator) RunPipeline(ctx context.Context, molecule, jurisdiction string, limit int) (*models.PipelineReport, error) {
	return o.Run(ctx, models.PipelineRequest{
		Molecule:     molecule,
		Jurisdiction: jurisdiction,
		Limit:        limit,
	})
}

// Run executes every layer and merges the results. The report is always
// returned; the error is ErrTotalFailure when no layer produced data, or
// ErrInvalidRequest for a malformed request.
func (o *Orchestrator) Run(ctx context.Context, req models.PipelineRequest) (*models.PipelineReport, error) {
	req = o.config.normalizeRequest(req)
	if err := o.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	startedAt := o.now()
	runID := o.newRunID()
	o.logger.Info().
		Str("run_id", runID).
		Str("molecule", req.Molecule).
		Str("jurisdiction", req.Jurisdiction).
		Int("limit", req.Limit).
		Msg("Pipeline started")

	runCtx, cancel := withTimeout(ctx, o.config.RequestTimeout)
	defer cancel()

	runs := make(map[string]*layerRun, len(models.LayerOrder))
	for _, name := range models.LayerOrder {
		runs[name] = &layerRun{done: make(chan struct{})}
	}

	// devCodes is read by dependants of synonyms only. A failed synonyms
	// layer leaves them with the molecule name alone.
	devCodes := func() []string {
		if s, ok := runs[models.LayerSynonyms].payload().(*models.SynonymPayload); ok && s != nil {
			return s.DevCodes
		}
		return nil
	}

	var g errgroup.Group
	start := func(name string, deps []string, body func(ctx context.Context) layerOutcome) {
		g.Go(func() error {
			run := runs[name]
			defer close(run.done)
			run.result = o.runLayer(runCtx, name, deps, runs, body)
			return nil
		})
	}

	start(models.LayerSynonyms, nil, func(ctx context.Context) layerOutcome {
		return o.synonymsLayer(ctx, req.Molecule)
	})
	start(models.LayerApproval, nil, func(ctx context.Context) layerOutcome {
		return o.approvalLayer(ctx, req.Molecule)
	})
	start(models.LayerTrials, nil, func(ctx context.Context) layerOutcome {
		return o.trialsLayer(ctx, req.Molecule)
	})
	start(models.LayerDiscovery, []string{models.LayerSynonyms}, func(ctx context.Context) layerOutcome {
		return o.discoveryLayer(ctx, req.Molecule, devCodes())
	})
	start(models.LayerJurisdiction, []string{models.LayerSynonyms}, func(ctx context.Context) layerOutcome {
		return o.jurisdictionLayer(ctx, req.Molecule, devCodes())
	})
	start(models.LayerPatentDetails, []string{models.LayerDiscovery}, func(ctx context.Context) layerOutcome {
		var candidates []string
		if d, ok := runs[models.LayerDiscovery].payload().(*models.DiscoveryPayload); ok && d != nil {
			candidates = d.Candidates
		}
		return o.patentDetailsLayer(ctx, candidates, req)
	})

	_ = g.Wait()

	report := o.merge(runID, req, startedAt, runs)

	merged := len(report.MergedLayers)
	o.metrics.PipelineFinished(merged > 0)
	o.logger.Info().
		Str("run_id", runID).
		Int("merged_layers", merged).
		Int("all_patents", len(report.AllPatents)).
		Int64("duration_ms", report.DurationMs).
		Msg("Pipeline finished")

	if merged == 0 {
		return report, ErrTotalFailure
	}
	return report, nil
}

// runLayer waits for deps, then runs body bounded by the layer timeout.
// The timeout starts when the layer's own work begins. A body that
// overruns is abandoned; its context is cancelled.
func (o *Orchestrator) runLayer(ctx context.Context, name string, deps []string, runs map[string]*layerRun, body func(ctx context.Context) layerOutcome) models.PipelineLayerResult {
	result := models.PipelineLayerResult{Name: name}

	for _, dep := range deps {
		select {
		case <-runs[dep].done:
		case <-ctx.Done():
		}
	}
	// The run deadline may pass while a dependency is still finishing
	if err := ctx.Err(); err != nil && len(deps) > 0 {
		result.Status = statusFor(err)
		result.Error = fmt.Sprintf("waiting for %s: %v", strings.Join(deps, ", "), err)
		o.finishLayer(&result, 0)
		return result
	}

	startTime := time.Now()
	layerCtx, cancel := withTimeout(ctx, o.config.layerTimeout(name))
	defer cancel()

	outcomes := make(chan layerOutcome, 1)
	go func() {
		var out layerOutcome
		err := common.SafeCall(o.logger, "layer:"+name, func() error {
			out = body(layerCtx)
			return nil
		})
		if err != nil {
			out = failed(err)
		}
		outcomes <- out
	}()

	var out layerOutcome
	select {
	case out = <-outcomes:
	case <-layerCtx.Done():
		out = layerOutcome{status: statusFor(layerCtx.Err()), err: layerCtx.Err()}
	}

	// A body that returned because its deadline passed is a timeout
	if out.status == models.LayerFailed && errors.Is(layerCtx.Err(), context.DeadlineExceeded) {
		out.status = models.LayerTimedOut
	}

	result.Status = out.status
	result.DataPoints = out.dataPoints
	result.Details = out.details
	if out.status.Merged() {
		result.Payload = out.payload
	}
	if out.err != nil {
		result.Error = out.err.Error()
	}
	o.finishLayer(&result, time.Since(startTime))
	return result
}

func (o *Orchestrator) finishLayer(result *models.PipelineLayerResult, duration time.Duration) {
	result.Duration = duration
	result.DurationMs = duration.Milliseconds()
	o.metrics.LayerFinished(result.Name, string(result.Status), duration)

	if !result.Status.Merged() {
		o.logger.Warn().
			Str("layer", result.Name).
			Str("status", string(result.Status)).
			Dur("duration", duration).
			Str("error", result.Error).
			Msg("Pipeline layer did not produce data")
		return
	}
	o.logger.Debug().
		Str("layer", result.Name).
		Str("status", string(result.Status)).
		Int("data_points", result.DataPoints).
		Dur("duration", duration).
		Msg("Pipeline layer finished")
}

// withTimeout bounds ctx by d; d <= 0 leaves it unbounded
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// statusFor maps a context error to a layer status
func statusFor(err error) models.LayerStatus {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.LayerTimedOut
	}
	return models.LayerFailed
}

// merge builds the report from mergeable layer payloads. Every layer is
// listed in the debug breakdown in fixed order.
func (o *Orchestrator) merge(runID string, req models.PipelineRequest, startedAt time.Time, runs map[string]*layerRun) *models.PipelineReport {
	report := &models.PipelineReport{
		RunID:        runID,
		Molecule:     req.Molecule,
		Jurisdiction: req.Jurisdiction,
		Limit:        req.Limit,
		Layers:       make([]models.PipelineLayerResult, 0, len(models.LayerOrder)),
		MergedLayers: []string{},
		Errors:       map[string]string{},
		StartedAt:    startedAt.UTC(),
	}

	for _, name := range models.LayerOrder {
		run := runs[name]
		report.Layers = append(report.Layers, run.result)
		if run.result.Error != "" {
			report.Errors[name] = run.result.Error
		}
		if !run.result.Status.Merged() {
			continue
		}
		report.MergedLayers = append(report.MergedLayers, name)

		switch payload := run.result.Payload.(type) {
		case *models.SynonymPayload:
			report.Synonyms = payload
		case *models.DiscoveryPayload:
			report.Discovery = payload
		case *models.PatentDetailsPayload:
			report.Patents = payload
		case *models.RegistryPayload:
			report.Registry = payload
		case *models.ApprovalPayload:
			report.Approval = payload
		case *models.TrialsPayload:
			report.Trials = payload
		}
	}

	report.AllPatents = aggregatePatents(report.Patents, report.Registry)
	report.ExecutiveSummary = buildExecutiveSummary(report)
	report.GeneratedAt = o.now().UTC()
	report.DurationMs = report.GeneratedAt.Sub(report.StartedAt).Milliseconds()
	return report
}
