// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline drives one research run: every phase of the catalog is
// checked against the cache, executed through the structured extractor with
// model fallback, and merged into a single report owned by the run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/dossier/internal/cache"
	"github.com/pdiddy/dossier/internal/capability"
	"github.com/pdiddy/dossier/internal/fallback"
	"github.com/pdiddy/dossier/internal/gate"
	"github.com/pdiddy/dossier/internal/metrics"
	"github.com/pdiddy/dossier/internal/phases"
	"github.com/pdiddy/dossier/internal/provider"
	"github.com/pdiddy/dossier/internal/structured"
	"github.com/pdiddy/dossier/pkg/types"
)

const tracerName = "github.com/pdiddy/dossier/internal/pipeline"

// Orchestrator runs pipelines. It holds no per-run state and is safe for
// concurrent runs over different subjects.
type Orchestrator struct {
	provider  provider.Provider
	extractor *structured.Extractor
	caps      *capability.Resolver
	fallback  *fallback.Resolver
	cache     *cache.PhaseCache
	recorder  metrics.Recorder
	logger    *slog.Logger
	tracer    trace.Tracer

	pipeline   types.PipelineConfig
	scheduling types.SchedulingConfig
	candidates []string

	fallbackSet bool
	now         func() time.Time
	newRunID    func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCapabilities replaces the capability table built from the config.
func WithCapabilities(r *capability.Resolver) Option {
	return func(o *Orchestrator) { o.caps = r }
}

// WithFallback replaces the fallback resolver. A nil resolver disables
// fallback.
func WithFallback(r *fallback.Resolver) Option {
	return func(o *Orchestrator) {
		o.fallback = r
		o.fallbackSet = true
	}
}

// WithCache sets the phase cache. Without it caching is disabled.
func WithCache(c *cache.PhaseCache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithRecorder sets the phase timing sink.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithTracerProvider sets where run and phase spans go. The global provider
// is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) { o.tracer = tp.Tracer(tracerName) }
}

// New returns an orchestrator over p configured by cfg.
func New(p provider.Provider, cfg types.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:   p,
		pipeline:   cfg.Pipeline,
		scheduling: cfg.Scheduling,
		candidates: cfg.Fallback.Candidates,
		now:        time.Now,
		newRunID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.caps == nil {
		o.caps = capability.NewResolver(cfg.Models...)
	}
	if !o.fallbackSet {
		o.fallback = fallback.NewResolver(o.caps, o.candidates)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.recorder == nil {
		o.recorder = metrics.LogRecorder{Logger: o.logger}
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	o.extractor = structured.New(p, o.logger)
	return o
}

// Options are per-run overrides. Zero values defer to the configuration.
type Options struct {
	// Mode forces sequential or parallel scheduling. Empty selects the mode
	// configured for the primary model's family.
	Mode types.SchedulingMode

	// Temperature overrides the configured and default temperature for
	// models that accept one.
	Temperature *float64

	// ReasoningEffort overrides the configured effort for models that
	// accept one.
	ReasoningEffort string
}

// Mode returns the scheduling mode a run with primary would use.
func (o *Orchestrator) Mode(primary string, opts Options) types.SchedulingMode {
	if opts.Mode != "" {
		return opts.Mode
	}
	var mode types.SchedulingMode
	switch o.caps.Resolve(primary).Family {
	case capability.FamilyAdvanced:
		mode = o.scheduling.Advanced
	case capability.FamilyClassic:
		mode = o.scheduling.Classic
	default:
		mode = o.scheduling.Unknown
	}
	if mode == "" {
		return types.ScheduleSequential
	}
	return mode
}

// Fallback returns the model a failing phase on primary would switch to.
func (o *Orchestrator) Fallback(primary string) (string, bool) {
	if o.fallback == nil {
		return "", false
	}
	return o.fallback.Resolve(primary)
}

// run carries what one Run shares between its workers.
type run struct {
	id      string
	subject types.Subject
	primary string
	opts    Options
	gate    *gate.Gate
}

// settled is one phase's terminal result as sent to the orchestrator
// goroutine.
type settled struct {
	index    int
	partial  phases.Partial
	timing   types.PhaseTiming
	fallback *types.FallbackUse
	err      error
}

// Run executes specs for subject with primary as the first-choice model. An
// empty primary uses the configured primary model. On success the result
// holds the merged report, the model descriptor, and one timing per phase in
// catalog order. The first phase that fails after fallback aborts the run
// and is returned as a *PhaseError; no partial report is returned.
func (o *Orchestrator) Run(ctx context.Context, subject types.Subject, specs []phases.Spec, primary string, opts Options) (*types.PipelineResult, error) {
	if err := subject.Validate(); err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no phases to run")
	}
	if err := phases.Validate(specs); err != nil {
		return nil, err
	}
	if primary == "" {
		primary = o.pipeline.PrimaryModel
	}
	if primary == "" {
		return nil, fmt.Errorf("no primary model configured")
	}

	r := &run{id: o.newRunID(), subject: subject, primary: primary, opts: opts}
	mode := o.Mode(primary, opts)
	workers := 1
	if mode == types.ScheduleParallel {
		workers = gate.Workers(o.pipeline.MaxConcurrentPhases, len(specs))
		r.gate = gate.New(o.pipeline.InterPhaseDelay)
	}

	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", r.id),
		attribute.String("subject.id", subject.ID()),
		attribute.String("model.primary", primary),
		attribute.String("schedule.mode", string(mode)),
		attribute.Int("phase.count", len(specs)),
	))
	defer span.End()

	logger := o.logger.With("run", r.id, "subject", subject.ID())
	attrs := []any{"name", subject.Name, "primary", primary,
		"mode", string(mode), "phases", len(specs), "workers", workers}
	if r.gate != nil {
		attrs = append(attrs, "spacing", r.gate.Interval())
	}
	logger.Info("pipeline started", attrs...)
	started := o.now()

	report := types.NewReport(subject)
	timings := make([]types.PhaseTiming, len(specs))
	var fallbacks []types.FallbackUse

	jobs := make(chan int, len(specs))
	for i := range specs {
		jobs <- i
	}
	close(jobs)
	results := make(chan settled, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := range jobs {
				if gctx.Err() != nil {
					results <- o.abandoned(r, specs[i], i)
					continue
				}
				s := o.runPhase(gctx, logger, r, specs[i], i)
				results <- s
				if s.err != nil {
					return s.err
				}
			}
			return nil
		})
	}

	var runErr error
	done := make(chan struct{})
	go func() {
		runErr = g.Wait()
		// Workers that aborted leave their queued phases behind.
		for i := range jobs {
			results <- o.abandoned(r, specs[i], i)
		}
		close(results)
		close(done)
	}()

	// Only this goroutine touches report.
	for s := range results {
		timings[s.index] = s.timing
		o.recorder.Record(ctx, s.timing)
		if s.err != nil {
			continue
		}
		s.partial.MergeInto(report)
		logger.Debug("phase merged", "phase", s.partial.PhaseID())
		if s.fallback != nil {
			fallbacks = append(fallbacks, *s.fallback)
		}
	}
	<-done

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		logger.Error("pipeline aborted", "error", runErr, "duration_ms", o.now().Sub(started).Milliseconds())
		return nil, runErr
	}

	sortFallbacks(fallbacks, specs)
	result := &types.PipelineResult{
		RunID:        r.id,
		Report:       report,
		ModelUsed:    describeModels(primary, fallbacks),
		Fallbacks:    fallbacks,
		PhaseTimings: timings,
	}
	span.SetAttributes(attribute.String("model.used", result.ModelUsed))
	logger.Info("pipeline finished", "model_used", result.ModelUsed,
		"fallbacks", len(fallbacks), "duration_ms", o.now().Sub(started).Milliseconds())
	return result, nil
}

// abandoned is the settled value for a phase that never started because
// the run was already aborted.
func (o *Orchestrator) abandoned(r *run, spec phases.Spec, index int) settled {
	now := o.now()
	t := o.newTiming(r, spec)
	t.StartedAt = now
	t.Finish(now, types.OutcomeCanceled)
	t.Error = "not started: run aborted"
	return settled{index: index, timing: t, err: context.Canceled}
}

func (o *Orchestrator) newTiming(r *run, spec phases.Spec) types.PhaseTiming {
	return types.PhaseTiming{
		RunID:     r.id,
		SubjectID: r.subject.ID(),
		Category:  spec.Category(),
		PhaseID:   spec.ID(),
	}
}
