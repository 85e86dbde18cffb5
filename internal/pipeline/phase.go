// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pdiddy/dossier/internal/capability"
	"github.com/pdiddy/dossier/internal/fallback"
	"github.com/pdiddy/dossier/internal/phases"
	"github.com/pdiddy/dossier/internal/provider"
	"github.com/pdiddy/dossier/internal/structured"
	"github.com/pdiddy/dossier/pkg/types"
)

// PhaseError is a phase failure that aborted a run.
type PhaseError struct {
	Phase string
	Model string
	Err   error
}

func (e *PhaseError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("phase %s: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("phase %s (model %s): %v", e.Phase, e.Model, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// Kind classifies the underlying failure.
func (e *PhaseError) Kind() provider.Kind { return provider.Classify(e.Err) }

// Params are the runtime parameters a phase request was sent with.
type Params struct {
	Temperature     *float64
	MaxOutputTokens *int
	ReasoningEffort string
	Dialect         capability.Dialect
}

// PhaseExecution is the transient result of executing one phase on one
// model.
type PhaseExecution struct {
	Partial      phases.Partial
	Object       json.RawMessage
	Model        string
	Params       Params
	ToolsEngaged bool
	Source       structured.Source
	Attempts     int
}

// runPhase takes one phase from cache check to a settled result.
func (o *Orchestrator) runPhase(ctx context.Context, logger *slog.Logger, r *run, spec phases.Spec, index int) settled {
	ctx, span := o.tracer.Start(ctx, "pipeline.phase", trace.WithAttributes(
		attribute.String("phase.id", spec.ID()),
		attribute.String("phase.category", spec.Category()),
	))
	defer span.End()

	logger = logger.With("phase", spec.ID())
	subjectID := r.subject.ID()
	timing := o.newTiming(r, spec)
	out := settled{index: index}

	if raw, ok := o.cache.Get(ctx, subjectID, spec.ID()); ok {
		partial, err := spec.Decode(raw)
		if err == nil {
			now := o.now()
			timing.StartedAt = now
			timing.CacheHit = true
			timing.Finish(now, types.OutcomeCached)
			span.SetAttributes(attribute.Bool("cache.hit", true))
			logger.Debug("phase served from cache")
			out.partial, out.timing = partial, timing
			return out
		}
		logger.Warn("cached phase payload unusable, executing", "error", err)
	}

	timing.StartedAt = o.now()
	if r.gate != nil {
		launched, err := r.gate.Acquire(ctx)
		if err != nil {
			timing.Finish(o.now(), types.OutcomeCanceled)
			timing.Error = err.Error()
			out.timing = timing
			out.err = &PhaseError{Phase: spec.ID(), Err: err}
			return out
		}
		timing.StartedAt = launched
	}
	logger.Debug("phase launched")

	prompt, err := spec.Prompt(r.subject)
	if err != nil {
		return o.fail(ctx, logger, span, spec, r, timing, out, r.primary, err)
	}

	phaseCtx := ctx
	if o.pipeline.PhaseTimeout > 0 {
		var cancel context.CancelFunc
		phaseCtx, cancel = context.WithTimeout(ctx, o.pipeline.PhaseTimeout)
		defer cancel()
	}

	attempts := 0
	res, err := fallback.Run(phaseCtx, logger, spec.ID(), r.primary, o.resolveFallback,
		func(ctx context.Context, model string) (PhaseExecution, error) {
			exec, err := o.execute(ctx, spec, prompt, model, r.opts)
			attempts += exec.Attempts
			return exec, err
		})
	timing.Attempts = attempts
	timing.Model = res.Model

	if err != nil {
		if errors.Is(phaseCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && !errors.Is(err, provider.ErrTimeout) {
			err = fmt.Errorf("%w: %w", provider.ErrTimeout, err)
		}
		return o.fail(ctx, logger, span, spec, r, timing, out, res.Model, err)
	}

	exec := res.Value
	o.cache.Set(ctx, subjectID, spec.ID(), res.Model, exec.Object)
	timing.Finish(o.now(), types.OutcomeSuccess)
	span.SetAttributes(
		attribute.String("model", res.Model),
		attribute.Bool("fallback", res.UsedFallback),
		attribute.Int("attempts", attempts),
	)
	logger.Debug("phase succeeded", "model", res.Model, "attempts", attempts,
		"source", string(exec.Source), "tools", exec.ToolsEngaged, "duration_ms", timing.DurationMs)

	out.partial, out.timing = exec.Partial, timing
	if res.UsedFallback {
		out.fallback = &types.FallbackUse{PhaseID: spec.ID(), Primary: r.primary, Model: res.Model}
	}
	return out
}

// fail settles a failed phase. A phase cut short because the run was
// already aborting is recorded as canceled and leaves the cache alone.
func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, span trace.Span, spec phases.Spec, r *run, timing types.PhaseTiming, out settled, model string, err error) settled {
	perr := &PhaseError{Phase: spec.ID(), Model: model, Err: err}
	timing.Error = err.Error()
	out.err = perr

	if ctx.Err() != nil {
		timing.Finish(o.now(), types.OutcomeCanceled)
		out.timing = timing
		logger.Debug("phase canceled", "error", err)
		return out
	}

	timing.Finish(o.now(), types.OutcomeFailed)
	out.timing = timing
	o.cache.MarkError(ctx, r.subject.ID(), spec.ID(), err.Error())
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Error("phase failed", "model", model, "kind", provider.Classify(err).String(), "error", err)
	return out
}

func (o *Orchestrator) resolveFallback(primary string) (string, bool) {
	return o.Fallback(primary)
}

// execute runs the extraction protocol for spec on one model.
func (o *Orchestrator) execute(ctx context.Context, spec phases.Spec, prompt, model string, opts Options) (PhaseExecution, error) {
	caps := o.caps.Resolve(model)
	exec := PhaseExecution{Model: model}

	req, err := o.buildRequest(spec, prompt, model, caps, opts)
	if err != nil {
		return exec, err
	}
	exec.Params = Params{
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxOutputTokens,
		ReasoningEffort: req.ReasoningEffort,
		Dialect:         req.Dialect,
	}
	exec.ToolsEngaged = len(req.Tools) > 0

	outcome, err := o.extractor.Extract(ctx, req, spec.Validator(), o.pipeline.MaxAttempts)
	exec.Attempts = outcome.Attempts
	if err != nil {
		return exec, err
	}
	partial, err := spec.Decode(outcome.Object)
	if err != nil {
		return exec, fmt.Errorf("%w: %s: %w", provider.ErrParse, spec.SchemaName(), err)
	}
	exec.Partial = partial
	exec.Object = outcome.Object
	exec.Source = outcome.Source
	return exec, nil
}

// buildRequest sends each optional parameter only when caps says the model
// accepts it.
func (o *Orchestrator) buildRequest(spec phases.Spec, prompt, model string, caps capability.Capabilities, opts Options) (provider.Request, error) {
	if spec.Tools() == phases.ToolsRequired && !caps.Tools {
		return provider.Request{}, fmt.Errorf("%w: phase %s requires tools that %s does not support",
			provider.ErrCapability, spec.ID(), model)
	}

	req := provider.Request{
		Model:      model,
		SchemaName: spec.SchemaName(),
		Schema:     spec.Schema(),
		Prompt:     prompt,
		Dialect:    caps.Dialect,
	}
	if caps.Temperature {
		t := caps.DefaultTemperature
		switch {
		case opts.Temperature != nil:
			t = *opts.Temperature
		case o.pipeline.Temperature != nil:
			t = *o.pipeline.Temperature
		}
		req.Temperature = &t
	}
	if caps.MaxOutputTokens && o.pipeline.MaxOutputTokens > 0 {
		n := o.pipeline.MaxOutputTokens
		req.MaxOutputTokens = &n
	}
	if caps.ReasoningEffort {
		effort := o.pipeline.ReasoningEffort
		if opts.ReasoningEffort != "" {
			effort = opts.ReasoningEffort
		}
		req.ReasoningEffort = effort
	}
	if spec.Tools() != phases.ToolsNone && caps.Tools {
		req.Tools = []provider.Tool{provider.ToolWebSearch}
	}
	return req, nil
}
