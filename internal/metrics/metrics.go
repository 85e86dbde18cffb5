// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics records one PhaseTiming per phase per run. Recording is
// best-effort: sinks log their own failures and never return them to the
// pipeline.
package metrics

import (
	"context"
	"log/slog"

	"github.com/pdiddy/dossier/pkg/types"
)

// Recorder receives finalized phase timings. Implementations must be safe
// for concurrent use.
type Recorder interface {
	Record(ctx context.Context, t types.PhaseTiming)
}

// Nop discards every timing.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, types.PhaseTiming) {}

// Multi fans a timing out to several recorders in order.
type Multi []Recorder

// Record implements Recorder.
func (m Multi) Record(ctx context.Context, t types.PhaseTiming) {
	for _, r := range m {
		if r != nil {
			r.Record(ctx, t)
		}
	}
}

// LogRecorder writes each timing as one structured log line.
type LogRecorder struct {
	Logger *slog.Logger
}

// Record implements Recorder.
func (r LogRecorder) Record(ctx context.Context, t types.PhaseTiming) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if t.Outcome == types.OutcomeFailed {
		level = slog.LevelWarn
	}
	attrs := []any{
		"run", t.RunID,
		"subject", t.SubjectID,
		"category", t.Category,
		"phase", t.PhaseID,
		"outcome", string(t.Outcome),
		"cache_hit", t.CacheHit,
		"duration_ms", t.DurationMs,
	}
	if t.Model != "" {
		attrs = append(attrs, "model", t.Model)
	}
	if t.Attempts > 0 {
		attrs = append(attrs, "attempts", t.Attempts)
	}
	if t.Error != "" {
		attrs = append(attrs, "error", t.Error)
	}
	logger.Log(ctx, level, "phase timing", attrs...)
}
