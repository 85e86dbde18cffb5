// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// PhaseOutcome is the terminal state of one phase in a run.
type PhaseOutcome string

const (
	OutcomeSuccess  PhaseOutcome = "success"
	OutcomeCached   PhaseOutcome = "cached"
	OutcomeFailed   PhaseOutcome = "failed"
	OutcomeCanceled PhaseOutcome = "canceled"
)

// PhaseTiming records when a phase started and finished and how it ended.
// It is finalized once, when the phase settles.
type PhaseTiming struct {
	RunID     string `json:"run_id" yaml:"run_id"`
	SubjectID string `json:"subject_id" yaml:"subject_id"`

	// Category groups phases for reporting (e.g. "profile", "news").
	Category string `json:"category" yaml:"category"`
	PhaseID  string `json:"phase_id" yaml:"phase_id"`

	// Model is the model that served the phase; empty for cache hits.
	Model    string       `json:"model,omitempty" yaml:"model,omitempty"`
	Outcome  PhaseOutcome `json:"outcome" yaml:"outcome"`
	CacheHit bool         `json:"cache_hit" yaml:"cache_hit"`
	Attempts int          `json:"attempts" yaml:"attempts"`

	DurationMs int64     `json:"duration_ms" yaml:"duration_ms"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	EndedAt    time.Time `json:"ended_at" yaml:"ended_at"`

	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Finish stamps the end time and duration. Durations under a millisecond
// round up to 1 so a completed phase never reports zero.
func (t *PhaseTiming) Finish(end time.Time, outcome PhaseOutcome) {
	t.EndedAt = end
	t.Outcome = outcome
	d := end.Sub(t.StartedAt)
	t.DurationMs = d.Milliseconds()
	if t.DurationMs == 0 && d >= 0 {
		t.DurationMs = 1
	}
}
