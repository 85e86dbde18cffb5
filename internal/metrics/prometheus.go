// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pdiddy/dossier/pkg/types"
)

const metricsNamespace = "dossier"

// PrometheusRecorder exports phase durations and counts.
type PrometheusRecorder struct {
	// Duration is labeled category, phase, outcome.
	Duration *prometheus.HistogramVec

	// Total is labeled phase, outcome.
	Total *prometheus.CounterVec
}

// NewPrometheusRecorder registers its collectors with reg. A nil reg uses
// the default registerer.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusRecorder{
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "phase_duration_seconds",
				Help:      "Wall-clock duration of each research phase",
				Buckets:   []float64{0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"category", "phase", "outcome"},
		),
		Total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "phase_total",
				Help:      "Research phases settled, by outcome",
			},
			[]string{"phase", "outcome"},
		),
	}
	if err := reg.Register(r.Duration); err != nil {
		return nil, err
	}
	if err := reg.Register(r.Total); err != nil {
		reg.Unregister(r.Duration)
		return nil, err
	}
	return r, nil
}

// Record implements Recorder.
func (r *PrometheusRecorder) Record(_ context.Context, t types.PhaseTiming) {
	outcome := string(t.Outcome)
	secs := (time.Duration(t.DurationMs) * time.Millisecond).Seconds()
	r.Duration.WithLabelValues(t.Category, t.PhaseID, outcome).Observe(secs)
	r.Total.WithLabelValues(t.PhaseID, outcome).Inc()
}
