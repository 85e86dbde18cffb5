// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ProviderConfig holds settings for the text-completion provider.
type ProviderConfig struct {
	// BaseURL is the API root (e.g. "https://api.openai.com/v1").
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url" validate:"required,url"`

	// APIKey is the authentication key. Usually loaded from .secrets/ or
	// OPENAI_API_KEY rather than the config file.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Timeout is the HTTP client timeout for a single provider call.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`

	// MaxRetries is the number of HTTP 429/5xx retries per call (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0,lte=10"`

	// UserAgent is sent with every request.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// SchedulingMode selects how phases of one run are scheduled.
type SchedulingMode string

const (
	ScheduleSequential SchedulingMode = "sequential"
	ScheduleParallel   SchedulingMode = "parallel"
)

// PipelineConfig holds the per-run execution settings.
type PipelineConfig struct {
	// PrimaryModel is the model every phase is first attempted with.
	PrimaryModel string `json:"primary_model" yaml:"primary_model" mapstructure:"primary_model" validate:"required"`

	// MaxConcurrentPhases bounds in-flight phases in parallel mode (default 3).
	MaxConcurrentPhases int `json:"max_concurrent_phases" yaml:"max_concurrent_phases" mapstructure:"max_concurrent_phases" validate:"gte=1,lte=32"`

	// InterPhaseDelay is the minimum spacing between phase launches in
	// parallel mode (default 500ms).
	InterPhaseDelay time.Duration `json:"inter_phase_delay" yaml:"inter_phase_delay" mapstructure:"inter_phase_delay" validate:"gte=0"`

	// PhaseTimeout is the deadline for one phase including fallback (default 3m).
	PhaseTimeout time.Duration `json:"phase_timeout" yaml:"phase_timeout" mapstructure:"phase_timeout" validate:"gte=0"`

	// MaxAttempts is the structured-output attempt budget per model (max 3).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=0,lte=3"`

	// Temperature overrides the model's default temperature when the model
	// supports temperature control.
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" mapstructure:"temperature" validate:"omitempty,gte=0,lte=2"`

	// MaxOutputTokens caps the response length when the model supports it.
	MaxOutputTokens int `json:"max_output_tokens" yaml:"max_output_tokens" mapstructure:"max_output_tokens" validate:"gte=0"`

	// ReasoningEffort is sent to models that accept it: low, medium, or high.
	ReasoningEffort string `json:"reasoning_effort,omitempty" yaml:"reasoning_effort,omitempty" mapstructure:"reasoning_effort" validate:"omitempty,oneof=minimal low medium high"`
}

// SchedulingConfig maps the primary model's family to a scheduling mode.
type SchedulingConfig struct {
	Advanced SchedulingMode `json:"advanced" yaml:"advanced" mapstructure:"advanced" validate:"oneof=sequential parallel"`
	Classic  SchedulingMode `json:"classic" yaml:"classic" mapstructure:"classic" validate:"oneof=sequential parallel"`
	Unknown  SchedulingMode `json:"unknown" yaml:"unknown" mapstructure:"unknown" validate:"oneof=sequential parallel"`
}

// FallbackConfig lists the ordered fallback candidates.
type FallbackConfig struct {
	Candidates []string `json:"candidates" yaml:"candidates" mapstructure:"candidates"`
}

// CacheMode controls which phase cache operations are enabled.
type CacheMode string

const (
	CacheOff       CacheMode = "off"
	CacheRead      CacheMode = "read"
	CacheWrite     CacheMode = "write"
	CacheReadWrite CacheMode = "readwrite"
)

// Reads reports whether the mode permits cache reads.
func (m CacheMode) Reads() bool { return m == CacheRead || m == CacheReadWrite }

// Writes reports whether the mode permits cache writes.
func (m CacheMode) Writes() bool { return m == CacheWrite || m == CacheReadWrite }

// CacheConfig holds settings for the phase cache.
type CacheConfig struct {
	Mode CacheMode `json:"mode" yaml:"mode" mapstructure:"mode" validate:"oneof=off read write readwrite"`

	// Dir is the base directory: the durable store lives in Dir/index/,
	// file entries in Dir/phases/.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir" validate:"required_unless=Mode off"`

	// DurableBackend selects the durable store: sqlite or badger.
	DurableBackend string `json:"durable_backend" yaml:"durable_backend" mapstructure:"durable_backend" validate:"oneof=sqlite badger"`

	DurableEnabled bool `json:"durable_enabled" yaml:"durable_enabled" mapstructure:"durable_enabled"`
	FileEnabled    bool `json:"file_enabled" yaml:"file_enabled" mapstructure:"file_enabled"`
}

// MetricsConfig holds settings for phase timing sinks.
type MetricsConfig struct {
	// DBEnabled records timings into the SQLite database under Cache.Dir.
	DBEnabled bool `json:"db_enabled" yaml:"db_enabled" mapstructure:"db_enabled"`

	// PrometheusAddr, when set, serves /metrics on this address during a run.
	PrometheusAddr string `json:"prometheus_addr,omitempty" yaml:"prometheus_addr,omitempty" mapstructure:"prometheus_addr" validate:"omitempty,hostname_port"`
}

// ModelSpec declares one entry of the model capability table. Entries from
// configuration replace built-in entries with the same ID.
type ModelSpec struct {
	ID                 string   `json:"id" yaml:"id" mapstructure:"id" validate:"required"`
	Aliases            []string `json:"aliases,omitempty" yaml:"aliases,omitempty" mapstructure:"aliases"`
	Family             string   `json:"family" yaml:"family" mapstructure:"family" validate:"oneof=advanced classic unknown"`
	Temperature        bool     `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
	MaxOutputTokens    bool     `json:"max_output_tokens" yaml:"max_output_tokens" mapstructure:"max_output_tokens"`
	ReasoningEffort    bool     `json:"reasoning_effort" yaml:"reasoning_effort" mapstructure:"reasoning_effort"`
	Tools              bool     `json:"tools" yaml:"tools" mapstructure:"tools"`
	DefaultTemperature float64  `json:"default_temperature" yaml:"default_temperature" mapstructure:"default_temperature" validate:"gte=0,lte=2"`
	Dialect            string   `json:"dialect" yaml:"dialect" mapstructure:"dialect" validate:"oneof=modern legacy"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" mapstructure:"format" validate:"oneof=text json"`
}

// Config is the complete, immutable configuration for one process. It is
// built once at startup and passed explicitly to every component.
type Config struct {
	Provider   ProviderConfig   `json:"provider" yaml:"provider" mapstructure:"provider"`
	Pipeline   PipelineConfig   `json:"pipeline" yaml:"pipeline" mapstructure:"pipeline"`
	Scheduling SchedulingConfig `json:"scheduling" yaml:"scheduling" mapstructure:"scheduling"`
	Fallback   FallbackConfig   `json:"fallback" yaml:"fallback" mapstructure:"fallback"`
	Cache      CacheConfig      `json:"cache" yaml:"cache" mapstructure:"cache"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
	Models     []ModelSpec      `json:"models,omitempty" yaml:"models,omitempty" mapstructure:"models" validate:"dive"`
	Log        LogConfig        `json:"log" yaml:"log" mapstructure:"log"`
}

// DefaultConfig returns the configuration used when no file or flag
// overrides a value.
func DefaultConfig() Config {
	return Config{
		Provider: ProviderConfig{
			BaseURL:    "https://api.openai.com/v1",
			Timeout:    2 * time.Minute,
			MaxRetries: 3,
			UserAgent:  "dossier/0.1",
		},
		Pipeline: PipelineConfig{
			PrimaryModel:        "gpt-5",
			MaxConcurrentPhases: 3,
			InterPhaseDelay:     500 * time.Millisecond,
			PhaseTimeout:        3 * time.Minute,
			MaxAttempts:         3,
			MaxOutputTokens:     8192,
			ReasoningEffort:     "low",
		},
		Scheduling: SchedulingConfig{
			Advanced: ScheduleParallel,
			Classic:  ScheduleSequential,
			Unknown:  ScheduleSequential,
		},
		Fallback: FallbackConfig{
			Candidates: []string{"gpt-4.1", "gpt-4.1-mini"},
		},
		Cache: CacheConfig{
			Mode:           CacheReadWrite,
			Dir:            ".dossier",
			DurableBackend: "sqlite",
			DurableEnabled: true,
			FileEnabled:    true,
		},
		Metrics: MetricsConfig{
			DBEnabled: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint and reports all violations at once.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
