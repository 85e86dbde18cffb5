// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Offering is a product or service the organization sells.
type Offering struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Category    string `json:"category,omitempty" yaml:"category,omitempty"`
}

// Person is a member of the organization's leadership.
type Person struct {
	Name   string `json:"name" yaml:"name"`
	Title  string `json:"title" yaml:"title"`
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// Competitor is an organization competing for the same customers.
type Competitor struct {
	Name      string `json:"name" yaml:"name"`
	URL       string `json:"url,omitempty" yaml:"url,omitempty"`
	Rationale string `json:"rationale,omitempty" yaml:"rationale,omitempty"`
}

// Signal is a recent, dated event about the organization (funding, launch,
// hiring, partnership).
type Signal struct {
	Headline string `json:"headline" yaml:"headline"`
	Date     string `json:"date,omitempty" yaml:"date,omitempty"`
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
	Summary  string `json:"summary,omitempty" yaml:"summary,omitempty"`
	Kind     string `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// Report is the aggregate organization profile a pipeline run fills in.
// Each phase writes only the fields it owns; see internal/phases.
type Report struct {
	SubjectID    string `json:"subject_id" yaml:"subject_id"`
	Name         string `json:"name" yaml:"name"`
	CanonicalURL string `json:"canonical_url" yaml:"canonical_url"`
	Locale       string `json:"locale,omitempty" yaml:"locale,omitempty"`

	// Owned by the overview phase.
	Summary       string `json:"summary" yaml:"summary"`
	Headquarters  string `json:"headquarters" yaml:"headquarters"`
	FoundedYear   int    `json:"founded_year,omitempty" yaml:"founded_year,omitempty"`
	EmployeeRange string `json:"employee_range,omitempty" yaml:"employee_range,omitempty"`

	// Owned by the offerings phase.
	Offerings []Offering `json:"offerings" yaml:"offerings"`

	// Owned by the leadership phase.
	Leadership []Person `json:"leadership" yaml:"leadership"`

	// Owned by the market phase.
	Industries  []string     `json:"industries" yaml:"industries"`
	Competitors []Competitor `json:"competitors" yaml:"competitors"`

	// Owned by the signals phase.
	Signals []Signal `json:"signals" yaml:"signals"`
}

// NewReport seeds a report with subject-derived defaults and empty,
// non-nil collections for every phase-owned collection field.
func NewReport(s Subject) *Report {
	return &Report{
		SubjectID:    s.ID(),
		Name:         s.Name,
		CanonicalURL: s.CanonicalURL,
		Locale:       s.Locale,
		Offerings:    []Offering{},
		Leadership:   []Person{},
		Industries:   []string{},
		Competitors:  []Competitor{},
		Signals:      []Signal{},
	}
}

// FallbackUse records that a phase was served by a fallback model.
type FallbackUse struct {
	PhaseID string `json:"phase_id" yaml:"phase_id"`
	Primary string `json:"primary" yaml:"primary"`
	Model   string `json:"model" yaml:"model"`
}

// PipelineResult is the terminal output of one pipeline run.
type PipelineResult struct {
	RunID        string        `json:"run_id" yaml:"run_id"`
	Report       *Report       `json:"report" yaml:"report"`
	ModelUsed    string        `json:"model_used" yaml:"model_used"`
	Fallbacks    []FallbackUse `json:"fallbacks,omitempty" yaml:"fallbacks,omitempty"`
	PhaseTimings []PhaseTiming `json:"phase_timings" yaml:"phase_timings"`
}
