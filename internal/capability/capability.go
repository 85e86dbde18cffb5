// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package capability maps model identifiers to the request features each
// model supports. It is the only place in the module that interprets model
// names; every other stage asks the Resolver.
package capability

import (
	"strings"

	"github.com/pdiddy/dossier/pkg/types"
)

// Family groups models for fallback and scheduling decisions.
type Family string

const (
	// FamilyAdvanced is the default, reasoning-capable family.
	FamilyAdvanced Family = "advanced"

	// FamilyClassic is the older, sampling-controlled family used as fallback.
	FamilyClassic Family = "classic"

	FamilyUnknown Family = "unknown"
)

// Dialect is the response-format protocol a model requires.
type Dialect string

const (
	// DialectModern passes the schema as a structured response format and
	// may return a natively parsed object.
	DialectModern Dialect = "modern"

	// DialectLegacy embeds the schema as response_format.json_schema.
	DialectLegacy Dialect = "legacy"
)

// Capabilities describes which request features a model supports.
type Capabilities struct {
	Family             Family
	Temperature        bool
	MaxOutputTokens    bool
	ReasoningEffort    bool
	Tools              bool
	DefaultTemperature float64
	Dialect            Dialect
}

// Default is returned for unknown models: temperature only, no tools, no
// reasoning control.
var Default = Capabilities{
	Family:             FamilyUnknown,
	Temperature:        true,
	MaxOutputTokens:    true,
	DefaultTemperature: 0.2,
	Dialect:            DialectModern,
}

// builtin is the shipped capability table.
var builtin = []types.ModelSpec{
	{ID: "gpt-5", Family: "advanced", MaxOutputTokens: true, ReasoningEffort: true, Tools: true, Dialect: "modern"},
	{ID: "gpt-5-mini", Family: "advanced", MaxOutputTokens: true, ReasoningEffort: true, Tools: true, Dialect: "modern"},
	{ID: "gpt-5-nano", Family: "advanced", MaxOutputTokens: true, ReasoningEffort: true, Dialect: "modern"},
	{ID: "o3", Family: "advanced", MaxOutputTokens: true, ReasoningEffort: true, Tools: true, Dialect: "modern"},
	{ID: "o4-mini", Family: "advanced", MaxOutputTokens: true, ReasoningEffort: true, Tools: true, Dialect: "modern"},
	{ID: "gpt-4.1", Family: "classic", Temperature: true, MaxOutputTokens: true, Tools: true, DefaultTemperature: 0.2, Dialect: "modern"},
	{ID: "gpt-4.1-mini", Family: "classic", Temperature: true, MaxOutputTokens: true, Tools: true, DefaultTemperature: 0.2, Dialect: "modern"},
	{ID: "gpt-4o", Family: "classic", Temperature: true, MaxOutputTokens: true, Tools: true, DefaultTemperature: 0.3, Dialect: "modern"},
	{ID: "gpt-4o-mini", Family: "classic", Temperature: true, MaxOutputTokens: true, DefaultTemperature: 0.3, Dialect: "legacy"},
	{ID: "gpt-4-turbo", Family: "classic", Temperature: true, MaxOutputTokens: true, DefaultTemperature: 0.3, Dialect: "legacy", Aliases: []string{"gpt-4-turbo-2024-04-09"}},
}

// Builtin returns a copy of the shipped capability table.
func Builtin() []types.ModelSpec {
	out := make([]types.ModelSpec, len(builtin))
	copy(out, builtin)
	return out
}

// Resolver answers capability lookups. It is immutable after construction
// and safe for concurrent use.
type Resolver struct {
	table map[string]Capabilities
}

// NewResolver builds a resolver from the built-in table with overrides
// applied on top. An override replaces the built-in entry with the same ID.
func NewResolver(overrides ...types.ModelSpec) *Resolver {
	r := &Resolver{table: make(map[string]Capabilities, len(builtin)+len(overrides))}
	for _, spec := range builtin {
		r.add(spec)
	}
	for _, spec := range overrides {
		r.add(spec)
	}
	return r
}

// NewTableResolver builds a resolver from exactly the given entries, with
// no built-in models.
func NewTableResolver(specs ...types.ModelSpec) *Resolver {
	r := &Resolver{table: make(map[string]Capabilities, len(specs))}
	for _, spec := range specs {
		r.add(spec)
	}
	return r
}

func (r *Resolver) add(spec types.ModelSpec) {
	c := Capabilities{
		Family:             parseFamily(spec.Family),
		Temperature:        spec.Temperature,
		MaxOutputTokens:    spec.MaxOutputTokens,
		ReasoningEffort:    spec.ReasoningEffort,
		Tools:              spec.Tools,
		DefaultTemperature: spec.DefaultTemperature,
		Dialect:            DialectModern,
	}
	if spec.Dialect == string(DialectLegacy) {
		c.Dialect = DialectLegacy
	}
	r.table[normalize(spec.ID)] = c
	for _, alias := range spec.Aliases {
		r.table[normalize(alias)] = c
	}
}

// Resolve returns the capabilities of modelID, or Default when the model is
// not in the table. It never fails.
func (r *Resolver) Resolve(modelID string) Capabilities {
	if r == nil {
		return Default
	}
	if c, ok := r.table[normalize(modelID)]; ok {
		return c
	}
	return Default
}

// Known reports whether modelID has an explicit table entry.
func (r *Resolver) Known(modelID string) bool {
	if r == nil {
		return false
	}
	_, ok := r.table[normalize(modelID)]
	return ok
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func parseFamily(s string) Family {
	switch Family(normalize(s)) {
	case FamilyAdvanced:
		return FamilyAdvanced
	case FamilyClassic:
		return FamilyClassic
	}
	return FamilyUnknown
}
