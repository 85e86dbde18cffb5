// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package phases holds the static catalog of research phases. Each phase
// owns a disjoint set of report fields, decodes into its own result type and
// merges through a pure function that writes only those fields, so results
// can be merged in any completion order.
package phases

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"text/template"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/pdiddy/dossier/pkg/types"
)

// ToolPolicy says whether a phase may or must use auxiliary tools.
type ToolPolicy int

const (
	ToolsNone ToolPolicy = iota
	ToolsAllowed
	ToolsRequired
)

func (p ToolPolicy) String() string {
	switch p {
	case ToolsAllowed:
		return "allowed"
	case ToolsRequired:
		return "required"
	}
	return "none"
}

// Partial is an immutable, decoded phase result.
type Partial interface {
	PhaseID() string
	MergeInto(r *types.Report)
}

// Spec is the static definition of one phase.
type Spec interface {
	ID() string
	Label() string
	Category() string
	SchemaName() string

	// Schema is the JSON schema document sent to the provider.
	Schema() json.RawMessage

	// Validator checks decoded objects against Schema.
	Validator() *jsonschema.Resolved

	Tools() ToolPolicy

	// Owns lists the types.Report fields the phase writes.
	Owns() []string

	Prompt(s types.Subject) (string, error)
	Decode(raw json.RawMessage) (Partial, error)
}

type phase[T any] struct {
	id         string
	label      string
	category   string
	schemaName string
	schemaJSON json.RawMessage
	resolved   *jsonschema.Resolved
	tools      ToolPolicy
	owns       []string
	prompt     *template.Template
	merge      func(r *types.Report, v T)
}

func (p *phase[T]) ID() string                      { return p.id }
func (p *phase[T]) Label() string                   { return p.label }
func (p *phase[T]) Category() string                { return p.category }
func (p *phase[T]) SchemaName() string              { return p.schemaName }
func (p *phase[T]) Schema() json.RawMessage         { return p.schemaJSON }
func (p *phase[T]) Validator() *jsonschema.Resolved { return p.resolved }
func (p *phase[T]) Tools() ToolPolicy               { return p.tools }
func (p *phase[T]) Owns() []string                  { return append([]string(nil), p.owns...) }

func (p *phase[T]) Prompt(s types.Subject) (string, error) {
	var buf bytes.Buffer
	if err := p.prompt.Execute(&buf, s); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", p.id, err)
	}
	return buf.String(), nil
}

func (p *phase[T]) Decode(raw json.RawMessage) (Partial, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decoding %s result: %w", p.id, err)
	}
	return partial[T]{id: p.id, value: v, merge: p.merge}, nil
}

type partial[T any] struct {
	id    string
	value T
	merge func(r *types.Report, v T)
}

func (p partial[T]) PhaseID() string           { return p.id }
func (p partial[T]) MergeInto(r *types.Report) { p.merge(r, p.value) }

// Definition describes a phase whose result decodes into T.
type Definition[T any] struct {
	ID       string
	Label    string
	Category string
	Tools    ToolPolicy
	Schema   *jsonschema.Schema

	// Owns names the types.Report fields Merge writes.
	Owns []string

	// Task is the phase-specific part of the prompt, a text/template
	// rendered against types.Subject.
	Task string

	Merge func(r *types.Report, v T)
}

// Define builds a Spec from d, rendering and resolving its schema and
// parsing its prompt template.
func Define[T any](d Definition[T]) (Spec, error) {
	if d.ID == "" || d.Schema == nil || d.Merge == nil {
		return nil, fmt.Errorf("phase definition %q needs an ID, a schema and a merge function", d.ID)
	}
	schemaName := d.ID + "_result"
	raw, err := json.Marshal(d.Schema)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s schema: %w", d.ID, err)
	}
	resolved, err := d.Schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving %s schema: %w", d.ID, err)
	}
	tmpl, err := template.New(d.ID).Parse(preamble + d.Task + fmt.Sprintf(epilogue, schemaName))
	if err != nil {
		return nil, fmt.Errorf("parsing %s prompt: %w", d.ID, err)
	}
	return &phase[T]{
		id:         d.ID,
		label:      d.Label,
		category:   d.Category,
		schemaName: schemaName,
		schemaJSON: raw,
		resolved:   resolved,
		tools:      d.Tools,
		owns:       append([]string(nil), d.Owns...),
		prompt:     tmpl,
		merge:      d.Merge,
	}, nil
}

// MustDefine is Define for package-level catalog entries; it panics on a
// malformed definition.
func MustDefine[T any](d Definition[T]) Spec {
	s, err := Define(d)
	if err != nil {
		panic("phases: " + err.Error())
	}
	return s
}

// Validate checks that phase IDs are unique, that every owned field exists
// on types.Report, and that no two phases own the same field.
func Validate(specs []Spec) error {
	reportType := reflect.TypeOf(types.Report{})
	ids := make(map[string]bool, len(specs))
	owner := make(map[string]string)
	for _, s := range specs {
		if s.ID() == "" {
			return fmt.Errorf("phase with empty ID")
		}
		if ids[s.ID()] {
			return fmt.Errorf("duplicate phase ID %q", s.ID())
		}
		ids[s.ID()] = true
		if len(s.Owns()) == 0 {
			return fmt.Errorf("phase %q owns no report fields", s.ID())
		}
		for _, f := range s.Owns() {
			if _, ok := reportType.FieldByName(f); !ok {
				return fmt.Errorf("phase %q owns unknown report field %q", s.ID(), f)
			}
			if prev, ok := owner[f]; ok {
				return fmt.Errorf("report field %q owned by both %q and %q", f, prev, s.ID())
			}
			owner[f] = s.ID()
		}
	}
	return nil
}

// Select returns the catalog entries named by ids, in catalog order. An
// empty ids selects the whole catalog.
func Select(catalog []Spec, ids []string) ([]Spec, error) {
	if len(ids) == 0 {
		return catalog, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" {
			want[id] = true
		}
	}
	var out []Spec
	for _, s := range catalog {
		if want[s.ID()] {
			out = append(out, s)
			delete(want, s.ID())
		}
	}
	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for id := range want {
			unknown = append(unknown, id)
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown phase(s): %s", strings.Join(unknown, ", "))
	}
	return out, nil
}
