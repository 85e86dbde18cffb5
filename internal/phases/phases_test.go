// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package phases

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/dossier/pkg/types"
)

var testSubject = types.Subject{
	Name:         "Acme Logistics",
	CanonicalURL: "https://acme.example",
	Locale:       "de-DE",
	SectorHint:   "freight",
}

// samples holds one schema-conformant result per default phase.
var samples = map[string]string{
	PhaseOverview:   `{"summary":"Acme moves freight.","headquarters":"Hamburg, Germany","founded_year":1998,"employee_range":"201-500"}`,
	PhaseOfferings:  `{"offerings":[{"name":"Acme Track","description":"Shipment tracking."},{"name":"Acme Haul","description":"Road freight.","category":"transport"}]}`,
	PhaseLeadership: `{"leadership":[{"name":"Jo Park","title":"CEO","source":"https://acme.example/team"}]}`,
	PhaseMarket:     `{"industries":["logistics","retail"],"competitors":[{"name":"Globex","url":"https://globex.example"}]}`,
	PhaseSignals:    `{"signals":[{"headline":"Acme raises Series C","date":"2026-03-01","kind":"funding"}]}`,
}

func decodeAll(t *testing.T) []Partial {
	t.Helper()
	var out []Partial
	for _, s := range Default() {
		p, err := s.Decode(json.RawMessage(samples[s.ID()]))
		require.NoError(t, err, s.ID())
		require.Equal(t, s.ID(), p.PhaseID())
		out = append(out, p)
	}
	return out
}

func TestDefaultCatalog(t *testing.T) {
	specs := Default()
	require.NoError(t, Validate(specs))

	var ids []string
	for _, s := range specs {
		ids = append(ids, s.ID())
		assert.NotEmpty(t, s.Label())
		assert.NotEmpty(t, s.Category())
		assert.Equal(t, s.ID()+"_result", s.SchemaName())
		assert.True(t, json.Valid(s.Schema()), s.ID())
		assert.NotNil(t, s.Validator())
	}
	assert.Equal(t, []string{PhaseOverview, PhaseOfferings, PhaseLeadership, PhaseMarket, PhaseSignals}, ids)
}

func TestDefault_ReturnsCopy(t *testing.T) {
	specs := Default()
	specs[0] = nil
	assert.NotNil(t, Default()[0])
}

func TestSamplesConformToSchemas(t *testing.T) {
	for _, s := range Default() {
		t.Run(s.ID(), func(t *testing.T) {
			var v any
			require.NoError(t, json.Unmarshal([]byte(samples[s.ID()]), &v))
			assert.NoError(t, s.Validator().Validate(v))
		})
	}
}

func TestSchemaRejectsMissingRequired(t *testing.T) {
	var v any
	require.NoError(t, json.Unmarshal([]byte(`{"summary":"only this"}`), &v))
	assert.Error(t, overview.Validator().Validate(v))
}

func TestPrompt(t *testing.T) {
	p, err := overview.Prompt(testSubject)
	require.NoError(t, err)
	assert.Contains(t, p, `"Acme Logistics" (https://acme.example)`)
	assert.Contains(t, p, "freight sector")
	assert.Contains(t, p, "de-DE locale")
	assert.Contains(t, p, `"overview_result" schema`)

	bare, err := overview.Prompt(types.Subject{Name: "Acme", CanonicalURL: "https://acme.example"})
	require.NoError(t, err)
	assert.NotContains(t, bare, "sector")
	assert.NotContains(t, bare, "locale")
}

func TestToolPolicies(t *testing.T) {
	assert.Equal(t, ToolsRequired, signals.Tools())
	assert.Equal(t, ToolsAllowed, overview.Tools())
	assert.Equal(t, "required", ToolsRequired.String())
	assert.Equal(t, "none", ToolsNone.String())
}

// Each merge must leave every field it does not own untouched.
func TestMergeWritesOnlyOwnedFields(t *testing.T) {
	reportType := reflect.TypeOf(types.Report{})
	for i, p := range decodeAll(t) {
		spec := Default()[i]
		t.Run(spec.ID(), func(t *testing.T) {
			seed := types.NewReport(testSubject)
			merged := types.NewReport(testSubject)
			p.MergeInto(merged)

			owned := map[string]bool{}
			for _, f := range spec.Owns() {
				owned[f] = true
			}
			seedV, mergedV := reflect.ValueOf(*seed), reflect.ValueOf(*merged)
			changed := 0
			for j := 0; j < reportType.NumField(); j++ {
				name := reportType.Field(j).Name
				same := reflect.DeepEqual(seedV.Field(j).Interface(), mergedV.Field(j).Interface())
				if owned[name] {
					if !same {
						changed++
					}
					continue
				}
				assert.True(t, same, "phase %s wrote unowned field %s", spec.ID(), name)
			}
			assert.Positive(t, changed, "phase %s changed none of its fields", spec.ID())
		})
	}
}

// Merges commute: every completion order yields the same report.
func TestMergeOrderIndependence(t *testing.T) {
	parts := decodeAll(t)
	want := types.NewReport(testSubject)
	for _, p := range parts {
		p.MergeInto(want)
	}

	for _, order := range permutations(len(parts)) {
		got := types.NewReport(testSubject)
		for _, i := range order {
			parts[i].MergeInto(got)
		}
		require.Equal(t, want, got, "order %v", order)
	}
}

func TestMergeCopiesSlices(t *testing.T) {
	p, err := offerings.Decode(json.RawMessage(`{"offerings":[]}`))
	require.NoError(t, err)
	r := types.NewReport(testSubject)
	p.MergeInto(r)
	assert.NotNil(t, r.Offerings)
	assert.Empty(t, r.Offerings)
}

func TestDecode_InvalidJSON(t *testing.T) {
	_, err := market.Decode(json.RawMessage(`{"industries": "not-a-list"}`))
	assert.Error(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	dupField := MustDefine(Definition[OverviewResult]{
		ID:     "summary-again",
		Schema: &jsonschema.Schema{Type: "object"},
		Owns:   []string{"Summary"},
		Merge:  func(r *types.Report, v OverviewResult) { r.Summary = v.Summary },
	})
	badField := MustDefine(Definition[OverviewResult]{
		ID:     "bogus",
		Schema: &jsonschema.Schema{Type: "object"},
		Owns:   []string{"NoSuchField"},
		Merge:  func(*types.Report, OverviewResult) {},
	})
	noFields := MustDefine(Definition[OverviewResult]{
		ID:     "empty",
		Schema: &jsonschema.Schema{Type: "object"},
		Merge:  func(*types.Report, OverviewResult) {},
	})

	tests := []struct {
		name  string
		specs []Spec
		want  string
	}{
		{"duplicate ID", []Spec{overview, overview}, "duplicate phase ID"},
		{"overlapping fields", []Spec{overview, dupField}, `"Summary" owned by both`},
		{"unknown field", []Spec{badField}, "unknown report field"},
		{"no fields", []Spec{noFields}, "owns no report fields"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.specs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDefine_RequiresSchemaAndMerge(t *testing.T) {
	_, err := Define(Definition[OverviewResult]{ID: "x"})
	assert.Error(t, err)

	_, err = Define(Definition[OverviewResult]{
		ID:     "x",
		Schema: &jsonschema.Schema{Type: "object"},
		Task:   "{{.Broken",
		Merge:  func(*types.Report, OverviewResult) {},
	})
	assert.Error(t, err)
}

func TestSelect(t *testing.T) {
	got, err := Select(Default(), []string{"signals", " overview "})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, PhaseOverview, got[0].ID())
	assert.Equal(t, PhaseSignals, got[1].ID())

	all, err := Select(Default(), nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	_, err = Select(Default(), []string{"overview", "zeta", "alpha"})
	require.Error(t, err)
	assert.True(t, strings.HasSuffix(err.Error(), "alpha, zeta"))
}

func permutations(n int) [][]int {
	var out [][]int
	var rec func(prefix []int, used []bool)
	rec = func(prefix []int, used []bool) {
		if len(prefix) == n {
			out = append(out, append([]int(nil), prefix...))
			return
		}
		for i := 0; i < n; i++ {
			if used[i] {
				continue
			}
			used[i] = true
			rec(append(prefix, i), used)
			used[i] = false
		}
	}
	rec(nil, make([]bool, n))
	return out
}
