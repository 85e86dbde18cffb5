// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package phases

import (
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/pdiddy/dossier/pkg/types"
)

// preamble introduces the subject; every phase task is appended to it.
const preamble = `You are a business research analyst compiling a factual profile of the organization "{{.Name}}" ({{.CanonicalURL}}).
{{- with .SectorHint}}
The organization operates in or near the {{.}} sector.{{end}}
{{- with .Locale}}
Prioritize sources and facts relevant to the {{.}} locale.{{end}}

`

// epilogue pins the output contract; %s is the schema name.
const epilogue = `

Respond with a single JSON object that conforms to the %q schema. Use empty strings or empty arrays for anything you cannot verify from reliable sources. Do not invent people, products, dates, or URLs. Do not include any text outside the JSON object.
`

// Phase identifiers of the default catalog.
const (
	PhaseOverview   = "overview"
	PhaseOfferings  = "offerings"
	PhaseLeadership = "leadership"
	PhaseMarket     = "market"
	PhaseSignals    = "signals"
)

// OverviewResult is the overview phase's output.
type OverviewResult struct {
	Summary       string `json:"summary"`
	Headquarters  string `json:"headquarters"`
	FoundedYear   int    `json:"founded_year"`
	EmployeeRange string `json:"employee_range"`
}

// OfferingsResult is the offerings phase's output.
type OfferingsResult struct {
	Offerings []types.Offering `json:"offerings"`
}

// LeadershipResult is the leadership phase's output.
type LeadershipResult struct {
	Leadership []types.Person `json:"leadership"`
}

// MarketResult is the market phase's output.
type MarketResult struct {
	Industries  []string           `json:"industries"`
	Competitors []types.Competitor `json:"competitors"`
}

// SignalsResult is the signals phase's output.
type SignalsResult struct {
	Signals []types.Signal `json:"signals"`
}

func str(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: desc}
}

func arr(items *jsonschema.Schema, desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "array", Items: items, Description: desc}
}

func obj(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Properties: props, Required: required}
}

var overview = MustDefine(Definition[OverviewResult]{
	ID:       PhaseOverview,
	Label:    "Company overview",
	Category: "profile",
	Tools:    ToolsAllowed,
	Schema: obj(map[string]*jsonschema.Schema{
		"summary":        str("Two to four sentence neutral description of what the organization does."),
		"headquarters":   str("City and country of the headquarters."),
		"founded_year":   {Type: "integer", Description: "Year founded, 0 if unknown."},
		"employee_range": str("Approximate headcount range, e.g. \"51-200\"."),
	}, "summary", "headquarters", "founded_year", "employee_range"),
	Owns: []string{"Summary", "Headquarters", "FoundedYear", "EmployeeRange"},
	Task: `Task: write a short overview of the organization: what it does, where it is headquartered, when it was founded, and its approximate headcount.`,
	Merge: func(r *types.Report, v OverviewResult) {
		r.Summary = v.Summary
		r.Headquarters = v.Headquarters
		r.FoundedYear = v.FoundedYear
		r.EmployeeRange = v.EmployeeRange
	},
})

var offerings = MustDefine(Definition[OfferingsResult]{
	ID:       PhaseOfferings,
	Label:    "Products and services",
	Category: "profile",
	Tools:    ToolsAllowed,
	Schema: obj(map[string]*jsonschema.Schema{
		"offerings": arr(obj(map[string]*jsonschema.Schema{
			"name":        str("Product or service name."),
			"description": str("One sentence description."),
			"category":    str("Product line or category."),
		}, "name", "description"), "Current products and services, most important first."),
	}, "offerings"),
	Owns: []string{"Offerings"},
	Task: `Task: list the organization's current products and services, most important first, with a one sentence description each. Exclude discontinued offerings.`,
	Merge: func(r *types.Report, v OfferingsResult) {
		r.Offerings = append([]types.Offering{}, v.Offerings...)
	},
})

var leadership = MustDefine(Definition[LeadershipResult]{
	ID:       PhaseLeadership,
	Label:    "Leadership team",
	Category: "people",
	Tools:    ToolsAllowed,
	Schema: obj(map[string]*jsonschema.Schema{
		"leadership": arr(obj(map[string]*jsonschema.Schema{
			"name":   str("Full name."),
			"title":  str("Current role."),
			"source": str("URL where the role is stated."),
		}, "name", "title"), "Executives and founders currently in role."),
	}, "leadership"),
	Owns: []string{"Leadership"},
	Task: `Task: identify the organization's current executive leadership and founders with their titles. Include only people whose role you can attribute to a source.`,
	Merge: func(r *types.Report, v LeadershipResult) {
		r.Leadership = append([]types.Person{}, v.Leadership...)
	},
})

var market = MustDefine(Definition[MarketResult]{
	ID:       PhaseMarket,
	Label:    "Market and competitors",
	Category: "market",
	Tools:    ToolsAllowed,
	Schema: obj(map[string]*jsonschema.Schema{
		"industries": arr(str("Industry name."), "Industries the organization serves."),
		"competitors": arr(obj(map[string]*jsonschema.Schema{
			"name":      str("Competitor name."),
			"url":       str("Competitor website."),
			"rationale": str("Why it competes for the same customers."),
		}, "name"), "Direct competitors."),
	}, "industries", "competitors"),
	Owns: []string{"Industries", "Competitors"},
	Task: `Task: name the industries the organization serves and up to eight direct competitors, with a short rationale for each competitor.`,
	Merge: func(r *types.Report, v MarketResult) {
		r.Industries = append([]string{}, v.Industries...)
		r.Competitors = append([]types.Competitor{}, v.Competitors...)
	},
})

var signals = MustDefine(Definition[SignalsResult]{
	ID:       PhaseSignals,
	Label:    "Recent signals",
	Category: "news",
	Tools:    ToolsRequired,
	Schema: obj(map[string]*jsonschema.Schema{
		"signals": arr(obj(map[string]*jsonschema.Schema{
			"headline": str("Short headline."),
			"date":     str("Publication date, YYYY-MM-DD."),
			"url":      str("Source URL."),
			"summary":  str("One sentence summary."),
			"kind":     {Type: "string", Enum: []any{"funding", "product", "hiring", "partnership", "leadership", "legal", "other"}},
		}, "headline"), "Dated events from the last twelve months, newest first."),
	}, "signals"),
	Owns: []string{"Signals"},
	Task: `Task: search for news from the last twelve months about the organization (funding, launches, hiring, partnerships, leadership changes, legal matters) and list each dated event with its source.`,
	Merge: func(r *types.Report, v SignalsResult) {
		r.Signals = append([]types.Signal{}, v.Signals...)
	},
})

var catalog = []Spec{overview, offerings, leadership, market, signals}

func init() {
	if err := Validate(catalog); err != nil {
		panic("phases: default catalog: " + err.Error())
	}
}

// Default returns the ordered default catalog.
func Default() []Spec {
	return append([]Spec(nil), catalog...)
}
