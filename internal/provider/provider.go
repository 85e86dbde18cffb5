// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package provider defines the contract between the pipeline and a
// generative text-completion provider, and the error taxonomy shared by
// every stage that talks to one.
package provider

import (
	"context"
	"encoding/json"

	"github.com/pdiddy/dossier/internal/capability"
)

// Tool names an auxiliary tool the provider may use while answering.
type Tool string

// ToolWebSearch lets the model search the web before answering.
const ToolWebSearch Tool = "web_search"

// Request is one structured-output completion call. Optional parameters are
// nil or empty when the model does not support them; the adapter sends only
// what is set.
type Request struct {
	Model      string
	SchemaName string

	// Schema is the JSON schema document the response must conform to.
	Schema json.RawMessage

	Prompt string
	Tools  []Tool

	Temperature     *float64
	MaxOutputTokens *int
	ReasoningEffort string

	// Dialect selects the response-format protocol. It is taken from the
	// model's resolved capabilities, never inferred from the model name.
	Dialect capability.Dialect
}

// Response carries whatever the provider returned. Parsed is set when the
// provider already decoded the structured output; Text holds the raw
// message text otherwise (and may also be set alongside Parsed).
type Response struct {
	Parsed json.RawMessage
	Text   string
}

// Provider issues completion requests. Implementations must honor ctx
// cancellation so an abandoned phase also aborts its in-flight request.
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Func adapts a plain function to the Provider interface.
type Func func(ctx context.Context, req Request) (Response, error)

// Complete calls f.
func (f Func) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
