// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package structured

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/dossier/internal/provider"
)

// --- scripted provider ---

type scriptedProvider struct {
	mu        sync.Mutex
	responses []provider.Response
	errs      []error
	prompts   []string
}

func (s *scriptedProvider) Complete(_ context.Context, req provider.Request) (provider.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.prompts)
	s.prompts = append(s.prompts, req.Prompt)
	if i < len(s.errs) && s.errs[i] != nil {
		return provider.Response{}, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return s.responses[len(s.responses)-1], nil
}

func (s *scriptedProvider) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func companySchema(t *testing.T) *jsonschema.Resolved {
	t.Helper()
	s := &jsonschema.Schema{
		Type:     "object",
		Required: []string{"name", "employees"},
		Properties: map[string]*jsonschema.Schema{
			"name":      {Type: "string"},
			"employees": {Type: "integer"},
		},
	}
	rs, err := s.Resolve(nil)
	require.NoError(t, err)
	return rs
}

func textResp(s string) provider.Response { return provider.Response{Text: s} }

func baseRequest() provider.Request {
	return provider.Request{Model: "x-advanced", SchemaName: "company", Prompt: "Describe Acme."}
}

// --- Extract ---

func TestExtract_HappyPathSingleCall(t *testing.T) {
	p := &scriptedProvider{responses: []provider.Response{textResp(`{"name":"Acme","employees":120}`)}}
	e := New(p, nil)

	out, err := e.Extract(context.Background(), baseRequest(), companySchema(t), 3)
	require.NoError(t, err)

	assert.JSONEq(t, `{"name":"Acme","employees":120}`, string(out.Object))
	assert.Equal(t, SourceText, out.Source)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 1, p.calls())
	assert.Equal(t, "Describe Acme.", p.prompts[0])
}

func TestExtract_RetriesWithCorrectiveInstruction(t *testing.T) {
	p := &scriptedProvider{responses: []provider.Response{
		textResp(`{"name": "Acme", "employees": `),
		textResp(`Sure! Here you go: name=Acme`),
		textResp(`{"name":"Acme","employees":120}`),
	}}
	e := New(p, nil)

	out, err := e.Extract(context.Background(), baseRequest(), companySchema(t), 3)
	require.NoError(t, err)

	assert.Equal(t, 3, out.Attempts)
	require.Equal(t, 3, p.calls())
	assert.NotContains(t, p.prompts[0], "retry")
	assert.Contains(t, p.prompts[1], "retry 1")
	assert.Contains(t, p.prompts[1], "attempt 2 of 3")
	assert.Contains(t, p.prompts[2], "retry 2")
	assert.Contains(t, p.prompts[2], "attempt 3 of 3")
	// Corrections are not stacked: each retry starts from the original prompt.
	assert.NotContains(t, p.prompts[2], "retry 1")
}

func TestExtract_ExhaustionReturnsParseError(t *testing.T) {
	p := &scriptedProvider{responses: []provider.Response{textResp(`not json at all`)}}
	e := New(p, nil)

	_, err := e.Extract(context.Background(), baseRequest(), companySchema(t), 3)
	require.Error(t, err)

	assert.ErrorIs(t, err, provider.ErrParse)
	assert.Equal(t, provider.KindParse, provider.Classify(err))
	assert.Equal(t, 3, p.calls())
}

func TestExtract_ClampsAttempts(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		wantCalls int
	}{
		{"zero uses cap", 0, MaxAttempts},
		{"above cap is clamped", 10, MaxAttempts},
		{"single attempt", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptedProvider{responses: []provider.Response{textResp(`[]`)}}
			_, err := New(p, nil).Extract(context.Background(), baseRequest(), nil, tt.requested)
			require.ErrorIs(t, err, provider.ErrParse)
			assert.Equal(t, tt.wantCalls, p.calls())
		})
	}
}

func TestExtract_SchemaViolationIsRetriedWithProblem(t *testing.T) {
	p := &scriptedProvider{responses: []provider.Response{
		textResp(`{"name":"Acme","employees":"lots"}`),
		textResp(`{"name":"Acme","employees":40}`),
	}}
	e := New(p, nil)

	out, err := e.Extract(context.Background(), baseRequest(), companySchema(t), 3)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Attempts)
	assert.Contains(t, p.prompts[1], "schema violation")
}

func TestExtract_ProviderErrorIsNotRetried(t *testing.T) {
	cause := fmt.Errorf("%w: HTTP 500", provider.ErrProvider)
	p := &scriptedProvider{errs: []error{cause}, responses: []provider.Response{textResp(`{}`)}}

	_, err := New(p, nil).Extract(context.Background(), baseRequest(), nil, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrProvider)
	assert.Equal(t, 1, p.calls())
}

func TestExtract_DeadlineIsClassifiedAsTimeout(t *testing.T) {
	slow := provider.Func(func(ctx context.Context, _ provider.Request) (provider.Response, error) {
		<-ctx.Done()
		return provider.Response{}, fmt.Errorf("%w: %w", provider.ErrProvider, ctx.Err())
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := New(slow, nil).Extract(ctx, baseRequest(), nil, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrTimeout)
	assert.Equal(t, provider.KindTimeout, provider.Classify(err))
}

// --- Decode ---

func TestDecode_Shapes(t *testing.T) {
	schema := companySchema(t)
	tests := []struct {
		name    string
		resp    provider.Response
		want    string
		source  Source
		wantErr string
	}{
		{
			name:   "native structured field",
			resp:   provider.Response{Parsed: json.RawMessage(`{"name":"Acme","employees":5}`), Text: "ignored"},
			want:   `{"name":"Acme","employees":5}`,
			source: SourceNative,
		},
		{
			name:   "invalid native falls back to text",
			resp:   provider.Response{Parsed: json.RawMessage(`{"name":"Acme"}`), Text: `{"name":"Acme","employees":5}`},
			want:   `{"name":"Acme","employees":5}`,
			source: SourceText,
		},
		{
			name:   "plain JSON text with whitespace",
			resp:   textResp("\n  {\"name\":\"Acme\",\"employees\":5}\n"),
			want:   `{"name":"Acme","employees":5}`,
			source: SourceText,
		},
		{
			name:   "embedded in prose and code fence",
			resp:   textResp("Here is the profile:\n```json\n{\"name\":\"Acme {Inc}\",\"employees\":5}\n```\nLet me know!"),
			want:   `{"name":"Acme {Inc}","employees":5}`,
			source: SourceEmbedded,
		},
		{
			name:   "skips non-conforming embedded object",
			resp:   textResp(`Template: {"placeholder": true}. Answer: {"name":"Acme","employees":5}`),
			want:   `{"name":"Acme","employees":5}`,
			source: SourceEmbedded,
		},
		{
			name:    "empty response",
			resp:    provider.Response{},
			wantErr: "empty response",
		},
		{
			name:    "no object",
			resp:    textResp("I could not find that company."),
			wantErr: "no JSON object found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, src, err := Decode(tt.resp, schema)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(obj))
			assert.Equal(t, tt.source, src)
		})
	}
}

func TestDecode_NilSchemaAcceptsAnyObject(t *testing.T) {
	obj, _, err := Decode(textResp(`{"anything": [1, 2]}`), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"anything":[1,2]}`, string(obj))

	_, _, err = Decode(textResp(`"just a string"`), nil)
	require.Error(t, err)
}

// --- embeddedObjects ---

func TestEmbeddedObjects_First(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{"simple", `x {"a":1} y`, `{"a":1}`, true},
		{"nested", `{"a":{"b":{}}} tail`, `{"a":{"b":{}}}`, true},
		{"brace in string", `{"a":"}"}`, `{"a":"}"}`, true},
		{"escaped quote in string", `{"a":"say \"}\" now"}`, `{"a":"say \"}\" now"}`, true},
		{"unclosed first brace skipped", `{ broken {"a":1}`, `{"a":1}`, true},
		{"none", `no braces here`, "", false},
		{"never closed", `{"a":1`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spans := embeddedObjects(tt.text)
			assert.Equal(t, tt.ok, len(spans) > 0)
			if tt.ok {
				assert.Equal(t, tt.want, spans[0])
			}
		})
	}
}

func TestCorrection_TruncatesProblem(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	got := correction(2, 3, "company", string(long))
	assert.Contains(t, got, "retry 1 (attempt 2 of 3)")
	assert.Less(t, len(got), 600)
}

func TestCorrection_TruncatesOnRuneBoundary(t *testing.T) {
	problem := strings.Repeat("x", maxProblemLen-1) + strings.Repeat("ü", 10)
	got := correction(2, 3, "company", problem)
	assert.True(t, utf8.ValidString(got))
	assert.Contains(t, got, strings.Repeat("x", maxProblemLen-1)+"...")
}

func TestDecode_SameDocumentReportedOnce(t *testing.T) {
	doc := `{"name":"Acme"}`
	_, _, err := Decode(provider.Response{Parsed: json.RawMessage(doc), Text: doc + "\n"}, companySchema(t))
	require.Error(t, err)
	assert.Equal(t, 1, strings.Count(err.Error(), "schema violation"), err.Error())
	assert.NotContains(t, err.Error(), "embedded object")
}

func TestClassifyCallError_PassesThroughWithoutDeadline(t *testing.T) {
	cause := errors.New("boom")
	assert.Same(t, cause, classifyCallError(context.Background(), cause))
}
