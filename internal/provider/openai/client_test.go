// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/dossier/internal/capability"
	"github.com/pdiddy/dossier/internal/httputil"
	"github.com/pdiddy/dossier/internal/provider"
	"github.com/pdiddy/dossier/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

var testSchema = json.RawMessage(`{"type":"object","properties":{"summary":{"type":"string"}},"required":["summary"]}`)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return New(types.ProviderConfig{BaseURL: ts.URL + "/v1", MaxRetries: 2, UserAgent: "dossier-test"}, "sk-test")
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(n int) *int           { return &n }

func TestComplete_ModernRequestShape(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/responses", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "dossier-test", r.Header.Get("User-Agent"))
		data, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(data, &got))
		io.WriteString(w, `{"status":"completed","output":[
			{"type":"web_search_call"},
			{"type":"message","content":[{"type":"output_text","text":"{\"summary\":\"Makes widgets\"}"}]}
		]}`)
	})

	resp, err := c.Complete(context.Background(), provider.Request{
		Model: "gpt-5", SchemaName: "overview_result", Schema: testSchema,
		Prompt: "Research Acme", Tools: []provider.Tool{provider.ToolWebSearch},
		MaxOutputTokens: intPtr(2048), ReasoningEffort: "low",
		Dialect: capability.DialectModern,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"Makes widgets"}`, string(resp.Parsed))
	assert.Equal(t, `{"summary":"Makes widgets"}`, resp.Text)

	assert.Equal(t, "gpt-5", got["model"])
	assert.Equal(t, "Research Acme", got["input"])
	format := got["text"].(map[string]any)["format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	assert.Equal(t, "overview_result", format["name"])
	assert.NotNil(t, format["schema"])
	assert.Equal(t, []any{map[string]any{"type": "web_search_preview"}}, got["tools"])
	assert.Equal(t, map[string]any{"effort": "low"}, got["reasoning"])
	assert.Equal(t, 2048.0, got["max_output_tokens"])
	_, hasTemp := got["temperature"]
	assert.False(t, hasTemp, "unset temperature must be omitted")
}

func TestComplete_ModernTextOnly(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"status":"completed","output":[{"type":"message","content":[{"type":"output_text","text":"Here you go: {\"summary\":\"x\"}"}]}]}`)
	})
	resp, err := c.Complete(context.Background(), provider.Request{Model: "gpt-5", Prompt: "p", Schema: testSchema})
	require.NoError(t, err)
	assert.Nil(t, resp.Parsed)
	assert.Equal(t, `Here you go: {"summary":"x"}`, resp.Text)
}

func TestComplete_ModernIncompleteNotParsed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"status":"incomplete","output":[{"type":"message","content":[{"type":"output_text","text":"{\"summary\":\"x\"}"}]}]}`)
	})
	resp, err := c.Complete(context.Background(), provider.Request{Model: "gpt-5", Prompt: "p", Schema: testSchema})
	require.NoError(t, err)
	assert.Nil(t, resp.Parsed)
}

func TestComplete_LegacyRequestShape(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(data, &got))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"c1","object":"chat.completion","model":"gpt-4o-mini","choices":[
			{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"summary\":\"Makes widgets\"}"}}
		]}`)
	})

	resp, err := c.Complete(context.Background(), provider.Request{
		Model: "gpt-4o-mini", SchemaName: "overview_result", Schema: testSchema,
		Prompt: "Research Acme", Temperature: floatPtr(0.3), MaxOutputTokens: intPtr(1024),
		Dialect: capability.DialectLegacy,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"Makes widgets"}`, string(resp.Parsed))

	assert.Equal(t, "gpt-4o-mini", got["model"])
	rf := got["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", rf["type"])
	js := rf["json_schema"].(map[string]any)
	assert.Equal(t, "overview_result", js["name"])
	assert.Equal(t, "object", js["schema"].(map[string]any)["type"])
	assert.InDelta(t, 0.3, got["temperature"], 1e-6)
	assert.Equal(t, 1024.0, got["max_tokens"])
}

func TestBuildChatRequest_ZeroTemperatureIsSent(t *testing.T) {
	cr, err := buildChatRequest(provider.Request{
		Model: "gpt-4o-mini", SchemaName: "overview_result", Schema: testSchema,
		Prompt: "Research Acme", Temperature: floatPtr(0),
	})
	require.NoError(t, err)
	data, err := json.Marshal(cr)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	require.Contains(t, got, "temperature")
	assert.InDelta(t, 0, got["temperature"], 1e-6)

	cr, err = buildChatRequest(provider.Request{Model: "gpt-4o-mini", Prompt: "Research Acme"})
	require.NoError(t, err)
	data, err = json.Marshal(cr)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"temperature"`)
}

func TestComplete_LegacyRejectsTools(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
	})
	_, err := c.Complete(context.Background(), provider.Request{
		Model: "gpt-4o-mini", Prompt: "p", Schema: testSchema,
		Tools: []provider.Tool{provider.ToolWebSearch}, Dialect: capability.DialectLegacy,
	})
	assert.ErrorIs(t, err, provider.ErrCapability)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestComplete_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		dialect capability.Dialect
		status  int
		body    string
		want    error
	}{
		{
			name: "modern unsupported parameter", dialect: capability.DialectModern, status: 400,
			body: `{"error":{"message":"Unsupported parameter: 'temperature'","type":"invalid_request_error","param":"temperature","code":"unsupported_parameter"}}`,
			want: provider.ErrCapability,
		},
		{
			name: "legacy unsupported value", dialect: capability.DialectLegacy, status: 400,
			body: `{"error":{"message":"Unsupported value: 'reasoning_effort'","type":"invalid_request_error","param":"reasoning_effort","code":"unsupported_value"}}`,
			want: provider.ErrCapability,
		},
		{
			name: "modern other bad request", dialect: capability.DialectModern, status: 400,
			body: `{"error":{"message":"bad","type":"invalid_request_error","code":"invalid_prompt"}}`,
			want: provider.ErrProvider,
		},
		{
			name: "modern unauthorized", dialect: capability.DialectModern, status: 401,
			body: `{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`,
			want: provider.ErrProvider,
		},
		{
			name: "legacy server error after retries", dialect: capability.DialectLegacy, status: 500,
			body: `{"error":{"message":"oops","type":"server_error"}}`,
			want: provider.ErrProvider,
		},
		{
			name: "modern non-json error body", dialect: capability.DialectModern, status: 502,
			body: `<html>bad gateway</html>`,
			want: provider.ErrProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			_, err := c.Complete(context.Background(), provider.Request{
				Model: "m", Prompt: "p", Schema: testSchema, Dialect: tt.dialect,
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestComplete_DeadlineIsTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer close(release)

	for _, dialect := range []capability.Dialect{capability.DialectModern, capability.DialectLegacy} {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_, err := c.Complete(ctx, provider.Request{Model: "m", Prompt: "p", Schema: testSchema, Dialect: dialect})
		cancel()
		assert.ErrorIs(t, err, provider.ErrTimeout, string(dialect))
		assert.Equal(t, provider.KindTimeout, provider.Classify(err))
	}
}

func TestComplete_CancelIsNotProviderError(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// The server only notices a client disconnect once the body is consumed.
		io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.Complete(ctx, provider.Request{Model: "m", Prompt: "p", Schema: testSchema})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, provider.ErrProvider)
}

func TestComplete_RetriesRateLimit(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, `{"status":"completed","output":[{"type":"message","content":[{"type":"output_text","text":"{\"summary\":\"x\"}"}]}]}`)
	})
	resp, err := c.Complete(context.Background(), provider.Request{Model: "gpt-5", Prompt: "p", Schema: testSchema})
	require.NoError(t, err)
	assert.NotNil(t, resp.Parsed)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestComplete_RequiresModel(t *testing.T) {
	c := New(types.ProviderConfig{}, "")
	_, err := c.Complete(context.Background(), provider.Request{})
	assert.ErrorIs(t, err, provider.ErrProvider)
}
