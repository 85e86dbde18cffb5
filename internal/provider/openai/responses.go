// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pdiddy/dossier/internal/httputil"
	"github.com/pdiddy/dossier/internal/provider"
)

// responsesRequest is the subset of the Responses API body we send.
type responsesRequest struct {
	Model           string           `json:"model"`
	Input           string           `json:"input"`
	Text            responsesText    `json:"text"`
	Tools           []responsesTool  `json:"tools,omitempty"`
	Reasoning       *responsesEffort `json:"reasoning,omitempty"`
	Temperature     *float64         `json:"temperature,omitempty"`
	MaxOutputTokens *int             `json:"max_output_tokens,omitempty"`
}

type responsesText struct {
	Format responsesFormat `json:"format"`
}

type responsesFormat struct {
	Type   string          `json:"type"`
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict"`
}

type responsesTool struct {
	Type string `json:"type"`
}

type responsesEffort struct {
	Effort string `json:"effort"`
}

type responsesResponse struct {
	Status string            `json:"status"`
	Output []responsesOutput `json:"output"`
	Error  *responsesError   `json:"error"`
}

type responsesOutput struct {
	Type    string             `json:"type"`
	Content []responsesContent `json:"content"`
}

type responsesContent struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Refusal string `json:"refusal"`
}

type responsesError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param"`
	Code    string `json:"code"`
}

type errorEnvelope struct {
	Error *responsesError `json:"error"`
}

// toolTypes maps provider tools to Responses API tool types.
var toolTypes = map[provider.Tool]string{
	provider.ToolWebSearch: "web_search_preview",
}

func buildResponsesRequest(req provider.Request) (responsesRequest, error) {
	body := responsesRequest{
		Model: req.Model,
		Input: req.Prompt,
		Text: responsesText{Format: responsesFormat{
			Type:   "json_schema",
			Name:   req.SchemaName,
			Schema: req.Schema,
		}},
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxOutputTokens,
	}
	for _, t := range req.Tools {
		typ, ok := toolTypes[t]
		if !ok {
			return responsesRequest{}, fmt.Errorf("%w: tool %q is not available", provider.ErrCapability, t)
		}
		body.Tools = append(body.Tools, responsesTool{Type: typ})
	}
	if req.ReasoningEffort != "" {
		body.Reasoning = &responsesEffort{Effort: req.ReasoningEffort}
	}
	return body, nil
}

func (c *Client) completeResponses(ctx context.Context, req provider.Request) (provider.Response, error) {
	body, err := buildResponsesRequest(req)
	if err != nil {
		return provider.Response{}, err
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return provider.Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(bodyBytes))
	if err != nil {
		return provider.Response{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, c.http, httpReq, c.maxRetries)
	if err != nil {
		return provider.Response{}, fmt.Errorf("calling responses API: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Response{}, fmt.Errorf("reading responses API body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return provider.Response{}, decodeAPIError(resp.StatusCode, data)
	}

	var rr responsesResponse
	if err := json.Unmarshal(data, &rr); err != nil {
		return provider.Response{}, fmt.Errorf("decoding responses API body: %w", err)
	}
	if rr.Error != nil {
		return provider.Response{}, &apiError{Status: resp.StatusCode, Type: rr.Error.Type, Code: rr.Error.Code, Param: rr.Error.Param, Message: rr.Error.Message}
	}
	return responseFromOutput(rr), nil
}

// responseFromOutput joins the output_text parts of every message item.
// When the joined text is a JSON object the provider is taken to have
// produced the structured output natively.
func responseFromOutput(rr responsesResponse) provider.Response {
	var parts []string
	for _, item := range rr.Output {
		if item.Type != "message" {
			continue
		}
		for _, content := range item.Content {
			switch content.Type {
			case "output_text":
				parts = append(parts, content.Text)
			case "refusal":
				parts = append(parts, content.Refusal)
			}
		}
	}
	text := strings.Join(parts, "")
	out := provider.Response{Text: text}
	trimmed := strings.TrimSpace(text)
	if rr.Status != "incomplete" && strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		out.Parsed = json.RawMessage(trimmed)
	}
	return out
}

func decodeAPIError(status int, body []byte) error {
	ae := &apiError{Status: status}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		ae.Type = env.Error.Type
		ae.Code = env.Error.Code
		ae.Param = env.Error.Param
		ae.Message = env.Error.Message
	} else {
		ae.Message = strings.TrimSpace(string(body))
		if len(ae.Message) > 300 {
			ae.Message = ae.Message[:300]
		}
	}
	return ae
}
