// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package openai implements provider.Provider against an OpenAI-compatible
// API. Modern-dialect models go through the Responses endpoint with a
// json_schema text format; legacy-dialect models go through chat
// completions with response_format.json_schema.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gopenai "github.com/sashabaranov/go-openai"

	"github.com/pdiddy/dossier/internal/capability"
	"github.com/pdiddy/dossier/internal/httputil"
	"github.com/pdiddy/dossier/internal/provider"
	"github.com/pdiddy/dossier/pkg/types"
)

// DefaultBaseURL is used when the config leaves base_url empty.
const DefaultBaseURL = "https://api.openai.com/v1"

// Client talks to one provider endpoint. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	maxRetries int
	http       *http.Client
	chat       *gopenai.Client
}

// New returns a client for cfg. apiKey overrides cfg.APIKey when set.
func New(cfg types.ProviderConfig, apiKey string) *Client {
	if apiKey == "" {
		apiKey = cfg.APIKey
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	hc := &http.Client{Timeout: cfg.Timeout}

	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.MaxRetries,
		http:       hc,
	}

	chatCfg := gopenai.DefaultConfig(apiKey)
	chatCfg.BaseURL = baseURL
	chatCfg.HTTPClient = retryDoer{c: c}
	c.chat = gopenai.NewClientWithConfig(chatCfg)
	return c
}

// Complete implements provider.Provider.
func (c *Client) Complete(ctx context.Context, req provider.Request) (provider.Response, error) {
	if req.Model == "" {
		return provider.Response{}, fmt.Errorf("%w: request has no model", provider.ErrProvider)
	}
	start := time.Now()
	var (
		resp provider.Response
		err  error
	)
	if req.Dialect == capability.DialectLegacy {
		resp, err = c.completeChat(ctx, req)
	} else {
		resp, err = c.completeResponses(ctx, req)
	}
	if err != nil {
		return provider.Response{}, mapError(ctx, err)
	}
	// Debug only; prompts and outputs are never logged.
	slog.Debug("provider call finished",
		"model", req.Model, "dialect", string(req.Dialect), "schema", req.SchemaName,
		"duration_ms", time.Since(start).Milliseconds(), "parsed", resp.Parsed != nil)
	return resp, nil
}

// retryDoer routes go-openai traffic through the shared retry helper.
type retryDoer struct {
	c *Client
}

func (d retryDoer) Do(req *http.Request) (*http.Response, error) {
	if d.c.userAgent != "" {
		req.Header.Set("User-Agent", d.c.userAgent)
	}
	return httputil.DoWithRetry(req.Context(), d.c.http, req, d.c.maxRetries)
}

// apiError is the error envelope both endpoints return.
type apiError struct {
	Status  int
	Type    string
	Code    string
	Param   string
	Message string
}

func (e *apiError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "provider returned %d", e.Status)
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// capabilityCodes are error codes meaning the model rejected a request
// parameter rather than the request failing.
var capabilityCodes = map[string]bool{
	"unsupported_parameter": true,
	"unsupported_value":     true,
	"unsupported_model":     true,
}

func mapError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", provider.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, provider.ErrCapability), errors.Is(err, provider.ErrProvider):
		return err
	}

	var ae *apiError
	if !errors.As(err, &ae) {
		var oe *gopenai.APIError
		if errors.As(err, &oe) {
			ae = &apiError{Status: oe.HTTPStatusCode, Type: oe.Type, Message: oe.Message}
			if oe.Code != nil {
				ae.Code = fmt.Sprint(oe.Code)
			}
			if oe.Param != nil {
				ae.Param = *oe.Param
			}
		}
	}
	if ae != nil && ae.Status == http.StatusBadRequest && capabilityCodes[ae.Code] {
		return fmt.Errorf("%w: %w", provider.ErrCapability, err)
	}
	return fmt.Errorf("%w: %w", provider.ErrProvider, err)
}
