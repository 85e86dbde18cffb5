// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package structured obtains schema-conformant JSON objects from a
// non-deterministic text-completion provider. It accepts natively parsed
// output, plain JSON text, or JSON embedded in prose, and reissues the
// request with a corrective instruction when none of those work.
package structured

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/pdiddy/dossier/internal/provider"
)

// MaxAttempts is the hard cap on calls per model for one phase.
const MaxAttempts = 3

// maxProblemLen bounds the problem description echoed back to the model.
const maxProblemLen = 300

// Outcome is a successfully extracted object.
type Outcome struct {
	Object   json.RawMessage
	Source   Source
	Attempts int
}

// Extractor runs the bounded extract-and-correct loop against a provider.
type Extractor struct {
	provider provider.Provider
	logger   *slog.Logger
}

// New returns an Extractor. A nil logger uses slog.Default().
func New(p provider.Provider, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{provider: p, logger: logger}
}

// Extract issues req and returns the first response that yields an object
// conforming to schema. maxAttempts <= 0 means MaxAttempts; larger values
// are clamped to it. Only parse failures are retried; provider, timeout and
// capability errors return immediately. Exhausting the attempts returns an
// error wrapping provider.ErrParse.
func (e *Extractor) Extract(ctx context.Context, req provider.Request, schema *jsonschema.Resolved, maxAttempts int) (Outcome, error) {
	if maxAttempts <= 0 || maxAttempts > MaxAttempts {
		maxAttempts = MaxAttempts
	}

	basePrompt := req.Prompt
	problem := ""
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		call := req
		if attempt > 1 {
			call.Prompt = basePrompt + correction(attempt, maxAttempts, req.SchemaName, problem)
		}

		resp, err := e.provider.Complete(ctx, call)
		if err != nil {
			return Outcome{Attempts: attempt}, classifyCallError(ctx, err)
		}

		obj, src, perr := Decode(resp, schema)
		if perr == nil {
			if attempt > 1 {
				e.logger.Info("structured output recovered",
					"model", req.Model, "schema", req.SchemaName, "attempt", attempt, "source", src)
			}
			return Outcome{Object: obj, Source: src, Attempts: attempt}, nil
		}

		problem = perr.Error()
		e.logger.Warn("structured output unusable",
			"model", req.Model, "schema", req.SchemaName,
			"attempt", attempt, "max_attempts", maxAttempts, "problem", problem)
	}

	return Outcome{Attempts: maxAttempts}, fmt.Errorf("%w: %s after %d attempts: %s",
		provider.ErrParse, req.SchemaName, maxAttempts, problem)
}

// Decode tries, in order, the native structured field, the whole text as a
// JSON document, and every balanced {...} span embedded in the text. It
// returns the first candidate that conforms to schema.
func Decode(resp provider.Response, schema *jsonschema.Resolved) (json.RawMessage, Source, error) {
	var problems []string

	if len(resp.Parsed) > 0 {
		obj, err := conform(resp.Parsed, schema)
		if err == nil {
			return obj, SourceNative, nil
		}
		problems = append(problems, "structured field: "+err.Error())
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		if len(problems) == 0 {
			return nil, "", errors.New("empty response")
		}
		return nil, "", errors.New(strings.Join(problems, "; "))
	}

	// Text that only repeats the structured field has already been judged.
	parsed := string(bytes.TrimSpace(resp.Parsed))
	if text != parsed && json.Valid([]byte(text)) {
		obj, err := conform([]byte(text), schema)
		if err == nil {
			return obj, SourceText, nil
		}
		problems = append(problems, err.Error())
	}

	spans := embeddedObjects(text)
	for _, span := range spans {
		if span == text || span == parsed {
			continue
		}
		obj, err := conform([]byte(span), schema)
		if err == nil {
			return obj, SourceEmbedded, nil
		}
		problems = append(problems, "embedded object: "+err.Error())
	}
	if len(problems) == 0 {
		problems = append(problems, "no JSON object found in response text")
	}
	return nil, "", errors.New(strings.Join(problems, "; "))
}

// correction is appended to the original prompt on a retry. It names the
// retry number and attempt so the model cannot mistake it for a fresh task.
func correction(attempt, maxAttempts int, schemaName, problem string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n\n---\nretry %d (attempt %d of %d): your previous response could not be used as a JSON object matching the %q schema.",
		attempt-1, attempt, maxAttempts, schemaName)
	if problem != "" {
		if len(problem) > maxProblemLen {
			cut := maxProblemLen
			for cut > 0 && !utf8.RuneStart(problem[cut]) {
				cut--
			}
			problem = problem[:cut] + "..."
		}
		fmt.Fprintf(&b, " Problem: %s.", problem)
	}
	b.WriteString(" Respond with exactly one JSON object that satisfies the schema and no other text.")
	return b.String()
}

// classifyCallError makes sure a deadline on ctx surfaces as ErrTimeout
// even when the provider wrapped it as a transport failure.
func classifyCallError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, provider.ErrTimeout) {
		return fmt.Errorf("%w: %w", provider.ErrTimeout, err)
	}
	return err
}
