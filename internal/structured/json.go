// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package structured

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// Source tells which response shape produced the object.
type Source string

const (
	SourceNative   Source = "native"
	SourceText     Source = "text"
	SourceEmbedded Source = "embedded"
)

// embeddedObjects returns every balanced, non-overlapping {...} span in
// text, in order.
func embeddedObjects(text string) []string {
	var spans []string
	pos := 0
	for pos < len(text) {
		idx := strings.IndexByte(text[pos:], '{')
		if idx < 0 {
			break
		}
		start := pos + idx
		end, ok := matchBrace(text, start)
		if !ok {
			pos = start + 1
			continue
		}
		spans = append(spans, text[start:end+1])
		pos = end + 1
	}
	return spans
}

// matchBrace returns the index of the brace closing the one at start.
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// conform decodes raw as a JSON object, validates it against schema (when
// non-nil), and returns the compacted document.
func conform(raw []byte, schema *jsonschema.Resolved) (json.RawMessage, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %v", err)
	}
	if _, ok := v.(map[string]any); !ok {
		return nil, fmt.Errorf("expected a JSON object, got %s", jsonKind(v))
	}
	if schema != nil {
		if err := schema.Validate(v); err != nil {
			return nil, fmt.Errorf("schema violation: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %v", err)
	}
	return json.RawMessage(buf.Bytes()), nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	}
	return fmt.Sprintf("%T", v)
}
