// truncate.go serializes tool results for the model and bounds their size.
// Shared by the worker runtime and the orchestrator loop.
package worker

import (
	"encoding/json"
	"fmt"
)

const (
	// MaxResultLength is the hard cap on a serialized tool result.
	MaxResultLength = 3000

	// fieldKeepChars is how much of a recognized large field survives.
	fieldKeepChars = 500
)

// largeFields are the envelope keys eligible for per-field truncation.
var largeFields = []string{
	"stdout", "stderr", "content", "diff", "output",
	"body", "html", "text", "log", "logs",
}

// SerializeResult converts a tool's return value into the string fed back
// to the model, truncating oversized envelopes: each recognized large
// string field is cut to its first 500 chars with a trailing
// "[truncated N chars]" note, then the whole envelope is hard-truncated
// to MaxResultLength if still oversized.
func SerializeResult(v any) string {
	s := stringify(v)
	if len(s) <= MaxResultLength {
		return s
	}

	// Per-field truncation only applies to JSON object envelopes.
	var envelope map[string]any
	if err := json.Unmarshal([]byte(s), &envelope); err == nil {
		for _, field := range largeFields {
			raw, ok := envelope[field].(string)
			if !ok || len(raw) <= fieldKeepChars {
				continue
			}
			removed := len(raw) - fieldKeepChars
			envelope[field] = raw[:fieldKeepChars] + fmt.Sprintf(" [truncated %d chars]", removed)
		}
		if data, err := json.Marshal(envelope); err == nil {
			s = string(data)
		}
	}

	if len(s) > MaxResultLength {
		s = s[:MaxResultLength]
	}
	return s
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "OK"
	case string:
		return t
	case []byte:
		return string(t)
	case error:
		return fmt.Sprintf("Error: %v", t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(data)
	}
}
