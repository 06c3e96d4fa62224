package ai

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Model responses are free text that usually, but not always, carries a
// JSON payload. Extraction is two-stage: a fenced ```json block first,
// then the largest brace-delimited substring. Callers substitute their
// own defaults when both stages fail, so parsing never aborts the
// pipeline.

var fencedJSONRegex = regexp.MustCompile("(?s)```(?:json)?\\s*\n?(.*?)\n?```")

// ParseResult is the outcome of extracting JSON from a model response.
// Failed results carry the reason; they never panic or error out.
type ParseResult[T any] struct {
	OK     bool
	Data   T
	Reason string
}

// ExtractJSON pulls a JSON object of type T out of free-form model text.
func ExtractJSON[T any](text string) ParseResult[T] {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ParseResult[T]{Reason: "empty response"}
	}

	// Stage 0: the whole response may already be valid JSON.
	if data, err := tryParse[T](trimmed); err == nil {
		return ParseResult[T]{OK: true, Data: data}
	}

	// Stage 1: fenced ```json block.
	if m := fencedJSONRegex.FindStringSubmatch(trimmed); m != nil {
		if data, err := tryParse[T](strings.TrimSpace(m[1])); err == nil {
			return ParseResult[T]{OK: true, Data: data}
		}
	}

	// Stage 2: largest brace-delimited substring.
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if data, err := tryParse[T](trimmed[start : end+1]); err == nil {
			return ParseResult[T]{OK: true, Data: data}
		}
	}

	return ParseResult[T]{Reason: "no parsable JSON found in response"}
}

func tryParse[T any](text string) (T, error) {
	var out T
	err := json.Unmarshal([]byte(text), &out)
	return out, err
}
