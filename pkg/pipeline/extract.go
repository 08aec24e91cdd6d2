// Package pipeline turns unstructured generation output into typed planning
// entities. Each stage builds a prompt, invokes the generation client, parses
// the returned text, and substitutes deterministic fallback entities on any
// failure; stages never propagate errors to their caller.
package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"planner/pkg/llmerrors"
)

// ExtractJSONObject returns the first balanced top-level {...} span in text.
// Models routinely wrap JSON in prose or markdown fences; the scanner tracks
// string literals and escapes so braces inside values do not unbalance it.
func ExtractJSONObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", llmerrors.NewError(llmerrors.ErrorTypeParsing, "no JSON object found in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// Braces inside strings are content, not structure.
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}

	return "", llmerrors.NewError(llmerrors.ErrorTypeParsing, "unbalanced JSON object in response")
}

// DecodeObject extracts the first JSON object from text and unmarshals it
// into dest. Malformed JSON gets one repair pass (trailing commas, single
// quotes, unquoted keys are common model mistakes) before the parse is
// declared failed.
func DecodeObject(text string, dest any) error {
	span, err := ExtractJSONObject(text)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(span), dest); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(span)
	if err != nil {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeParsing, err, "failed to repair JSON from response")
	}
	if err := json.Unmarshal([]byte(repaired), dest); err != nil {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeParsing, err, "failed to parse JSON from response")
	}
	return nil
}
