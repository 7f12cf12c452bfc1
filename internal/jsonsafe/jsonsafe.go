// Package jsonsafe coerces free-form LLM output into JSON objects.
package jsonsafe

import (
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"strings"
)

var objectPattern = regexp.MustCompile(`(?s)\{.*\}`)

var errNoObject = errors.New("no JSON object found in text")

// ExtractObject returns the greedy brace-delimited substring of text.
func ExtractObject(text string) (string, error) {
	m := objectPattern.FindString(stripCodeFences(text))
	if m == "" {
		return "", errNoObject
	}
	return m, nil
}

// ParseOrDefault parses the JSON object embedded in text. On any failure it
// returns a deep copy of def; the result is never nil.
func ParseOrDefault(text string, def map[string]any) map[string]any {
	doc, err := ExtractObject(text)
	if err == nil {
		var parsed any
		if err = json.Unmarshal([]byte(doc), &parsed); err == nil {
			if obj, ok := parsed.(map[string]any); ok {
				return obj
			}
			err = errors.New("parsed payload is not a JSON object")
		}
	}
	slog.Info("json coercion fallback triggered", "err", err)
	return DeepCopy(def)
}

// DeepCopy clones nested maps and slices produced by encoding/json.
func DeepCopy(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return DeepCopy(t)
	case []any:
		cp := make([]any, len(t))
		for i := range t {
			cp[i] = copyValue(t[i])
		}
		return cp
	case map[string]float64:
		cp := make(map[string]float64, len(t))
		for k, f := range t {
			cp[k] = f
		}
		return cp
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}
