// Package identity canonicalizes user identifiers so presence lookups
// are stable regardless of how an identifier arrives from upstream:
// raw string, quoted, or wrapped in object notation like {"_id":"..."}.
package identity

import (
	"encoding/json"
	"strings"
)

// Normalize returns the canonical form of a user identifier. It returns
// "" for nil or empty input; callers must treat "" as "no identity" and
// abort the operation.
func Normalize(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return normalizeString(v)
	case json.RawMessage:
		return Normalize([]byte(v))
	case []byte:
		return normalizeString(string(v))
	case map[string]any:
		for _, key := range []string{"_id", "id", "user_id", "userId"} {
			if id, ok := v[key]; ok {
				return Normalize(id)
			}
		}
		return ""
	case interface{ String() string }:
		return normalizeString(v.String())
	default:
		return ""
	}
}

func normalizeString(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)

	// Wrapper notation from loosely-serialized upstream payloads,
	// e.g. `{ _id: 64af... }` or `ObjectID("64af...")`.
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		s = strings.Trim(s, "{}")
		if idx := strings.LastIndex(s, ":"); idx >= 0 {
			s = s[idx+1:]
		}
		return normalizeString(s)
	}
	if open := strings.Index(s, "("); open >= 0 && strings.HasSuffix(s, ")") {
		return normalizeString(s[open+1 : len(s)-1])
	}

	return strings.TrimSpace(s)
}

// Fold lowercases an already-normalized identifier for the registry's
// case-insensitive fallback comparisons.
func Fold(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
