package claims

import (
	"encoding/json"
	"math"
)

// String returns m[key] as a string, or "" when absent or not a string
func String(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// Int64 returns m[key] as an integer. JSON decoders produce float64 or
// json.Number for numeric claims; both are accepted.
func Int64(m map[string]any, key string) (int64, bool) {
	switch v := m[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(math.Floor(v)), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(math.Floor(f)), true
		}
	}
	return 0, false
}

// Strings returns m[key] as a string slice. A single string becomes a
// one-element slice, matching how aud may be encoded.
func Strings(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// audienceValue encodes one audience as a string and several as an array
func audienceValue(aud []string) any {
	if len(aud) == 1 {
		return aud[0]
	}
	return aud
}
