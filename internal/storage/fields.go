package storage

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
)

// validFieldKeyRe matches keys accepted in an issue's Fields map.
var validFieldKeyRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// ValidateFieldKey checks that a field key is usable as a JSON object key in
// queries. Keys must start with a letter or underscore and contain only
// alphanumerics, underscores and dots.
func ValidateFieldKey(key string) error {
	if !validFieldKeyRe.MatchString(key) {
		return Invalidf("invalid field key %q: must match [a-zA-Z_][a-zA-Z0-9_.]*", key)
	}
	return nil
}

// MergeFields applies updates onto base and returns the result along with
// the keys whose value actually changed, sorted. A nil update value deletes
// the key. base is not modified.
func MergeFields(base, updates map[string]any) (map[string]any, []string, error) {
	out := make(map[string]any, len(base)+len(updates))
	for k, v := range base {
		out[k] = v
	}
	var changed []string
	for k, v := range updates {
		if err := ValidateFieldKey(k); err != nil {
			return nil, nil, err
		}
		old, had := out[k]
		if v == nil {
			if had {
				delete(out, k)
				changed = append(changed, k)
			}
			continue
		}
		if had && EncodeValue(old) == EncodeValue(v) {
			continue
		}
		out[k] = v
		changed = append(changed, k)
	}
	sort.Strings(changed)
	return out, changed, nil
}

// EncodeFields serializes a Fields map for the issues.fields column.
func EncodeFields(fields map[string]any) (string, error) {
	if len(fields) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", Invalidf("fields are not JSON-serializable: %v", err)
	}
	return string(data), nil
}

// DecodeFields parses the issues.fields column.
func DecodeFields(raw string) (map[string]any, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return fields, nil
}

// EncodeValue renders a single field value for event old/new columns.
// Strings are stored bare; everything else as JSON.
func EncodeValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
