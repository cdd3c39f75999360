package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/types"
)

// parsePriority accepts 0-4 or P0-P4.
func parsePriority(s string) (int, error) {
	s = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "P")
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, storage.Invalidf("invalid priority %q (expected 0-4 or P0-P4)", s)
	}
	if err := types.ValidatePriority(p); err != nil {
		return 0, storage.Invalidf("%v", err)
	}
	return p, nil
}

// parseFields turns key=value pairs into a field map. Values that parse as
// JSON (numbers, booleans, lists, null) keep their JSON type; anything else
// is a string. A null value deletes the key on update.
func parseFields(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, storage.Invalidf("invalid field %q (expected key=value)", pair)
		}
		out[key] = parseFieldValue(raw)
	}
	return out, nil
}

func parseFieldValue(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return raw
	}
	switch trimmed[0] {
	case '[', '{', '"', 't', 'f', 'n', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return raw
}

// splitList splits a comma-separated flag value, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// addWorkFilterFlags registers the ready-queue filters shared by ready,
// blocked and claim-next.
func addWorkFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("type", "t", "", "Only issues of this type")
	cmd.Flags().String("priority-min", "", "Lowest priority number to include (0-4)")
	cmd.Flags().String("priority-max", "", "Highest priority number to include (0-4)")
	cmd.Flags().IntP("limit", "n", 0, "Maximum number of results (0 = no limit)")
}

func workFilterFromFlags(cmd *cobra.Command) (types.WorkFilter, error) {
	var f types.WorkFilter
	f.Type, _ = cmd.Flags().GetString("type")
	f.Limit, _ = cmd.Flags().GetInt("limit")
	var err error
	if f.PriorityMin, err = optionalPriority(cmd, "priority-min"); err != nil {
		return f, err
	}
	if f.PriorityMax, err = optionalPriority(cmd, "priority-max"); err != nil {
		return f, err
	}
	return f, nil
}

func optionalPriority(cmd *cobra.Command, name string) (*int, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return nil, nil
	}
	p, err := parsePriority(raw)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &p, nil
}
