package types

import "strings"

// IssueSortField names a sortable issue column.
type IssueSortField string

// SortDirection is asc or desc.
type SortDirection string

// Sortable fields and directions.
const (
	SortFieldPriority IssueSortField = "priority"
	SortFieldCreated  IssueSortField = "created"
	SortFieldUpdated  IssueSortField = "updated"
	SortFieldTitle    IssueSortField = "title"
	SortFieldStatus   IssueSortField = "status"
	SortFieldID       IssueSortField = "id"

	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// IssueSortOption is one ORDER BY term.
type IssueSortOption struct {
	Field     IssueSortField
	Direction SortDirection
}

// Column returns the issues-table column backing the field.
func (f IssueSortField) Column() string {
	switch f {
	case SortFieldPriority:
		return "priority"
	case SortFieldCreated:
		return "created_at"
	case SortFieldUpdated:
		return "updated_at"
	case SortFieldTitle:
		return "title"
	case SortFieldStatus:
		return "status"
	case SortFieldID:
		return "id"
	}
	return ""
}

// DefaultIssueSortOptions orders by priority, then creation order, matching the ready queue.
func DefaultIssueSortOptions() []IssueSortOption {
	return []IssueSortOption{
		{Field: SortFieldPriority, Direction: SortAsc},
		{Field: SortFieldCreated, Direction: SortAsc},
	}
}

// ParseIssueSortOrder converts a comma-delimited string (e.g. "priority-asc,updated:desc")
// into sort options. Unrecognised tokens and repeated fields are skipped.
func ParseIssueSortOrder(raw string) []IssueSortOption {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var options []IssueSortOption
	seen := make(map[IssueSortField]bool)
	for _, part := range strings.Split(raw, ",") {
		token := strings.ToLower(strings.TrimSpace(part))
		if token == "" {
			continue
		}
		name, dir := token, "asc"
		if idx := strings.IndexAny(token, ":-"); idx >= 0 {
			name, dir = strings.TrimSpace(token[:idx]), strings.TrimSpace(token[idx+1:])
		}

		field := IssueSortField(strings.TrimSuffix(name, "_at"))
		if field.Column() == "" || seen[field] {
			continue
		}
		var direction SortDirection
		switch dir {
		case "asc", "ascending":
			direction = SortAsc
		case "desc", "descending":
			direction = SortDesc
		default:
			continue
		}
		seen[field] = true
		options = append(options, IssueSortOption{Field: field, Direction: direction})
	}
	return options
}
