package types

import "testing"

func TestParseIssueSortOrder(t *testing.T) {
	opts := ParseIssueSortOrder("updated-desc,title:asc,priority")
	if len(opts) != 3 {
		t.Fatalf("expected 3 options, got %d", len(opts))
	}
	if opts[0].Field != SortFieldUpdated || opts[0].Direction != SortDesc {
		t.Fatalf("unexpected first option %+v", opts[0])
	}
	if opts[1].Field != SortFieldTitle || opts[1].Direction != SortAsc {
		t.Fatalf("unexpected second option %+v", opts[1])
	}
	if opts[2].Field != SortFieldPriority || opts[2].Direction != SortAsc {
		t.Fatalf("unexpected third option %+v", opts[2])
	}
}

func TestParseIssueSortOrderSkipsInvalid(t *testing.T) {
	opts := ParseIssueSortOrder("unknown-desc,created_at-sideways,,title-desc,title-asc")
	if len(opts) != 1 {
		t.Fatalf("expected 1 valid option, got %d: %+v", len(opts), opts)
	}
	if opts[0].Field != SortFieldTitle || opts[0].Direction != SortDesc {
		t.Fatalf("unexpected option %+v", opts[0])
	}
}

func TestSortFieldColumns(t *testing.T) {
	for field, want := range map[IssueSortField]string{
		SortFieldCreated: "created_at",
		SortFieldUpdated: "updated_at",
		SortFieldStatus:  "status",
		"assignee":       "",
	} {
		if got := field.Column(); got != want {
			t.Errorf("%s.Column() = %q, want %q", field, got, want)
		}
	}
}

func TestDefaultIssueSortOptions(t *testing.T) {
	defaults := DefaultIssueSortOptions()
	if len(defaults) != 2 {
		t.Fatalf("expected 2 defaults, got %d", len(defaults))
	}
	if defaults[0].Field != SortFieldPriority || defaults[1].Field != SortFieldCreated {
		t.Fatalf("unexpected defaults %+v", defaults)
	}
}
