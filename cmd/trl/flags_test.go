package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trellis-tracker/trellis/internal/project"
	"github.com/trellis-tracker/trellis/internal/storage"
)

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"0", 0, false},
		{"4", 4, false},
		{"P1", 1, false},
		{"p3", 3, false},
		{" 2 ", 2, false},
		{"5", 0, true},
		{"-1", 0, true},
		{"high", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parsePriority(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, storage.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFields(t *testing.T) {
	got, err := parseFields([]string{
		"estimate=3.5",
		"done=true",
		"tags=[\"a\",\"b\"]",
		"owner=Alice Smith",
		"empty=",
		"gone=null",
		"url=https://example.com/x?a=b",
	})
	require.NoError(t, err)
	assert.Equal(t, 3.5, got["estimate"])
	assert.Equal(t, true, got["done"])
	assert.Equal(t, []any{"a", "b"}, got["tags"])
	assert.Equal(t, "Alice Smith", got["owner"])
	assert.Equal(t, "", got["empty"])
	v, ok := got["gone"]
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, "https://example.com/x?a=b", got["url"])

	none, err := parseFields(nil)
	require.NoError(t, err)
	assert.Nil(t, none)

	for _, bad := range []string{"novalue", "=x"} {
		_, err := parseFields([]string{bad})
		assert.ErrorIs(t, err, storage.ErrValidation, bad)
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitList(" a, b,,c ,"))
	assert.Nil(t, splitList(""))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"nil", nil, 0, ""},
		{"generic", errors.New("disk on fire"), exitGeneric, "error"},
		{"validation", storage.Invalidf("bad title"), exitValidation, "validation"},
		{"transition", &storage.TransitionError{IssueID: "x-1", From: "a", To: "b"}, exitValidation, "invalid_transition"},
		{"not found", storage.NotFoundf("issue %s", "x-1"), exitNotFound, "not_found"},
		{"no project", fmt.Errorf("open: %w", project.ErrNoProject), exitNotFound, "not_found"},
		{"conflict", fmt.Errorf("save: %w", storage.ErrConflict), exitConflict, "conflict"},
		{"claimed", fmt.Errorf("claim: %w", storage.ErrAlreadyClaimed), exitConflict, "already_claimed"},
		{"cycle", &storage.CycleError{From: "a", To: "b", Path: []string{"b", "a"}}, exitConflict, "cycle"},
		{"partial batch", errPartialBatch, exitGeneric, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, exitCode(tt.err))
			if tt.err != nil {
				assert.Equal(t, tt.kind, errorCode(tt.err))
			}
		})
	}
}

func TestReportErrorJSON(t *testing.T) {
	jsonOutput = true
	defer func() { jsonOutput = false }()

	var buf bytes.Buffer
	reportError(&buf, &storage.TransitionError{
		IssueID:       "x-1",
		Type:          "bug",
		From:          "verifying",
		To:            "closed",
		MissingFields: []string{"fix_verification"},
		ValidNext:     []string{"fixing"},
	})
	var obj map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &obj), buf.String())
	assert.Equal(t, "invalid_transition", obj["code"])
	assert.Equal(t, []any{"fix_verification"}, obj["missing_fields"])
	assert.Equal(t, []any{"fixing"}, obj["valid_next"])
}

func TestReportErrorText(t *testing.T) {
	jsonOutput = false
	var buf bytes.Buffer
	reportError(&buf, project.ErrNoProject)
	out := buf.String()
	assert.Contains(t, out, "Error:")
	assert.Contains(t, out, "trl init")
}
