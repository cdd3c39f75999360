package storage

import "github.com/trellis-tracker/trellis/internal/types"

// OrphanHandling specifies how import treats issues whose parent is missing.
type OrphanHandling string

const (
	// OrphanStrict fails the record when its parent does not exist.
	OrphanStrict OrphanHandling = "strict"
	// OrphanSkip drops the record and lists it as skipped.
	OrphanSkip OrphanHandling = "skip"
	// OrphanAllow imports the record with its parent link cleared (default).
	OrphanAllow OrphanHandling = "allow"
)

// ImportOptions controls ImportJSONL.
type ImportOptions struct {
	// Merge skips records whose id already exists instead of failing them.
	Merge bool
	// OrphanHandling defaults to OrphanAllow.
	OrphanHandling OrphanHandling
}

// Record kinds used on JSONL lines.
const (
	KindIssue      = "issue"
	KindDependency = "dependency"
	KindLabel      = "label"
	KindComment    = "comment"
	KindEvent      = "event"
)

// ExportResult counts exported records by kind.
type ExportResult struct {
	Counts map[string]int `json:"counts"`
}

// ImportResult counts imported records by kind, plus per-line outcomes.
type ImportResult struct {
	Counts map[string]int `json:"counts"`
	types.BatchResult
}
