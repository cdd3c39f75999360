package telemetry

import (
	"context"
	"errors"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/templates"
	"github.com/trellis-tracker/trellis/internal/types"
)

const storageScopeName = "github.com/trellis-tracker/trellis/storage"

// InstrumentedStorage wraps storage.Storage with OTel tracing and metrics.
// Every method gets a span and is counted in trellis.storage.* metrics.
type InstrumentedStorage struct {
	inner      storage.Storage
	tracer     trace.Tracer
	ops        metric.Int64Counter
	dur        metric.Float64Histogram
	errs       metric.Int64Counter
	conflicts  metric.Int64Counter
	issueGauge metric.Int64Gauge
}

var _ storage.Storage = (*InstrumentedStorage)(nil)

// WrapStorage returns s decorated with OTel instrumentation, or s itself
// when telemetry is disabled.
func WrapStorage(s storage.Storage) storage.Storage {
	if !Enabled() {
		return s
	}
	return Instrument(s, Tracer(storageScopeName), Meter(storageScopeName))
}

// Instrument decorates s using the given tracer and meter.
func Instrument(s storage.Storage, tracer trace.Tracer, m metric.Meter) *InstrumentedStorage {
	ops, _ := m.Int64Counter("trellis.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("trellis.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("trellis.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	conflicts, _ := m.Int64Counter("trellis.claim.conflicts",
		metric.WithDescription("Claims lost to another holder"),
	)
	issueGauge, _ := m.Int64Gauge("trellis.issue.count",
		metric.WithDescription("Current number of live issues by category (snapshot from GetStatistics)"),
	)
	return &InstrumentedStorage{
		inner:      s,
		tracer:     tracer,
		ops:        ops,
		dur:        dur,
		errs:       errs,
		conflicts:  conflicts,
		issueGauge: issueGauge,
	}
}

// op starts a span and counts the named storage operation.
func (s *InstrumentedStorage) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStorage) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Microseconds()) / 1000
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String("error.kind", errorKind(err)))...))
	}
	span.End()
}

// errorKind buckets err by the storage taxonomy.
func errorKind(err error) string {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	case errors.Is(err, storage.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, storage.ErrValidation):
		return "validation"
	case errors.Is(err, storage.ErrCycle):
		return "cycle"
	case errors.Is(err, storage.ErrConflict):
		return "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "internal"
}

func idAttr(id string) attribute.KeyValue { return attribute.String("trellis.issue.id", id) }
func actorAttr(a string) attribute.KeyValue { return attribute.String("trellis.actor", a) }
func countAttr(n int) attribute.KeyValue { return attribute.Int("trellis.result.count", n) }
func typeAttr(t string) attribute.KeyValue { return attribute.String("trellis.issue.type", t) }
func depAttrs(from, to string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String("trellis.dep.from", from), attribute.String("trellis.dep.to", to)}
}

// ── Issues ──────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) CreateIssue(ctx context.Context, in *types.IssueCreate, actor string) (*types.Issue, error) {
	attrs := []attribute.KeyValue{actorAttr(actor), typeAttr(in.Type)}
	ctx, span, t := s.op(ctx, "CreateIssue", attrs...)
	v, err := s.inner.CreateIssue(ctx, in, actor)
	if err == nil {
		span.SetAttributes(idAttr(v.ID), attribute.Int("trellis.warning.count", len(v.Warnings)))
	}
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	ctx, span, t := s.op(ctx, "GetIssue", idAttr(id))
	v, err := s.inner.GetIssue(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) UpdateIssue(ctx context.Context, id string, upd types.IssueUpdate, actor string) (*types.Issue, error) {
	attrs := []attribute.KeyValue{idAttr(id), actorAttr(actor)}
	if upd.Status != nil {
		attrs = append(attrs, attribute.String("trellis.status.to", *upd.Status))
	}
	ctx, span, t := s.op(ctx, "UpdateIssue", attrs...)
	v, err := s.inner.UpdateIssue(ctx, id, upd, actor)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) CloseIssue(ctx context.Context, id string, opts storage.CloseOptions, actor string) (*types.Issue, error) {
	ctx, span, t := s.op(ctx, "CloseIssue", idAttr(id), actorAttr(actor))
	v, err := s.inner.CloseIssue(ctx, id, opts, actor)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) ReopenIssue(ctx context.Context, id, actor string) (*types.Issue, error) {
	ctx, span, t := s.op(ctx, "ReopenIssue", idAttr(id), actorAttr(actor))
	v, err := s.inner.ReopenIssue(ctx, id, actor)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) ListIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	ctx, span, t := s.op(ctx, "ListIssues")
	v, err := s.inner.ListIssues(ctx, filter)
	if err == nil {
		span.SetAttributes(countAttr(len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) SearchIssues(ctx context.Context, query string, filter types.IssueFilter) ([]*types.Issue, error) {
	ctx, span, t := s.op(ctx, "SearchIssues", attribute.String("trellis.query", query))
	v, err := s.inner.SearchIssues(ctx, query, filter)
	if err == nil {
		span.SetAttributes(countAttr(len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

// ── Dependencies and scheduling ─────────────────────────────────────────────

func (s *InstrumentedStorage) AddDependency(ctx context.Context, issueID, dependsOnID, actor string) (bool, error) {
	ctx, span, t := s.op(ctx, "AddDependency", depAttrs(issueID, dependsOnID)...)
	v, err := s.inner.AddDependency(ctx, issueID, dependsOnID, actor)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) RemoveDependency(ctx context.Context, issueID, dependsOnID, actor string) (bool, error) {
	ctx, span, t := s.op(ctx, "RemoveDependency", depAttrs(issueID, dependsOnID)...)
	v, err := s.inner.RemoveDependency(ctx, issueID, dependsOnID, actor)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) GetDependencyTree(ctx context.Context, id string, maxDepth int, reverse bool) ([]*types.TreeNode, error) {
	ctx, span, t := s.op(ctx, "GetDependencyTree", idAttr(id), attribute.Bool("trellis.reverse", reverse))
	v, err := s.inner.GetDependencyTree(ctx, id, maxDepth, reverse)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) GetReady(ctx context.Context, filter types.WorkFilter) ([]*types.Issue, error) {
	ctx, span, t := s.op(ctx, "GetReady")
	v, err := s.inner.GetReady(ctx, filter)
	if err == nil {
		span.SetAttributes(countAttr(len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) GetBlocked(ctx context.Context, filter types.WorkFilter) ([]*types.BlockedIssue, error) {
	ctx, span, t := s.op(ctx, "GetBlocked")
	v, err := s.inner.GetBlocked(ctx, filter)
	if err == nil {
		span.SetAttributes(countAttr(len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) GetCriticalPath(ctx context.Context) ([]*types.Issue, error) {
	ctx, span, t := s.op(ctx, "GetCriticalPath")
	v, err := s.inner.GetCriticalPath(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) IsReady(ctx context.Context, id string) (bool, error) {
	ctx, span, t := s.op(ctx, "IsReady", idAttr(id))
	v, err := s.inner.IsReady(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Claims ──────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) ClaimIssue(ctx context.Context, id, assignee, actor string) (*types.Issue, error) {
	attrs := []attribute.KeyValue{idAttr(id), attribute.String("trellis.assignee", assignee)}
	ctx, span, t := s.op(ctx, "ClaimIssue", attrs...)
	v, err := s.inner.ClaimIssue(ctx, id, assignee, actor)
	if errors.Is(err, storage.ErrConflict) {
		s.conflicts.Add(ctx, 1)
	}
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) ClaimNext(ctx context.Context, assignee string, filter types.WorkFilter, actor string) (*types.Issue, error) {
	ctx, span, t := s.op(ctx, "ClaimNext", attribute.String("trellis.assignee", assignee))
	v, err := s.inner.ClaimNext(ctx, assignee, filter, actor)
	if err == nil {
		span.SetAttributes(attribute.Bool("trellis.claimed", v != nil))
	}
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) ReleaseClaim(ctx context.Context, id, actor string) (*types.Issue, error) {
	ctx, span, t := s.op(ctx, "ReleaseClaim", idAttr(id))
	v, err := s.inner.ReleaseClaim(ctx, id, actor)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Comments and labels ─────────────────────────────────────────────────────

func (s *InstrumentedStorage) AddComment(ctx context.Context, id, author, text string) (*types.Comment, error) {
	ctx, span, t := s.op(ctx, "AddComment", idAttr(id))
	v, err := s.inner.AddComment(ctx, id, author, text)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) GetComments(ctx context.Context, id string) ([]*types.Comment, error) {
	ctx, span, t := s.op(ctx, "GetComments", idAttr(id))
	v, err := s.inner.GetComments(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) AddLabel(ctx context.Context, id, label, actor string) (bool, error) {
	ctx, span, t := s.op(ctx, "AddLabel", idAttr(id), attribute.String("trellis.label", label))
	v, err := s.inner.AddLabel(ctx, id, label, actor)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) RemoveLabel(ctx context.Context, id, label, actor string) (bool, error) {
	ctx, span, t := s.op(ctx, "RemoveLabel", idAttr(id), attribute.String("trellis.label", label))
	v, err := s.inner.RemoveLabel(ctx, id, label, actor)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Event log ───────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) GetEventsSince(ctx context.Context, since string, limit int) ([]*types.Event, error) {
	ctx, span, t := s.op(ctx, "GetEventsSince")
	v, err := s.inner.GetEventsSince(ctx, since, limit)
	if err == nil {
		span.SetAttributes(countAttr(len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) GetIssueEvents(ctx context.Context, id string, limit int) ([]*types.Event, error) {
	ctx, span, t := s.op(ctx, "GetIssueEvents", idAttr(id))
	v, err := s.inner.GetIssueEvents(ctx, id, limit)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) UndoLast(ctx context.Context, id, actor string) (*types.UndoResult, error) {
	ctx, span, t := s.op(ctx, "UndoLast", idAttr(id), actorAttr(actor))
	v, err := s.inner.UndoLast(ctx, id, actor)
	if err == nil {
		span.SetAttributes(attribute.Bool("trellis.undone", v.Undone))
	}
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) ArchiveClosed(ctx context.Context, daysOld int, actor string) ([]string, error) {
	ctx, span, t := s.op(ctx, "ArchiveClosed", attribute.Int("trellis.days_old", daysOld))
	v, err := s.inner.ArchiveClosed(ctx, daysOld, actor)
	if err == nil {
		span.SetAttributes(countAttr(len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) CompactEvents(ctx context.Context, keepRecent int) (int, error) {
	ctx, span, t := s.op(ctx, "CompactEvents", attribute.Int("trellis.keep_recent", keepRecent))
	v, err := s.inner.CompactEvents(ctx, keepRecent)
	if err == nil {
		span.SetAttributes(countAttr(v))
	}
	s.done(ctx, span, t, err)
	return v, err
}

// ── Plans and trees ─────────────────────────────────────────────────────────

func (s *InstrumentedStorage) GetTree(ctx context.Context, rootID string) (*types.PlanNode, error) {
	ctx, span, t := s.op(ctx, "GetTree", idAttr(rootID))
	v, err := s.inner.GetTree(ctx, rootID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) GetPlan(ctx context.Context, milestoneID string) (*types.PlanNode, error) {
	ctx, span, t := s.op(ctx, "GetPlan", idAttr(milestoneID))
	v, err := s.inner.GetPlan(ctx, milestoneID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) GetReleaseTree(ctx context.Context, releaseID string) (*types.PlanNode, error) {
	ctx, span, t := s.op(ctx, "GetReleaseTree", idAttr(releaseID))
	v, err := s.inner.GetReleaseTree(ctx, releaseID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) CreatePlan(ctx context.Context, in types.PlanInput, actor string) (*types.PlanNode, error) {
	ctx, span, t := s.op(ctx, "CreatePlan", actorAttr(actor), attribute.Int("trellis.phase.count", len(in.Phases)))
	v, err := s.inner.CreatePlan(ctx, in, actor)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Batch ───────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) BatchClose(ctx context.Context, ids []string, reason, actor string) (*types.BatchResult, error) {
	ctx, span, t := s.op(ctx, "BatchClose", attribute.Int("trellis.issue.count", len(ids)))
	v, err := s.inner.BatchClose(ctx, ids, reason, actor)
	if v != nil {
		span.SetAttributes(attribute.Int("trellis.failed.count", len(v.Failed)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) BatchUpdate(ctx context.Context, ids []string, upd types.IssueUpdate, actor string) (*types.BatchResult, error) {
	ctx, span, t := s.op(ctx, "BatchUpdate", attribute.Int("trellis.issue.count", len(ids)))
	v, err := s.inner.BatchUpdate(ctx, ids, upd, actor)
	if v != nil {
		span.SetAttributes(attribute.Int("trellis.failed.count", len(v.Failed)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

// ── Interchange ─────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) ExportJSONL(ctx context.Context, w io.Writer) (*storage.ExportResult, error) {
	ctx, span, t := s.op(ctx, "ExportJSONL")
	v, err := s.inner.ExportJSONL(ctx, w)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) ImportJSONL(ctx context.Context, r io.Reader, opts storage.ImportOptions) (*storage.ImportResult, error) {
	ctx, span, t := s.op(ctx, "ImportJSONL", attribute.Bool("trellis.merge", opts.Merge))
	v, err := s.inner.ImportJSONL(ctx, r, opts)
	if v != nil {
		span.SetAttributes(
			attribute.Int("trellis.succeeded.count", len(v.Succeeded)),
			attribute.Int("trellis.failed.count", len(v.Failed)),
		)
	}
	s.done(ctx, span, t, err)
	return v, err
}

// ── Statistics ──────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) GetStatistics(ctx context.Context) (*types.Statistics, error) {
	ctx, span, t := s.op(ctx, "GetStatistics")
	v, err := s.inner.GetStatistics(ctx)
	s.done(ctx, span, t, err)
	if err == nil && v != nil {
		category := func(c types.Category) metric.RecordOption {
			return metric.WithAttributes(attribute.String("category", string(c)))
		}
		s.issueGauge.Record(ctx, int64(v.OpenIssues), category(types.CategoryOpen))
		s.issueGauge.Record(ctx, int64(v.InProgressIssues), category(types.CategoryWIP))
		s.issueGauge.Record(ctx, int64(v.ClosedIssues), category(types.CategoryDone))
	}
	return v, err
}

// ── Lifecycle ───────────────────────────────────────────────────────────────

// Registry is not traced.
func (s *InstrumentedStorage) Registry() *templates.Registry {
	return s.inner.Registry()
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
