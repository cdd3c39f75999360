package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trellis-tracker/trellis/internal/types"
	"github.com/trellis-tracker/trellis/internal/ui"
)

// maxNotesChars caps notes in show output unless --full is given.
const maxNotesChars = 2000

// outputJSON writes v as indented JSON to the command's stdout.
func outputJSON(cmd *cobra.Command, v any) {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error encoding JSON: %v\n", err)
	}
}

// printf writes human output unless --quiet is set.
func printf(cmd *cobra.Command, format string, args ...any) {
	if quietFlag {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

// printWarnings reports soft-gate advisories on stderr.
func printWarnings(cmd *cobra.Command, issue *types.Issue) {
	if issue == nil || jsonOutput {
		return
	}
	for _, w := range issue.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", ui.RenderWarn(ui.IconWarn), w)
	}
}

// issueRow is the one-line summary used by list views.
func issueRow(t *ui.Table, issue *types.Issue) {
	assignee := ""
	if issue.Assignee != "" {
		assignee = "@" + issue.Assignee
	}
	t.Row(
		ui.StatusIcon(issue.StatusCategory),
		ui.RenderID(issue.ID),
		ui.RenderPriority(issue.Priority),
		issue.Type,
		ui.RenderStatus(issue.Status, issue.StatusCategory),
		ui.TruncateSimple(issue.Title, 72),
		ui.RenderMuted(assignee),
	)
}

func writeIssueList(w io.Writer, issues []*types.Issue) {
	var t ui.Table
	for _, issue := range issues {
		issueRow(&t, issue)
	}
	fmt.Fprint(w, t.String())
}

// writeIssueDetail renders the show view of one issue.
func writeIssueDetail(w io.Writer, issue *types.Issue, full bool) {
	fmt.Fprintf(w, "%s %s  %s\n", ui.RenderID(issue.ID), ui.RenderPriority(issue.Priority), issue.Title)
	fmt.Fprintf(w, "%s %s  %s %s", ui.RenderMuted("Type:"), issue.Type,
		ui.RenderMuted("Status:"), ui.RenderStatus(issue.Status, issue.StatusCategory))
	if issue.Assignee != "" {
		fmt.Fprintf(w, "  %s %s", ui.RenderMuted("Assignee:"), issue.Assignee)
	}
	fmt.Fprintln(w)
	if issue.ParentID != "" {
		fmt.Fprintf(w, "%s %s\n", ui.RenderMuted("Parent:"), issue.ParentID)
	}
	fmt.Fprintf(w, "%s %s", ui.RenderMuted("Created:"), issue.CreatedAt.Format("2006-01-02 15:04"))
	if issue.ClosedAt != nil {
		fmt.Fprintf(w, "  %s %s", ui.RenderMuted("Closed:"), issue.ClosedAt.Format("2006-01-02 15:04"))
	}
	if issue.ArchivedAt != nil {
		fmt.Fprintf(w, "  %s", ui.RenderMuted("(archived)"))
	}
	fmt.Fprintln(w)
	if len(issue.Labels) > 0 {
		fmt.Fprintf(w, "%s %s\n", ui.RenderMuted("Labels:"), strings.Join(issue.Labels, ", "))
	}

	if issue.Description != "" {
		desc := issue.Description
		if !full {
			desc = ui.TruncateLines(desc, ui.DefaultMaxLines, ui.DefaultContextLines)
		}
		fmt.Fprintf(w, "\n%s\n%s\n", ui.RenderSection("Description"), ui.RenderMarkdown(desc))
	}
	if issue.Notes != "" {
		notes := issue.Notes
		if !full && ui.ShouldTruncate(notes, ui.DefaultMaxLines, maxNotesChars) {
			notes = ui.TruncateSimple(ui.TruncateLines(notes, ui.DefaultMaxLines, ui.DefaultContextLines), maxNotesChars)
		}
		fmt.Fprintf(w, "\n%s\n%s\n", ui.RenderSection("Notes"), ui.RenderMarkdown(notes))
	}
	if len(issue.Fields) > 0 {
		fmt.Fprintf(w, "\n%s\n", ui.RenderSection("Fields"))
		var t ui.Table
		for _, k := range sortedKeys(issue.Fields) {
			t.Row("  "+k, formatFieldValue(issue.Fields[k]))
		}
		fmt.Fprint(w, t.String())
	}

	readiness := ui.RenderPass(ui.IconReady + " ready")
	if !issue.IsReady {
		readiness = ui.RenderMuted("not ready")
	}
	fmt.Fprintf(w, "\n%s %s\n", ui.RenderSection("Dependencies"), readiness)
	writeIDList(w, "Blocked by", issue.BlockedBy)
	writeIDList(w, "Blocks", issue.Blocks)
	writeIDList(w, "Children", issue.Children)
}

func writeIDList(w io.Writer, label string, ids []string) {
	if len(ids) == 0 {
		return
	}
	fmt.Fprintf(w, "  %s %s\n", ui.RenderMuted(label+":"), strings.Join(ids, ", "))
}

func formatFieldValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}

// writeDependencyTree renders the flat depth-first walk returned by
// GetDependencyTree as an indented tree.
func writeDependencyTree(w io.Writer, nodes []*types.TreeNode) {
	for _, n := range nodes {
		indent := strings.Repeat(ui.TreeSpace, max(n.Depth-1, 0))
		branch := ""
		if n.Depth > 0 {
			branch = ui.TreeLast
		}
		suffix := ""
		if n.Truncated {
			suffix = ui.RenderMuted(" …")
		}
		fmt.Fprintf(w, "%s%s%s %s %s %s%s\n", indent, branch,
			ui.StatusIcon(n.StatusCategory), ui.RenderID(n.ID),
			ui.RenderStatus(n.Status, n.StatusCategory), n.Title, suffix)
	}
}

// writePlanTree renders a parent/child tree with progress on inner nodes.
func writePlanTree(w io.Writer, root *types.PlanNode) {
	writePlanNode(w, root, "", true, true)
}

func writePlanNode(w io.Writer, n *types.PlanNode, prefix string, last, isRoot bool) {
	branch, childPrefix := "", ""
	if !isRoot {
		branch, childPrefix = ui.TreeBranch, prefix+ui.TreePipe
		if last {
			branch, childPrefix = ui.TreeLast, prefix+ui.TreeSpace
		}
	}
	issue := n.Issue
	line := fmt.Sprintf("%s%s%s %s %s", prefix, branch, ui.StatusIcon(issue.StatusCategory), ui.RenderID(issue.ID), issue.Title)
	if n.Progress != nil {
		line += "  " + ui.RenderProgress(*n.Progress)
	} else {
		line += "  " + ui.RenderStatus(issue.Status, issue.StatusCategory)
	}
	if n.Truncated {
		line += ui.RenderMuted(" (truncated)")
	}
	fmt.Fprintln(w, line)
	for i, child := range n.Children {
		writePlanNode(w, child, childPrefix, i == len(n.Children)-1, false)
	}
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// writeBatchResult prints per-item outcomes of a batch operation.
func writeBatchResult(cmd *cobra.Command, verb string, res *types.BatchResult) {
	for _, id := range res.Succeeded {
		printf(cmd, "%s %s %s\n", ui.RenderPass(ui.IconPass), verb, ui.RenderID(id))
	}
	for _, id := range res.Skipped {
		printf(cmd, "%s skipped %s\n", ui.RenderMuted("-"), id)
	}
	for _, f := range res.Failed {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %s\n", ui.RenderFail(ui.IconFail), f.ID, f.Error)
	}
}
