package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trellis-tracker/trellis/internal/templates"
	"github.com/trellis-tracker/trellis/internal/types"
	"github.com/trellis-tracker/trellis/internal/ui"
)

// issueDetails is the JSON shape of show.
type issueDetails struct {
	*types.Issue
	Comments    []*types.Comment             `json:"comments"`
	Transitions []templates.TransitionOption `json:"transitions"`
	Events      []*types.Event               `json:"events,omitempty"`
}

var showCmd = &cobra.Command{
	Use:     "show <id>...",
	GroupID: "issues",
	Short:   "Show issue details",
	Long: `Show issues with their fields, dependencies, comments and the
transitions available from their current state.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		full, _ := cmd.Flags().GetBool("full")
		withEvents, _ := cmd.Flags().GetBool("events")
		noPager, _ := cmd.Flags().GetBool("no-pager")
		reg := store.Registry()

		var all []issueDetails
		for _, id := range args {
			issue, err := store.GetIssue(rootCtx, id)
			if err != nil {
				return err
			}
			comments, err := store.GetComments(rootCtx, id)
			if err != nil {
				return err
			}
			d := issueDetails{
				Issue:       issue,
				Comments:    comments,
				Transitions: reg.GetValidTransitions(issue.Type, issue.Status, issue.Fields),
			}
			if withEvents {
				if d.Events, err = store.GetIssueEvents(rootCtx, id, 20); err != nil {
					return err
				}
			}
			all = append(all, d)
		}

		if jsonOutput {
			if len(all) == 1 {
				outputJSON(cmd, all[0])
			} else {
				outputJSON(cmd, all)
			}
			return nil
		}

		var buf bytes.Buffer
		for i, d := range all {
			if i > 0 {
				fmt.Fprintf(&buf, "\n%s\n\n", ui.RenderSeparator())
			}
			writeIssueDetail(&buf, d.Issue, full)
			writeTransitions(&buf, d.Transitions)
			writeComments(&buf, d.Comments)
			if withEvents {
				writeEvents(&buf, d.Events)
			}
		}
		return ui.ToPager(cmd.OutOrStdout(), buf.String(), ui.PagerOptions{NoPager: noPager})
	},
}

func writeTransitions(buf *bytes.Buffer, opts []templates.TransitionOption) {
	if len(opts) == 0 {
		return
	}
	fmt.Fprintf(buf, "\n%s\n", ui.RenderSection("Next states"))
	for _, o := range opts {
		mark := ui.RenderPass(ui.IconPass)
		if !o.Ready {
			mark = ui.RenderWarn(ui.IconWarn)
			if o.Enforcement == templates.EnforcementHard {
				mark = ui.RenderFail(ui.IconBlocked)
			}
		}
		line := fmt.Sprintf("  %s %s", mark, ui.RenderStatus(o.To, o.Category))
		if len(o.MissingFields) > 0 {
			line += ui.RenderMuted(fmt.Sprintf(" (%s, needs %s)", o.Enforcement, strings.Join(o.MissingFields, ", ")))
		}
		fmt.Fprintln(buf, line)
	}
}

func writeComments(buf *bytes.Buffer, comments []*types.Comment) {
	if len(comments) == 0 {
		return
	}
	fmt.Fprintf(buf, "\n%s\n", ui.RenderSection(fmt.Sprintf("Comments (%d)", len(comments))))
	for _, c := range comments {
		fmt.Fprintf(buf, "  %s %s\n", ui.RenderAccent(c.Author), ui.RenderMuted(c.CreatedAt.Format("2006-01-02 15:04")))
		for _, line := range strings.Split(c.Text, "\n") {
			fmt.Fprintf(buf, "    %s\n", line)
		}
	}
}

func init() {
	showCmd.Flags().Bool("full", false, "Show the full description without truncation")
	showCmd.Flags().Bool("events", false, "Include the 20 most recent events")
	showCmd.Flags().Bool("no-pager", false, "Do not pipe output through a pager")
	rootCmd.AddCommand(showCmd)
}
