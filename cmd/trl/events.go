package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/trellis-tracker/trellis/internal/timeparsing"
	"github.com/trellis-tracker/trellis/internal/types"
	"github.com/trellis-tracker/trellis/internal/ui"
)

var eventsCmd = &cobra.Command{
	Use:     "events [id]",
	GroupID: "views",
	Short:   "Show the audit log",
	Long: `Show events oldest first, or the events of one issue newest first.

--since takes an RFC 3339 timestamp, a date, a compact duration (3d, 2h,
1w, -1m) meaning that long ago, or natural language ("yesterday",
"last monday", "2 hours ago").

Examples:
  trl events --since 1h
  trl events --since "yesterday 9am" --limit 50
  trl events trl-a1b2c3`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		var (
			events []*types.Event
			err    error
		)
		if len(args) == 1 {
			events, err = store.GetIssueEvents(rootCtx, args[0], limit)
		} else {
			since := ""
			if raw, _ := cmd.Flags().GetString("since"); raw != "" {
				t, perr := timeparsing.ParseSince(raw, time.Now())
				if perr != nil {
					return fmt.Errorf("--since: %w", perr)
				}
				since = t.UTC().Format(time.RFC3339Nano)
			}
			events, err = store.GetEventsSince(rootCtx, since, limit)
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			if events == nil {
				events = []*types.Event{}
			}
			outputJSON(cmd, events)
			return nil
		}
		if len(events) == 0 {
			printf(cmd, "No events.\n")
			return nil
		}
		writeEvents(cmd.OutOrStdout(), events)
		return nil
	},
}

func writeEvents(w io.Writer, events []*types.Event) {
	var t ui.Table
	for _, e := range events {
		change := ""
		switch {
		case e.OldValue != nil && e.NewValue != nil:
			change = ui.TruncateSimple(*e.OldValue, 30) + " → " + ui.TruncateSimple(*e.NewValue, 30)
		case e.NewValue != nil:
			change = ui.TruncateSimple(*e.NewValue, 60)
		case e.OldValue != nil:
			change = ui.RenderMuted("was ") + ui.TruncateSimple(*e.OldValue, 56)
		}
		if e.Comment != "" {
			change += ui.RenderMuted(" (" + ui.TruncateSimple(e.Comment, 40) + ")")
		}
		t.Row(ui.RenderMuted(e.CreatedAt.Local().Format("2006-01-02 15:04:05")),
			ui.RenderID(e.IssueID), string(e.EventType), ui.RenderAccent(e.Actor), change)
	}
	fmt.Fprint(w, t.String())
}

var undoCmd = &cobra.Command{
	Use:     "undo <id>",
	GroupID: "issues",
	Short:   "Revert the most recent change to an issue",
	Long: `Revert the most recent reversible event of an issue (status, title,
priority, assignee, description, notes, claim, release or dependency change)
and record an undo marker. Running undo again steps further back. Comments,
labels and field edits are not reversible.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := store.UndoLast(rootCtx, args[0], getActor())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(cmd, res)
			return nil
		}
		if !res.Undone {
			printf(cmd, "%s Nothing to undo: %s\n", ui.RenderMuted("-"), res.Reason)
			return nil
		}
		printf(cmd, "%s Undid %s on %s", ui.RenderPass(ui.IconPass), res.EventType, ui.RenderID(args[0]))
		if res.Field != "" {
			printf(cmd, ": %s %q → %q", res.Field, res.From, res.To)
		}
		printf(cmd, "\n")
		return nil
	},
}

func init() {
	eventsCmd.Flags().String("since", "", "Only events after this time")
	eventsCmd.Flags().IntP("limit", "n", 100, "Maximum number of events (0 = no limit)")
	rootCmd.AddCommand(eventsCmd, undoCmd)
}
