package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trellis-tracker/trellis/internal/types"
	"github.com/trellis-tracker/trellis/internal/ui"
)

var readyCmd = &cobra.Command{
	Use:     "ready",
	GroupID: "deps",
	Short:   "Show work that can start now",
	Long: `List open issues whose blockers are all done, ordered by priority and
then age.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := workFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		issues, err := store.GetReady(rootCtx, filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			if issues == nil {
				issues = []*types.Issue{}
			}
			outputJSON(cmd, issues)
			return nil
		}
		if len(issues) == 0 {
			printf(cmd, "No ready work.\n")
			return nil
		}
		printf(cmd, "%s\n", ui.RenderSection(fmt.Sprintf("Ready (%d)", len(issues))))
		writeIssueList(cmd.OutOrStdout(), issues)
		return nil
	},
}

var blockedCmd = &cobra.Command{
	Use:     "blocked",
	GroupID: "deps",
	Short:   "Show open issues waiting on blockers",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := workFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		blocked, err := store.GetBlocked(rootCtx, filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			if blocked == nil {
				blocked = []*types.BlockedIssue{}
			}
			outputJSON(cmd, blocked)
			return nil
		}
		if len(blocked) == 0 {
			printf(cmd, "Nothing is blocked.\n")
			return nil
		}
		printf(cmd, "%s\n", ui.RenderSection(fmt.Sprintf("Blocked (%d)", len(blocked))))
		var t ui.Table
		for _, b := range blocked {
			t.Row(ui.RenderFail(ui.IconBlocked), ui.RenderID(b.ID), ui.RenderPriority(b.Priority),
				ui.TruncateSimple(b.Title, 60),
				ui.RenderMuted("waiting on "+strings.Join(b.OpenBlockers, ", ")))
		}
		fmt.Fprint(cmd.OutOrStdout(), t.String())
		return nil
	},
}

var criticalPathCmd = &cobra.Command{
	Use:     "critical-path",
	GroupID: "deps",
	Short:   "Show the longest chain of unfinished dependencies",
	Long: `Show the longest chain of open and in-progress issues linked by
dependencies, in the order the work has to happen.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := store.GetCriticalPath(rootCtx)
		if err != nil {
			return err
		}
		if jsonOutput {
			if path == nil {
				path = []*types.Issue{}
			}
			outputJSON(cmd, path)
			return nil
		}
		if len(path) == 0 {
			printf(cmd, "No unfinished dependency chains.\n")
			return nil
		}
		printf(cmd, "%s\n", ui.RenderSection(fmt.Sprintf("Critical path (%d)", len(path))))
		for i, issue := range path {
			fmt.Fprintf(cmd.OutOrStdout(), "%3d. %s %s %s\n", i+1, ui.RenderID(issue.ID),
				ui.RenderStatus(issue.Status, issue.StatusCategory), issue.Title)
		}
		return nil
	},
}

func init() {
	addWorkFilterFlags(readyCmd)
	addWorkFilterFlags(blockedCmd)
	rootCmd.AddCommand(readyCmd, blockedCmd, criticalPathCmd)
}
