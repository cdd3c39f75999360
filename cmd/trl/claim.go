package main

import (
	"github.com/spf13/cobra"

	"github.com/trellis-tracker/trellis/internal/ui"
)

var claimCmd = &cobra.Command{
	Use:     "claim <id>",
	GroupID: "deps",
	Short:   "Claim an issue for an assignee",
	Long: `Set the assignee of an unclaimed issue. Only one of several concurrent
claimers wins; the others get a conflict (exit code 4). Claiming an issue
you already hold is a no-op. The status is not changed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		assignee := claimAssignee(cmd)
		issue, err := store.ClaimIssue(rootCtx, args[0], assignee, getActor())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(cmd, issue)
			return nil
		}
		printf(cmd, "%s %s claimed by %s\n", ui.RenderPass(ui.IconPass), ui.RenderID(issue.ID), ui.RenderAccent(issue.Assignee))
		return nil
	},
}

var claimNextCmd = &cobra.Command{
	Use:     "claim-next",
	GroupID: "deps",
	Short:   "Claim the highest-priority ready issue",
	Long: `Claim the first unclaimed issue of the ready queue. Issues lost to a
concurrent claimer are skipped. Prints nothing to claim when the queue is
empty (null under --json).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := workFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		issue, err := store.ClaimNext(rootCtx, claimAssignee(cmd), filter, getActor())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(cmd, issue)
			return nil
		}
		if issue == nil {
			printf(cmd, "Nothing to claim.\n")
			return nil
		}
		printf(cmd, "%s Claimed %s: %s\n", ui.RenderPass(ui.IconPass), ui.RenderID(issue.ID), issue.Title)
		return nil
	},
}

var releaseCmd = &cobra.Command{
	Use:     "release <id>",
	GroupID: "deps",
	Short:   "Release a claim",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		issue, err := store.ReleaseClaim(rootCtx, args[0], getActor())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(cmd, issue)
			return nil
		}
		printf(cmd, "%s Released %s\n", ui.RenderPass(ui.IconPass), ui.RenderID(issue.ID))
		return nil
	},
}

// claimAssignee is --assignee, defaulting to the actor.
func claimAssignee(cmd *cobra.Command) string {
	if a, _ := cmd.Flags().GetString("assignee"); a != "" {
		return a
	}
	return getActor()
}

func init() {
	claimCmd.Flags().StringP("assignee", "a", "", "Assignee (default: the actor)")
	claimNextCmd.Flags().StringP("assignee", "a", "", "Assignee (default: the actor)")
	addWorkFilterFlags(claimNextCmd)
	rootCmd.AddCommand(claimCmd, claimNextCmd, releaseCmd)
}
