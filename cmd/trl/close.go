package main

import (
	"github.com/spf13/cobra"

	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/ui"
)

var closeCmd = &cobra.Command{
	Use:     "close <id>...",
	GroupID: "issues",
	Short:   "Close one or more issues",
	Long: `Move issues to a done state. Without --status the first declared
transition into a done state is taken. Fields given with -f are applied in
the same step, so a hard gate such as a bug's fix_verification can be met
while closing.

Several ids are closed independently; failures are listed and do not stop
the rest.

Examples:
  trl close trl-a1b2c3 -r "shipped in 1.4"
  trl close trl-a1b2c3 --status wont_fix
  trl close trl-bug001 -f fix_verification="regression test added"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		status, _ := cmd.Flags().GetString("status")
		pairs, _ := cmd.Flags().GetStringArray("field")
		fields, err := parseFields(pairs)
		if err != nil {
			return err
		}

		if len(args) > 1 {
			if status != "" || len(fields) > 0 {
				return storage.Invalidf("--status and --field apply to a single issue")
			}
			res, err := store.BatchClose(rootCtx, args, reason, getActor())
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(cmd, res)
			} else {
				writeBatchResult(cmd, "Closed", res)
			}
			if len(res.Failed) > 0 {
				return errPartialBatch
			}
			return nil
		}

		opts := storage.CloseOptions{Status: status, Reason: reason, Fields: fields}
		issue, err := store.CloseIssue(rootCtx, args[0], opts, getActor())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(cmd, issue)
			return nil
		}
		printWarnings(cmd, issue)
		printf(cmd, "%s Closed %s as %s\n", ui.RenderPass(ui.IconPass), ui.RenderID(issue.ID),
			ui.RenderStatus(issue.Status, issue.StatusCategory))
		return nil
	},
}

var reopenCmd = &cobra.Command{
	Use:     "reopen <id>",
	GroupID: "issues",
	Short:   "Reopen a closed issue",
	Long:    `Move a done issue back to the first open state of its type and clear its closed timestamp.`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		issue, err := store.ReopenIssue(rootCtx, args[0], getActor())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(cmd, issue)
			return nil
		}
		printf(cmd, "%s Reopened %s as %s\n", ui.RenderAccent("↻"), ui.RenderID(issue.ID),
			ui.RenderStatus(issue.Status, issue.StatusCategory))
		return nil
	},
}

func init() {
	closeCmd.Flags().StringP("reason", "r", "", "Reason recorded on the status event")
	closeCmd.Flags().StringP("status", "s", "", "Done state to close into")
	closeCmd.Flags().StringArrayP("field", "f", nil, "Set a custom field as key=value before closing (repeatable)")
	rootCmd.AddCommand(closeCmd, reopenCmd)
}
