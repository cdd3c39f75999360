package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/types"
	"github.com/trellis-tracker/trellis/internal/ui"
)

// errPartialBatch makes a batch command exit non-zero when any item failed.
var errPartialBatch = errors.New("some items failed")

var updateCmd = &cobra.Command{
	Use:     "update <id>...",
	GroupID: "issues",
	Short:   "Update one or more issues",
	Long: `Update issue attributes. A status change is checked against the type's
workflow: hard gates refuse the change, soft gates warn.

With several ids the same update is applied to each independently and the
failures are listed.

Examples:
  trl update trl-a1b2c3 --status in_progress
  trl update trl-a1b2c3 -f fix_verification="reproduced and fixed"
  trl update trl-a1b2c3 trl-d4e5f6 -p 1`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		upd, err := issueUpdateFromFlags(cmd)
		if err != nil {
			return err
		}
		if upd.IsEmpty() {
			return storage.Invalidf("nothing to update (pass at least one flag)")
		}

		if len(args) > 1 {
			res, err := store.BatchUpdate(rootCtx, args, upd, getActor())
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(cmd, res)
			} else {
				writeBatchResult(cmd, "Updated", res)
			}
			if len(res.Failed) > 0 {
				return errPartialBatch
			}
			return nil
		}

		issue, err := store.UpdateIssue(rootCtx, args[0], upd, getActor())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(cmd, issue)
			return nil
		}
		printWarnings(cmd, issue)
		printf(cmd, "%s Updated %s %s\n", ui.RenderPass(ui.IconPass), ui.RenderID(issue.ID),
			ui.RenderStatus(issue.Status, issue.StatusCategory))
		return nil
	},
}

func issueUpdateFromFlags(cmd *cobra.Command) (types.IssueUpdate, error) {
	var upd types.IssueUpdate
	str := func(name string) *string {
		if !cmd.Flags().Changed(name) {
			return nil
		}
		v, _ := cmd.Flags().GetString(name)
		return &v
	}
	upd.Title = str("title")
	upd.Status = str("status")
	upd.Assignee = str("assignee")
	upd.Description = str("description")
	upd.Notes = str("notes")
	upd.ParentID = str("parent")

	if cmd.Flags().Changed("priority") {
		raw, _ := cmd.Flags().GetString("priority")
		p, err := parsePriority(raw)
		if err != nil {
			return upd, err
		}
		upd.Priority = &p
	}
	pairs, _ := cmd.Flags().GetStringArray("field")
	fields, err := parseFields(pairs)
	if err != nil {
		return upd, err
	}
	upd.Fields = fields
	return upd, nil
}

func init() {
	updateCmd.Flags().String("title", "", "New title")
	updateCmd.Flags().StringP("status", "s", "", "New status")
	updateCmd.Flags().StringP("priority", "p", "", "New priority (0-4 or P0-P4)")
	updateCmd.Flags().StringP("assignee", "a", "", "New assignee (empty to clear)")
	updateCmd.Flags().StringP("description", "d", "", "New description")
	updateCmd.Flags().String("notes", "", "New notes")
	updateCmd.Flags().String("parent", "", "New parent id (empty to clear)")
	updateCmd.Flags().StringArrayP("field", "f", nil, "Set a custom field as key=value; key=null removes it (repeatable)")
	rootCmd.AddCommand(updateCmd)
}
