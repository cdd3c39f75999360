package main

import (
	"github.com/spf13/cobra"

	"github.com/trellis-tracker/trellis/internal/types"
	"github.com/trellis-tracker/trellis/internal/ui"
)

var createCmd = &cobra.Command{
	Use:     "create <title>",
	GroupID: "issues",
	Short:   "Create an issue",
	Long: `Create an issue. The status defaults to the initial state of its type.

Examples:
  trl create "Fix login redirect" -t bug -p 1
  trl create "Q3 launch" -t milestone --field target_date=2026-09-30
  trl create "Write tests" --parent trl-a1b2c3 --deps trl-d4e5f6`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := &types.IssueCreate{Title: args[0]}
		in.Type, _ = cmd.Flags().GetString("type")
		in.Status, _ = cmd.Flags().GetString("status")
		in.ParentID, _ = cmd.Flags().GetString("parent")
		in.Assignee, _ = cmd.Flags().GetString("assignee")
		in.Description, _ = cmd.Flags().GetString("description")
		in.Notes, _ = cmd.Flags().GetString("notes")
		labels, _ := cmd.Flags().GetString("labels")
		in.Labels = splitList(labels)
		deps, _ := cmd.Flags().GetString("deps")
		in.DependsOn = splitList(deps)

		if raw, _ := cmd.Flags().GetString("priority"); raw != "" {
			p, err := parsePriority(raw)
			if err != nil {
				return err
			}
			in.Priority = &p
		}
		pairs, _ := cmd.Flags().GetStringArray("field")
		fields, err := parseFields(pairs)
		if err != nil {
			return err
		}
		in.Fields = fields

		issue, err := store.CreateIssue(rootCtx, in, getActor())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(cmd, issue)
			return nil
		}
		printWarnings(cmd, issue)
		printf(cmd, "%s Created %s: %s\n", ui.RenderPass(ui.IconPass), ui.RenderID(issue.ID), issue.Title)
		printf(cmd, "  %s %s  %s %s\n", ui.RenderMuted("Type:"), issue.Type,
			ui.RenderMuted("Status:"), ui.RenderStatus(issue.Status, issue.StatusCategory))
		return nil
	},
}

func init() {
	createCmd.Flags().StringP("type", "t", "", "Issue type (default: task)")
	createCmd.Flags().StringP("priority", "p", "", "Priority 0-4 or P0-P4 (default: 2)")
	createCmd.Flags().StringP("status", "s", "", "Initial status (default: the type's initial state)")
	createCmd.Flags().String("parent", "", "Parent issue id")
	createCmd.Flags().StringP("assignee", "a", "", "Assignee")
	createCmd.Flags().StringP("description", "d", "", "Description")
	createCmd.Flags().String("notes", "", "Notes")
	createCmd.Flags().StringP("labels", "l", "", "Comma-separated labels")
	createCmd.Flags().String("deps", "", "Comma-separated ids this issue depends on")
	createCmd.Flags().StringArrayP("field", "f", nil, "Custom field as key=value (repeatable)")
	rootCmd.AddCommand(createCmd)
}
