package main

import (
	"bytes"

	"github.com/spf13/cobra"

	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/types"
	"github.com/trellis-tracker/trellis/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "issues",
	Short:   "List issues",
	Long: `List issues ordered by priority, then creation time. Archived issues are hidden
unless --all is given.

Examples:
  trl list --category wip
  trl list -t bug --priority-max 1
  trl list --assignee alice --sort updated:desc`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := issueFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		issues, err := store.ListIssues(rootCtx, filter)
		if err != nil {
			return err
		}
		return writeIssues(cmd, issues)
	},
}

var searchCmd = &cobra.Command{
	Use:     "search <query>",
	GroupID: "issues",
	Short:   "Search issue titles, descriptions and notes",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := issueFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		issues, err := store.SearchIssues(rootCtx, args[0], filter)
		if err != nil {
			return err
		}
		return writeIssues(cmd, issues)
	},
}

func writeIssues(cmd *cobra.Command, issues []*types.Issue) error {
	if jsonOutput {
		if issues == nil {
			issues = []*types.Issue{}
		}
		outputJSON(cmd, issues)
		return nil
	}
	if len(issues) == 0 {
		printf(cmd, "No issues found.\n")
		return nil
	}
	noPager, _ := cmd.Flags().GetBool("no-pager")
	var buf bytes.Buffer
	writeIssueList(&buf, issues)
	if !quietFlag {
		buf.WriteString(ui.RenderMuted(pluralize(len(issues), "issue")) + "\n")
	}
	return ui.ToPager(cmd.OutOrStdout(), buf.String(), ui.PagerOptions{NoPager: noPager})
}

func addIssueFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("status", "s", "", "Only issues in this state")
	cmd.Flags().String("category", "", "Only issues in this status category (open, wip, done)")
	cmd.Flags().StringP("type", "t", "", "Only issues of this type")
	cmd.Flags().StringP("assignee", "a", "", "Only issues claimed by this assignee")
	cmd.Flags().Bool("unassigned", false, "Only unclaimed issues")
	cmd.Flags().StringP("label", "l", "", "Only issues with this label")
	cmd.Flags().String("parent", "", "Only children of this issue")
	cmd.Flags().StringP("priority", "p", "", "Only issues with this priority")
	cmd.Flags().String("priority-min", "", "Lowest priority number to include")
	cmd.Flags().String("priority-max", "", "Highest priority number to include")
	cmd.Flags().Bool("all", false, "Include archived issues")
	cmd.Flags().String("sort", "", "Sort order, e.g. priority,updated:desc")
	cmd.Flags().IntP("limit", "n", 0, "Maximum number of results (0 = no limit)")
	cmd.Flags().Bool("no-pager", false, "Do not pipe output through a pager")
}

func issueFilterFromFlags(cmd *cobra.Command) (types.IssueFilter, error) {
	var f types.IssueFilter
	f.Status, _ = cmd.Flags().GetString("status")
	f.Type, _ = cmd.Flags().GetString("type")
	f.Label, _ = cmd.Flags().GetString("label")
	f.IncludeArchived, _ = cmd.Flags().GetBool("all")
	f.Limit, _ = cmd.Flags().GetInt("limit")

	if cat, _ := cmd.Flags().GetString("category"); cat != "" {
		f.Category = types.Category(cat)
		if !f.Category.IsValid() {
			return f, storage.Invalidf("invalid category %q (expected open, wip or done)", cat)
		}
	}
	if cmd.Flags().Changed("assignee") {
		a, _ := cmd.Flags().GetString("assignee")
		f.Assignee = &a
	}
	if unassigned, _ := cmd.Flags().GetBool("unassigned"); unassigned {
		empty := ""
		f.Assignee = &empty
	}
	if cmd.Flags().Changed("parent") {
		p, _ := cmd.Flags().GetString("parent")
		f.ParentID = &p
	}
	var err error
	if f.Priority, err = optionalPriority(cmd, "priority"); err != nil {
		return f, err
	}
	if f.PriorityMin, err = optionalPriority(cmd, "priority-min"); err != nil {
		return f, err
	}
	if f.PriorityMax, err = optionalPriority(cmd, "priority-max"); err != nil {
		return f, err
	}
	if raw, _ := cmd.Flags().GetString("sort"); raw != "" {
		f.Sort = types.ParseIssueSortOrder(raw)
	}
	return f, nil
}

func init() {
	addIssueFilterFlags(listCmd)
	addIssueFilterFlags(searchCmd)
	rootCmd.AddCommand(listCmd, searchCmd)
}
