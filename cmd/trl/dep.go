package main

import (
	"github.com/spf13/cobra"

	"github.com/trellis-tracker/trellis/internal/types"
	"github.com/trellis-tracker/trellis/internal/ui"
)

var depCmd = &cobra.Command{
	Use:     "dep",
	GroupID: "deps",
	Short:   "Manage blocking dependencies",
}

var depAddCmd = &cobra.Command{
	Use:   "add <issue> <depends-on>",
	Short: "Make <issue> depend on <depends-on>",
	Long: `Add a blocking edge: <issue> is not ready until <depends-on> is done.
Edges that would close a cycle are refused with the cycle path. Adding an
existing edge is a no-op.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		added, err := store.AddDependency(rootCtx, args[0], args[1], getActor())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(cmd, map[string]any{"issue_id": args[0], "depends_on_id": args[1], "added": added})
			return nil
		}
		if !added {
			printf(cmd, "%s %s already depends on %s\n", ui.RenderMuted("-"), ui.RenderID(args[0]), ui.RenderID(args[1]))
			return nil
		}
		printf(cmd, "%s %s now depends on %s\n", ui.RenderPass(ui.IconPass), ui.RenderID(args[0]), ui.RenderID(args[1]))
		return nil
	},
}

var depRemoveCmd = &cobra.Command{
	Use:     "rm <issue> <depends-on>",
	Aliases: []string{"remove"},
	Short:   "Remove a dependency",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		removed, err := store.RemoveDependency(rootCtx, args[0], args[1], getActor())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(cmd, map[string]any{"issue_id": args[0], "depends_on_id": args[1], "removed": removed})
			return nil
		}
		if !removed {
			printf(cmd, "%s %s did not depend on %s\n", ui.RenderMuted("-"), ui.RenderID(args[0]), ui.RenderID(args[1]))
			return nil
		}
		printf(cmd, "%s Removed %s -> %s\n", ui.RenderPass(ui.IconPass), ui.RenderID(args[0]), ui.RenderID(args[1]))
		return nil
	},
}

var depTreeCmd = &cobra.Command{
	Use:   "tree <id>",
	Short: "Show what an issue is blocked by, transitively",
	Long: `Walk the blockers of an issue depth first. With --reverse, walk the
issues it blocks instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		depth, _ := cmd.Flags().GetInt("max-depth")
		reverse, _ := cmd.Flags().GetBool("reverse")
		nodes, err := store.GetDependencyTree(rootCtx, args[0], depth, reverse)
		if err != nil {
			return err
		}
		if jsonOutput {
			if nodes == nil {
				nodes = []*types.TreeNode{}
			}
			outputJSON(cmd, nodes)
			return nil
		}
		writeDependencyTree(cmd.OutOrStdout(), nodes)
		return nil
	},
}

func init() {
	depTreeCmd.Flags().Int("max-depth", 50, "Maximum depth to walk")
	depTreeCmd.Flags().Bool("reverse", false, "Show dependents instead of blockers")
	depCmd.AddCommand(depAddCmd, depRemoveCmd, depTreeCmd)
	rootCmd.AddCommand(depCmd)
}
