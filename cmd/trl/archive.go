package main

import (
	"github.com/spf13/cobra"

	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/ui"
)

var archiveCmd = &cobra.Command{
	Use:     "archive",
	GroupID: "maint",
	Short:   "Archive issues closed for a while",
	Long: `Mark issues that have been done for at least --days days as archived.
Archived issues drop out of list and search unless --all is given, but they
keep satisfying the dependencies of other issues.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		if days < 0 {
			return storage.Invalidf("--days must not be negative")
		}
		ids, err := store.ArchiveClosed(rootCtx, days, getActor())
		if err != nil {
			return err
		}
		if jsonOutput {
			if ids == nil {
				ids = []string{}
			}
			outputJSON(cmd, map[string]any{"archived": ids})
			return nil
		}
		printf(cmd, "%s Archived %s\n", ui.RenderPass(ui.IconPass), pluralize(len(ids), "issue"))
		return nil
	},
}

var compactCmd = &cobra.Command{
	Use:     "compact",
	GroupID: "maint",
	Short:   "Trim the event history of archived issues",
	Long: `Delete all but the --keep most recent events of every archived issue.
Events of live issues are never touched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, _ := cmd.Flags().GetInt("keep")
		if keep < 0 {
			return storage.Invalidf("--keep must not be negative")
		}
		n, err := store.CompactEvents(rootCtx, keep)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(cmd, map[string]any{"deleted": n})
			return nil
		}
		printf(cmd, "%s Deleted %s\n", ui.RenderPass(ui.IconPass), pluralize(n, "event"))
		return nil
	},
}

func init() {
	archiveCmd.Flags().Int("days", 30, "Minimum days since the issue was closed")
	compactCmd.Flags().Int("keep", 5, "Events to keep per archived issue")
	rootCmd.AddCommand(archiveCmd, compactCmd)
}
