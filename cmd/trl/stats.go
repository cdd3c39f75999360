package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/trellis-tracker/trellis/internal/types"
	"github.com/trellis-tracker/trellis/internal/ui"
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	GroupID: "views",
	Short:   "Show issue counts and lead time",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.GetStatistics(rootCtx)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(cmd, st)
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintln(w, ui.RenderSection("Summary"))
		var t ui.Table
		t.Row("  Total", strconv.Itoa(st.TotalIssues))
		t.Row("  Open", ui.RenderStatus(strconv.Itoa(st.OpenIssues), types.CategoryOpen))
		t.Row("  In progress", ui.RenderStatus(strconv.Itoa(st.InProgressIssues), types.CategoryWIP))
		t.Row("  Done", ui.RenderStatus(strconv.Itoa(st.ClosedIssues), types.CategoryDone))
		t.Row("  Archived", ui.RenderMuted(strconv.Itoa(st.ArchivedIssues)))
		t.Row("  Ready", ui.RenderPass(strconv.Itoa(st.ReadyIssues)))
		t.Row("  Blocked", ui.RenderWarn(strconv.Itoa(st.BlockedIssues)))
		t.Row("  Claimed", strconv.Itoa(st.ClaimedIssues))
		t.Row("  Dependencies", strconv.Itoa(st.Dependencies))
		if st.AverageLeadTime > 0 {
			t.Row("  Avg lead time", fmt.Sprintf("%.1f hours", st.AverageLeadTime))
		}
		fmt.Fprint(w, t.String())

		if len(st.ByType) > 0 {
			fmt.Fprintf(w, "\n%s\n", ui.RenderSection("By type"))
			var bt ui.Table
			for _, k := range sortedKeys(st.ByType) {
				bt.Row("  "+k, strconv.Itoa(st.ByType[k]))
			}
			fmt.Fprint(w, bt.String())
		}
		if len(st.ByStatus) > 0 {
			fmt.Fprintf(w, "\n%s\n", ui.RenderSection("By status"))
			var bs ui.Table
			for _, k := range sortedKeys(st.ByStatus) {
				bs.Row("  "+k, strconv.Itoa(st.ByStatus[k]))
			}
			fmt.Fprint(w, bs.String())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
