package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "maint",
	Short:   "Export the database as JSONL",
	Long: `Write every issue, dependency, label, comment and event as one JSON
object per line. Each line carries a "kind" field. Output goes to stdout
unless -o names a file, which is written atomically.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")
		if out == "" || out == "-" {
			w := bufio.NewWriter(cmd.OutOrStdout())
			if _, err := store.ExportJSONL(rootCtx, w); err != nil {
				return err
			}
			return w.Flush()
		}

		tmp, err := os.CreateTemp(filepath.Dir(out), ".trl-export-*")
		if err != nil {
			return fmt.Errorf("creating export file: %w", err)
		}
		defer func() { _ = os.Remove(tmp.Name()) }()
		w := bufio.NewWriter(tmp)
		res, err := store.ExportJSONL(rootCtx, w)
		if err == nil {
			err = w.Flush()
		}
		if cerr := tmp.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		if err := os.Rename(tmp.Name(), out); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}

		if jsonOutput {
			outputJSON(cmd, map[string]any{"path": out, "counts": res.Counts})
			return nil
		}
		printf(cmd, "%s Exported %s to %s\n", ui.RenderPass(ui.IconPass), formatCounts(res.Counts), out)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "maint",
	Short:   "Import a JSONL export",
	Long: `Read records written by export ("-" reads stdin). Each line is applied
in its own transaction; failures are reported per line and do not stop the
import.

  --merge          skip records whose id already exists
  --orphans allow  import children of missing parents as top-level (default)
  --orphans skip   leave them out
  --orphans strict fail them`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		merge, _ := cmd.Flags().GetBool("merge")
		orphans, _ := cmd.Flags().GetString("orphans")
		mode := storage.OrphanHandling(orphans)
		switch mode {
		case storage.OrphanAllow, storage.OrphanSkip, storage.OrphanStrict:
		default:
			return storage.Invalidf("--orphans must be allow, skip or strict, got %q", orphans)
		}

		var r io.Reader
		if args[0] == "-" {
			r = cmd.InOrStdin()
		} else {
			f, err := os.Open(args[0]) // #nosec G304 - user-supplied path
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			r = f
		}

		res, err := store.ImportJSONL(rootCtx, r, storage.ImportOptions{Merge: merge, OrphanHandling: mode})
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(cmd, res)
		} else {
			printf(cmd, "%s Imported %s\n", ui.RenderPass(ui.IconPass), formatCounts(res.Counts))
			if len(res.Skipped) > 0 {
				printf(cmd, "%s Skipped %s\n", ui.RenderMuted("-"), pluralize(len(res.Skipped), "record"))
			}
			for _, f := range res.Failed {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %s\n", ui.RenderFail(ui.IconFail), f.ID, f.Error)
			}
		}
		if len(res.Failed) > 0 {
			return errPartialBatch
		}
		return nil
	},
}

// formatCounts renders {"issue": 3, "event": 9} as "9 events, 3 issues".
func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "nothing"
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, pluralize(counts[k], k))
	}
	return strings.Join(parts, ", ")
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
	importCmd.Flags().Bool("merge", false, "Skip records that already exist")
	importCmd.Flags().String("orphans", string(storage.OrphanAllow), "Orphan handling: allow, skip or strict")
	rootCmd.AddCommand(exportCmd, importCmd)
}
