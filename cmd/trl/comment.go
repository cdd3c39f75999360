package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/types"
	"github.com/trellis-tracker/trellis/internal/ui"
)

var commentCmd = &cobra.Command{
	Use:     "comment <id> [text]",
	GroupID: "issues",
	Short:   "Add a comment, or list comments with --list",
	Long: `Append a comment to an issue. The text comes from the argument, from
--file, or from stdin when the argument is "-".

Examples:
  trl comment trl-a1b2c3 "Blocked on the API review"
  git log -1 --format=%B | trl comment trl-a1b2c3 -
  trl comment trl-a1b2c3 --list`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if list, _ := cmd.Flags().GetBool("list"); list {
			comments, err := store.GetComments(rootCtx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				if comments == nil {
					comments = []*types.Comment{}
				}
				outputJSON(cmd, comments)
				return nil
			}
			var buf bytes.Buffer
			writeComments(&buf, comments)
			_, err = cmd.OutOrStdout().Write(buf.Bytes())
			return err
		}

		text, err := commentText(cmd, args)
		if err != nil {
			return err
		}
		c, err := store.AddComment(rootCtx, args[0], getActor(), text)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(cmd, c)
			return nil
		}
		printf(cmd, "%s Comment added to %s\n", ui.RenderPass(ui.IconPass), ui.RenderID(c.IssueID))
		return nil
	},
}

func commentText(cmd *cobra.Command, args []string) (string, error) {
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - user-supplied path
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	if len(args) < 2 {
		return "", storage.Invalidf("comment text is required")
	}
	if args[1] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(data), "\n"), nil
	}
	return args[1], nil
}

var labelCmd = &cobra.Command{
	Use:     "label",
	GroupID: "issues",
	Short:   "Add or remove labels",
}

var labelAddCmd = &cobra.Command{
	Use:   "add <id> <label>...",
	Short: "Add labels to an issue",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return applyLabels(cmd, args[0], args[1:], store.AddLabel, "Added")
	},
}

var labelRemoveCmd = &cobra.Command{
	Use:     "rm <id> <label>...",
	Aliases: []string{"remove"},
	Short:   "Remove labels from an issue",
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return applyLabels(cmd, args[0], args[1:], store.RemoveLabel, "Removed")
	},
}

type labelFunc func(ctx context.Context, id, label, actor string) (bool, error)

func applyLabels(cmd *cobra.Command, id string, labels []string, fn labelFunc, verb string) error {
	changed := map[string]bool{}
	for _, label := range labels {
		ok, err := fn(rootCtx, id, label, getActor())
		if err != nil {
			return err
		}
		changed[label] = ok
	}
	if jsonOutput {
		outputJSON(cmd, map[string]any{"issue_id": id, "changed": changed})
		return nil
	}
	for _, label := range labels {
		if changed[label] {
			printf(cmd, "%s %s label %q on %s\n", ui.RenderPass(ui.IconPass), verb, label, ui.RenderID(id))
		} else {
			printf(cmd, "%s label %q unchanged on %s\n", ui.RenderMuted("-"), label, ui.RenderID(id))
		}
	}
	return nil
}

func init() {
	commentCmd.Flags().Bool("list", false, "List the comments instead of adding one")
	commentCmd.Flags().String("file", "", "Read the comment text from a file")
	labelCmd.AddCommand(labelAddCmd, labelRemoveCmd)
	rootCmd.AddCommand(commentCmd, labelCmd)
}
