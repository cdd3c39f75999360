package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/templates"
	"github.com/trellis-tracker/trellis/internal/types"
)

var planCmd = &cobra.Command{
	Use:     "plan",
	GroupID: "views",
	Short:   "Show or create milestone plans",
}

var planShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the parent/child tree under an issue with progress",
	Long: `Show the tree of children under an issue. Inner nodes carry the share
of their leaf descendants that are done. Milestones and releases are shown
through their typed views; any other issue shows its plain tree.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := store.GetIssue(rootCtx, args[0])
		if err != nil {
			return err
		}
		var tree *types.PlanNode
		switch root.Type {
		case "milestone":
			tree, err = store.GetPlan(rootCtx, root.ID)
		case "release":
			tree, err = store.GetReleaseTree(rootCtx, root.ID)
		default:
			tree, err = store.GetTree(rootCtx, root.ID)
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(cmd, tree)
			return nil
		}
		writePlanTree(cmd.OutOrStdout(), tree)
		return nil
	},
}

var planCreateCmd = &cobra.Command{
	Use:   "create <file>",
	Short: "Create a milestone with phases and steps from a document",
	Long: `Create a milestone, its phases and their steps in one transaction. The
document may be JSON, JSONC, YAML or TOML; "-" reads JSON from stdin.

Step deps refer to earlier steps by zero-based index: "1" is step 1 of the
same phase, "0.2" is step 2 of phase 0. Any error creates nothing.

  milestone:
    title: Launch v2
  phases:
    - title: Build
      steps:
        - title: API
        - title: UI
          deps: ["0"]`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := readPlanInput(cmd, args[0])
		if err != nil {
			return err
		}
		tree, err := store.CreatePlan(rootCtx, *in, getActor())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(cmd, tree)
			return nil
		}
		writePlanTree(cmd.OutOrStdout(), tree)
		return nil
	},
}

// readPlanInput decodes a plan document through the template document
// decoder, then re-encodes it into the typed input.
func readPlanInput(cmd *cobra.Command, path string) (*types.PlanInput, error) {
	var (
		data []byte
		err  error
		name = path
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
		name = "stdin.json"
	} else {
		data, err = os.ReadFile(path) // #nosec G304 - user-supplied path
	}
	if err != nil {
		return nil, err
	}
	raw, err := templates.DecodeDocument(name, data)
	if err != nil {
		return nil, storage.Invalidf("plan document: %v", err)
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-encoding plan document: %w", err)
	}
	var in types.PlanInput
	if err := json.Unmarshal(buf, &in); err != nil {
		return nil, storage.Invalidf("plan document: %v", err)
	}
	return &in, nil
}

func init() {
	planCmd.AddCommand(planShowCmd, planCreateCmd)
	rootCmd.AddCommand(planCmd)
}
