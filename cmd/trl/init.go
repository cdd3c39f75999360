package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/trellis-tracker/trellis/internal/config"
	"github.com/trellis-tracker/trellis/internal/project"
	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/ui"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "setup",
	Short:   "Create a .trellis project in the current directory",
	Long: `Create a .trellis directory holding config.json, an empty database and
empty packs/ and templates/ directories.

Examples:
  trl init
  trl init --prefix ops --packs core,planning,release
  trl init --mode shared`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, _ := cmd.Flags().GetString("prefix")
		packs, _ := cmd.Flags().GetString("packs")
		mode, _ := cmd.Flags().GetString("mode")

		root := projectDir
		if root == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			root = cwd
		}
		opts := project.InitOptions{Prefix: prefix, EnabledPacks: splitList(packs)}
		switch config.Mode(mode) {
		case "":
		case config.ModeLocal, config.ModeShared:
			opts.Mode = config.Mode(mode)
		default:
			return storage.Invalidf("invalid mode %q (expected local or shared)", mode)
		}

		dir, err := project.Init(rootCtx, root, opts)
		if err != nil {
			return err
		}
		if prefix == "" {
			prefix = config.DefaultPrefix
		}
		if jsonOutput {
			outputJSON(cmd, map[string]any{"dir": dir, "prefix": prefix, "enabled_packs": opts.EnabledPacks})
			return nil
		}
		printf(cmd, "%s Initialized %s (ids look like %s-a1b2c3)\n", ui.RenderPass(ui.IconPass), dir, prefix)
		return nil
	},
}

func init() {
	initCmd.Flags().StringP("prefix", "p", "", "Issue id prefix (default: trl)")
	initCmd.Flags().String("packs", "", "Comma-separated workflow packs to enable (default: core,planning)")
	initCmd.Flags().String("mode", "", "Database mode: local or shared")
	rootCmd.AddCommand(initCmd)
}
