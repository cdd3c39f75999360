package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trellis-tracker/trellis/internal/debug"
	"github.com/trellis-tracker/trellis/internal/project"
	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/telemetry"
	"github.com/trellis-tracker/trellis/internal/ui"
)

var (
	// Version is overridden by ldflags at build time.
	Version = "0.1.0"
	Build   = "dev"
)

var (
	actor      string
	jsonOutput bool
	projectDir string

	verboseFlag bool
	quietFlag   bool

	rootCtx    context.Context
	rootCancel context.CancelFunc

	// proj is opened by PersistentPreRunE for commands that need a database.
	proj  *project.Project
	store storage.Storage

	// settings layers flags over TRELLIS_* environment variables.
	settings = viper.New()
)

// noDBCommands run without opening a project.
var noDBCommands = map[string]bool{
	"init":       true,
	"version":    true,
	"help":       true,
	"completion": true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Actor name for the audit trail (default: $TRELLIS_ACTOR, config actor, $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&projectDir, "dir", "", "Project root holding .trellis (default: nearest ancestor, or $TRELLIS_DIR)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")

	settings.SetEnvPrefix("TRELLIS")
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()
	for _, name := range []string{"json", "actor", "verbose", "quiet"} {
		_ = settings.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}

	rootCmd.AddGroup(&cobra.Group{ID: "issues", Title: "Working With Issues:"})
	rootCmd.AddGroup(&cobra.Group{ID: "deps", Title: "Dependencies & Scheduling:"})
	rootCmd.AddGroup(&cobra.Group{ID: "views", Title: "Views & Reports:"})
	rootCmd.AddGroup(&cobra.Group{ID: "setup", Title: "Setup & Templates:"})
	rootCmd.AddGroup(&cobra.Group{ID: "maint", Title: "Maintenance:"})

	rootCmd.AddCommand(versionCmd)
}

var rootCmd = &cobra.Command{
	Use:           "trl",
	Short:         "trl - workflow-aware issue tracker for agents and humans",
	Long:          `Issues with per-type workflows, dependency-aware scheduling and race-safe claiming, stored in a local SQLite database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput = settings.GetBool("json")
		quietFlag = settings.GetBool("quiet")
		verboseFlag = settings.GetBool("verbose")
		debug.SetVerbose(verboseFlag)
		debug.SetQuiet(quietFlag)
		ui.ConfigureColor()

		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		if err := telemetry.Init(rootCtx, "trl", Version); err != nil {
			debug.Warn("telemetry disabled", "error", err)
		}

		if noDBCommands[cmd.Name()] || cmd.Annotations["nodb"] == "true" {
			return nil
		}
		if cmd.Annotations["project"] == "optional" {
			return openOptionalProject()
		}
		return openProject()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeProject()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		telemetry.Shutdown(shutdownCtx)
		cancel()
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func openProject() error {
	var dir string
	if projectDir != "" {
		dir = filepath.Join(projectDir, project.DirName)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return fmt.Errorf("%s: %w", projectDir, project.ErrNoProject)
		}
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		if dir, err = project.FindDir(cwd); err != nil {
			return err
		}
	}
	p, err := project.Open(rootCtx, dir)
	if err != nil {
		return fmt.Errorf("failed to open project %s: %w", dir, err)
	}
	proj, store = p, p.Store
	return nil
}

func closeProject() {
	if proj == nil {
		return
	}
	if err := proj.Close(); err != nil {
		debug.Warn("closing store", "error", err)
	}
	proj, store = nil, nil
}

// getActor resolves the audit actor: --actor, TRELLIS_ACTOR, the config
// document, $USER, then "unknown".
func getActor() string {
	if a := strings.TrimSpace(settings.GetString("actor")); a != "" {
		return a
	}
	if proj != nil && proj.Config.Actor != "" {
		return proj.Config.Actor
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if jsonOutput {
			outputJSON(cmd, map[string]string{"version": Version, "build": Build})
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "trl version %s (%s)\n", Version, Build)
	},
}

// execute runs the root command and returns the process exit code.
func execute(args []string) int {
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	// PersistentPostRun does not run when the command fails.
	closeProject()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	telemetry.Shutdown(shutdownCtx)
	cancel()
	if rootCancel != nil {
		rootCancel()
	}
	reportError(rootCmd.ErrOrStderr(), err)
	return exitCode(err)
}

func main() {
	os.Exit(execute(os.Args[1:]))
}
