package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trellis-tracker/trellis/internal/project"
	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/templates"
	"github.com/trellis-tracker/trellis/internal/ui"
)

// optionalProject marks commands that use the project registry when one is
// found and the built-in packs otherwise.
var optionalProject = map[string]string{"project": "optional"}

// currentRegistry is the open project's registry, or the default built-ins.
func currentRegistry() *templates.Registry {
	if store != nil {
		return store.Registry()
	}
	return templates.NewDefaultRegistry()
}

func openOptionalProject() error {
	err := openProject()
	if errors.Is(err, project.ErrNoProject) {
		return nil
	}
	return err
}

var typesCmd = &cobra.Command{
	Use:     "types",
	GroupID: "setup",
	Short:   "Inspect and validate issue type templates",
}

var typesListCmd = &cobra.Command{
	Use:         "list",
	Short:       "List the registered issue types",
	Args:        cobra.NoArgs,
	Annotations: optionalProject,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := currentRegistry()
		list := reg.ListTypes()
		if jsonOutput {
			outputJSON(cmd, list)
			return nil
		}
		var t ui.Table
		for _, tmpl := range list {
			src, _ := reg.TypeSource(tmpl.Type)
			t.Row(ui.RenderAccent(tmpl.Type), tmpl.DisplayName, ui.RenderMuted(tmpl.Pack),
				ui.RenderMuted(src.Layer), strings.Join(tmpl.StateNames(), " → "))
		}
		fmt.Fprint(cmd.OutOrStdout(), t.String())
		for _, w := range reg.LoadWarnings() {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", ui.RenderWarn(ui.IconWarn), w)
		}
		return nil
	},
}

var typesShowCmd = &cobra.Command{
	Use:         "show <type>",
	Short:       "Show a type's states, transitions and fields",
	Args:        cobra.ExactArgs(1),
	Annotations: optionalProject,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := currentRegistry()
		tmpl, ok := reg.GetType(args[0])
		if !ok {
			return storage.NotFoundf("type %q", args[0])
		}
		if jsonOutput {
			outputJSON(cmd, tmpl)
			return nil
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s  %s %s\n", ui.RenderAccent(tmpl.Type), tmpl.DisplayName, ui.RenderMuted("("+tmpl.Pack+")"))
		if tmpl.Description != "" {
			fmt.Fprintln(w, ui.WrapText(tmpl.Description, 80))
		}

		fmt.Fprintf(w, "\n%s\n", ui.RenderSection("States"))
		for _, s := range tmpl.States {
			marker := "  "
			if s.Name == tmpl.InitialState {
				marker = ui.IconReady + " "
			}
			fmt.Fprintf(w, "  %s%s %s\n", marker, ui.RenderStatus(s.Name, s.Category), ui.RenderMuted(string(s.Category)))
		}

		fmt.Fprintf(w, "\n%s\n", ui.RenderSection("Transitions"))
		var tt ui.Table
		for _, tr := range tmpl.Transitions {
			req := ""
			if len(tr.RequiresFields) > 0 {
				req = "requires " + strings.Join(tr.RequiresFields, ", ")
			}
			enforcement := ui.RenderMuted(string(tr.Enforcement))
			if tr.Enforcement == templates.EnforcementHard {
				enforcement = ui.RenderFail(string(tr.Enforcement))
			}
			tt.Row("  "+tr.From, "→", tr.To, enforcement, ui.RenderMuted(req))
		}
		fmt.Fprint(w, tt.String())

		if len(tmpl.FieldsSchema) > 0 {
			fmt.Fprintf(w, "\n%s\n", ui.RenderSection("Fields"))
			var ft ui.Table
			for _, f := range tmpl.FieldsSchema {
				detail := f.Description
				if len(f.Options) > 0 {
					detail += " [" + strings.Join(f.Options, "|") + "]"
				}
				if len(f.RequiredAt) > 0 {
					detail += ui.RenderMuted(" required at " + strings.Join(f.RequiredAt, ", "))
				}
				ft.Row("  "+f.Name, ui.RenderMuted(string(f.Type)), strings.TrimSpace(detail))
			}
			fmt.Fprint(w, ft.String())
		}
		return nil
	},
}

// validationReport is the outcome of validating one document.
type validationReport struct {
	File     string   `json:"file"`
	Types    []string `json:"types,omitempty"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

var typesValidateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Validate pack or type template documents",
	Long: `Parse and validate pack or single-type documents (JSON, JSONC, YAML or
TOML). Structural errors fail the command; quality warnings such as
unreachable states or dead-end open states are reported but do not.`,
	Args:        cobra.MinimumNArgs(1),
	Annotations: map[string]string{"nodb": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		reports := make([]validationReport, 0, len(args))
		failed := false
		for _, path := range args {
			r := validateDocument(path)
			if len(r.Errors) > 0 {
				failed = true
			}
			reports = append(reports, r)
		}

		if jsonOutput {
			outputJSON(cmd, reports)
		} else {
			for _, r := range reports {
				switch {
				case len(r.Errors) > 0:
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ui.RenderFail(ui.IconFail), r.File)
				case len(r.Warnings) > 0:
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", ui.RenderWarn(ui.IconWarn), r.File, strings.Join(r.Types, ", "))
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", ui.RenderPass(ui.IconPass), r.File, strings.Join(r.Types, ", "))
				}
				for _, e := range r.Errors {
					fmt.Fprintf(cmd.OutOrStdout(), "    %s %s\n", ui.RenderFail("error:"), e)
				}
				for _, w := range r.Warnings {
					fmt.Fprintf(cmd.OutOrStdout(), "    %s %s\n", ui.RenderWarn("warning:"), w)
				}
			}
		}
		if failed {
			return storage.Invalidf("template validation failed")
		}
		return nil
	},
}

func validateDocument(path string) validationReport {
	r := validationReport{File: path}
	data, err := os.ReadFile(path) // #nosec G304 - user-supplied path
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
		return r
	}
	raw, err := templates.DecodeDocument(path, data)
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
		return r
	}

	var tmpls []*templates.TypeTemplate
	if _, isPack := raw["types"]; isPack {
		pack, err := templates.ParsePack(raw)
		if err != nil {
			r.Errors = append(r.Errors, err.Error())
			return r
		}
		tmpls = pack.Types
	} else {
		tmpl, err := templates.ParseTypeTemplate(raw)
		if err != nil {
			r.Errors = append(r.Errors, err.Error())
			return r
		}
		tmpls = []*templates.TypeTemplate{tmpl}
	}

	for _, t := range tmpls {
		r.Types = append(r.Types, t.Type)
		for _, e := range templates.ValidateTypeTemplate(t) {
			r.Errors = append(r.Errors, t.Type+": "+e)
		}
		for _, w := range templates.CheckTypeTemplateQuality(t) {
			r.Warnings = append(r.Warnings, t.Type+": "+w)
		}
	}
	return r
}

var typesWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reload templates whenever the project's pack or template files change",
	Long: `Watch packs/, templates/ and the config document and reload the
registry on every change, reporting the resulting types and any skipped
files. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := store.Registry()
		printf(cmd, "Watching %s (Ctrl-C to stop)\n", reg.Dir())
		return reg.Watch(rootCtx, func(err error) {
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s reload failed: %v\n", ui.RenderFail(ui.IconFail), err)
				return
			}
			if jsonOutput {
				outputJSON(cmd, map[string]any{"types": len(reg.ListTypes()), "warnings": reg.LoadWarnings()})
				return
			}
			printf(cmd, "%s reloaded: %s\n", ui.RenderPass(ui.IconPass), pluralize(len(reg.ListTypes()), "type"))
			for _, w := range reg.LoadWarnings() {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s %s\n", ui.RenderWarn(ui.IconWarn), w)
			}
		})
	},
}

var packsCmd = &cobra.Command{
	Use:         "packs",
	GroupID:     "setup",
	Short:       "List available workflow packs",
	Args:        cobra.NoArgs,
	Annotations: optionalProject,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := currentRegistry()
		enabled := map[string]bool{}
		for _, name := range reg.EnabledPacks() {
			enabled[name] = true
		}
		type packInfo struct {
			*templates.WorkflowPack
			Enabled bool `json:"enabled"`
		}
		var out []packInfo
		for _, p := range reg.AvailablePacks() {
			out = append(out, packInfo{WorkflowPack: p, Enabled: enabled[p.Pack]})
		}
		if jsonOutput {
			outputJSON(cmd, out)
			return nil
		}
		var t ui.Table
		for _, p := range out {
			mark := ui.RenderMuted("-")
			if p.Enabled {
				mark = ui.RenderPass(ui.IconPass)
			}
			t.Row(mark, ui.RenderAccent(p.Pack), ui.RenderMuted(p.Version), p.DisplayName, strings.Join(p.TypeNames(), ", "))
		}
		fmt.Fprint(cmd.OutOrStdout(), t.String())
		return nil
	},
}

func init() {
	typesCmd.AddCommand(typesListCmd, typesShowCmd, typesValidateCmd, typesWatchCmd)
	rootCmd.AddCommand(typesCmd, packsCmd)
}
