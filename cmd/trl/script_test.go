package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"rsc.io/script"
)

// issueIDPattern matches an issue id in command output.
var issueIDPattern = regexp.MustCompile(`\b[a-z][a-z0-9]*-[0-9a-f]{6}\b`)

// TestScripts runs the CLI flows under testdata/script. Each script starts in
// an empty directory and can use:
//
//	trl args...  run the CLI in-process against the script directory
//	id NAME      store the first issue id in the last stdout as $NAME
func TestScripts(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "script", "*.txt"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		t.Run(strings.TrimSuffix(filepath.Base(file), ".txt"), func(t *testing.T) {
			data, err := os.ReadFile(file)
			require.NoError(t, err)

			engine := script.NewEngine()
			engine.Cmds["trl"] = trlScriptCmd(t)
			engine.Cmds["id"] = idScriptCmd()

			s, err := script.NewState(context.Background(), t.TempDir(), nil)
			require.NoError(t, err)

			var log bytes.Buffer
			if err := engine.Execute(s, file, bufio.NewReader(bytes.NewReader(data)), &log); err != nil {
				t.Fatalf("%v\n%s", err, log.String())
			}
		})
	}
}

func trlScriptCmd(t *testing.T) script.Cmd {
	return script.Command(
		script.CmdUsage{Summary: "run trl against the script directory", Args: "args..."},
		func(s *script.State, args ...string) (script.WaitFunc, error) {
			res := runTrl(t, s.Getwd(), args...)
			return func(*script.State) (string, string, error) {
				if res.code != 0 {
					return res.stdout, res.stderr, fmt.Errorf("exit status %d", res.code)
				}
				return res.stdout, res.stderr, nil
			}, nil
		})
}

func idScriptCmd() script.Cmd {
	return script.Command(
		script.CmdUsage{Summary: "save the first issue id printed by the last command", Args: "name"},
		func(s *script.State, args ...string) (script.WaitFunc, error) {
			if len(args) != 1 {
				return nil, script.ErrUsage
			}
			id := issueIDPattern.FindString(s.Stdout())
			if id == "" {
				return nil, fmt.Errorf("no issue id in %q", s.Stdout())
			}
			return nil, s.Setenv(args[0], id)
		})
}
