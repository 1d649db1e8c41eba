package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/robotcore/internal/config"
)

// routinesTestdata is shared with the harness package tests.
var routinesTestdata = filepath.Join("..", "harness", "testdata", "routines")

// execute runs a subcommand through the root command so persistent flags
// apply. It returns stdout and the command error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// tempConfig writes a default robotcore.toml into a temp dir and returns
// its path, so tests never pick up a config file above the working tree.
func tempConfig(t *testing.T) string {
	t.Helper()
	path, err := config.InitFile(t.TempDir())
	require.NoError(t, err)
	return path
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func decodeResponse(t *testing.T, out string) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

// decodeData re-decodes Response.Data into v.
func decodeData(t *testing.T, resp Response, v any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

func findCommand(t *testing.T, root *cobra.Command, name string) *cobra.Command {
	t.Helper()
	sub, _, err := root.Find([]string{name})
	require.NoError(t, err)
	return sub
}
