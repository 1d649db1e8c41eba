package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/robotcore/internal/ir"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "robotcore", cmd.Use)
	assert.Contains(t, cmd.Long, "PeriodicIO")
}

func TestVersionFlag(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, ir.EngineVersion)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "routines", "validate", "test", "trace", "runs", "init"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd := findCommand(t, cmd, cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestRunCommandFlags(t *testing.T) {
	runCmd := findCommand(t, NewRootCommand(), "run")

	for _, name := range []string{"routine", "db", "timeout"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, DefaultRunTimeout.String(), runCmd.Flags().Lookup("timeout").DefValue)
}

func TestTraceCommandFlags(t *testing.T) {
	traceCmd := findCommand(t, NewRootCommand(), "trace")

	for _, name := range []string{"db", "run", "kind", "after", "limit"} {
		assert.NotNil(t, traceCmd.Flags().Lookup(name), name)
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "yaml", "routines", routinesTestdata)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestInvalidConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "robotcore.toml", "[looper]\nperiood = \"20ms\"\n")

	_, err := execute(t, "--config", path, "routines", routinesTestdata)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "perio")
}
