package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/robotcore/internal/compiler"
)

func TestValidateValidRoutines(t *testing.T) {
	out, err := execute(t, "--config", tempConfig(t), "validate", routinesTestdata)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 5 routine(s) valid")
}

func TestValidateValidRoutinesJSON(t *testing.T) {
	out, err := execute(t, "--config", tempConfig(t), "--format", "json", "validate", routinesTestdata)
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	var result ValidationResult
	decodeData(t, resp, &result)
	assert.True(t, result.Valid)
	assert.Equal(t, 5, result.Routines)
}

func TestValidateNonExistentDirectory(t *testing.T) {
	out, err := execute(t, "--config", tempConfig(t), "validate", "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "E005")
	assert.Contains(t, out, "not found")
}

func TestValidateEmptyDirectory(t *testing.T) {
	out, err := execute(t, "--config", tempConfig(t), "validate", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "E003")
	assert.Contains(t, out, "no CUE files")
}

func TestValidateUnknownSetter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.cue", `package routines

routine: typo: steps: [
	{run: "shooter.set_powr", args: {power: 1}},
]
`)

	out, err := execute(t, "--config", tempConfig(t), "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "typo")
	assert.Contains(t, out, compiler.ErrUnknownSetter)
}

func TestValidateStructuralSkipsBindings(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "custom.cue", `package routines

routine: custom: steps: [
	{run: "elevator.raise", args: {inches: 10}},
]
`)

	_, err := execute(t, "--config", tempConfig(t), "validate", dir)
	require.Error(t, err, "elevator is not a simulated subsystem")

	out, err := execute(t, "--config", tempConfig(t), "validate", dir, "--structural")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 1 routine(s) valid")
}

func TestValidateCallCycleJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "cycle.cue", `package routines

routine: a: steps: [{call: "b"}]
routine: b: steps: [{call: "a"}]
`)

	out, err := execute(t, "--config", tempConfig(t), "--format", "json", "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	var result ValidationResult
	decodeData(t, resp, &result)
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)

	codes := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		codes = append(codes, e.Code)
	}
	assert.Contains(t, codes, compiler.ErrCallCycle)
}

func TestValidateSampleRoutines(t *testing.T) {
	out, err := execute(t, "--config", tempConfig(t), "validate", filepath.Join("..", "..", "routines"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ 7 routine(s) valid")
}
