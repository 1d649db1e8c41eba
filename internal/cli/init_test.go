package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/robotcore/internal/config"
)

func TestInitWritesLoadableConfig(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "init", dir)
	require.NoError(t, err)

	path := filepath.Join(dir, config.FileName)
	assert.Contains(t, out, "✓ Wrote "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, config.Defaults().Looper.Period, cfg.Looper.Period)
}

func TestInitRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, config.FileName, "# mine\n")

	out, err := execute(t, "init", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeWriteFailed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# mine\n", string(data))
}

func TestInitMissingDirectory(t *testing.T) {
	_, err := execute(t, "init", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInitJSON(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "--format", "json", "init", dir)
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	var data map[string]string
	decodeData(t, resp, &data)
	assert.Equal(t, filepath.Join(dir, config.FileName), data["path"])
}
