package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/robotcore/internal/routine"
	"github.com/roach88/robotcore/internal/store"
	"github.com/roach88/robotcore/internal/telemetry"
)

// runForTest runs a routine from the harness testdata with a fixed run ID.
func runForTest(t *testing.T, format, name, db string, timeout time.Duration) (string, error) {
	t.Helper()
	rootOpts := &RootOptions{Format: format, Config: tempConfig(t)}
	cmd := NewRunCommand(rootOpts)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})

	opts := &RunOptions{
		RootOptions: rootOpts,
		Routine:     name,
		Database:    db,
		Timeout:     timeout,
		RunIDs:      routine.NewFixedGenerator("run-1"),
	}
	err := runRoutine(opts, []string{routinesTestdata}, cmd)
	return out.String(), err
}

func TestRunSpinUp(t *testing.T) {
	out, err := runForTest(t, "text", "spin_up", "", 5*time.Second)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ spin_up completed")
	assert.Contains(t, out, "run:  run-1")
	assert.Contains(t, out, "pose: x=0.00 y=0.00")
}

func TestRunJSONReport(t *testing.T) {
	out, err := runForTest(t, "json", "spin_up", "", 5*time.Second)
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	var report RunReport
	decodeData(t, resp, &report)

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, "spin_up", report.Routine)
	assert.Len(t, report.Hash, 64)
	assert.Equal(t, string(routine.OutcomeCompleted), report.Outcome)
	assert.GreaterOrEqual(t, report.Ticks, uint64(3))
	assert.GreaterOrEqual(t, report.Millis, int64(40))
}

func TestRunTimeoutStopsRoutine(t *testing.T) {
	out, err := runForTest(t, "text", "hold", "", 100*time.Millisecond)
	require.NoError(t, err)
	assert.Contains(t, out, "✗ hold stopped")
}

func TestRunWritesEventStore(t *testing.T) {
	db := filepath.Join(t.TempDir(), "telemetry.db")
	out, err := runForTest(t, "text", "spin_up", db, 5*time.Second)
	require.NoError(t, err)
	assert.Contains(t, out, "events: "+db)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	events, err := st.ReplayRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, telemetry.KindRoutineStarted, events[0].Kind)
	assert.Equal(t, telemetry.KindRoutineFinished, events[len(events)-1].Kind)
	assert.Equal(t, "completed", events[len(events)-1].Outcome)

	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Seq, events[i-1].Seq)
	}

	modes, err := st.ReadEvents(context.Background(), store.Filter{Kinds: []telemetry.Kind{telemetry.KindModeChanged}})
	require.NoError(t, err)
	var seen []string
	for _, ev := range modes {
		seen = append(seen, ev.Mode)
	}
	assert.Equal(t, []string{"disabled", "autonomous", ""}, seen)
}

func TestRunNoRoutine(t *testing.T) {
	_, err := runForTest(t, "text", "", "", time.Second)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--routine")
}

func TestRunUnknownRoutine(t *testing.T) {
	_, err := runForTest(t, "text", "no_such_routine", "", time.Second)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "did not start")
}

func TestRunMissingRoutinesDirectory(t *testing.T) {
	_, err := execute(t, "--config", tempConfig(t), "run", "/nonexistent/routines", "--routine", "x")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
