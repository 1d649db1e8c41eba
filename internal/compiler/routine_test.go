package compiler

import (
	"testing"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/robotcore/internal/ir"
)

func compileOne(t *testing.T, src, name string) (*ir.Routine, error) {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	require.NoError(t, v.Err())
	return CompileRoutine(v.LookupPath(cue.ParsePath("routine." + name)))
}

func TestCompileRoutineBasic(t *testing.T) {
	r, err := compileOne(t, `
		routine: two_middle: {
			description: "score preload, drive, score again"
			steps: [
				{run: "shooter.set_power", args: {power: 0.8}},
				{wait: "500ms"},
				{race: [
					{wait_until: "drive.past_x", args: {meters: 2.5}},
					{wait: 3000, name: "timeout"},
				]},
			]
		}
	`, "two_middle")
	require.NoError(t, err)

	assert.Equal(t, "two_middle", r.Name)
	assert.Equal(t, "score preload, drive, score again", r.Description)
	assert.Equal(t, ir.StepSeries, r.Root.Kind)
	assert.Equal(t, "two_middle", r.Root.Name)
	require.Len(t, r.Root.Children, 3)

	run := r.Root.Children[0]
	assert.Equal(t, ir.StepRun, run.Kind)
	assert.Equal(t, "shooter.set_power", run.Binding)
	assert.Equal(t, ir.Object{"power": ir.Number(0.8)}, run.Args)

	assert.Equal(t, ir.Step{Kind: ir.StepWait, Duration: 500 * time.Millisecond}, r.Root.Children[1])

	race := r.Root.Children[2]
	assert.Equal(t, ir.StepRace, race.Kind)
	require.Len(t, race.Children, 2)
	assert.Equal(t, ir.Object{"meters": ir.Number(2.5)}, race.Children[0].Args)
	assert.Equal(t, "timeout", race.Children[1].Name)
	assert.Equal(t, 3*time.Second, race.Children[1].Duration)

	require.NoError(t, r.Root.Validate())
}

func TestCompileRoutineArgTypes(t *testing.T) {
	r, err := compileOne(t, `
		routine: args: steps: [{
			run: "arm.set_angle"
			args: {
				degrees: 42
				trim:    -0.25
				mode:    "amp"
				hold:    true
				path:    [1, "two", {x: 3.5}]
			}
		}]
	`, "args")
	require.NoError(t, err)

	assert.Equal(t, ir.Object{
		"degrees": ir.Int(42),
		"trim":    ir.Number(-0.25),
		"mode":    ir.String("amp"),
		"hold":    ir.Bool(true),
		"path":    ir.List{ir.Int(1), ir.String("two"), ir.Object{"x": ir.Number(3.5)}},
	}, r.Root.Children[0].Args)
}

func TestCompileRoutineEmptySteps(t *testing.T) {
	r, err := compileOne(t, `routine: do_nothing: steps: []`, "do_nothing")
	require.NoError(t, err)
	assert.Empty(t, r.Root.Children)
	assert.Equal(t, ir.StepSeries, r.Root.Kind)
}

func TestCompileRoutineCall(t *testing.T) {
	r, err := compileOne(t, `routine: outer: steps: [{call: "score_preload", name: "first"}]`, "outer")
	require.NoError(t, err)
	assert.Equal(t, ir.Step{Kind: ir.StepCall, Name: "first", Binding: "score_preload"}, r.Root.Children[0])
}

func TestCompileRoutineErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"missing steps", `routine: r: description: "x"`, "steps is required"},
		{"unknown routine field", `routine: r: {steps: [], timeout: 3}`, "unknown field"},
		{"steps not a list", `routine: r: steps: {run: "x"}`, "must be a list of steps"},
		{"step not a struct", `routine: r: steps: ["x"]`, "step must be a struct"},
		{"no kind", `routine: r: steps: [{name: "lonely"}]`, "step must name one of"},
		{"two kinds", `routine: r: steps: [{run: "a", wait: "1s"}]`, "step names both"},
		{"unknown step field", `routine: r: steps: [{run: "a", speed: 2}]`, "unknown field"},
		{"bad duration", `routine: r: steps: [{wait: "soon"}]`, `invalid duration "soon"`},
		{"negative duration", `routine: r: steps: [{wait: "-1s"}]`, "must not be negative"},
		{"negative millis", `routine: r: steps: [{wait: -5}]`, "must not be negative"},
		{"float wait", `routine: r: steps: [{wait: 1.5}]`, "duration string or integer milliseconds"},
		{"binding not string", `routine: r: steps: [{run: 3}]`, "must be a string naming a binding"},
		{"empty binding", `routine: r: steps: [{run: ""}]`, "binding name is empty"},
		{"args on wait", `routine: r: steps: [{wait: "1s", args: {a: 1}}]`, "take no args"},
		{"args not struct", `routine: r: steps: [{run: "a", args: [1]}]`, "args must be a struct"},
		{"null arg", `routine: r: steps: [{run: "a", args: {x: null}}]`, "null is not a valid argument"},
		{"incomplete arg", `routine: r: steps: [{run: "a", args: {x: int}}]`, "argument must be concrete"},
		{"nested error", `routine: r: steps: [{series: [{parallel: [{wait: "x"}]}]}]`, "r.steps[0].series[0].parallel[0].wait"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileOne(t, tt.src, "r")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCompileErrorCarriesPosition(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString("routine: r: steps: [\n\t{wait: \"soon\"},\n]", cue.Filename("auto.cue"))
	require.NoError(t, v.Err())

	_, err := CompileRoutine(v.LookupPath(cue.ParsePath("routine.r")))
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Pos.IsValid())
	assert.Contains(t, err.Error(), "auto.cue:2:")
}

func TestCompileRoutinesSorted(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		routine: zeta: steps: []
		routine: alpha: steps: [{wait: "1s"}]
	`)
	routines, err := CompileRoutines(v)
	require.NoError(t, err)
	require.Len(t, routines, 2)
	assert.Equal(t, "alpha", routines[0].Name)
	assert.Equal(t, "zeta", routines[1].Name)
}

func TestCompileRoutinesNone(t *testing.T) {
	ctx := cuecontext.New()
	routines, err := CompileRoutines(ctx.CompileString(`other: 1`))
	require.NoError(t, err)
	assert.Empty(t, routines)
}

func TestCompileRoutinesPropagatesCUEErrors(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		routine: r: steps: []
		routine: r: steps: [{wait: "1s"}]
	`)
	_, err := CompileRoutines(v)
	require.Error(t, err)
}
