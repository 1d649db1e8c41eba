package compiler

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/robotcore/internal/action"
	"github.com/roach88/robotcore/internal/ir"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(tick int) time.Time {
	return epoch.Add(time.Duration(tick) * 20 * time.Millisecond)
}

// fakeRobot records setter calls and exposes a position for predicates.
type fakeRobot struct {
	calls []string
	x     float64
}

func (f *fakeRobot) bindings() *Bindings {
	return NewBindings().
		Setter("shooter.set_power", func(args ir.Object) (func() error, error) {
			power, ok := args.Float("power")
			if !ok {
				return nil, errors.New("power is required")
			}
			return func() error {
				f.calls = append(f.calls, fmt.Sprintf("shooter %.1f", power))
				return nil
			}, nil
		}).
		Setter("intake.fail", func(ir.Object) (func() error, error) {
			return func() error { return errors.New("jammed") }, nil
		}).
		Predicate("drive.past_x", func(args ir.Object) (func() bool, error) {
			meters, ok := args.Float("meters")
			if !ok {
				return nil, errors.New("meters is required")
			}
			return func() bool { return f.x > meters }, nil
		})
}

func TestBuildProducesNamedTree(t *testing.T) {
	robot := &fakeRobot{}
	r := routineOf("two_middle",
		ir.Step{Kind: ir.StepRun, Binding: "shooter.set_power", Args: ir.Object{"power": ir.Number(0.8)}},
		ir.Step{Kind: ir.StepRace, Children: []ir.Step{
			{Kind: ir.StepWaitUntil, Binding: "drive.past_x", Args: ir.Object{"meters": ir.Int(2)}},
			{Kind: ir.StepWait, Name: "timeout", Duration: time.Second},
		}},
	)

	root, err := Build(r, robot.bindings())
	require.NoError(t, err)
	assert.Equal(t, "two_middle", root.Name())
	assert.Equal(t, action.KindSeries, root.Kind())

	var names []string
	root.Walk(func(a *action.Action) { names = append(names, fmt.Sprintf("%s:%s", a.Kind(), a.Name())) })
	assert.Equal(t, []string{
		"series:two_middle",
		"run_once:shooter.set_power",
		"race:race",
		"wait_until:drive.past_x",
		"wait:timeout",
	}, names)
	assert.Empty(t, robot.calls, "building must not run setters")
}

func TestBuildDrivesBindings(t *testing.T) {
	robot := &fakeRobot{}
	r := routineOf("drive_out",
		ir.Step{Kind: ir.StepRun, Binding: "shooter.set_power", Args: ir.Object{"power": ir.Number(0.5)}},
		ir.Step{Kind: ir.StepWaitUntil, Binding: "drive.past_x", Args: ir.Object{"meters": ir.Number(1.5)}},
		ir.Step{Kind: ir.StepRun, Binding: "shooter.set_power", Args: ir.Object{"power": ir.Int(0)}},
	)
	root, err := Build(r, robot.bindings())
	require.NoError(t, err)

	require.NoError(t, root.Start(at(0)))
	tick := 1
	for ; !root.IsFinished() && tick < 20; tick++ {
		robot.x += 0.5
		require.NoError(t, root.Update(at(tick)))
	}
	assert.True(t, root.IsFinished())
	assert.Equal(t, []string{"shooter 0.5", "shooter 0.0"}, robot.calls)
	assert.Greater(t, robot.x, 1.5)
}

func TestBuildSetterErrorCarriesPath(t *testing.T) {
	robot := &fakeRobot{}
	root, err := Build(routineOf("jam", ir.Step{Kind: ir.StepRun, Binding: "intake.fail"}), robot.bindings())
	require.NoError(t, err)

	require.NoError(t, root.Start(at(0)))
	err = root.Update(at(1))
	ne, ok := action.AsNodeError(err)
	require.True(t, ok)
	assert.Equal(t, "jam/0:intake.fail", ne.Path)
}

func TestBuildErrors(t *testing.T) {
	robot := &fakeRobot{}
	tests := []struct {
		name string
		step ir.Step
		want string
	}{
		{"unknown setter", ir.Step{Kind: ir.StepRun, Binding: "arm.fly"}, "unknown setter"},
		{"unknown predicate", ir.Step{Kind: ir.StepWaitUntil, Binding: "arm.happy"}, "unknown predicate"},
		{"bad args", ir.Step{Kind: ir.StepRun, Binding: "shooter.set_power"}, "power is required"},
		{"unresolved call", call("elsewhere"), "unresolved call"},
		{"invalid tree", ir.Step{Kind: ir.StepRun}, "requires a binding"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(routineOf("r", ir.Step{Kind: ir.StepSeries, Children: []ir.Step{tt.step}}), robot.bindings())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuildBindErrorPath(t *testing.T) {
	_, err := Build(routineOf("r", ir.Step{Kind: ir.StepParallel, Children: []ir.Step{
		{Kind: ir.StepWait},
		{Kind: ir.StepRun, Binding: "arm.fly", Name: "fly"},
	}}), NewBindings())
	var be *BindError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "r/0:parallel/1:fly", be.Path)
	assert.Equal(t, "arm.fly", be.Binding)
}

func TestBuildEachCallReturnsFreshTree(t *testing.T) {
	robot := &fakeRobot{}
	r := routineOf("w", ir.Step{Kind: ir.StepWait, Duration: 0})
	a, err := Build(r, robot.bindings())
	require.NoError(t, err)
	b, err := Build(r, robot.bindings())
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

func TestBindingsMergeAndNames(t *testing.T) {
	robot := &fakeRobot{}
	extra := NewBindings().
		Setter("shooter.set_power", func(ir.Object) (func() error, error) { return nil, errors.New("shadowed") }).
		Setter("arm.set_angle", func(ir.Object) (func() error, error) { return nil, nil })

	b := robot.bindings().Merge(extra).Merge(nil)
	setters, predicates := b.Names()
	assert.Equal(t, []string{"arm.set_angle", "intake.fail", "shooter.set_power"}, setters)
	assert.Equal(t, []string{"drive.past_x"}, predicates)

	_, err := b.Setters["shooter.set_power"](ir.Object{"power": ir.Number(1)})
	assert.NoError(t, err, "existing entries win on merge")
}
