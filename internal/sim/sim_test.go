package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/robotcore/internal/compiler"
	"github.com/roach88/robotcore/internal/ir"
	"github.com/roach88/robotcore/internal/looper"
	"github.com/roach88/robotcore/internal/telemetry"
	"github.com/roach88/robotcore/internal/testutil"
)

const period = 20 * time.Millisecond

type rig struct {
	robot *Robot
	loop  *looper.Looper
	clock *testutil.ManualClock
	sink  *telemetry.Recorder
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{
		robot: New(period),
		clock: testutil.NewManualClock(time.Time{}),
		sink:  telemetry.NewRecorder(),
	}
	r.loop = looper.New("enabled",
		looper.WithPeriod(period),
		looper.WithClock(r.clock),
		looper.WithSink(r.sink),
		looper.WithManualDrive(),
	)
	for _, m := range r.robot.Members() {
		require.NoError(t, r.loop.Register(m.Name(), m))
	}
	r.loop.Start()
	t.Cleanup(r.loop.Stop)
	return r
}

func (r *rig) ticks(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, r.loop.Tick())
		r.clock.Advance(period)
	}
}

// set resolves a setter and runs it once.
func (r *rig) set(t *testing.T, name string, args ir.Object) {
	t.Helper()
	body, err := r.robot.Bindings().Setters[name](args)
	require.NoError(t, err)
	require.NoError(t, body())
}

func (r *rig) pred(t *testing.T, name string, args ir.Object) func() bool {
	t.Helper()
	cond, err := r.robot.Bindings().Predicates[name](args)
	require.NoError(t, err)
	return cond
}

func TestDriveFollowAndPastX(t *testing.T) {
	r := newRig(t)
	pastForward := r.pred(t, "drive.past_x", ir.Object{"meters": ir.Number(0.5)})
	pastBack := r.pred(t, "drive.past_x", ir.Object{"meters": ir.Number(0.5), "direction": ir.String("backward")})

	r.set(t, "drive.follow", ir.Object{"vx": ir.Number(1)})
	r.ticks(t, 20)
	assert.False(t, pastForward(), "0.4 m after 20 writes; sensors lag one tick")

	r.ticks(t, 10)
	assert.True(t, pastForward())
	assert.InDelta(t, 0.6, r.robot.DriveDriver.Pose().X, 1e-9)

	r.set(t, "drive.follow", ir.Object{"vx": ir.Number(-2)})
	r.ticks(t, 10)
	assert.True(t, pastBack())

	r.set(t, "drive.stop", nil)
	r.ticks(t, 2)
	x := r.robot.DriveDriver.Pose().X
	r.ticks(t, 5)
	assert.Equal(t, x, r.robot.DriveDriver.Pose().X)
}

func TestDriveHeading(t *testing.T) {
	r := newRig(t)
	atHeading := r.pred(t, "drive.at_heading", nil)

	r.set(t, "drive.set_heading", ir.Object{"degrees": ir.Int(-90)})
	r.ticks(t, 2)
	assert.False(t, atHeading())

	// 360 deg/s at 20 ms is 7.2 degrees per write.
	r.ticks(t, 14)
	assert.True(t, atHeading())
	assert.Equal(t, -90.0, r.robot.DriveDriver.Pose().Heading)
}

func TestResetOdometry(t *testing.T) {
	r := newRig(t)
	r.set(t, "drive.reset_odometry", ir.Object{"x": ir.Number(1.5), "heading": ir.Int(180)})
	assert.Equal(t, DriveSensors{}, r.robot.DriveDriver.Pose(), "untouched until the write phase")
	assert.Equal(t, 180.0, r.robot.Drive.Demand().Heading)

	require.NoError(t, r.robot.Drive.WriteOutputs(r.clock.Now()))
	assert.Equal(t, DriveSensors{X: 1.5, Heading: 180}, r.robot.DriveDriver.Pose())
}

func TestResetOdometryAppliesOnce(t *testing.T) {
	r := newRig(t)
	r.set(t, "drive.reset_odometry", ir.Object{"x": ir.Int(2)})
	r.set(t, "drive.follow", ir.Object{"vx": ir.Int(1)})
	r.ticks(t, 1)
	assert.InDelta(t, 2+period.Seconds(), r.robot.DriveDriver.Pose().X, 1e-9)

	r.ticks(t, 1)
	assert.InDelta(t, 2+2*period.Seconds(), r.robot.DriveDriver.Pose().X, 1e-9, "sticky demand does not reset again")

	r.set(t, "drive.reset_odometry", ir.Object{"x": ir.Int(0)})
	r.ticks(t, 1)
	assert.InDelta(t, period.Seconds(), r.robot.DriveDriver.Pose().X, 1e-9)
}

func TestArmConvergesToSetpoint(t *testing.T) {
	r := newRig(t)
	atSetpoint := r.pred(t, "arm.at_setpoint", ir.Object{"tolerance": ir.Number(1)})
	assert.True(t, atSetpoint(), "holds its start angle")

	r.set(t, "arm.set_angle", ir.Object{"degrees": ir.Int(90)})
	r.ticks(t, 1)
	assert.False(t, atSetpoint())
	assert.Equal(t, 1.0, r.robot.Arm.Demand().Output, "saturated output while far away")

	r.ticks(t, 150)
	assert.True(t, atSetpoint())
	assert.InDelta(t, 90, r.robot.Arm.Inputs().Angle, 1)
}

func TestIntakeAcquiresAndEjects(t *testing.T) {
	r := newRig(t)
	hasNote := r.pred(t, "intake.has_note", nil)

	r.set(t, "intake.set_power", ir.Object{"power": ir.Int(1)})
	r.ticks(t, 10)
	assert.False(t, hasNote())
	r.ticks(t, 40)
	assert.True(t, hasNote())

	r.set(t, "intake.set_power", ir.Object{"power": ir.Int(-1)})
	r.ticks(t, 30)
	assert.False(t, hasNote())
}

func TestShooterSpinsUp(t *testing.T) {
	r := newRig(t)
	atSpeed := r.pred(t, "shooter.at_speed", nil)

	r.set(t, "shooter.set_power", ir.Object{"power": ir.Number(1)})
	r.ticks(t, 5)
	assert.False(t, atSpeed())
	r.ticks(t, 10)
	assert.True(t, atSpeed())
}

func TestStopAppliesSafeDemand(t *testing.T) {
	r := newRig(t)
	r.set(t, "shooter.set_power", ir.Object{"power": ir.Number(0.5)})
	r.set(t, "drive.follow", ir.Object{"vx": ir.Number(1)})
	r.ticks(t, 3)

	r.loop.Stop()
	assert.Equal(t, RollerDemand{}, r.robot.Shooter.Demand())
	assert.Equal(t, DriveDemand{}, r.robot.Drive.Demand())
}

func TestBindingArgValidation(t *testing.T) {
	b := New(period).Bindings()
	tests := []struct {
		name    string
		binding string
		args    ir.Object
		want    string
	}{
		{"missing power", "shooter.set_power", nil, "power is required"},
		{"power range", "intake.set_power", ir.Object{"power": ir.Number(1.5)}, "outside [-1, 1]"},
		{"unexpected arg", "drive.stop", ir.Object{"now": ir.Bool(true)}, `unexpected arg "now"`},
		{"follow without speed", "drive.follow", nil, "vx or vy is required"},
		{"arm limit", "arm.set_angle", ir.Object{"degrees": ir.Int(200)}, "outside"},
		{"heading string", "drive.set_heading", ir.Object{"degrees": ir.String("north")}, "must be a number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Setters[tt.binding](tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := b.Predicates["drive.past_x"](ir.Object{"meters": ir.Int(1), "direction": ir.String("sideways")})
	assert.ErrorContains(t, err, "forward or backward")
}

func TestBindingsCoverEverySampleName(t *testing.T) {
	setters, predicates := New(period).Bindings().Names()
	assert.Equal(t, []string{
		"arm.set_angle", "drive.follow", "drive.reset_odometry", "drive.set_heading",
		"drive.stop", "intake.set_power", "shooter.set_power",
	}, setters)
	assert.Equal(t, []string{
		"arm.at_setpoint", "drive.at_heading", "drive.past_x", "intake.has_note", "shooter.at_speed",
	}, predicates)
}

func TestInjectedFaultsAreIsolated(t *testing.T) {
	r := newRig(t)
	drv, ok := r.robot.Driver(IntakeName)
	require.True(t, ok)

	drv.FailReads(errors.New("can bus timeout"))
	r.set(t, "drive.follow", ir.Object{"vx": ir.Number(1)})
	r.ticks(t, 5)

	got := r.sink.OfKind(telemetry.KindClientFault)
	require.Len(t, got, 5)
	assert.Equal(t, IntakeName, got[0].Client)
	assert.Greater(t, r.robot.DriveDriver.Pose().X, 0.0, "other subsystems keep running")

	drv.ClearFaults()
	drv.PanicOnApply("motor controller reset")
	r.ticks(t, 1)
	assert.Len(t, r.sink.OfKind(telemetry.KindClientFault), 6)

	drv.ClearFaults()
	r.ticks(t, 1)
	assert.Len(t, r.sink.OfKind(telemetry.KindClientFault), 6)

	_, ok = r.robot.Driver("climber")
	assert.False(t, ok)
}

func TestBindingsDriveCompiledRoutine(t *testing.T) {
	r := newRig(t)
	routine := ir.Routine{Name: "drive_out", Root: ir.Step{Kind: ir.StepSeries, Name: "drive_out", Children: []ir.Step{
		{Kind: ir.StepRun, Binding: "drive.follow", Args: ir.Object{"vx": ir.Number(2)}},
		{Kind: ir.StepWaitUntil, Binding: "drive.past_x", Args: ir.Object{"meters": ir.Number(1)}},
		{Kind: ir.StepRun, Binding: "drive.stop"},
	}}}
	require.Empty(t, compiler.Validate([]ir.Routine{routine}, r.robot.Bindings()))

	root, err := compiler.Build(routine, r.robot.Bindings())
	require.NoError(t, err)
	require.NoError(t, root.Start(r.clock.Now()))
	for i := 0; i < 100 && !root.IsFinished(); i++ {
		require.NoError(t, root.Update(r.clock.Now()))
		r.ticks(t, 1)
	}
	require.True(t, root.IsFinished())
	r.ticks(t, 3)
	assert.Equal(t, DriveDemand{}, r.robot.Drive.Demand())
	assert.InDelta(t, 1.0, r.robot.DriveDriver.Pose().X, 0.1)
}
