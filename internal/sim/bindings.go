package sim

import (
	"fmt"
	"math"
	"slices"

	"github.com/roach88/robotcore/internal/compiler"
	"github.com/roach88/robotcore/internal/ir"
)

// Arm travel limits, degrees.
const (
	ArmMinAngle = -10.0
	ArmMaxAngle = 120.0
)

// Bindings returns the setters and predicates routines may name against
// this robot:
//
//	drive.reset_odometry {x?, y?, heading?}   drive.past_x {meters, direction?}
//	drive.follow {vx?, vy?}                    drive.at_heading {tolerance?}
//	drive.stop {}
//	drive.set_heading {degrees}
//	arm.set_angle {degrees}                    arm.at_setpoint {tolerance?}
//	intake.set_power {power}                   intake.has_note {}
//	shooter.set_power {power}                  shooter.at_speed {fraction?}
//
// Setters only write demand, so drive.reset_odometry lands in the next
// write phase. Predicates only read the latest sensor snapshot.
func (r *Robot) Bindings() *compiler.Bindings {
	b := compiler.NewBindings()

	b.Setter("drive.reset_odometry", func(args ir.Object) (func() error, error) {
		if err := onlyKeys(args, "x", "y", "heading"); err != nil {
			return nil, err
		}
		pose := DriveSensors{
			X:       optFloat(args, "x", 0),
			Y:       optFloat(args, "y", 0),
			Heading: optFloat(args, "heading", 0),
		}
		return func() error {
			r.Drive.SetDemand(func(d *DriveDemand) {
				d.Heading = pose.Heading
				d.ResetTo = pose
				d.ResetSeq++
			})
			return nil
		}, nil
	})
	b.Setter("drive.follow", func(args ir.Object) (func() error, error) {
		if err := onlyKeys(args, "vx", "vy"); err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("vx or vy is required")
		}
		vx, vy := optFloat(args, "vx", 0), optFloat(args, "vy", 0)
		return func() error {
			r.Drive.SetDemand(func(d *DriveDemand) { d.VX, d.VY = vx, vy })
			return nil
		}, nil
	})
	b.Setter("drive.stop", func(args ir.Object) (func() error, error) {
		if err := onlyKeys(args); err != nil {
			return nil, err
		}
		return func() error {
			r.Drive.SetDemand(func(d *DriveDemand) { d.VX, d.VY = 0, 0 })
			return nil
		}, nil
	})
	b.Setter("drive.set_heading", func(args ir.Object) (func() error, error) {
		if err := onlyKeys(args, "degrees"); err != nil {
			return nil, err
		}
		deg, err := reqFloat(args, "degrees")
		if err != nil {
			return nil, err
		}
		return func() error {
			r.Drive.SetDemand(func(d *DriveDemand) { d.Heading, d.HoldHeading = deg, true })
			return nil
		}, nil
	})
	b.Predicate("drive.past_x", func(args ir.Object) (func() bool, error) {
		if err := onlyKeys(args, "meters", "direction"); err != nil {
			return nil, err
		}
		meters, err := reqFloat(args, "meters")
		if err != nil {
			return nil, err
		}
		dir, ok := args.Text("direction")
		if !ok {
			dir = "forward"
		}
		switch dir {
		case "forward":
			return func() bool { return r.Drive.Inputs().X > meters }, nil
		case "backward":
			return func() bool { return r.Drive.Inputs().X < meters }, nil
		default:
			return nil, fmt.Errorf("direction must be forward or backward, got %q", dir)
		}
	})
	b.Predicate("drive.at_heading", func(args ir.Object) (func() bool, error) {
		if err := onlyKeys(args, "tolerance"); err != nil {
			return nil, err
		}
		tol := optFloat(args, "tolerance", 2)
		return func() bool {
			return math.Abs(r.Drive.Inputs().Heading-r.Drive.Demand().Heading) <= tol
		}, nil
	})

	b.Setter("arm.set_angle", func(args ir.Object) (func() error, error) {
		if err := onlyKeys(args, "degrees"); err != nil {
			return nil, err
		}
		deg, err := reqFloat(args, "degrees")
		if err != nil {
			return nil, err
		}
		if deg < ArmMinAngle || deg > ArmMaxAngle {
			return nil, fmt.Errorf("degrees %v outside [%v, %v]", deg, ArmMinAngle, ArmMaxAngle)
		}
		return func() error {
			r.Arm.SetDemand(func(d *ArmDemand) { d.Setpoint = deg })
			return nil
		}, nil
	})
	b.Predicate("arm.at_setpoint", func(args ir.Object) (func() bool, error) {
		if err := onlyKeys(args, "tolerance"); err != nil {
			return nil, err
		}
		tol := optFloat(args, "tolerance", 2)
		return func() bool {
			return math.Abs(r.Arm.Inputs().Angle-r.Arm.Demand().Setpoint) <= tol
		}, nil
	})

	b.Setter("intake.set_power", r.powerSetter(func(p float64) {
		r.Intake.SetDemand(func(d *RollerDemand) { d.Power = p })
	}))
	b.Predicate("intake.has_note", func(args ir.Object) (func() bool, error) {
		if err := onlyKeys(args); err != nil {
			return nil, err
		}
		return func() bool { return r.Intake.Inputs().HasNote }, nil
	})

	b.Setter("shooter.set_power", r.powerSetter(func(p float64) {
		r.Shooter.SetDemand(func(d *RollerDemand) { d.Power = p })
	}))
	b.Predicate("shooter.at_speed", func(args ir.Object) (func() bool, error) {
		if err := onlyKeys(args, "fraction"); err != nil {
			return nil, err
		}
		frac := optFloat(args, "fraction", 0.9)
		return func() bool { return r.Shooter.Inputs().Velocity >= frac }, nil
	})

	return b
}

func (r *Robot) powerSetter(apply func(float64)) compiler.Setter {
	return func(args ir.Object) (func() error, error) {
		if err := onlyKeys(args, "power"); err != nil {
			return nil, err
		}
		p, err := reqFloat(args, "power")
		if err != nil {
			return nil, err
		}
		if p < -1 || p > 1 {
			return nil, fmt.Errorf("power %v outside [-1, 1]", p)
		}
		return func() error {
			apply(p)
			return nil
		}, nil
	}
}

func reqFloat(args ir.Object, key string) (float64, error) {
	v, ok := args.Float(key)
	if !ok {
		return 0, fmt.Errorf("%s is required and must be a number", key)
	}
	return v, nil
}

func optFloat(args ir.Object, key string, def float64) float64 {
	if v, ok := args.Float(key); ok {
		return v
	}
	return def
}

func onlyKeys(args ir.Object, allowed ...string) error {
	for _, k := range args.SortedKeys() {
		if !slices.Contains(allowed, k) {
			return fmt.Errorf("unexpected arg %q", k)
		}
	}
	return nil
}
