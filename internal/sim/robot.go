package sim

import (
	"time"

	"github.com/roach88/robotcore/internal/looper"
	"github.com/roach88/robotcore/internal/subsystem"
)

// Subsystem names, in tick order.
const (
	DriveName   = "drive"
	ArmName     = "arm"
	IntakeName  = "intake"
	ShooterName = "shooter"
)

// Robot is a simulated robot: four subsystems over simulated drivers. Every
// driver advances by exactly one period per write phase, so a run driven by
// a manual clock is fully deterministic.
type Robot struct {
	Drive   *subsystem.Subsystem[DriveSensors, DriveDemand]
	Arm     *subsystem.Subsystem[ArmSensors, ArmDemand]
	Intake  *subsystem.Subsystem[RollerSensors, RollerDemand]
	Shooter *subsystem.Subsystem[RollerSensors, RollerDemand]

	DriveDriver   *DriveDriver
	ArmDriver     *ArmDriver
	IntakeDriver  *RollerDriver
	ShooterDriver *RollerDriver
}

// New builds a simulated robot whose plants step by period. A non-positive
// period falls back to looper.DefaultPeriod.
func New(period time.Duration) *Robot {
	if period <= 0 {
		period = looper.DefaultPeriod
	}
	r := &Robot{
		DriveDriver:   NewDriveDriver(period),
		ArmDriver:     NewArmDriver(period),
		IntakeDriver:  NewRollerDriver(period, true),
		ShooterDriver: NewRollerDriver(period, false),
	}
	r.Drive = subsystem.New(DriveName, subsystem.Driver[DriveSensors, DriveDemand](r.DriveDriver),
		subsystem.WithSafeDemand[DriveSensors, DriveDemand](DriveDemand{}),
	)
	r.Arm = subsystem.New(ArmName, subsystem.Driver[ArmSensors, ArmDemand](r.ArmDriver),
		subsystem.WithCompute[ArmSensors, ArmDemand](computeArm),
		subsystem.WithOnStart[ArmSensors, ArmDemand](r.holdArm),
		subsystem.WithSafeDemand[ArmSensors, ArmDemand](ArmDemand{}),
	)
	r.Intake = subsystem.New(IntakeName, subsystem.Driver[RollerSensors, RollerDemand](r.IntakeDriver),
		subsystem.WithSafeDemand[RollerSensors, RollerDemand](RollerDemand{}),
	)
	r.Shooter = subsystem.New(ShooterName, subsystem.Driver[RollerSensors, RollerDemand](r.ShooterDriver),
		subsystem.WithSafeDemand[RollerSensors, RollerDemand](RollerDemand{}),
	)
	return r
}

// holdArm makes the arm hold its current angle when its looper starts, so
// enabling the robot never moves the arm by itself.
func (r *Robot) holdArm(time.Time) error {
	in, err := r.ArmDriver.ReadSensors()
	if err != nil {
		return err
	}
	r.Arm.SetDemand(func(d *ArmDemand) {
		d.Setpoint = in.Angle
		d.Output = 0
	})
	return nil
}

// Members returns the subsystems in tick order.
func (r *Robot) Members() []subsystem.Member {
	return []subsystem.Member{r.Drive, r.Arm, r.Intake, r.Shooter}
}

// Driver returns the simulated driver behind the named subsystem, for fault
// injection.
func (r *Robot) Driver(name string) (Faulty, bool) {
	switch name {
	case DriveName:
		return r.DriveDriver, true
	case ArmName:
		return r.ArmDriver, true
	case IntakeName:
		return r.IntakeDriver, true
	case ShooterName:
		return r.ShooterDriver, true
	default:
		return nil, false
	}
}
