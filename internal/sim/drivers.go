package sim

import (
	"sync"
	"time"
)

// DriveSensors is the odometry snapshot of the drivetrain. Distances are in
// meters, headings in degrees.
type DriveSensors struct {
	X       float64
	Y       float64
	Heading float64
}

// DriveDemand is a field-relative velocity plus an optional heading to hold.
// A ResetSeq the driver has not seen yet overwrites odometry with ResetTo
// before the velocity is integrated. Zero means no reset requested.
type DriveDemand struct {
	VX          float64
	VY          float64
	Heading     float64
	HoldHeading bool
	ResetTo     DriveSensors
	ResetSeq    uint64
}

// DriveDriver integrates a point-mass drivetrain by one period on every
// ApplyDemand.
type DriveDriver struct {
	faults
	dt       float64
	turnRate float64 // degrees per second

	mu       sync.Mutex
	pose     DriveSensors
	resetSeq uint64
}

// NewDriveDriver creates a drivetrain stepped by period.
func NewDriveDriver(period time.Duration) *DriveDriver {
	return &DriveDriver{dt: period.Seconds(), turnRate: 360}
}

// ReadSensors implements subsystem.Driver.
func (d *DriveDriver) ReadSensors() (DriveSensors, error) {
	if err := d.checkRead(); err != nil {
		return DriveSensors{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pose, nil
}

// ApplyDemand implements subsystem.Driver.
func (d *DriveDriver) ApplyDemand(dem DriveDemand) error {
	if err := d.checkApply(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if dem.ResetSeq != 0 && dem.ResetSeq != d.resetSeq {
		d.pose = dem.ResetTo
	}
	d.resetSeq = dem.ResetSeq
	d.pose.X += dem.VX * d.dt
	d.pose.Y += dem.VY * d.dt
	if dem.HoldHeading {
		d.pose.Heading = approach(d.pose.Heading, dem.Heading, d.turnRate*d.dt)
	}
	return nil
}

// Pose returns the true simulated pose.
func (d *DriveDriver) Pose() DriveSensors {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pose
}

// ArmSensors is the measured arm angle in degrees.
type ArmSensors struct {
	Angle float64
}

// ArmDemand holds the requested angle and the motor output computed from it.
type ArmDemand struct {
	Setpoint float64
	Output   float64 // [-1, 1]
}

// ArmGain is the proportional gain of the arm's position loop, output per
// degree of error.
const ArmGain = 0.1

// computeArm is the arm's per-tick position loop.
func computeArm(_ time.Time, in ArmSensors, d *ArmDemand) error {
	d.Output = clamp(ArmGain*(d.Setpoint-in.Angle), -1, 1)
	return nil
}

// ArmDriver moves the arm at a rate proportional to motor output.
type ArmDriver struct {
	faults
	dt      float64
	maxRate float64 // degrees per second at full output

	mu    sync.Mutex
	angle float64
}

// NewArmDriver creates an arm stepped by period.
func NewArmDriver(period time.Duration) *ArmDriver {
	return &ArmDriver{dt: period.Seconds(), maxRate: 180}
}

// ReadSensors implements subsystem.Driver.
func (a *ArmDriver) ReadSensors() (ArmSensors, error) {
	if err := a.checkRead(); err != nil {
		return ArmSensors{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return ArmSensors{Angle: a.angle}, nil
}

// ApplyDemand implements subsystem.Driver.
func (a *ArmDriver) ApplyDemand(d ArmDemand) error {
	if err := a.checkApply(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.angle += clamp(d.Output, -1, 1) * a.maxRate * a.dt
	return nil
}

// RollerSensors is the state of a roller mechanism (intake or shooter).
type RollerSensors struct {
	Velocity float64 // fraction of free speed, [-1, 1]
	HasNote  bool
}

// RollerDemand is the open-loop motor power, [-1, 1].
type RollerDemand struct {
	Power float64
}

// RollerDriver spins up toward the demanded power. A collecting roller
// acquires a game piece after running forward long enough and releases it
// when reversed.
type RollerDriver struct {
	faults
	dt       float64
	spinRate float64 // velocity change per second
	collects bool
	pickup   float64 // seconds of forward running to acquire

	mu       sync.Mutex
	velocity float64
	running  float64
	hasNote  bool
}

// NewRollerDriver creates a roller stepped by period.
func NewRollerDriver(period time.Duration, collects bool) *RollerDriver {
	return &RollerDriver{dt: period.Seconds(), spinRate: 5, collects: collects, pickup: 0.5}
}

// ReadSensors implements subsystem.Driver.
func (r *RollerDriver) ReadSensors() (RollerSensors, error) {
	if err := r.checkRead(); err != nil {
		return RollerSensors{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return RollerSensors{Velocity: r.velocity, HasNote: r.hasNote}, nil
}

// ApplyDemand implements subsystem.Driver.
func (r *RollerDriver) ApplyDemand(d RollerDemand) error {
	if err := r.checkApply(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.velocity = approach(r.velocity, clamp(d.Power, -1, 1), r.spinRate*r.dt)
	if !r.collects {
		return nil
	}
	switch {
	case r.velocity > 0.5:
		r.running += r.dt
		if r.running >= r.pickup {
			r.hasNote = true
		}
	case r.velocity < -0.5:
		r.hasNote = false
		r.running = 0
	default:
		r.running = 0
	}
	return nil
}

// Load places a game piece in the mechanism, as for a preloaded start.
func (r *RollerDriver) Load() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hasNote = true
}
