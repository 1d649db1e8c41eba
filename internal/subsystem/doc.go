// Package subsystem implements the PeriodicIO discipline every hardware
// subsystem follows inside a looper tick.
//
// A Subsystem wraps one Driver and one PeriodicIO record:
//
//   - ReadInputs samples the driver into the input snapshot
//   - OnLoop runs the compute step: snapshot + demand in, demand out
//   - WriteOutputs hands a copy of the demand to the driver
//
// Routines and teleop reach hardware only through SetDemand. Each subsystem
// has its own mutex; no lock ever spans two subsystems.
//
// The Registry is the robot's subsystem manager. It wires members into the
// enabled looper with all three phases and into the disabled looper with the
// read phase only.
package subsystem
