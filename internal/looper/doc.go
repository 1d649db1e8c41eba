// Package looper implements the fixed-period scheduler that drives every
// periodic participant of the control core.
//
// ARCHITECTURE:
//
// A Looper owns one goroutine that wakes once per period and runs a tick:
//
//	read  → ReadInputs   for every InputReader, in registration order
//	loop  → OnLoop       for every client,      in registration order
//	write → WriteOutputs for every OutputWriter, in registration order
//
// So every subsystem computes against a snapshot taken in the same tick, and
// hardware demand is pushed only after all computation for the tick is done.
//
// Faults:
// A client error or panic is recovered, logged with the client name, phase,
// tick number and timestamp, emitted to the telemetry sink, and counted in
// Stats. The remaining clients still run that tick. Nothing is retried.
//
// Timing:
// The next tick is scheduled for one period after the previous tick began. A
// tick that takes longer than the period emits a tick_overrun event and the
// next tick starts immediately. Missed periods are not made up.
//
// Manual drive:
// WithManualDrive suppresses the goroutine; the owner calls Tick. The harness
// uses this with a manual clock to run scenarios lock-step.
package looper
