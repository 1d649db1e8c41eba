// Package robot assembles the control core into one System: the subsystem
// registry, an enabled looper (executor, teleop, subsystems), a read-only
// disabled looper, the routine executor and the auto mode selector.
//
// A System is constructed once at startup and passed by reference to
// whatever builds routines. Mode transitions mirror a competition robot's
// lifecycle:
//
//	disabled    enabled looper stopped, disabled looper running, selection rebuilt
//	autonomous  enabled looper running, selected routine started
//	teleop      enabled looper running, routine stopped, teleop client active
//	test        both loopers stopped
//
// Every transition is logged and emitted as a mode_changed event.
package robot
