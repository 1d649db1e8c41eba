// Package sim provides simulated drivers and a four-subsystem robot (drive,
// arm, intake, shooter) for the CLI, the harness and tests.
//
// The plants are deliberately simple: each ApplyDemand advances the physics
// by exactly one looper period, independent of wall time. A run driven by a
// manual clock therefore produces the same trace every time.
package sim
