// Package harness runs autonomous routines against the simulated robot in
// lock-step and checks what happened.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: two_middle_completes
//	description: "two note middle auto finishes inside the period"
//	routines: ../../../routines
//	routine: two_middle
//	period: 20ms
//	max_ticks: 750
//	faults:
//	  - tick: 10
//	    subsystem: intake
//	    fail_reads: "can bus timeout"
//	assertions:
//	  - type: outcome
//	    outcome: completed
//	  - type: trace_order
//	    nodes: [two_middle/0:score_preload, two_middle/1:race]
//	  - type: trace_count
//	    kind: client_fault
//	    client: intake
//	    count: 1
//	  - type: final_demand
//	    subsystem: drive
//	    expect: {vx: 0, vy: 0}
//
// # Assertion Types
//
//   - outcome: the run's outcome (completed, stopped, preempted, aborted)
//   - trace_contains: some event matches kind, node and client
//   - trace_order: nodes first appear in the given order (node_started by default)
//   - trace_count: exactly N events match kind, node and client
//   - final_demand, final_inputs: subsystem fields after the last tick
//
// Every run is also checked with CheckTrace, whatever its assertions.
//
// # Deterministic Testing
//
// Each run uses a manual clock, sequential run IDs ("run-1", ...) and a
// fresh in-memory event store. The simulated plants advance exactly one
// period per write, so a scenario always produces the same trace and golden
// snapshots can be compared byte for byte.
package harness
