// Package compiler turns routine definitions written in CUE into the
// intermediate representation in package ir, and turns that representation
// into action trees.
//
// A routines directory holds one CUE package. Each routine is a field under
// the top-level "routine" struct:
//
//	routine: two_middle: {
//		description: "score preload, drive to the middle note, score again"
//		steps: [
//			{call: "score_preload"},
//			{race: [
//				{wait_until: "drive.past_x", args: {meters: 2.5}},
//				{wait: "3s", name: "timeout"},
//			]},
//		]
//	}
//
// The pipeline is LoadDir → CompileRoutines → Link → Validate → Build.
// Link inlines call steps and rejects call cycles. Build resolves run and
// wait_until steps against a Bindings table of subsystem setters and
// predicates; nothing else in a compiled routine can reach hardware.
package compiler
