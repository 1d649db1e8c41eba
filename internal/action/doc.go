// Package action implements the composable behavior algebra routines are
// built from.
//
// ARCHITECTURE:
//
// Closed node set:
// Every node is an *Action. Its variant is one of series, parallel, race,
// wait, wait_until or run_once, chosen by the constructor. Variants only
// supply behavior; the PENDING → RUNNING → DONE state machine lives in
// *Action itself, so the invariants below are enforced in one place:
//
//   - Start is honored once per PENDING → RUNNING transition; later calls are no-ops.
//   - Update on a node that is not RUNNING is a no-op.
//   - IsFinished is a pure query of the node state.
//   - A node leaves RUNNING exactly once, by finishing or by Cancel, and its
//     cleanup runs exactly once on either path.
//   - DONE → PENDING only through an explicit Reset.
//
// Timing:
// Nodes never read a clock. The driver passes the current time into Start,
// Update and Cancel, which keeps trees deterministic under a manual clock.
//
// Thread-safety:
// A tree is owned by whoever drives it (normally routine.Executor) and is
// not safe for concurrent use. Subsystem setters called from RunOnce are
// expected to do their own locking.
package action
