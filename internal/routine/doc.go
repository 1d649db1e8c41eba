// Package routine runs action trees: one root at a time, one Update per tick,
// interruptible at any tick boundary.
//
// The Executor replaces a blocking "run this action until done" thread with
// an explicit drive loop. Each Tick calls Update on the root; when the root is
// DONE the run ends with outcome completed. Stop cancels the tree in place
// and returns only after every RUNNING node's cleanup has run. Start on a
// busy executor does the same (outcome preempted) before starting the new
// root. A node error aborts the whole run; partial trees are never continued.
//
// Two drive modes:
//
//	merged     the executor is registered in the enabled looper ahead of
//	           the subsystems (AsLoopClient), so routine demand written in
//	           a tick reaches hardware in that same tick's write phase
//	dedicated  each run gets its own ticker goroutine at the executor period
//
// Callers block on a run with Wait, which returns its Result.
package routine
