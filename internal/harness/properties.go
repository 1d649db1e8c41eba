package harness

import "fmt"

// CheckTrace verifies properties every trace must have, whatever the
// routine:
//   - at most one run is active at a time
//   - every started node leaves RUNNING exactly once (finished or cancelled)
//   - no node event of a run follows that run's terminal event
//
// It returns one message per violation.
func CheckTrace(trace []TraceEvent) []string {
	var errs []string
	active := ""
	ended := make(map[string]bool)
	open := make(map[string]map[string]int) // run -> node -> unmatched starts

	for _, ev := range trace {
		switch ev.Kind {
		case "routine_started":
			if active != "" {
				errs = append(errs, fmt.Sprintf("seq %d: run %s started while %s active", ev.Seq, ev.RunID, active))
			}
			active = ev.RunID
			open[ev.RunID] = make(map[string]int)

		case "routine_finished", "routine_aborted":
			if ev.RunID != active {
				errs = append(errs, fmt.Sprintf("seq %d: run %s ended but was not active", ev.Seq, ev.RunID))
			}
			for node, n := range open[ev.RunID] {
				if n != 0 {
					errs = append(errs, fmt.Sprintf("run %s: node %s still running at end", ev.RunID, node))
				}
			}
			ended[ev.RunID] = true
			active = ""

		case "node_started", "node_finished", "node_cancelled":
			if ended[ev.RunID] {
				errs = append(errs, fmt.Sprintf("seq %d: %s %s after run %s ended", ev.Seq, ev.Kind, ev.Node, ev.RunID))
				continue
			}
			nodes := open[ev.RunID]
			if nodes == nil {
				errs = append(errs, fmt.Sprintf("seq %d: %s %s outside any run", ev.Seq, ev.Kind, ev.Node))
				continue
			}
			if ev.Kind == "node_started" {
				nodes[ev.Node]++
				continue
			}
			if nodes[ev.Node] == 0 {
				errs = append(errs, fmt.Sprintf("seq %d: node %s left RUNNING without starting", ev.Seq, ev.Node))
				continue
			}
			nodes[ev.Node]--
		}
	}
	return errs
}
