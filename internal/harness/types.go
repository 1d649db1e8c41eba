package harness

import (
	"time"

	"github.com/roach88/robotcore/internal/telemetry"
)

// TraceEvent is one telemetry event as the harness reports it. Times are
// milliseconds since the scenario clock started, so traces are stable.
type TraceEvent struct {
	Seq      int64  `json:"seq"`
	Kind     string `json:"kind"`
	TMs      int64  `json:"t_ms"`
	Source   string `json:"source,omitempty"`
	Client   string `json:"client,omitempty"`
	Phase    string `json:"phase,omitempty"`
	Tick     uint64 `json:"tick,omitempty"`
	Mode     string `json:"mode,omitempty"`
	RunID    string `json:"run_id,omitempty"`
	Routine  string `json:"routine,omitempty"`
	Node     string `json:"node,omitempty"`
	NodeKind string `json:"node_kind,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
	Error    string `json:"error,omitempty"`
}

func traceEvent(ev telemetry.Event, start time.Time) TraceEvent {
	te := TraceEvent{
		Seq:     ev.Seq,
		Kind:    string(ev.Kind),
		Source:  ev.Source,
		Client:  ev.Client,
		Phase:   ev.Phase,
		Tick:    ev.Tick,
		Mode:    ev.Mode,
		RunID:   ev.RunID,
		Routine: ev.Routine,
		Node:    ev.Node,
		Outcome: ev.Outcome,
		Error:   ev.Err,
	}
	if !ev.Timestamp.IsZero() {
		te.TMs = ev.Timestamp.Sub(start).Milliseconds()
	}
	switch ev.Kind {
	case telemetry.KindNodeStarted, telemetry.KindNodeFinished, telemetry.KindNodeCancelled:
		te.NodeKind = ev.Message
	}
	return te
}

// SubsystemState is a subsystem's last sensor snapshot and demand, keyed by
// snake_case field name.
type SubsystemState struct {
	Inputs map[string]any `json:"inputs"`
	Demand map[string]any `json:"demand"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when the run ended and every assertion held.
	Pass bool `json:"pass"`

	RunID   string `json:"run_id,omitempty"`
	Outcome string `json:"outcome,omitempty"`
	Ticks   int    `json:"ticks"`

	// Trace holds every event of the session in seq order.
	Trace []TraceEvent `json:"trace"`

	// Final holds each subsystem's state after the last tick, before the
	// loopers stopped and applied safe demands.
	Final map[string]SubsystemState `json:"final,omitempty"`

	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Final:  make(map[string]SubsystemState),
		Errors: []string{},
	}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
