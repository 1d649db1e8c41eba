// Package telemetry defines the structured events the control core emits and
// the Sink interface that receives them.
//
// The core never formats or renders telemetry. It hands flat Event values to
// an injected Sink; the sink decides whether they become log lines, rows in
// the event store, or dashboard updates.
package telemetry

import "time"

// Kind identifies the type of a telemetry event.
type Kind string

const (
	KindLooperStarted   Kind = "looper_started"
	KindLooperStopped   Kind = "looper_stopped"
	KindTickOverrun     Kind = "tick_overrun"
	KindClientFault     Kind = "client_fault"
	KindRoutineStarted  Kind = "routine_started"
	KindRoutineFinished Kind = "routine_finished"
	KindRoutineAborted  Kind = "routine_aborted"
	KindNodeStarted     Kind = "node_started"
	KindNodeFinished    Kind = "node_finished"
	KindNodeCancelled   Kind = "node_cancelled"
	KindModeChanged     Kind = "mode_changed"
	KindAutoSelected    Kind = "auto_selected"
)

// Event is a single structured telemetry record.
//
// Only the fields relevant to Kind are populated; the rest stay at their zero
// value. Seq is assigned by a Sequenced sink and is zero otherwise.
type Event struct {
	Seq       int64
	Kind      Kind
	Timestamp time.Time

	// Source names the emitter: a looper name, "executor", or "system".
	Source string

	// Looper fields
	Client  string
	Phase   string
	Tick    uint64
	Elapsed time.Duration
	Period  time.Duration

	// Routine fields
	RunID   string
	Routine string
	Node    string
	Outcome string

	// Mode transitions
	Mode string

	Message string
	Err     string
}

// IsFault reports whether the event describes a failure rather than a
// lifecycle step or metric.
func (e Event) IsFault() bool {
	return e.Kind == KindClientFault || e.Kind == KindRoutineAborted
}
