package routine

import (
	"errors"
	"fmt"
	"time"
)

// ErrNilRoutine is returned by Start when given no root.
var ErrNilRoutine = errors.New("routine: nil root action")

// Outcome says how a run ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeStopped   Outcome = "stopped"
	OutcomePreempted Outcome = "preempted"
	OutcomeAborted   Outcome = "aborted"
)

// Result describes a finished run.
type Result struct {
	RunID     string
	Routine   string
	Outcome   Outcome
	StartedAt time.Time
	EndedAt   time.Time
	Ticks     uint64

	// Err is the abort cause, or a cleanup error raised while stopping.
	Err error
}

// AbortError reports a routine aborted by an error inside one of its nodes.
// The whole tree has been cancelled by the time it is returned.
type AbortError struct {
	RunID   string
	Routine string

	// Node is the path of the offending node, e.g. "two_stage/1:parallel/0:fire".
	Node string
	Err  error
}

func (e *AbortError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("routine %s aborted (run=%s, node=%s): %v", e.Routine, e.RunID, e.Node, e.Err)
	}
	return fmt.Sprintf("routine %s aborted (run=%s): %v", e.Routine, e.RunID, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// IsAbort returns true if err wraps an *AbortError.
// Uses errors.As to handle wrapped errors.
func IsAbort(err error) bool {
	var ae *AbortError
	return errors.As(err, &ae)
}
