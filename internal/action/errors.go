package action

import (
	"errors"
	"fmt"
	"time"
)

// ErrResetWhileRunning is returned by Reset on a tree that is still running.
var ErrResetWhileRunning = errors.New("action: reset while running")

// NodeError is an error raised by a specific node.
//
// Path identifies the offending node within its tree; Op is the phase the
// error surfaced in ("start", "update", "cleanup" or "reset").
type NodeError struct {
	Path string
	Kind Kind
	Op   string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("action %s (%s): %s: %v", e.Path, e.Kind, e.Op, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// AsNodeError returns the first *NodeError in err's chain.
func AsNodeError(err error) (*NodeError, bool) {
	var ne *NodeError
	if errors.As(err, &ne) {
		return ne, true
	}
	return nil, false
}

// NodeEventType identifies a node lifecycle transition.
type NodeEventType int

const (
	NodeStarted NodeEventType = iota + 1
	NodeFinished
	NodeCancelled
)

func (t NodeEventType) String() string {
	switch t {
	case NodeStarted:
		return "started"
	case NodeFinished:
		return "finished"
	case NodeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("node_event(%d)", int(t))
	}
}

// NodeEvent reports a node lifecycle transition to an Observer.
type NodeEvent struct {
	Type NodeEventType
	Path string
	Kind Kind
	At   time.Time
}

// Observer receives node lifecycle transitions. It is called synchronously
// from Start, Update and Cancel and must not call back into the tree.
type Observer func(NodeEvent)
