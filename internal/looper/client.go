package looper

import "time"

// LoopClient is a periodic participant in a Looper.
//
// All three callbacks run on the looper's goroutine (or the caller of Tick in
// manual mode). Each receives the timestamp of the call. An error or panic is
// reported as a ClientFault and never stops the loop.
type LoopClient interface {
	OnStart(now time.Time) error
	OnLoop(now time.Time) error
	OnStop(now time.Time) error
}

// InputReader is implemented by clients that sample hardware. ReadInputs runs
// for every such client before any client's OnLoop in the same tick.
type InputReader interface {
	ReadInputs(now time.Time) error
}

// OutputWriter is implemented by clients that push demand to hardware.
// WriteOutputs runs for every such client after every client's OnLoop in the
// same tick.
type OutputWriter interface {
	WriteOutputs(now time.Time) error
}

// Phase names the client callback a fault came from.
type Phase string

const (
	PhaseStart Phase = "start"
	PhaseRead  Phase = "read"
	PhaseLoop  Phase = "loop"
	PhaseWrite Phase = "write"
	PhaseStop  Phase = "stop"
)

// Clock supplies timestamps to the looper.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// Funcs adapts plain functions to LoopClient. Nil fields are no-ops.
type Funcs struct {
	Start func(now time.Time) error
	Loop  func(now time.Time) error
	Stop  func(now time.Time) error
}

func (f Funcs) OnStart(now time.Time) error {
	if f.Start == nil {
		return nil
	}
	return f.Start(now)
}

func (f Funcs) OnLoop(now time.Time) error {
	if f.Loop == nil {
		return nil
	}
	return f.Loop(now)
}

func (f Funcs) OnStop(now time.Time) error {
	if f.Stop == nil {
		return nil
	}
	return f.Stop(now)
}
