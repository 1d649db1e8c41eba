package testutil

import (
	"sync"
	"time"
)

// CallLog is a shared, ordered record of client callbacks.
//
// Several Recorders can write into one CallLog so a test can assert the
// global order of calls across clients ("arm.read" before "drive.loop").
type CallLog struct {
	mu    sync.Mutex
	calls []string
	times []time.Time
}

// Add appends one call.
func (l *CallLog) Add(call string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
	l.times = append(l.times, at)
}

// Calls returns a copy of the recorded calls.
func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

// Count returns how many times call was recorded.
func (l *CallLog) Count(call string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		if c == call {
			n++
		}
	}
	return n
}

// Times returns a copy of the timestamps, parallel to Calls.
func (l *CallLog) Times() []time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]time.Time, len(l.times))
	copy(out, l.times)
	return out
}

// Reset clears the log.
func (l *CallLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = nil
	l.times = nil
}

// Recorder is a loop client with read and write phases that records every
// callback into a CallLog as "<name>.<phase>".
//
// Fail maps a phase ("start", "read", "loop", "write", "stop") to an error
// that callback returns; Panic maps a phase to a panic value. Both are read
// on every call, so tests may set them between ticks from the driving
// goroutine.
type Recorder struct {
	Name  string
	Log   *CallLog
	Fail  map[string]error
	Panic map[string]any

	// OnLoopHook, if set, runs inside OnLoop after recording.
	OnLoopHook func(now time.Time)
}

// NewRecorder creates a Recorder writing into log.
func NewRecorder(name string, log *CallLog) *Recorder {
	return &Recorder{
		Name:  name,
		Log:   log,
		Fail:  map[string]error{},
		Panic: map[string]any{},
	}
}

func (r *Recorder) hit(phase string, now time.Time) error {
	r.Log.Add(r.Name+"."+phase, now)
	if v, ok := r.Panic[phase]; ok {
		panic(v)
	}
	return r.Fail[phase]
}

func (r *Recorder) OnStart(now time.Time) error      { return r.hit("start", now) }
func (r *Recorder) ReadInputs(now time.Time) error   { return r.hit("read", now) }
func (r *Recorder) WriteOutputs(now time.Time) error { return r.hit("write", now) }
func (r *Recorder) OnStop(now time.Time) error       { return r.hit("stop", now) }

func (r *Recorder) OnLoop(now time.Time) error {
	err := r.hit("loop", now)
	if r.OnLoopHook != nil {
		r.OnLoopHook(now)
	}
	return err
}
