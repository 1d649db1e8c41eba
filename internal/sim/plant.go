package sim

import (
	"sync"
)

// faults lets tests and harness scenarios make a simulated driver fail.
type faults struct {
	mu       sync.Mutex
	readErr  error
	applyErr error
	panicMsg string
}

// FailReads makes every ReadSensors call return err until cleared with nil.
func (f *faults) FailReads(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
}

// FailApplies makes every ApplyDemand call return err until cleared with nil.
func (f *faults) FailApplies(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyErr = err
}

// PanicOnApply makes ApplyDemand panic with msg until cleared with "".
func (f *faults) PanicOnApply(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panicMsg = msg
}

// ClearFaults removes every injected fault.
func (f *faults) ClearFaults() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr, f.applyErr, f.panicMsg = nil, nil, ""
}

func (f *faults) checkRead() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readErr
}

func (f *faults) checkApply() error {
	f.mu.Lock()
	msg, err := f.panicMsg, f.applyErr
	f.mu.Unlock()
	if msg != "" {
		panic(msg)
	}
	return err
}

// Faulty is implemented by every simulated driver.
type Faulty interface {
	FailReads(err error)
	FailApplies(err error)
	PanicOnApply(msg string)
	ClearFaults()
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}

// approach moves cur toward target by at most step.
func approach(cur, target, step float64) float64 {
	switch {
	case target > cur+step:
		return cur + step
	case target < cur-step:
		return cur - step
	default:
		return target
	}
}
