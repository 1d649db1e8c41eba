package subsystem

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Driver is the hardware collaborator for one subsystem. Both calls must be
// non-blocking. Units and ranges are the driver's contract.
type Driver[In, Out any] interface {
	ReadSensors() (In, error)
	ApplyDemand(Out) error
}

// ComputeFunc turns the tick's input snapshot into output demand. It runs
// inside OnLoop with the subsystem lock held, so it must not call back into
// the subsystem (SetDemand, Inputs, Demand).
type ComputeFunc[In, Out any] func(now time.Time, in In, demand *Out) error

// PeriodicIO is the record exchanged between the read, compute and write
// phases of one subsystem.
type PeriodicIO[In, Out any] struct {
	Inputs In
	Demand Out

	ReadAt    time.Time
	WrittenAt time.Time
	Reads     uint64
	Writes    uint64
}

// Subsystem adapts a Driver to the looper's three-phase tick.
//
// Thread-safety: Inputs, Demand and SetDemand may be called from any
// goroutine (teleop input, routine executor). All access to the PeriodicIO
// record is serialized by a mutex owned by this subsystem alone.
type Subsystem[In, Out any] struct {
	name    string
	driver  Driver[In, Out]
	compute ComputeFunc[In, Out]
	onStart func(now time.Time) error
	onStop  func(now time.Time) error

	safe    Out
	hasSafe bool

	mu sync.Mutex
	io PeriodicIO[In, Out]
}

// Option configures a Subsystem.
type Option[In, Out any] func(*Subsystem[In, Out])

// WithCompute sets the per-tick compute step.
func WithCompute[In, Out any](fn ComputeFunc[In, Out]) Option[In, Out] {
	return func(s *Subsystem[In, Out]) { s.compute = fn }
}

// WithOnStart sets a hook run from OnStart.
func WithOnStart[In, Out any](fn func(now time.Time) error) Option[In, Out] {
	return func(s *Subsystem[In, Out]) { s.onStart = fn }
}

// WithOnStop sets a hook run from OnStop, before the safe demand is applied.
func WithOnStop[In, Out any](fn func(now time.Time) error) Option[In, Out] {
	return func(s *Subsystem[In, Out]) { s.onStop = fn }
}

// WithSafeDemand sets the demand written to the driver when the owning
// looper stops, e.g. zero motor output.
func WithSafeDemand[In, Out any](d Out) Option[In, Out] {
	return func(s *Subsystem[In, Out]) {
		s.safe = d
		s.hasSafe = true
	}
}

// New creates a subsystem over driver.
func New[In, Out any](name string, driver Driver[In, Out], opts ...Option[In, Out]) *Subsystem[In, Out] {
	s := &Subsystem[In, Out]{name: name, driver: driver}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the subsystem name.
func (s *Subsystem[In, Out]) Name() string { return s.name }

// Inputs returns a copy of the latest input snapshot.
func (s *Subsystem[In, Out]) Inputs() In {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.io.Inputs
}

// Demand returns a copy of the current output demand.
func (s *Subsystem[In, Out]) Demand() Out {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.io.Demand
}

// SetDemand mutates the output demand under the subsystem lock. It is the
// setter path for routines and teleop; the change reaches hardware at the
// next write phase.
func (s *Subsystem[In, Out]) SetDemand(fn func(*Out)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.io.Demand)
}

// Snapshot returns a copy of the whole PeriodicIO record.
func (s *Subsystem[In, Out]) Snapshot() PeriodicIO[In, Out] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.io
}

// Status implements Member.
func (s *Subsystem[In, Out]) Status() Status {
	snap := s.Snapshot()
	return Status{
		Name:      s.name,
		Inputs:    snap.Inputs,
		Demand:    snap.Demand,
		ReadAt:    snap.ReadAt,
		WrittenAt: snap.WrittenAt,
		Reads:     snap.Reads,
		Writes:    snap.Writes,
	}
}

// OnStart implements looper.LoopClient.
func (s *Subsystem[In, Out]) OnStart(now time.Time) error {
	if s.onStart == nil {
		return nil
	}
	return s.onStart(now)
}

// ReadInputs implements looper.InputReader. The driver is sampled outside
// the lock; only the store into the record is serialized.
func (s *Subsystem[In, Out]) ReadInputs(now time.Time) error {
	in, err := s.driver.ReadSensors()
	if err != nil {
		return fmt.Errorf("read sensors: %w", err)
	}

	s.mu.Lock()
	s.io.Inputs = in
	s.io.ReadAt = now
	s.io.Reads++
	s.mu.Unlock()
	return nil
}

// OnLoop implements looper.LoopClient by running the compute step.
func (s *Subsystem[In, Out]) OnLoop(now time.Time) error {
	if s.compute == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.compute(now, s.io.Inputs, &s.io.Demand); err != nil {
		return fmt.Errorf("compute: %w", err)
	}
	return nil
}

// WriteOutputs implements looper.OutputWriter.
func (s *Subsystem[In, Out]) WriteOutputs(now time.Time) error {
	s.mu.Lock()
	demand := s.io.Demand
	s.mu.Unlock()

	if err := s.driver.ApplyDemand(demand); err != nil {
		return fmt.Errorf("apply demand: %w", err)
	}

	s.mu.Lock()
	s.io.WrittenAt = now
	s.io.Writes++
	s.mu.Unlock()
	return nil
}

// OnStop implements looper.LoopClient. When a safe demand is configured it
// becomes the current demand and is applied immediately, even if the stop
// hook fails. Hook and write errors are joined.
func (s *Subsystem[In, Out]) OnStop(now time.Time) error {
	var hookErr error
	if s.onStop != nil {
		hookErr = s.onStop(now)
	}
	if !s.hasSafe {
		return hookErr
	}
	s.mu.Lock()
	s.io.Demand = s.safe
	s.mu.Unlock()
	return errors.Join(hookErr, s.WriteOutputs(now))
}
