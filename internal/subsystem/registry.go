package subsystem

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/robotcore/internal/looper"
)

// ErrDuplicateSubsystem rejects a second member under an existing name.
var ErrDuplicateSubsystem = errors.New("subsystem already registered")

// Member is a subsystem the Registry can wire into loopers. *Subsystem
// implements it for any In/Out.
type Member interface {
	Name() string
	looper.LoopClient
	looper.InputReader
	looper.OutputWriter
	Status() Status
}

// Status is a point-in-time view of one subsystem for telemetry and
// dashboards. Inputs and Demand are copies.
type Status struct {
	Name      string
	Inputs    any
	Demand    any
	ReadAt    time.Time
	WrittenAt time.Time
	Reads     uint64
	Writes    uint64
}

// Registrar is the part of *looper.Looper the Registry needs.
type Registrar interface {
	Register(name string, client looper.LoopClient) error
}

// Registry owns the ordered set of subsystems of one robot. Order of Add is
// the tick order in every looper the registry wires.
type Registry struct {
	mu      sync.Mutex
	members []Member
	byName  map[string]Member
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Member)}
}

// Add appends members in order. It stops at the first duplicate name.
func (r *Registry) Add(members ...Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range members {
		if m == nil {
			continue
		}
		if _, ok := r.byName[m.Name()]; ok {
			return fmt.Errorf("add %q: %w", m.Name(), ErrDuplicateSubsystem)
		}
		r.members = append(r.members, m)
		r.byName[m.Name()] = m
	}
	return nil
}

// Get returns the member registered under name.
func (r *Registry) Get(name string) (Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byName[name]
	return m, ok
}

// Names returns member names in order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.members))
	for i, m := range r.members {
		names[i] = m.Name()
	}
	return names
}

func (r *Registry) snapshot() []Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Member, len(r.members))
	copy(out, r.members)
	return out
}

// RegisterEnabledLoops registers every member with full read, compute and
// write phases.
func (r *Registry) RegisterEnabledLoops(l Registrar) error {
	for _, m := range r.snapshot() {
		if err := l.Register(m.Name(), m); err != nil {
			return err
		}
	}
	return nil
}

// RegisterDisabledLoops registers every member read-only: sensors stay fresh
// while nothing is computed or written.
func (r *Registry) RegisterDisabledLoops(l Registrar) error {
	for _, m := range r.snapshot() {
		if err := l.Register(m.Name(), readOnly{m}); err != nil {
			return err
		}
	}
	return nil
}

// Status returns a snapshot of every member in order.
func (r *Registry) Status() []Status {
	members := r.snapshot()
	out := make([]Status, len(members))
	for i, m := range members {
		out[i] = m.Status()
	}
	return out
}

type readOnly struct {
	m Member
}

func (readOnly) OnStart(time.Time) error { return nil }
func (readOnly) OnLoop(time.Time) error  { return nil }
func (readOnly) OnStop(time.Time) error  { return nil }

func (r readOnly) ReadInputs(now time.Time) error {
	return r.m.ReadInputs(now)
}
