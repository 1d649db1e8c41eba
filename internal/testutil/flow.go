package testutil

import (
	"fmt"
	"sync"
)

// SequentialRunIDs generates predictable run IDs: "<prefix>-1", "<prefix>-2", ...
//
// This enables deterministic traces and golden snapshot comparison. Unlike
// routine.FixedGenerator it never runs out, which suits scenarios that start
// an unknown number of routines.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialRunIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialRunIDs creates a generator. An empty prefix means "run".
func NewSequentialRunIDs(prefix string) *SequentialRunIDs {
	if prefix == "" {
		prefix = "run"
	}
	return &SequentialRunIDs{prefix: prefix}
}

// Generate returns the next run ID.
//
// Implements routine.RunIDGenerator.
func (g *SequentialRunIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
