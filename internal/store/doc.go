// Package store provides SQLite-backed durable storage for telemetry events.
//
// The store is an append-only event log. Every telemetry.Event becomes one
// row in the events table; traces are read back ordered by seq (the
// Sequencer's total order), never by timestamp.
//
// # Writing from the control loop
//
// The tick goroutine must never wait on disk. Sink implements
// telemetry.Sink with a bounded queue and one writer goroutine that commits
// events in batches. A full queue drops events and counts them; Close drains
// whatever was queued.
//
// # Database Configuration
//
//   - WAL mode: traces can be read while a run is writing
//   - synchronous=NORMAL
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// Events with a non-zero seq are unique; writing the same sequenced stream
// twice stores it once.
package store
