// Package store provides SQLite-backed durable storage for published
// builds: the lock file that enforces the append-only discriminator
// contract across compiles.
//
// The store keeps:
//   - Builds: one row per recorded compile with its IR hash and document
//   - Published instructions: name, discriminator and instruction hash of
//     every instruction in a build
//
// # Ordering
//
// Builds of a program are ordered by seq, a per-program logical counter,
// never by wall time. Queries order by seq ASC, id ASC COLLATE BINARY so
// results are identical across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
