// Package ledger persists the delivery queue and progress counters in SQLite.
//
// The Store owns the ordered mapping from artifact id to queued-item metadata
// plus the two monotonically-nondecreasing counters (total produced, total
// delivered). Insertion order is the drain order. Every mutating operation
// commits its transaction before returning, so an acknowledged write survives
// a crash. Counter updates ride in the same transaction as the queue mutation
// they belong to: a new row bumps produced, a confirmed delivery removes the
// row and bumps delivered atomically.
//
// Treat this package as the single source of truth for queue semantics; the
// schema lives in schema.sql and version bumps require clearing the database.
package ledger
