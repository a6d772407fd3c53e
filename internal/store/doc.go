// Package store provides SQLite-backed durable storage for Drover event logs.
//
// The store implements an append-only log with:
//   - Runs: one record per pipeline execution
//   - Invocations: task invocation records (content-addressed)
//   - Results: terminal task outcomes (one per invocation, UNIQUE enforced)
//   - Attempts: per-attempt execution records including retries
//
// plus operational tables for the surrounding services: health samples,
// alerts, delivered notifications, payment webhook events, transactions,
// bets and revenue platforms.
//
// Invariants the store enforces:
//   - All ordering uses seq INTEGER (logical clock), never timestamps.
//     This makes replay deterministic regardless of wall time.
//   - All event-log queries order by: seq ASC, id COLLATE BINARY ASC.
//   - Writes with content-addressed identity use ON CONFLICT DO NOTHING,
//     so re-writing the same event during replay is a no-op.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// Content-addressed IDs are computed via functions in internal/ir/hash.go
// using RFC 8785 canonical JSON and SHA-256 with domain separation.
package store
