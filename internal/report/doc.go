// Package report renders the system's standard JSON documents: run
// listings, run traces, health summaries, revenue and betting
// rollups.
//
// Every document is an ir.Object serialized as canonical JSON, so the
// same state always produces identical bytes. That keeps reports
// diffable and golden-testable; it also means values that would be
// floats (probe readings) are carried in hundredths.
package report
