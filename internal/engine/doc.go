// Package engine implements the single-writer orchestration loop.
//
// The engine processes events in a single goroutine: run submissions,
// tasks becoming ready, and task completions. All store mutations happen
// in that goroutine; worker goroutines execute task attempts and post
// their outcomes back as events. This keeps the event log free of write
// races without row locking.
//
// Scheduling is dependency-driven. A task becomes ready when every task
// in its after list has succeeded; ready tasks are ordered by (priority
// desc, seq asc) in a binary heap. Failed dependencies mark their
// dependents skipped rather than leaving them pending forever.
//
// Two guards bound execution:
//   - QuotaEnforcer: caps executed attempts per run (linear explosions)
//   - CycleDetector: rejects re-dispatch of an identical (task, args)
//     pair within a run (recursive patterns)
//
// Compile-time cycle rejection in internal/manifest is the first line of
// defense; the runtime detector catches cycles introduced through
// dynamic argument construction.
//
// All events are stamped with a strictly increasing logical sequence
// number. Replay resumes the clock from the store's high-water mark and
// re-dispatches only invocations without results.
package engine
