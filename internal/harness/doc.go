// Package harness runs end-to-end pipeline scenarios against the real
// engine.
//
// A scenario is a YAML file naming a manifest directory, a pipeline to
// submit, scripted runner outputs per task, and assertions over the
// resulting event log. Scenarios execute in a fresh database with a
// fixed run token, a single worker and no retry jitter, so the same
// scenario always produces the same trace; golden snapshots pin the
// trace bytes in canonical JSON.
package harness
