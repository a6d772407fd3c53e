// Package ir defines the intermediate representation shared by the
// manifest compiler, the engine, and the store.
//
// The IR is deliberately constrained: task arguments and outputs are
// limited to strings, 64-bit integers, booleans, arrays, and objects.
// Floats and nulls are rejected at every boundary because they break
// deterministic serialization, and determinism is what makes run
// replay and content-addressed identity possible.
//
// All identity hashes are computed over RFC 8785 canonical JSON with
// domain separation, so the same bytes can never collide across record
// kinds.
package ir
