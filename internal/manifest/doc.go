// Package manifest compiles CUE pipeline manifests into IR.
//
// Manifests declare pipelines as structs under the top-level
// "pipeline" field:
//
//	pipeline: deploy: {
//		description: "build and ship"
//		task: build: {
//			kind: "exec"
//			params: command: "npm run build"
//			priority: 7
//			timeout: "5m"
//		}
//		task: verify: {
//			kind: "http"
//			params: url: "https://example.com/healthz"
//			after: ["build"]
//		}
//		notify: on_failure: ["ops"]
//	}
//
// Compilation validates field types and bounds, resolves defaults,
// and rejects manifests whose dependency graph contains a cycle.
// A rejected manifest never reaches the engine.
package manifest
