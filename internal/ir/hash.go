package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix
// leaves room for algorithm migration without ambiguity.
const (
	DomainInvocation = "drover/invocation/v1"
	DomainResult     = "drover/result/v1"
	DomainArgs       = "drover/args/v1"
	DomainSpec       = "drover/spec/v1"
)

// hashWithDomain computes SHA-256 over domain || 0x00 || data.
// The null separator prevents boundary ambiguity between domains.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// InvocationID computes the content-addressed ID for an invocation.
// Given identical inputs the ID is stable across restarts and replays,
// which is what makes duplicate writes safe to drop.
func InvocationID(runToken string, taskURI TaskRef, args Object, seq int64) (string, error) {
	obj := Object{
		"run_token": String(runToken),
		"task_uri":  String(taskURI),
		"args":      args,
		"seq":       Int(seq),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("InvocationID: %w", err)
	}
	return hashWithDomain(DomainInvocation, canonical), nil
}

// ResultID computes the content-addressed ID for a result, linked to
// the invocation it terminates.
func ResultID(invocationID, status string, output Object, seq int64) (string, error) {
	obj := Object{
		"invocation_id": String(invocationID),
		"status":        String(status),
		"output":        output,
		"seq":           Int(seq),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ResultID: %w", err)
	}
	return hashWithDomain(DomainResult, canonical), nil
}

// ArgsHash computes a hash over task arguments. The engine's runtime
// cycle guard keys on (task, args hash) within a run.
func ArgsHash(args Object) (string, error) {
	canonical, err := MarshalCanonical(args)
	if err != nil {
		return "", fmt.Errorf("ArgsHash: %w", err)
	}
	return hashWithDomain(DomainArgs, canonical), nil
}

// SpecHash computes a hash over a compiled pipeline spec. Every
// invocation carries the hash of the spec it was generated from, so
// traces remain attributable after manifests change.
func SpecHash(p PipelineSpec) (string, error) {
	tasks := make(Array, len(p.Tasks))
	for i, t := range p.Tasks {
		after := make(Array, len(t.After))
		for j, a := range t.After {
			after[j] = String(a)
		}
		tasks[i] = Object{
			"name":       String(t.Name),
			"kind":       String(t.Kind),
			"params":     t.Params,
			"priority":   Int(int64(t.Priority)),
			"timeout_ms": Int(t.TimeoutMS),
			"retry": Object{
				"max_attempts":   Int(int64(t.Retry.MaxAttempts)),
				"base_ms":        Int(t.Retry.BaseMS),
				"multiplier":     Int(t.Retry.Multiplier),
				"max_backoff_ms": Int(t.Retry.MaxBackoffMS),
			},
			"after":     after,
			"cpu_heavy": Bool(t.CPUHeavy),
		}
	}
	obj := Object{
		"name":  String(p.Name),
		"tasks": tasks,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("SpecHash: %w", err)
	}
	return hashWithDomain(DomainSpec, canonical), nil
}
