package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario defines one end-to-end pipeline test.
type Scenario struct {
	// Name uniquely identifies this scenario; golden files are named
	// after it.
	Name string `yaml:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description"`

	// Manifests is the CUE manifest directory, relative to the
	// scenario file.
	Manifests string `yaml:"manifests"`

	// Pipeline is the pipeline to submit.
	Pipeline string `yaml:"pipeline"`

	// RunToken is the fixed run token. Defaults to "scenario-run" so
	// golden traces stay stable.
	RunToken string `yaml:"run_token,omitempty"`

	// Outputs scripts the runner per task. Tasks without an entry
	// succeed with an empty output.
	Outputs []OutputStep `yaml:"outputs,omitempty"`

	// ExpectStatus is the run's expected terminal status. Optional;
	// checked before assertions when set.
	ExpectStatus string `yaml:"expect_status,omitempty"`

	// Assertions validate the final trace and run.
	Assertions []Assertion `yaml:"assertions"`
}

// OutputStep scripts the runner result for one task.
type OutputStep struct {
	// Task is the task name within the submitted pipeline.
	Task string `yaml:"task"`

	// Output is the object a successful attempt returns.
	Output map[string]any `yaml:"output,omitempty"`

	// Fail makes attempts fail with this error message. With
	// FailTimes zero every attempt fails; otherwise only the first
	// FailTimes attempts fail and later ones succeed with Output.
	Fail      string `yaml:"fail,omitempty"`
	FailTimes int    `yaml:"fail_times,omitempty"`
}

// Assertion validates the trace or the finished run.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count,
	// final_status.
	Type string `yaml:"type"`

	// Task names the task (trace_contains, trace_count).
	Task string `yaml:"task,omitempty"`

	// Args is a subset match on invocation args (trace_contains).
	Args map[string]any `yaml:"args,omitempty"`

	// Tasks is the expected invocation order (trace_order).
	Tasks []string `yaml:"tasks,omitempty"`

	// Count is the expected number of invocations (trace_count).
	Count int `yaml:"count,omitempty"`

	// Status is the expected run status (final_status).
	Status string `yaml:"status,omitempty"`
}

// Assertion type names.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalStatus   = "final_status"
)

// DefaultRunToken is used when a scenario does not fix its own.
const DefaultRunToken = "scenario-run"

// LoadScenario reads and validates a scenario file. The manifest path
// is resolved relative to the scenario file's directory. Unknown YAML
// fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scenario Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	if scenario.Manifests != "" && !filepath.IsAbs(scenario.Manifests) {
		scenario.Manifests = filepath.Join(filepath.Dir(path), scenario.Manifests)
	}

	if err := scenario.validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &scenario, nil
}

// FindScenarios returns all scenario files (*.yaml, *.yml) in a
// directory, sorted by name.
func FindScenarios(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan scenarios: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Manifests == "" {
		return fmt.Errorf("manifests is required")
	}
	if _, err := os.Stat(s.Manifests); os.IsNotExist(err) {
		return fmt.Errorf("manifest directory not found: %s", s.Manifests)
	}
	if s.Pipeline == "" {
		return fmt.Errorf("pipeline is required")
	}
	if s.RunToken == "" {
		s.RunToken = DefaultRunToken
	}
	if strings.TrimSpace(s.RunToken) != s.RunToken || s.RunToken == "" {
		return fmt.Errorf("run_token must not have surrounding whitespace")
	}

	switch s.ExpectStatus {
	case "", "succeeded", "failed":
	default:
		return fmt.Errorf("expect_status must be succeeded or failed, got %q", s.ExpectStatus)
	}

	seen := make(map[string]bool, len(s.Outputs))
	for i, step := range s.Outputs {
		if step.Task == "" {
			return fmt.Errorf("outputs[%d]: task is required", i)
		}
		if seen[step.Task] {
			return fmt.Errorf("outputs[%d]: duplicate task %q", i, step.Task)
		}
		seen[step.Task] = true
		if step.FailTimes < 0 {
			return fmt.Errorf("outputs[%d]: fail_times must not be negative", i)
		}
		if step.FailTimes > 0 && step.Fail == "" {
			return fmt.Errorf("outputs[%d]: fail_times without fail", i)
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		if a.Task == "" {
			return fmt.Errorf("assertions[%d]: task is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Tasks) == 0 {
			return fmt.Errorf("assertions[%d]: tasks list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Task == "" {
			return fmt.Errorf("assertions[%d]: task is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must not be negative", index)
		}
	case AssertFinalStatus:
		if a.Status != "succeeded" && a.Status != "failed" {
			return fmt.Errorf("assertions[%d]: status must be succeeded or failed for final_status", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
