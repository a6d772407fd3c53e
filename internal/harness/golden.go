package harness

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/droverhq/drover/internal/ir"
)

// Snapshot renders a result's trace as canonical JSON. Identical
// scenario executions produce identical bytes.
func Snapshot(scenarioName string, res *Result) ([]byte, error) {
	trace := make(ir.Array, len(res.Trace))
	for i, ev := range res.Trace {
		obj := ir.Object{
			"type": ir.String(ev.Type),
			"seq":  ir.Int(ev.Seq),
		}
		if ev.Task != "" {
			obj["task"] = ir.String(ev.Task)
		}
		if len(ev.Args) > 0 {
			obj["args"] = ev.Args
		}
		if ev.Status != "" {
			obj["status"] = ir.String(ev.Status)
		}
		if len(ev.Output) > 0 {
			obj["output"] = ev.Output
		}
		if ev.Error != "" {
			obj["error"] = ir.String(ev.Error)
		}
		if ev.Attempts > 0 {
			obj["attempts"] = ir.Int(ev.Attempts)
		}
		trace[i] = obj
	}

	doc := ir.Object{
		"scenario":   ir.String(scenarioName),
		"run_token":  ir.String(res.RunToken),
		"run_status": ir.String(res.RunStatus),
		"trace":      trace,
	}
	data, err := ir.MarshalCanonical(doc)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", scenarioName, err)
	}
	return data, nil
}

// RunWithGolden executes a scenario and pins its trace against
// testdata/golden/<name>.golden. Regenerate with go test -update.
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	res, err := Run(scenario)
	if err != nil {
		t.Fatalf("run scenario %s: %v", scenario.Name, err)
	}

	data, err := Snapshot(scenario.Name, res)
	if err != nil {
		t.Fatalf("snapshot scenario %s: %v", scenario.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return res
}
