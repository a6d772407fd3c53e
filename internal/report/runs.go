package report

import (
	"context"
	"fmt"
	"sort"

	"github.com/droverhq/drover/internal/ir"
	"github.com/droverhq/drover/internal/store"
)

// Runs summarizes every recorded run, newest last.
func Runs(ctx context.Context, st *store.Store) (ir.Object, error) {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("runs report: %w", err)
	}

	list := make(ir.Array, 0, len(runs))
	byStatus := ir.Object{}
	for _, r := range runs {
		if n, ok := byStatus[r.Status].(ir.Int); ok {
			byStatus[r.Status] = n + 1
		} else {
			byStatus[r.Status] = ir.Int(1)
		}
		list = append(list, ir.Object{
			"token":       ir.String(r.Token),
			"pipeline":    ir.String(r.Pipeline),
			"status":      ir.String(r.Status),
			"started_seq": ir.Int(r.StartedSeq),
		})
	}

	return ir.Object{
		"report":    ir.String("runs"),
		"total":     ir.Int(int64(len(runs))),
		"by_status": byStatus,
		"runs":      list,
	}, nil
}

// RunTrace rebuilds the event timeline for one run: invocations and
// results interleaved in sequence order. Wall-time fields are left
// out so the same run always traces to the same bytes.
func RunTrace(ctx context.Context, st *store.Store, token string) (ir.Object, error) {
	run, err := st.ReadRun(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("trace report: %w", err)
	}
	invs, results, err := st.ReadRunEvents(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("trace report: %w", err)
	}

	type event struct {
		seq int64
		id  string
		obj ir.Object
	}
	events := make([]event, 0, len(invs)+len(results))
	for _, inv := range invs {
		obj := ir.Object{
			"type": ir.String("invocation"),
			"seq":  ir.Int(inv.Seq),
			"id":   ir.String(inv.ID),
			"task": ir.String(string(inv.TaskURI)),
		}
		if len(inv.Args) > 0 {
			obj["args"] = inv.Args
		}
		events = append(events, event{inv.Seq, inv.ID, obj})
	}
	for _, res := range results {
		obj := ir.Object{
			"type":          ir.String("result"),
			"seq":           ir.Int(res.Seq),
			"id":            ir.String(res.ID),
			"invocation_id": ir.String(res.InvocationID),
			"status":        ir.String(res.Status),
			"attempts":      ir.Int(res.Attempts),
		}
		if len(res.Output) > 0 {
			obj["output"] = res.Output
		}
		if res.Error != "" {
			obj["error"] = ir.String(res.Error)
		}
		events = append(events, event{res.Seq, res.ID, obj})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].seq != events[j].seq {
			return events[i].seq < events[j].seq
		}
		return events[i].id < events[j].id
	})

	timeline := make(ir.Array, len(events))
	for i, ev := range events {
		timeline[i] = ev.obj
	}
	return ir.Object{
		"report": ir.String("trace"),
		"run": ir.Object{
			"token":       ir.String(run.Token),
			"pipeline":    ir.String(run.Pipeline),
			"status":      ir.String(run.Status),
			"started_seq": ir.Int(run.StartedSeq),
		},
		"timeline": timeline,
	}, nil
}
