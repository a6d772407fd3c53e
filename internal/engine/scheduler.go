package engine

import (
	"sort"

	"github.com/droverhq/drover/internal/ir"
)

// scheduler tracks dependency readiness for one run.
//
// It keeps a remaining-dependency count per task plus reverse edges
// (dependency -> dependents), so each completion touches only the
// completed task's dependents: O(V+E) over the whole run instead of
// rescanning every pending task per completion.
//
// Not safe for concurrent use; only the Run loop touches it.
type scheduler struct {
	spec ir.PipelineSpec

	remaining  map[string]int      // task -> unresolved dependency count
	dependents map[string][]string // task -> tasks waiting on it
	status     map[string]string   // task -> current status
}

// newScheduler builds readiness state from a compiled pipeline.
// The manifest validator has already rejected unknown references and
// cycles, so the graph here is a DAG.
func newScheduler(spec ir.PipelineSpec) *scheduler {
	s := &scheduler{
		spec:       spec,
		remaining:  make(map[string]int, len(spec.Tasks)),
		dependents: make(map[string][]string),
		status:     make(map[string]string, len(spec.Tasks)),
	}
	for _, t := range spec.Tasks {
		s.remaining[t.Name] = len(t.After)
		s.status[t.Name] = ir.StatusPending
		for _, dep := range t.After {
			s.dependents[dep] = append(s.dependents[dep], t.Name)
		}
	}
	return s
}

// InitialReady returns tasks with no dependencies, in declaration order.
func (s *scheduler) InitialReady() []ir.TaskSpec {
	var ready []ir.TaskSpec
	for _, t := range s.spec.Tasks {
		if len(t.After) == 0 {
			ready = append(ready, t)
		}
	}
	return ready
}

// MarkRunning records a task as dispatched.
func (s *scheduler) MarkRunning(task string) {
	s.status[task] = ir.StatusRunning
}

// MarkDone records a terminal status and returns the tasks released by
// a success, in declaration order of the pipeline.
func (s *scheduler) MarkDone(task, status string) []ir.TaskSpec {
	s.status[task] = status
	if status != ir.StatusSucceeded {
		return nil
	}

	var released []string
	for _, dep := range s.dependents[task] {
		s.remaining[dep]--
		if s.remaining[dep] == 0 && s.status[dep] == ir.StatusPending {
			released = append(released, dep)
		}
	}
	if len(released) == 0 {
		return nil
	}

	// Declaration order keeps equal-priority dispatch deterministic
	order := make(map[string]int, len(s.spec.Tasks))
	for i, t := range s.spec.Tasks {
		order[t.Name] = i
	}
	sort.Slice(released, func(i, j int) bool {
		return order[released[i]] < order[released[j]]
	})

	ready := make([]ir.TaskSpec, 0, len(released))
	for _, name := range released {
		if t := s.spec.Task(name); t != nil {
			ready = append(ready, *t)
		}
	}
	return ready
}

// SkipDependents transitively marks every pending task that can no
// longer run because of the failed task. Returns the skipped task
// names in declaration order.
func (s *scheduler) SkipDependents(failed string) []string {
	skipped := []string{}
	frontier := []string{failed}
	for len(frontier) > 0 {
		next := []string{}
		for _, name := range frontier {
			for _, dep := range s.dependents[name] {
				if s.status[dep] == ir.StatusPending {
					s.status[dep] = ir.StatusSkipped
					skipped = append(skipped, dep)
					next = append(next, dep)
				}
			}
		}
		frontier = next
	}

	order := make(map[string]int, len(s.spec.Tasks))
	for i, t := range s.spec.Tasks {
		order[t.Name] = i
	}
	sort.Slice(skipped, func(i, j int) bool {
		return order[skipped[i]] < order[skipped[j]]
	})
	return skipped
}

// SkipPending force-skips every task not yet terminal. Used when a run
// terminates early (quota exceeded, cancellation). Returns the skipped
// names in declaration order.
func (s *scheduler) SkipPending() []string {
	skipped := []string{}
	for _, t := range s.spec.Tasks {
		if s.status[t.Name] == ir.StatusPending || s.status[t.Name] == ir.StatusRunning {
			// Running tasks keep their in-flight attempt; the run is
			// already failed so their result no longer changes it.
			if s.status[t.Name] == ir.StatusPending {
				s.status[t.Name] = ir.StatusSkipped
				skipped = append(skipped, t.Name)
			}
		}
	}
	return skipped
}

// Status returns a task's current status.
func (s *scheduler) Status(task string) string {
	return s.status[task]
}

// AllTerminal reports whether every task reached a terminal status.
func (s *scheduler) AllTerminal() bool {
	for _, t := range s.spec.Tasks {
		if !ir.TerminalStatuses[s.status[t.Name]] {
			return false
		}
	}
	return true
}

// Succeeded reports whether every task succeeded.
func (s *scheduler) Succeeded() bool {
	for _, t := range s.spec.Tasks {
		if s.status[t.Name] != ir.StatusSucceeded {
			return false
		}
	}
	return true
}
