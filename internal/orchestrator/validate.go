package orchestrator

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/intel-engine/internal/model"
	"github.com/sells-group/intel-engine/internal/scanner"
)

// validateWorkflow rejects a workflow before it can touch the scheduler:
// empty task list, duplicate task IDs, dependencies referencing task IDs
// outside the workflow, dependency cycles, and unresolved capabilities.
func validateWorkflow(wf *model.IntelligenceWorkflow, registry *scanner.Registry) error {
	if wf == nil {
		return eris.New("orchestrator: nil workflow")
	}
	if len(wf.Tasks) == 0 {
		return eris.Errorf("orchestrator: workflow %q has no tasks", wf.Name)
	}

	ids := make(map[string]bool, len(wf.Tasks))
	for _, t := range wf.Tasks {
		if ids[t.ID] {
			return eris.Errorf("orchestrator: duplicate task id %q in workflow %q", t.ID, wf.Name)
		}
		ids[t.ID] = true
	}

	for _, t := range wf.Tasks {
		for _, dep := range t.Dependencies {
			if !ids[dep] {
				return eris.Errorf("orchestrator: task %q depends on unknown task %q", t.ID, dep)
			}
			if dep == t.ID {
				return eris.Errorf("orchestrator: task %q depends on itself", t.ID)
			}
		}
		if !registry.Has(t.Capability) {
			return eris.Errorf("orchestrator: task %q uses unregistered capability %q", t.ID, t.Capability)
		}
	}

	if cycleID := findDependencyCycle(wf); cycleID != "" {
		return eris.Errorf("orchestrator: dependency cycle involving task %q in workflow %q", cycleID, wf.Name)
	}

	return nil
}

// findDependencyCycle returns the ID of a task on a dependency cycle, or ""
// if the graph is acyclic. A cyclic workflow would otherwise never terminate.
func findDependencyCycle(wf *model.IntelligenceWorkflow) string {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(wf.Tasks))

	var visit func(id string) string
	visit = func(id string) string {
		switch state[id] {
		case visiting:
			return id
		case done:
			return ""
		}
		state[id] = visiting
		if t := wf.Task(id); t != nil {
			for _, dep := range t.Dependencies {
				if hit := visit(dep); hit != "" {
					return hit
				}
			}
		}
		state[id] = done
		return ""
	}

	for _, t := range wf.Tasks {
		if hit := visit(t.ID); hit != "" {
			return hit
		}
	}
	return ""
}
