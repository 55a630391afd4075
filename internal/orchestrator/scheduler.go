package orchestrator

import (
	"sort"
	"time"

	"github.com/sells-group/intel-engine/internal/model"
	"github.com/sells-group/intel-engine/internal/resilience"
)

// Scheduler holds the pending, active, and completed workflow sets and
// computes the next batch of dependency-satisfied, resource-available tasks.
// Not safe for concurrent use on its own; the Engine serializes all access.
type Scheduler struct {
	resources *ResourceManager
	clock     resilience.Clock

	pending   []*model.IntelligenceWorkflow
	active    map[string]*model.IntelligenceWorkflow
	completed map[string]*model.IntelligenceWorkflow

	// eligibleAt delays retried tasks until their backoff has elapsed.
	eligibleAt map[string]time.Time
}

// NewScheduler creates an empty scheduler.
func NewScheduler(resources *ResourceManager, clock resilience.Clock) *Scheduler {
	if clock == nil {
		clock = resilience.SystemClock{}
	}
	return &Scheduler{
		resources:  resources,
		clock:      clock,
		active:     make(map[string]*model.IntelligenceWorkflow),
		completed:  make(map[string]*model.IntelligenceWorkflow),
		eligibleAt: make(map[string]time.Time),
	}
}

// AddWorkflow appends a workflow to the pending set and re-sorts it by
// priority (descending) then creation time (ascending).
func (s *Scheduler) AddWorkflow(wf *model.IntelligenceWorkflow) {
	s.pending = append(s.pending, wf)
	sort.SliceStable(s.pending, func(i, j int) bool {
		if s.pending[i].Priority != s.pending[j].Priority {
			return s.pending[i].Priority > s.pending[j].Priority
		}
		return s.pending[i].CreatedAt.Before(s.pending[j].CreatedAt)
	})
}

// Workflow looks a workflow up across all three sets.
func (s *Scheduler) Workflow(id string) *model.IntelligenceWorkflow {
	if wf, ok := s.active[id]; ok {
		return wf
	}
	if wf, ok := s.completed[id]; ok {
		return wf
	}
	for _, wf := range s.pending {
		if wf.ID == id {
			return wf
		}
	}
	return nil
}

// DelayTask schedules the earliest time a retried task may be offered again.
func (s *Scheduler) DelayTask(taskID string, until time.Time) {
	s.eligibleAt[taskID] = until
}

// NextExecutableTasks returns the tasks that are ready to dispatch now:
// status pending, all dependencies completed, past any retry backoff, and
// within resource limits. Workflows are drained in priority order; tasks
// within a workflow are offered in declaration order. The first time a
// pending workflow yields a dispatchable task it is promoted to active.
func (s *Scheduler) NextExecutableTasks() []*model.WorkflowTask {
	now := s.clock.Now()

	// Pending and active workflows compete in one priority-ordered view.
	candidates := make([]*model.IntelligenceWorkflow, 0, len(s.pending)+len(s.active))
	candidates = append(candidates, s.pending...)
	for _, wf := range s.active {
		candidates = append(candidates, wf)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	var batch []*model.WorkflowTask
	plannedGlobal := 0
	plannedByCap := make(map[string]int)

	for _, wf := range candidates {
		promoted := false
		for _, t := range wf.Tasks {
			if t.Status != model.TaskStatusPending {
				continue
			}
			if !s.dependenciesMet(wf, t) {
				continue
			}
			if until, ok := s.eligibleAt[t.ID]; ok && now.Before(until) {
				continue
			}
			if !s.resources.CanExecutePlanned(t, plannedGlobal, plannedByCap[t.Capability]) {
				continue
			}

			batch = append(batch, t)
			plannedGlobal++
			plannedByCap[t.Capability]++
			delete(s.eligibleAt, t.ID)

			if !promoted && wf.Status == model.WorkflowStatusPending {
				s.promote(wf, now)
				promoted = true
			}
		}
	}

	return batch
}

func (s *Scheduler) dependenciesMet(wf *model.IntelligenceWorkflow, t *model.WorkflowTask) bool {
	for _, depID := range t.Dependencies {
		dep := wf.Task(depID)
		if dep == nil || dep.Status != model.TaskStatusCompleted {
			return false
		}
	}
	return true
}

func (s *Scheduler) promote(wf *model.IntelligenceWorkflow, now time.Time) {
	for i, p := range s.pending {
		if p.ID == wf.ID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	wf.Status = model.WorkflowStatusRunning
	started := now
	wf.StartedAt = &started
	s.active[wf.ID] = wf
}

// Active returns the active workflow set.
func (s *Scheduler) Active() map[string]*model.IntelligenceWorkflow {
	return s.active
}

// MarkDone moves a workflow from pending/active into the completed set.
func (s *Scheduler) MarkDone(wf *model.IntelligenceWorkflow) {
	for i, p := range s.pending {
		if p.ID == wf.ID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	delete(s.active, wf.ID)
	for _, t := range wf.Tasks {
		delete(s.eligibleAt, t.ID)
	}
	s.completed[wf.ID] = wf
}

// Remove drops a completed workflow so it can be garbage-collected after the
// caller has read its outcome. Returns the workflow, or nil if not completed.
func (s *Scheduler) Remove(id string) *model.IntelligenceWorkflow {
	wf, ok := s.completed[id]
	if !ok {
		return nil
	}
	delete(s.completed, id)
	return wf
}
