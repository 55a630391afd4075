package orchestrator

import (
	"sync"

	"github.com/sells-group/intel-engine/internal/model"
)

// ResourceManager tracks global and per-capability active-task counts and
// gatekeeps dispatch. All methods are safe for concurrent use.
type ResourceManager struct {
	mu sync.Mutex

	maxConcurrent int
	defaultLimit  int
	limits        map[string]int

	globalActive int
	byCapability map[string]int
}

// NewResourceManager creates a resource manager. Capabilities absent from
// limits fall back to defaultLimit.
func NewResourceManager(maxConcurrent, defaultLimit int, limits map[string]int) *ResourceManager {
	if maxConcurrent <= 0 {
		maxConcurrent = 50
	}
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	return &ResourceManager{
		maxConcurrent: maxConcurrent,
		defaultLimit:  defaultLimit,
		limits:        limits,
		byCapability:  make(map[string]int),
	}
}

func (rm *ResourceManager) capabilityLimit(capability string) int {
	if n, ok := rm.limits[capability]; ok && n > 0 {
		return n
	}
	return rm.defaultLimit
}

// CanExecute reports whether a task may be dispatched right now.
func (rm *ResourceManager) CanExecute(t *model.WorkflowTask) bool {
	return rm.CanExecutePlanned(t, 0, 0)
}

// CanExecutePlanned is CanExecute with additional not-yet-acquired
// reservations counted in, so the scheduler can respect limits across a
// whole batch before any slot is acquired.
func (rm *ResourceManager) CanExecutePlanned(t *model.WorkflowTask, plannedGlobal, plannedCapability int) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.globalActive+plannedGlobal >= rm.maxConcurrent {
		return false
	}
	if rm.byCapability[t.Capability]+plannedCapability >= rm.capabilityLimit(t.Capability) {
		return false
	}
	return true
}

// Acquire takes a slot for the task's capability.
func (rm *ResourceManager) Acquire(t *model.WorkflowTask) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.globalActive++
	rm.byCapability[t.Capability]++
}

// Release frees the task's slot. Counts are clamped at zero so a duplicate
// release can never go negative.
func (rm *ResourceManager) Release(t *model.WorkflowTask) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.globalActive > 0 {
		rm.globalActive--
	}
	if rm.byCapability[t.Capability] > 0 {
		rm.byCapability[t.Capability]--
	}
}

// Usage returns the current global count and a copy of per-capability counts.
func (rm *ResourceManager) Usage() (global int, byCapability map[string]int) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	out := make(map[string]int, len(rm.byCapability))
	for k, v := range rm.byCapability {
		out[k] = v
	}
	return rm.globalActive, out
}
