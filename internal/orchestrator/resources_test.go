package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/intel-engine/internal/model"
)

func TestResourceManagerGlobalLimit(t *testing.T) {
	t.Parallel()

	rm := NewResourceManager(2, 10, nil)
	a := &model.WorkflowTask{ID: "a", Capability: "whois"}
	b := &model.WorkflowTask{ID: "b", Capability: "dns"}
	c := &model.WorkflowTask{ID: "c", Capability: "geo"}

	assert.True(t, rm.CanExecute(a))
	rm.Acquire(a)
	assert.True(t, rm.CanExecute(b))
	rm.Acquire(b)
	assert.False(t, rm.CanExecute(c), "global limit reached")

	rm.Release(a)
	assert.True(t, rm.CanExecute(c))
}

func TestResourceManagerCapabilityLimit(t *testing.T) {
	t.Parallel()

	rm := NewResourceManager(50, 10, map[string]int{"whois": 1})
	a := &model.WorkflowTask{ID: "a", Capability: "whois"}
	b := &model.WorkflowTask{ID: "b", Capability: "whois"}
	c := &model.WorkflowTask{ID: "c", Capability: "dns"}

	rm.Acquire(a)
	assert.False(t, rm.CanExecute(b), "whois limited to 1")
	assert.True(t, rm.CanExecute(c), "other capabilities unaffected")

	rm.Release(a)
	assert.True(t, rm.CanExecute(b))
}

func TestResourceManagerPlannedReservations(t *testing.T) {
	t.Parallel()

	rm := NewResourceManager(50, 10, map[string]int{"whois": 2})
	a := &model.WorkflowTask{ID: "a", Capability: "whois"}

	assert.True(t, rm.CanExecutePlanned(a, 0, 0))
	assert.True(t, rm.CanExecutePlanned(a, 1, 1))
	assert.False(t, rm.CanExecutePlanned(a, 2, 2), "planned batch fills the capability limit")
}

func TestResourceManagerReleaseClampsAtZero(t *testing.T) {
	t.Parallel()

	rm := NewResourceManager(5, 5, nil)
	a := &model.WorkflowTask{ID: "a", Capability: "whois"}

	rm.Release(a)
	rm.Release(a)
	global, byCap := rm.Usage()
	assert.Zero(t, global)
	assert.Zero(t, byCap["whois"])
}

func TestResourceManagerUsageSnapshot(t *testing.T) {
	t.Parallel()

	rm := NewResourceManager(5, 5, nil)
	a := &model.WorkflowTask{ID: "a", Capability: "whois"}
	b := &model.WorkflowTask{ID: "b", Capability: "dns"}
	rm.Acquire(a)
	rm.Acquire(b)

	global, byCap := rm.Usage()
	assert.Equal(t, 2, global)
	assert.Equal(t, 1, byCap["whois"])
	assert.Equal(t, 1, byCap["dns"])

	// Mutating the snapshot must not affect internal state.
	byCap["whois"] = 99
	_, fresh := rm.Usage()
	assert.Equal(t, 1, fresh["whois"])
}
