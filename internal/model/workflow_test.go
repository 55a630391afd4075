package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriority(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"low", PriorityLow, false},
		{"normal", PriorityNormal, false},
		{"", PriorityNormal, false},
		{"high", PriorityHigh, false},
		{"critical", PriorityCritical, false},
		{"urgent", 0, true},
		{"HIGH", 0, true},
	}

	for _, tc := range cases {
		got, err := ParsePriority(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestPriorityString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "low", PriorityLow.String())
	assert.Equal(t, "normal", PriorityNormal.String())
	assert.Equal(t, "critical", PriorityCritical.String())
	assert.Equal(t, "unknown", Priority(9).String())
}

func TestNewTaskDefaults(t *testing.T) {
	t.Parallel()

	task := NewTask("validate contact", "email_validation", "a@b.com")
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, TaskStatusPending, task.Status)
	assert.Equal(t, PriorityNormal, task.Priority)
	assert.Equal(t, DefaultMaxRetries, task.MaxRetries)
	assert.Equal(t, DefaultTimeoutSeconds, task.TimeoutSeconds)
	assert.Zero(t, task.RetryCount)
	assert.Nil(t, task.StartedAt)
	assert.Nil(t, task.CompletedAt)
}

func TestWorkflowAddAndLookup(t *testing.T) {
	t.Parallel()

	wf := NewWorkflow("probe", "basic probe")
	assert.Equal(t, WorkflowStatusPending, wf.Status)
	assert.Equal(t, PriorityNormal, wf.Priority)
	assert.False(t, wf.CreatedAt.IsZero())

	a := NewTask("a", "target_echo", "x")
	b := NewTask("b", "target_echo", "y")
	wf.AddTask(a)
	wf.AddTask(b)

	require.Len(t, wf.Tasks, 2)
	assert.Same(t, a, wf.Task(a.ID))
	assert.Same(t, b, wf.Task(b.ID))
	assert.Nil(t, wf.Task("missing"))
}

func TestAddTaskInheritsWorkflowPriority(t *testing.T) {
	t.Parallel()

	wf := NewWorkflow("urgent probe", "")
	wf.Priority = PriorityCritical

	inherits := &WorkflowTask{ID: "raw", Capability: "target_echo"}
	wf.AddTask(inherits)
	assert.Equal(t, PriorityCritical, inherits.Priority)

	keeps := NewTask("own", "target_echo", "x")
	keeps.Priority = PriorityLow
	wf.AddTask(keeps)
	assert.Equal(t, PriorityLow, keeps.Priority)
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, TaskStatusCompleted.Terminal())
	assert.True(t, TaskStatusFailed.Terminal())
	assert.True(t, TaskStatusCancelled.Terminal())
	assert.False(t, TaskStatusPending.Terminal())
	assert.False(t, TaskStatusRunning.Terminal())

	assert.True(t, WorkflowStatusCompleted.Terminal())
	assert.True(t, WorkflowStatusFailed.Terminal())
	assert.False(t, WorkflowStatusRunning.Terminal())
	assert.False(t, WorkflowStatusPending.Terminal())
}
