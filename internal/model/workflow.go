package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Priority orders workflows and tasks for dispatch. Higher values win.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

// String returns the human-readable priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParsePriority converts a string into a Priority.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low":
		return PriorityLow, nil
	case "normal", "":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return 0, eris.Errorf("unknown priority: %q (valid: low, normal, high, critical)", s)
	}
}

// TaskStatus represents the lifecycle state of a workflow task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the task has reached a final state.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "pending"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

// Terminal reports whether the workflow has reached a final state.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed || s == WorkflowStatusCancelled
}

// Default task tuning values applied by NewTask.
const (
	DefaultMaxRetries     = 3
	DefaultTimeoutSeconds = 30
)

// WorkflowTask is one scanner invocation against one target, with its own
// retry, timeout, and priority settings. Dependencies reference task IDs
// within the same workflow.
type WorkflowTask struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Capability     string         `json:"capability"`
	Target         string         `json:"target"`
	Options        map[string]any `json:"options,omitempty"`
	Priority       Priority       `json:"priority"`
	Dependencies   []string       `json:"dependencies,omitempty"`
	RetryCount     int            `json:"retry_count"`
	MaxRetries     int            `json:"max_retries"`
	TimeoutSeconds int            `json:"timeout_seconds"`
	Status         TaskStatus     `json:"status"`
	Result         any            `json:"result,omitempty"`
	Error          string         `json:"error,omitempty"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// NewTask creates a pending task with defaults applied.
func NewTask(name, capability, target string) *WorkflowTask {
	return &WorkflowTask{
		ID:             uuid.New().String(),
		Name:           name,
		Capability:     capability,
		Target:         target,
		Priority:       PriorityNormal,
		MaxRetries:     DefaultMaxRetries,
		TimeoutSeconds: DefaultTimeoutSeconds,
		Status:         TaskStatusPending,
	}
}

// IntelligenceWorkflow is a named collection of dependent tasks submitted as
// one unit. Task list is append-only after creation; the orchestrator owns
// all mutation after submission.
type IntelligenceWorkflow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Tasks       []*WorkflowTask `json:"tasks"`
	Status      WorkflowStatus  `json:"status"`
	Priority    Priority        `json:"priority"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	OwnerRef    string          `json:"owner_ref,omitempty"`
}

// NewWorkflow creates a pending workflow with a fresh ID.
func NewWorkflow(name, description string) *IntelligenceWorkflow {
	return &IntelligenceWorkflow{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Status:      WorkflowStatusPending,
		Priority:    PriorityNormal,
		CreatedAt:   time.Now().UTC(),
	}
}

// AddTask appends a task to the workflow, applying the workflow priority if
// the task has none of its own.
func (w *IntelligenceWorkflow) AddTask(t *WorkflowTask) {
	if t.Priority == 0 {
		t.Priority = w.Priority
	}
	w.Tasks = append(w.Tasks, t)
}

// Task returns the task with the given ID, or nil.
func (w *IntelligenceWorkflow) Task(id string) *WorkflowTask {
	for _, t := range w.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}
