// Package orchestrator implements the dependency-aware, priority-ordered,
// resource-bounded workflow engine that dispatches scanner capabilities.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/intel-engine/internal/config"
	"github.com/sells-group/intel-engine/internal/model"
	"github.com/sells-group/intel-engine/internal/resilience"
	"github.com/sells-group/intel-engine/internal/scanner"
)

// RunRecorder persists workflow lifecycle milestones. Implementations are
// optional; recording failures are logged and never affect scheduling.
type RunRecorder interface {
	RecordSubmitted(ctx context.Context, wf *model.IntelligenceWorkflow) error
	RecordTerminal(ctx context.Context, wf *model.IntelligenceWorkflow) error
}

// Engine drives the polling loop: pulls ready batches from the scheduler,
// dispatches them concurrently to scanner capabilities under per-task
// timeouts, applies retry with capped exponential backoff, tracks rolling
// per-capability metrics, and emits lifecycle events.
type Engine struct {
	cfg       config.OrchestratorConfig
	registry  *scanner.Registry
	resources *ResourceManager
	metrics   *MetricsWindow
	notifier  *Notifier
	breakers  *resilience.CapabilityBreakers
	clock     resilience.Clock
	recorder  RunRecorder

	mu       sync.Mutex
	sched    *Scheduler
	inflight map[string]context.CancelFunc
	limiters map[string]*rate.Limiter

	wg sync.WaitGroup
}

// NewEngine creates an engine owning its scheduler, resource manager, and
// metrics state. Multiple engines can coexist; nothing is process-global.
func NewEngine(cfg config.OrchestratorConfig, registry *scanner.Registry) *Engine {
	clock := resilience.SystemClock{}
	resources := NewResourceManager(cfg.MaxConcurrentTasks, cfg.DefaultCapabilityLimit, cfg.CapabilityLimits)

	return &Engine{
		cfg:       cfg,
		registry:  registry,
		resources: resources,
		metrics:   NewMetricsWindow(),
		notifier:  NewNotifier(cfg.EventBuffer),
		breakers: resilience.NewCapabilityBreakers(resilience.BreakerConfig{
			FailureThreshold: cfg.CircuitFailureThreshold,
			ResetTimeout:     time.Duration(cfg.CircuitResetSecs) * time.Second,
		}, clock),
		clock:    clock,
		sched:    NewScheduler(resources, clock),
		inflight: make(map[string]context.CancelFunc),
		limiters: make(map[string]*rate.Limiter),
	}
}

// WithClock injects a clock for testing.
func (e *Engine) WithClock(c resilience.Clock) *Engine {
	e.clock = c
	e.sched = NewScheduler(e.resources, c)
	e.breakers = resilience.NewCapabilityBreakers(resilience.BreakerConfig{
		FailureThreshold: e.cfg.CircuitFailureThreshold,
		ResetTimeout:     time.Duration(e.cfg.CircuitResetSecs) * time.Second,
	}, c)
	return e
}

// WithRecorder attaches a run history recorder.
func (e *Engine) WithRecorder(r RunRecorder) *Engine {
	e.recorder = r
	return e
}

// Subscribe registers a lifecycle event sink.
func (e *Engine) Subscribe(s Sink) {
	e.notifier.Subscribe(s)
}

// SubmitWorkflow validates the workflow and hands it to the scheduler.
// Validation failures leave no partial state behind.
func (e *Engine) SubmitWorkflow(wf *model.IntelligenceWorkflow) (string, error) {
	if err := validateWorkflow(wf, e.registry); err != nil {
		return "", err
	}

	e.mu.Lock()
	wf.Status = model.WorkflowStatusPending
	e.sched.AddWorkflow(wf)
	e.mu.Unlock()

	zap.L().Info("engine: workflow submitted",
		zap.String("workflow_id", wf.ID),
		zap.String("name", wf.Name),
		zap.Int("tasks", len(wf.Tasks)),
		zap.String("priority", wf.Priority.String()),
	)

	e.notifier.Emit(Event{
		Type: EventWorkflowSubmitted,
		At:   e.clock.Now(),
		Payload: map[string]any{
			"workflow_id": wf.ID,
			"name":        wf.Name,
			"task_count":  len(wf.Tasks),
		},
	})

	if e.recorder != nil {
		if err := e.recorder.RecordSubmitted(context.Background(), wf); err != nil {
			zap.L().Warn("engine: record submitted failed", zap.Error(err))
		}
	}

	return wf.ID, nil
}

// GetWorkflowStatus returns a snapshot of the workflow, or nil if unknown.
func (e *Engine) GetWorkflowStatus(id string) *model.IntelligenceWorkflow {
	e.mu.Lock()
	defer e.mu.Unlock()
	wf := e.sched.Workflow(id)
	if wf == nil {
		return nil
	}
	return snapshotWorkflow(wf)
}

// ReapCompleted removes a terminal workflow from the completed set and
// returns it, or nil if the workflow is not completed. Callers take
// ownership; the engine forgets the workflow entirely.
func (e *Engine) ReapCompleted(id string) *model.IntelligenceWorkflow {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sched.Remove(id)
}

// CancelWorkflow cooperatively cancels in-flight task executions, marks all
// non-terminal tasks cancelled, and moves the workflow to the completed set.
func (e *Engine) CancelWorkflow(id string) bool {
	e.mu.Lock()
	wf := e.sched.Workflow(id)
	if wf == nil || wf.Status.Terminal() {
		e.mu.Unlock()
		return false
	}

	now := e.clock.Now()
	for _, t := range wf.Tasks {
		if cancel, ok := e.inflight[t.ID]; ok {
			cancel()
		}
		if !t.Status.Terminal() {
			t.Status = model.TaskStatusCancelled
			at := now
			t.CompletedAt = &at
		}
	}

	wf.Status = model.WorkflowStatusCancelled
	at := now
	wf.CompletedAt = &at
	e.sched.MarkDone(wf)
	e.mu.Unlock()

	zap.L().Info("engine: workflow cancelled", zap.String("workflow_id", id))

	e.notifier.Emit(Event{
		Type:    EventWorkflowCancelled,
		At:      now,
		Payload: map[string]any{"workflow_id": id},
	})

	if e.recorder != nil {
		if err := e.recorder.RecordTerminal(context.Background(), wf); err != nil {
			zap.L().Warn("engine: record terminal failed", zap.Error(err))
		}
	}

	return true
}

// PerformanceAnalytics returns per-capability execution stats.
func (e *Engine) PerformanceAnalytics() map[string]CapabilityStats {
	return e.metrics.Analytics()
}

// ResourceUsage exposes current slot usage for observability.
func (e *Engine) ResourceUsage() (global int, byCapability map[string]int) {
	return e.resources.Usage()
}

// Run drives the polling loop until ctx is done, then waits for in-flight
// executions and drains the notifier.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Duration(e.cfg.PollIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	zap.L().Info("engine: started", zap.Duration("poll_interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.wg.Wait()
			e.notifier.Close()
			zap.L().Info("engine: stopped")
			return nil
		case <-ticker.C:
			e.dispatch(ctx)
			e.closeFinished()
		}
	}
}

// Tick runs one poll iteration synchronously. Exposed for tests that drive
// the engine without the timer loop.
func (e *Engine) Tick(ctx context.Context) {
	e.dispatch(ctx)
	e.closeFinished()
}

// WaitIdle blocks until all dispatched executions have finished. Test helper.
func (e *Engine) WaitIdle() {
	e.wg.Wait()
}

func (e *Engine) limiter(capability string) *rate.Limiter {
	if e.cfg.CapabilityRatePerSec <= 0 {
		return nil
	}
	if l, ok := e.limiters[capability]; ok {
		return l
	}
	burst := int(e.cfg.CapabilityRatePerSec)
	if burst < 1 {
		burst = 1
	}
	l := rate.NewLimiter(rate.Limit(e.cfg.CapabilityRatePerSec), burst)
	e.limiters[capability] = l
	return l
}

// dispatch pulls the ready batch and hands each task to its own goroutine.
// Nothing here blocks on scanner execution.
func (e *Engine) dispatch(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	batch := e.sched.NextExecutableTasks()
	for _, t := range batch {
		if l := e.limiter(t.Capability); l != nil && !l.Allow() {
			// Over the capability's dispatch rate; the task stays pending
			// and is offered again next tick.
			continue
		}

		e.resources.Acquire(t)
		t.Status = model.TaskStatusRunning
		started := e.clock.Now()
		t.StartedAt = &started

		taskCtx, cancel := context.WithCancel(ctx)
		e.inflight[t.ID] = cancel

		e.wg.Add(1)
		go e.runTask(taskCtx, t)
	}
}

// runTask executes one task against its scanner capability under the task
// timeout. The resource slot is released on every path.
func (e *Engine) runTask(ctx context.Context, t *model.WorkflowTask) {
	defer e.wg.Done()
	defer e.resources.Release(t)

	start := time.Now()
	result, err := e.execute(ctx, t)
	elapsed := time.Since(start)

	e.breakers.Record(t.Capability, err)
	e.finishTask(t, result, err, elapsed)
}

func (e *Engine) execute(ctx context.Context, t *model.WorkflowTask) (any, error) {
	if err := e.breakers.Allow(t.Capability); err != nil {
		return nil, err
	}

	scn, err := e.registry.Resolve(t.Capability)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(t.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(model.DefaultTimeoutSeconds) * time.Second
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return scn.Execute(tctx, t.Target, t.Options)
}

// finishTask applies the completion or retry transition for one execution.
func (e *Engine) finishTask(t *model.WorkflowTask, result any, err error, elapsed time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.inflight, t.ID)
	now := e.clock.Now()

	// A cancelled task never proceeds to completed, even if its execution
	// raced the cancellation and returned a result.
	if t.Status == model.TaskStatusCancelled {
		return
	}

	if err == nil {
		t.Status = model.TaskStatusCompleted
		t.Result = result
		t.Error = ""
		at := now
		t.CompletedAt = &at
		e.metrics.Record(t.Capability, elapsed, true, now)

		zap.L().Debug("engine: task completed",
			zap.String("task_id", t.ID),
			zap.String("capability", t.Capability),
			zap.Duration("elapsed", elapsed),
		)
		return
	}

	t.RetryCount++
	t.Error = err.Error()

	if t.RetryCount <= t.MaxRetries {
		backoff := resilience.RetryBackoff(t.RetryCount)
		t.Status = model.TaskStatusPending
		t.StartedAt = nil
		e.sched.DelayTask(t.ID, now.Add(backoff))

		zap.L().Warn("engine: task failed, scheduling retry",
			zap.String("task_id", t.ID),
			zap.String("capability", t.Capability),
			zap.Int("retry", t.RetryCount),
			zap.Int("max_retries", t.MaxRetries),
			zap.Duration("backoff", backoff),
			zap.Bool("transient", resilience.IsTransient(err)),
			zap.Error(err),
		)
		return
	}

	t.Status = model.TaskStatusFailed
	at := now
	t.CompletedAt = &at
	e.metrics.Record(t.Capability, elapsed, false, now)

	zap.L().Error("engine: task failed permanently",
		zap.String("task_id", t.ID),
		zap.String("capability", t.Capability),
		zap.Int("attempts", t.RetryCount),
		zap.Error(err),
	)
}

// closeFinished moves workflows whose tasks are all terminal into the
// completed set. Mixed outcomes still close the workflow as completed;
// only a fully-failed workflow is marked failed.
func (e *Engine) closeFinished() {
	e.mu.Lock()
	var closed []*model.IntelligenceWorkflow

	for _, wf := range e.sched.Active() {
		e.cascadeBlocked(wf)

		allTerminal := true
		completed, failed := 0, 0
		for _, t := range wf.Tasks {
			if !t.Status.Terminal() {
				allTerminal = false
				break
			}
			switch t.Status {
			case model.TaskStatusCompleted:
				completed++
			case model.TaskStatusFailed:
				failed++
			}
		}
		if !allTerminal {
			continue
		}

		switch {
		case completed == 0 && failed == len(wf.Tasks):
			wf.Status = model.WorkflowStatusFailed
		case completed == 0 && failed == 0:
			wf.Status = model.WorkflowStatusCancelled
		default:
			wf.Status = model.WorkflowStatusCompleted
		}
		at := e.clock.Now()
		wf.CompletedAt = &at
		closed = append(closed, wf)
	}

	for _, wf := range closed {
		e.sched.MarkDone(wf)
	}
	e.mu.Unlock()

	for _, wf := range closed {
		zap.L().Info("engine: workflow finished",
			zap.String("workflow_id", wf.ID),
			zap.String("status", string(wf.Status)),
		)
		e.notifier.Emit(Event{
			Type: EventWorkflowCompleted,
			At:   e.clock.Now(),
			Payload: map[string]any{
				"workflow_id": wf.ID,
				"status":      string(wf.Status),
			},
		})
		if e.recorder != nil {
			if err := e.recorder.RecordTerminal(context.Background(), wf); err != nil {
				zap.L().Warn("engine: record terminal failed", zap.Error(err))
			}
		}
	}
}

// cascadeBlocked fails pending tasks whose dependencies ended in any terminal
// state other than completed; such tasks can never dispatch. Runs to a fixed
// point so chains of dependent tasks collapse within one pass, letting the
// owning workflow reach a terminal state.
func (e *Engine) cascadeBlocked(wf *model.IntelligenceWorkflow) {
	for changed := true; changed; {
		changed = false
		for _, t := range wf.Tasks {
			if t.Status != model.TaskStatusPending {
				continue
			}
			for _, depID := range t.Dependencies {
				dep := wf.Task(depID)
				if dep == nil || !dep.Status.Terminal() || dep.Status == model.TaskStatusCompleted {
					continue
				}

				t.Status = model.TaskStatusFailed
				t.Error = "dependency " + depID + " " + string(dep.Status)
				at := e.clock.Now()
				t.CompletedAt = &at
				changed = true

				zap.L().Warn("engine: task failed, dependency unreachable",
					zap.String("task_id", t.ID),
					zap.String("dependency_id", depID),
					zap.String("dependency_status", string(dep.Status)),
				)
				break
			}
		}
	}
}

func snapshotWorkflow(wf *model.IntelligenceWorkflow) *model.IntelligenceWorkflow {
	out := *wf
	out.Tasks = make([]*model.WorkflowTask, len(wf.Tasks))
	for i, t := range wf.Tasks {
		copied := *t
		out.Tasks[i] = &copied
	}
	return &out
}
