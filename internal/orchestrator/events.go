package orchestrator

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventType identifies a workflow lifecycle event.
type EventType string

const (
	EventWorkflowSubmitted EventType = "workflowSubmitted"
	EventWorkflowCompleted EventType = "workflowCompleted"
	EventWorkflowCancelled EventType = "workflowCancelled"
)

// Event is one lifecycle notification delivered to registered sinks.
type Event struct {
	Type    EventType      `json:"type"`
	At      time.Time      `json:"at"`
	Payload map[string]any `json:"payload"`
}

// Sink receives lifecycle events. Handlers run on the notifier's consumer
// goroutine, decoupled from the engine loop; a slow sink delays other sinks
// but never the engine.
type Sink interface {
	HandleEvent(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// HandleEvent calls the function.
func (f SinkFunc) HandleEvent(e Event) { f(e) }

// Notifier fans lifecycle events out to sinks through a buffered channel.
// Emission never blocks: if the buffer is full the event is dropped and a
// warning logged.
type Notifier struct {
	mu      sync.Mutex
	sinks   []Sink
	stopped bool

	ch     chan Event
	done   chan struct{}
	closed sync.Once
}

// NewNotifier creates a notifier and starts its consumer goroutine.
func NewNotifier(buffer int) *Notifier {
	if buffer <= 0 {
		buffer = 64
	}
	n := &Notifier{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
	go n.consume()
	return n
}

// Subscribe registers a sink for all subsequent events.
func (n *Notifier) Subscribe(s Sink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sinks = append(n.sinks, s)
}

// Emit queues an event without blocking. Events emitted after Close are
// dropped; the mutex orders emission against the channel close.
func (n *Notifier) Emit(e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return
	}

	select {
	case n.ch <- e:
	default:
		zap.L().Warn("notifier: event buffer full, dropping event",
			zap.String("event_type", string(e.Type)),
		)
	}
}

// Close stops the consumer after draining queued events.
func (n *Notifier) Close() {
	n.closed.Do(func() {
		n.mu.Lock()
		n.stopped = true
		close(n.ch)
		n.mu.Unlock()
		<-n.done
	})
}

func (n *Notifier) consume() {
	defer close(n.done)
	for e := range n.ch {
		n.mu.Lock()
		sinks := make([]Sink, len(n.sinks))
		copy(sinks, n.sinks)
		n.mu.Unlock()

		for _, s := range sinks {
			s.HandleEvent(e)
		}
	}
}
