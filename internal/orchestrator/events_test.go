package orchestrator

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierDeliversInOrder(t *testing.T) {
	t.Parallel()

	n := NewNotifier(16)
	var mu sync.Mutex
	var got []EventType
	n.Subscribe(SinkFunc(func(e Event) {
		mu.Lock()
		got = append(got, e.Type)
		mu.Unlock()
	}))

	n.Emit(Event{Type: EventWorkflowSubmitted, At: time.Now()})
	n.Emit(Event{Type: EventWorkflowCompleted, At: time.Now()})
	n.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, []EventType{EventWorkflowSubmitted, EventWorkflowCompleted}, got)
}

func TestNotifierFansOutToAllSinks(t *testing.T) {
	t.Parallel()

	n := NewNotifier(16)
	var mu sync.Mutex
	counts := make(map[int]int)
	for i := 0; i < 3; i++ {
		i := i
		n.Subscribe(SinkFunc(func(Event) {
			mu.Lock()
			counts[i]++
			mu.Unlock()
		}))
	}

	n.Emit(Event{Type: EventWorkflowSubmitted})
	n.Close()

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < 3; i++ {
		assert.Equal(t, 1, counts[i], "sink %d", i)
	}
}

func TestNotifierEmitNeverBlocks(t *testing.T) {
	t.Parallel()

	// No sinks drain fast enough: a full buffer drops instead of blocking.
	n := NewNotifier(1)
	block := make(chan struct{})
	n.Subscribe(SinkFunc(func(Event) { <-block }))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			n.Emit(Event{Type: EventWorkflowSubmitted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full buffer")
	}
	close(block)
	n.Close()
}

func TestNotifierCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	n := NewNotifier(4)
	n.Close()
	n.Close()
}

func TestNotifierEmitAfterCloseIsDropped(t *testing.T) {
	t.Parallel()

	n := NewNotifier(4)
	var mu sync.Mutex
	delivered := 0
	n.Subscribe(SinkFunc(func(Event) {
		mu.Lock()
		delivered++
		mu.Unlock()
	}))

	n.Close()
	assert.NotPanics(t, func() {
		n.Emit(Event{Type: EventWorkflowCancelled})
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, delivered)
}
