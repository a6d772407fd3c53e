package engine

import (
	"container/heap"
	"sync"

	"github.com/droverhq/drover/internal/ir"
)

// Event carries work into the single-writer loop.
type Event struct {
	// Start begins a new run (set on run submission).
	Start *StartEvent
	// Ready is a task whose dependencies are satisfied.
	Ready *ReadyEvent
	// Done is a terminal attempt outcome posted by a worker.
	Done *DoneEvent
}

// StartEvent submits a pipeline run.
type StartEvent struct {
	RunToken string
	Pipeline string
}

// ReadyEvent is a dispatchable task.
type ReadyEvent struct {
	RunToken string
	Task     ir.TaskSpec
	Pipeline string
	Priority int
	Seq      int64 // stamp at enqueue time; ties break FIFO

	// Existing is set during replay when the invocation was already
	// recorded; the dispatcher reuses its identity instead of minting
	// a new one.
	Existing *ir.Invocation
}

// DoneEvent is posted by a worker when an invocation reaches a terminal
// outcome. Attempts carry every attempt executed, including retries.
type DoneEvent struct {
	RunToken   string
	Task       string
	Invocation ir.Invocation
	Result     ir.Result
	Attempts   []ir.Attempt
}

// readyHeap orders ready tasks by (priority desc, seq asc).
// container/heap interface; not safe for concurrent use on its own.
type readyHeap []*ReadyEvent

func (h readyHeap) Len() int { return len(h) }

func (h readyHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].Seq < h[j].Seq
}

func (h readyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *readyHeap) Push(x any) {
	*h = append(*h, x.(*ReadyEvent))
}

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil // allow GC of the ReadyEvent
	*h = old[:n-1]
	return e
}

// eventQueue is the thread-safe event source for the Run loop.
//
// Start and Done events are FIFO and always drain before ready tasks:
// completions release dependents and must not starve behind a deep
// ready backlog. Ready tasks come off a priority heap.
//
// The queue is unbounded so workers posting completions never block.
// A buffered signal channel (size 1) coalesces wakeups and enables
// context-aware waiting in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	fifo   []Event // Start and Done events in arrival order
	ready  readyHeap
	closed bool
	signal chan struct{}
}

// newEventQueue creates an empty event queue.
func newEventQueue() *eventQueue {
	return &eventQueue{
		fifo:   make([]Event, 0, 16),
		ready:  make(readyHeap, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event. Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if e.Ready != nil {
		heap.Push(&q.ready, e.Ready)
	} else {
		q.fifo = append(q.fifo, e)
	}

	// Non-blocking signal; buffer of 1 coalesces multiple wakeups
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if the queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.fifo) > 0 {
		e := q.fifo[0]
		// Nil out the slot so the Event's pointers can be collected
		q.fifo[0] = Event{}
		if len(q.fifo) == 1 {
			q.fifo = q.fifo[:0]
		} else {
			q.fifo = q.fifo[1:]
		}
		return e, true
	}

	if q.ready.Len() > 0 {
		re := heap.Pop(&q.ready).(*ReadyEvent)
		return Event{Ready: re}, true
	}

	return Event{}, false
}

// Wait returns a channel that signals when events may be available.
// Use with select for context-aware waiting.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fifo) + q.ready.Len()
}

// Close marks the queue closed. Subsequent Enqueue calls return false.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Closed reports whether the queue is closed and drained.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.fifo) == 0 && q.ready.Len() == 0
}
