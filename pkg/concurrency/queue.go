package concurrency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrNotTransportable reports a payload rejected by Put because it cannot
// cross a worker boundary (it does not survive JSON marshaling).
var ErrNotTransportable = errors.New("payload is not transportable")

// Queue is an unbounded FIFO shared between workers. Put never blocks; Get
// suspends the caller until an item is available or the context is canceled.
// The zero value is not usable, construct with NewQueue.
type Queue struct {
	mu     sync.Mutex
	items  []any
	signal chan struct{} // coalesced wake-up for blocked getters
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Put appends v to the queue. It fails fast with ErrNotTransportable when v
// cannot be serialized, so a bad payload surfaces at the sender instead of
// corrupting the link; the queue is left unchanged in that case.
func (q *Queue) Put(v any) error {
	if _, err := json.Marshal(v); err != nil {
		return fmt.Errorf("%w: %v", ErrNotTransportable, err)
	}

	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()

	q.wake()
	return nil
}

// Get removes and returns the oldest item, blocking until one is available.
// It returns the context's error if ctx is canceled first.
func (q *Queue) Get(ctx context.Context) (any, error) {
	for {
		if v, ok := q.TryGet(); ok {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.signal:
		}
	}
}

// TryGet removes and returns the oldest item without blocking. The second
// return value is false when the queue is empty.
func (q *Queue) TryGet() (any, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return nil, false
	}

	v := q.items[0]
	q.items[0] = nil // release the slot so the value can be collected
	q.items = q.items[1:]
	remaining := len(q.items)
	if remaining == 0 {
		q.items = nil // let the drained backing array go too
	}
	q.mu.Unlock()

	if remaining > 0 {
		q.wake() // re-arm for the next blocked getter
	}
	return v, true
}

// Len reports the number of queued items. It is a snapshot for logging and
// tests, not a readiness signal: the count can change before the caller acts
// on it.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
