package edmp

import "github.com/c4ffein/imapfw/pkg/concurrency"

// Channel presents a queue as a lazily-drained sequence: Next pops the oldest
// available item and reports exhaustion instead of blocking, making
// queue-emptiness the termination condition. Engines drain their task queues
// through a Channel so "no more tasks" is simply the end of the loop.
//
// The view restarts: items put after an exhaustion are seen by later Next
// calls.
type Channel struct {
	q *concurrency.Queue
}

// NewChannel wraps q.
func NewChannel(q *concurrency.Queue) *Channel {
	return &Channel{q: q}
}

// Next returns the oldest available item, or ok=false when the queue is
// currently empty.
func (c *Channel) Next() (any, bool) {
	return c.q.TryGet()
}
