// Package edmp implements event-driven message passing between workers.
//
// A link is an Emitter/Receiver pair sharing three FIFO queues: events flow
// from emitter to receiver, results and failures flow back. The receiver
// side registers handlers per topic and serves them from a single worker;
// the emitter side chooses the delivery mode per call:
//
//   - Emit: fire-and-forget. The handler's return value is cached on the
//     receiver under the topic.
//   - Call: synchronous round trip. The caller blocks until the handler's
//     result or failure crosses back.
//   - Cached: synchronous read of the last value an Emit left in the
//     receiver's cache, without invoking the handler again.
//
// Ordering is FIFO per link and nothing more. A synchronous call doubles as
// a fence: it cannot complete before every earlier send on the same link was
// consumed.
//
// Failures cross the link as (kind, reason) string pairs, never as live
// error values; the ErrorRegistry rebuilds them on the emitting side.
package edmp

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/c4ffein/imapfw/pkg/concurrency"
)

const (
	// TopicStopServing makes the receiver's React return false. Messages
	// behind it are never processed.
	TopicStopServing = "stopServing"

	// topicHelp is the reserved introspection topic, served from the
	// registration table rather than a handler.
	topicHelp = "str_help"

	syncSuffix   = "_sync"
	cachedPrefix = "cached_"

	// pollInterval paces the two busy-wait points of a link: the emitter
	// waiting for a synchronous reply and the receiver idling on an empty
	// event queue.
	pollInterval = 10 * time.Millisecond
)

// link is the state shared by the two ends of a pair.
type link struct {
	name     string
	event    *concurrency.Queue
	result   *concurrency.Queue
	fault    *concurrency.Queue
	registry *ErrorRegistry

	// serving holds the worker identity the receiver reacts on, so the
	// emitter can reject synchronous calls issued from that same worker.
	serving atomic.Value // string
}

func (l *link) servingWorker() string {
	name, _ := l.serving.Load().(string)
	return name
}

// NewPair builds a named link and returns its two ends. The name is shared
// by both and appears in every log line about the link.
func NewPair(name string, logger *slog.Logger) (*Receiver, *Emitter) {
	return NewPairWithRegistry(name, logger, NewErrorRegistry())
}

// NewPairWithRegistry is NewPair with a caller-provided error registry,
// for links that transport domain-specific error kinds.
func NewPairWithRegistry(name string, logger *slog.Logger, registry *ErrorRegistry) (*Receiver, *Emitter) {
	l := &link{
		name:     name,
		event:    concurrency.NewQueue(),
		result:   concurrency.NewQueue(),
		fault:    concurrency.NewQueue(),
		registry: registry,
	}

	recvLogger := logger.With("component", "receiver", "link", name)
	receiver := &Receiver{
		name:     name,
		link:     l,
		logger:   recvLogger,
		tlog:     newTopicLog(recvLogger, "reacting"),
		events:   NewChannel(l.event),
		handlers: make(map[string]registration),
		cache:    make(map[string]Tuple),
	}
	emitLogger := logger.With("component", "emitter", "link", name)
	emitter := &Emitter{
		name:   name,
		link:   l,
		logger: emitLogger,
		tlog:   newTopicLog(emitLogger, "sending"),
	}
	return receiver, emitter
}
