package edmp

import (
	"errors"
	"fmt"
	"sync"
)

// ErrSameWorkerSync rejects a synchronous call issued from the very worker
// serving the receiver: the worker would wait for a reply only itself could
// produce. The emitter detects this at the call site instead of deadlocking.
var ErrSameWorkerSync = errors.New("synchronous call from the receiver's own worker")

// Built-in error kinds. Every failure crossing a link is tagged with a kind
// name so the emitting side can rebuild a typed error.
const (
	// KindError is the fallback kind for failures no registered kind
	// matches; it rebuilds as a plain error carrying the reason.
	KindError = "Error"

	// KindTopic tags requests the receiver cannot serve: an unknown
	// synchronous topic or a cached read before any value was cached.
	KindTopic = "TopicError"
)

// TopicError is the rebuilt form of a KindTopic failure.
type TopicError struct {
	Reason string
}

func (e *TopicError) Error() string { return e.Reason }

// CannotReraiseError surfaces a remote failure whose kind is not registered
// on the emitting side. The original kind and reason are preserved verbatim;
// rebuilding never panics.
type CannotReraiseError struct {
	Kind   string
	Reason string
}

func (e *CannotReraiseError) Error() string {
	return fmt.Sprintf("error of unregistered kind %s from receiver: %s", e.Kind, e.Reason)
}

// remoteFailure is the wire form of a handler failure.
type remoteFailure struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

type errorKind struct {
	name    string
	rebuild func(reason string) error
	match   func(err error) bool
}

// ErrorRegistry maps error kind names to constructors and matchers. The two
// ends of a link share one registry, so a kind registered before workers
// start is known to both. Matching order is registration order, most
// specific kinds first.
type ErrorRegistry struct {
	mu    sync.RWMutex
	kinds []errorKind
}

// NewErrorRegistry returns a registry preloaded with the built-in kinds.
func NewErrorRegistry() *ErrorRegistry {
	r := &ErrorRegistry{}
	r.Register(KindTopic,
		func(reason string) error { return &TopicError{Reason: reason} },
		func(err error) bool {
			var te *TopicError
			return errors.As(err, &te)
		})
	return r
}

// Register adds a kind. rebuild constructs the error from a reason string on
// the emitting side; match recognizes errors of this kind on the receiving
// side.
func (r *ErrorRegistry) Register(kind string, rebuild func(reason string) error, match func(err error) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, errorKind{name: kind, rebuild: rebuild, match: match})
}

// classify returns the kind name of err, falling back to KindError.
func (r *ErrorRegistry) classify(err error) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.kinds {
		if k.match(err) {
			return k.name
		}
	}
	return KindError
}

// rebuild turns a (kind, reason) pair back into an error. Unknown kinds
// yield a CannotReraiseError instead of failing.
func (r *ErrorRegistry) rebuild(kind, reason string) error {
	if kind == KindError {
		return errors.New(reason)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.kinds {
		if k.name == kind {
			return k.rebuild(reason)
		}
	}
	return &CannotReraiseError{Kind: kind, Reason: reason}
}
