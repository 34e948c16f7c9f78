package edmp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/c4ffein/imapfw/pkg/concurrency"
)

// Handler serves one topic. Accept-time prepend arguments come first, then
// the send-time arguments. Return a Tuple for a multi-value result; any
// other value (including nil) reaches the caller as-is.
type Handler func(args ...any) (any, error)

type registration struct {
	handler Handler
	doc     string
	prepend []any
}

// Receiver is the serving end of a link. One worker drives it by calling
// React in a loop (or Serve, which is that loop); handlers, the cache and
// the registration table all live on that worker.
//
// Accept and React must run on the serving goroutine, or strictly before the
// serving worker starts: the registration table is not locked. Handlers may
// Accept further topics while reacting; driver rebinding relies on it.
type Receiver struct {
	name     string
	link     *link
	logger   *slog.Logger
	tlog     *topicLog
	events   *Channel
	handlers map[string]registration
	cache    map[string]Tuple
}

// Name returns the link name.
func (r *Receiver) Name() string { return r.name }

// Accept registers handler for topic. Send-time arguments are appended after
// prepend. Accepting a topic again replaces the previous registration.
func (r *Receiver) Accept(topic string, handler Handler, prepend ...any) {
	r.AcceptDoc(topic, "", handler, prepend...)
}

// AcceptDoc is Accept with a doc string, surfaced to emitters by Help.
func (r *Receiver) AcceptDoc(topic, doc string, handler Handler, prepend ...any) {
	r.handlers[topic] = registration{handler: handler, doc: doc, prepend: prepend}
}

// Forget drops a registration. Rebinding a different served object uses this
// to clear topics the new object no longer answers.
func (r *Receiver) Forget(topic string) {
	delete(r.handlers, topic)
}

// React processes at most one pending message and reports whether serving
// should continue. With nothing pending it naps one poll interval; a
// canceled context cuts the nap short and stops the serving, which is how a
// killed worker winds down.
func (r *Receiver) React(ctx context.Context) bool {
	if worker := concurrency.WorkerFromContext(ctx); worker != "" {
		r.link.serving.Store(worker)
	}

	v, ok := r.events.Next()
	if !ok {
		select {
		case <-ctx.Done():
			r.logger.Debug("serving context canceled")
			return false
		case <-time.After(pollInterval):
			return true
		}
	}

	msg, isMsg := v.(Message)
	if !isMsg {
		r.logger.Error("dropping malformed event", "event", v)
		return true
	}
	return r.dispatch(msg)
}

// Serve reacts until the receiver is told to stop. It is the standard runner
// body for a worker dedicated to one link.
func (r *Receiver) Serve(ctx context.Context) {
	for r.React(ctx) {
	}
	r.logger.Debug("stopped serving")
}

func (r *Receiver) dispatch(msg Message) bool {
	topic := msg.Topic

	if topic == TopicStopServing {
		r.logger.Debug("marked as stop serving")
		return false
	}

	// Asynchronous mode: exact registrations win, whatever their spelling.
	if reg, ok := r.handlers[topic]; ok {
		result, err := r.invoke(msg, topic, reg, "async")
		if err != nil {
			r.logger.Error("handler failed, failure stays on this side", "topic", topic, "error", err)
			return true
		}
		r.cache[topic] = result
		return true
	}

	// Synchronous modes, recognized by spelling.
	base := strings.TrimSuffix(topic, syncSuffix)
	if realTopic, isCached := strings.CutPrefix(base, cachedPrefix); isCached {
		r.answerCached(msg, realTopic)
		return true
	}
	if base != topic {
		r.answerSync(msg, base)
		return true
	}

	r.logger.Error("unknown topic, message dropped", "topic", topic, "id", msg.ID)
	return true
}

func (r *Receiver) answerCached(msg Message, topic string) {
	if len(msg.Args) > 0 {
		r.logger.Warn("cached read ignores arguments", "topic", topic, "args", msg.Args)
	}
	cached, ok := r.cache[topic]
	if !ok {
		r.putFailure(msg, &TopicError{Reason: fmt.Sprintf("%s: %q called while no cached value", r.name, msg.Topic)})
		return
	}
	r.putResult(msg, cached)
}

func (r *Receiver) answerSync(msg Message, topic string) {
	if topic == topicHelp {
		r.putResult(msg, normalize(r.help()))
		return
	}

	reg, ok := r.handlers[topic]
	if !ok {
		r.putFailure(msg, &TopicError{Reason: fmt.Sprintf("%s got unknown event %q", r.name, msg.Topic)})
		return
	}

	result, err := r.invoke(msg, topic, reg, "sync")
	if err != nil {
		r.putFailure(msg, err)
		return
	}
	r.putResult(msg, result)
}

// invoke runs the handler with prepend and send-time arguments. A panicking
// handler is downgraded to an error so one bad dispatch never tears down the
// serving loop.
func (r *Receiver) invoke(msg Message, topic string, reg registration, mode string) (result Tuple, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler for %s panicked: %v", topic, rec)
		}
	}()

	r.tlog.observe(topic, "mode", mode, "id", msg.ID, "args", msg.Args)

	args := append(append([]any{}, reg.prepend...), msg.Args...)
	v, err := reg.handler(args...)
	if err != nil {
		return nil, err
	}
	return normalize(v), nil
}

func (r *Receiver) putResult(msg Message, result Tuple) {
	if err := r.link.result.Put(result); err != nil {
		// The emitter is blocked on this reply; surface the transport
		// problem as the call's failure instead of hanging the caller.
		r.putFailure(msg, fmt.Errorf("result for %s is not transportable: %v", msg.Topic, err))
	}
}

func (r *Receiver) putFailure(msg Message, failure error) {
	r.logger.Error("replying with failure", "topic", msg.Topic, "id", msg.ID, "error", failure)
	wire := remoteFailure{Kind: r.link.registry.classify(failure), Reason: failure.Error()}
	if err := r.link.fault.Put(wire); err != nil {
		r.logger.Error("failure reply could not be queued", "topic", msg.Topic, "error", err)
	}
}

func (r *Receiver) help() map[string]string {
	help := make(map[string]string, len(r.handlers))
	for topic, reg := range r.handlers {
		help[topic] = reg.doc
	}
	return help
}
