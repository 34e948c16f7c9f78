package edmp

import "log/slog"

// silentAfter is how many consecutive repeats of one topic pass before a
// reminder line is logged and the suppression counter restarts.
const silentAfter = 100

// topicLog rate-limits traffic logging on one end of a link. Tight loops
// hammer a single topic (polling a driver, draining a task queue); logging
// each occurrence would drown everything else. The discipline: a topic
// change is logged in full together with how many repeats of the previous
// topic were silenced, the second consecutive repeat announces the silence,
// then only every silentAfter-th repeat surfaces.
//
// Not safe for concurrent use; each end of a link owns its own instance.
type topicLog struct {
	logger *slog.Logger
	verb   string // "sending" or "reacting"
	prev   string
	count  int
}

func newTopicLog(logger *slog.Logger, verb string) *topicLog {
	return &topicLog{logger: logger, verb: verb}
}

// observe records one occurrence of topic. attrs are logged only on the
// occurrences the discipline lets through in full.
func (tl *topicLog) observe(topic string, attrs ...any) {
	if tl.prev != topic {
		if tl.count > 0 {
			tl.logger.Debug(tl.verb+" repeated", "topic", tl.prev, "count", tl.count)
		}
		tl.count = 0
		tl.prev = topic
		tl.logger.Debug(tl.verb, append([]any{"topic", topic}, attrs...)...)
		return
	}

	tl.count++
	if tl.count == 2 {
		tl.logger.Debug(tl.verb+" again, going silent", append([]any{"topic", topic}, attrs...)...)
	}
	if tl.count > silentAfter-1 {
		tl.logger.Debug(tl.verb+" still repeating", "topic", topic, "count", silentAfter)
		tl.count = 0
	}
}
