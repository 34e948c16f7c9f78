package edmp

// Message is the wire form of one send. The ID correlates the emitter's send
// with the receiver's dispatch in debug logs.
type Message struct {
	ID    string `json:"id"`
	Topic string `json:"topic"`
	Args  []any  `json:"args,omitempty"`
}

// Tuple is a multi-value handler result. Handlers return a Tuple when the
// caller should receive several values; any other return is treated as a
// single value.
type Tuple []any

// normalize gives every handler result the same shape on the result queue
// and in the cache: a Tuple, wrapping single values (including nil).
func normalize(v any) Tuple {
	if t, ok := v.(Tuple); ok {
		return t
	}
	return Tuple{v}
}

// unwrap undoes normalize on the emitting side: a 1-tuple collapses to its
// only value, anything longer stays a Tuple.
func unwrap(t Tuple) any {
	if len(t) == 1 {
		return t[0]
	}
	return t
}
