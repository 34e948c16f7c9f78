// Package exitcode defines the completion codes workers, engines and
// architects exchange, and the aggregation rule over them. Codes below zero
// mean "still working"; zero and above are final. A final code is never
// lowered: aggregation keeps the worst value seen.
package exitcode

const (
	// Running means the component has not resolved yet.
	Running = -1

	// OK is a clean completion.
	OK = 0

	// ActionError reports a CLI action that failed before or outside any
	// worker (bad configuration, startup failure).
	ActionError = 3

	// Failure reports an engine or supervision error: the work finished
	// but at least one unit of it went wrong.
	Failure = 10

	// NeverResolved is the aggregate over children none of which reported
	// a final code. It flags a supervision bug, not a work failure.
	NeverResolved = 99
)

// Resolved reports whether code is final.
func Resolved(code int) bool {
	return code >= 0
}

// Worst merges two codes, keeping the most severe. Because every final code
// is greater than Running, a resolved aggregate can never sink back below a
// value it already reached.
func Worst(a, b int) int {
	if a > b {
		return a
	}
	return b
}
