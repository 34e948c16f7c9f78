// Package printer renders CLI-facing output: colored status lines on
// stdout and structured error explanations on stderr. Workers share the
// terminal, so every print serializes on one lock and lands as whole
// lines.
package printer

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/c4ffein/imapfw/pkg/concurrency"
)

func init() {
	// Force color output even when not connected to a TTY.
	// Users can disable with the NO_COLOR environment variable.
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)

	terminal = concurrency.NewLock()
)

// Success prints a success message in green with a checkmark prefix.
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	terminal.With(func() {
		if !strings.HasPrefix(msg, "✓") {
			green.Printf("✓ %s", msg)
			return
		}
		green.Print(msg)
	})
}

// Info prints an informational message in the default color.
func Info(format string, a ...any) {
	terminal.With(func() {
		fmt.Printf(format, a...)
	})
}

// Warning prints a warning message in yellow.
func Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	terminal.With(func() {
		yellow.Printf("! %s", msg)
	})
}

// Step prints a step message with emphasis, for multi-step operations
// like examining each repository in turn.
func Step(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	terminal.With(func() {
		cyan.Printf("→ %s", msg)
	})
}

// ReportedError marks an error whose full explanation already went to
// stderr. Callers mapping errors to exit codes should not print it
// again.
type ReportedError struct {
	title string
}

func (e *ReportedError) Error() string {
	return e.title
}

// Error prints a formatted error with title, explanation and
// suggestions to stderr, and returns a *ReportedError carrying the
// title for cobra (which stays silent thanks to SilenceErrors).
func Error(title string, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error with key/value details printed between the
// explanation and the suggestions.
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	terminal.With(func() {
		red.Fprintf(os.Stderr, "%s\n\n", title)
		if explanation != "" {
			fmt.Fprintf(os.Stderr, "%s\n", explanation)
		}

		if len(context) > 0 {
			fmt.Fprintf(os.Stderr, "\n")
			for key, value := range context {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", key, value)
			}
		}

		if len(suggestions) > 0 {
			fmt.Fprintf(os.Stderr, "\n")
			if len(suggestions) == 1 {
				fmt.Fprintf(os.Stderr, "%s\n", suggestions[0])
				return
			}
			fmt.Fprintf(os.Stderr, "Either:\n")
			for i, suggestion := range suggestions {
				fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, suggestion)
			}
		}
	})

	return &ReportedError{title: title}
}

// Println prints a plain message.
func Println(a ...any) {
	terminal.With(func() {
		fmt.Println(a...)
	})
}

// Printf prints a plain formatted message.
func Printf(format string, a ...any) {
	terminal.With(func() {
		fmt.Printf(format, a...)
	})
}
