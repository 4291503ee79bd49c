package quickfix

import (
	"regexp"
	"strings"
)

// FailureEvent describes one failed test case as reported by the test runner.
type FailureEvent struct {
	ExampleLocation  string   // "file:line" of the test case declaration
	ExceptionMessage string   // may span lines and carry terminal color codes
	Backtrace        []string // raw frames, innermost first
}

// FinishedMarker is the line written once the whole run has completed.
const FinishedMarker = "finished"

var colorCodeRe = regexp.MustCompile("\x1b\\[\\d+m")

// Format renders the event as "<location>: <message>" on a single line.
// The location is the expectation location when one can be found and the
// example's own location otherwise.
func (l *Locator) Format(e FailureEvent) string {
	return JoinLine(l.Resolve(e))
}

// Resolve returns the location to report for e and its sanitized message.
func (l *Locator) Resolve(e FailureEvent) (location, message string) {
	location, ok := l.Locate(e.ExampleLocation, e.Backtrace)
	if !ok {
		location = e.ExampleLocation
	}
	return location, Sanitize(e.ExceptionMessage)
}

// JoinLine composes "<location>: <message>" and flattens any newline left in
// either part to a space.
func JoinLine(location, message string) string {
	return strings.ReplaceAll(location+": "+message, "\n", " ")
}

// Sanitize escapes newlines as a literal backslash-n and strips ESC[<n>m color
// codes. Escaping runs first.
func Sanitize(msg string) string {
	msg = strings.ReplaceAll(msg, "\n", `\n`)
	return colorCodeRe.ReplaceAllString(msg, "")
}

// Format renders e with a Locator using the default suffixes.
func Format(e FailureEvent) string {
	return NewLocator().Format(e)
}
