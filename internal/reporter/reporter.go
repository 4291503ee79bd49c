// Package reporter defines the two hooks a test-runner source drives and the
// reporters that consume them.
package reporter

import (
	"fmt"
	"io"

	"github.com/nixlim/failloc/internal/quickfix"
)

// Reporter receives test-run lifecycle callbacks. OnFailure is called once per
// failing test, in the order the failures occur. OnRunComplete is called once
// after the last test.
type Reporter interface {
	OnFailure(e quickfix.FailureEvent)
	OnRunComplete()
}

// Quickfix writes one "location: message" line per failure and a final
// "finished" line. Write errors do not interrupt the run; the first one is
// kept and reported by Err.
type Quickfix struct {
	w        io.Writer
	locator  *quickfix.Locator
	err      error
	failures int
}

// NewQuickfix creates a Quickfix reporter writing to w.
func NewQuickfix(w io.Writer, locator *quickfix.Locator) *Quickfix {
	if locator == nil {
		locator = quickfix.NewLocator()
	}
	return &Quickfix{w: w, locator: locator}
}

// OnFailure writes the formatted failure line.
func (q *Quickfix) OnFailure(e quickfix.FailureEvent) {
	q.failures++
	q.writeLine(q.locator.Format(e))
}

// OnRunComplete writes the finished marker.
func (q *Quickfix) OnRunComplete() {
	q.writeLine(quickfix.FinishedMarker)
}

// Failures returns the number of failures written so far.
func (q *Quickfix) Failures() int {
	return q.failures
}

// Err returns the first write error, if any.
func (q *Quickfix) Err() error {
	return q.err
}

func (q *Quickfix) writeLine(line string) {
	if q.err != nil {
		return
	}
	if _, err := io.WriteString(q.w, line+"\n"); err != nil {
		q.err = fmt.Errorf("writing quickfix line: %w", err)
	}
}

type tee []Reporter

// Tee returns a Reporter that forwards every callback to each of rs in order.
// Nil reporters are skipped.
func Tee(rs ...Reporter) Reporter {
	var t tee
	for _, r := range rs {
		if r != nil {
			t = append(t, r)
		}
	}
	return t
}

func (t tee) OnFailure(e quickfix.FailureEvent) {
	for _, r := range t {
		r.OnFailure(e)
	}
}

func (t tee) OnRunComplete() {
	for _, r := range t {
		r.OnRunComplete()
	}
}
