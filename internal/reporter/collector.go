package reporter

import (
	"time"

	"github.com/nixlim/failloc/internal/history"
	"github.com/nixlim/failloc/internal/quickfix"
)

// Collector remembers the rendered failures of a run so it can be saved to
// history once the run completes.
type Collector struct {
	locator    *quickfix.Locator
	now        func() time.Time
	startedAt  time.Time
	finishedAt time.Time
	done       bool
	failures   []history.Failure
}

// NewCollector creates a Collector. The run is considered started now.
func NewCollector(locator *quickfix.Locator) *Collector {
	if locator == nil {
		locator = quickfix.NewLocator()
	}
	c := &Collector{locator: locator, now: time.Now}
	c.startedAt = c.now()
	return c
}

func (c *Collector) OnFailure(e quickfix.FailureEvent) {
	location, message := c.locator.Resolve(e)
	c.failures = append(c.failures, history.Failure{
		Seq:      len(c.failures) + 1,
		Location: location,
		Message:  message,
		Line:     quickfix.JoinLine(location, message),
	})
}

func (c *Collector) OnRunComplete() {
	c.finishedAt = c.now()
	c.done = true
}

// Done reports whether OnRunComplete has been received.
func (c *Collector) Done() bool {
	return c.done
}

// Run returns the collected run attributed to source.
func (c *Collector) Run(source string) *history.Run {
	failures := make([]history.Failure, len(c.failures))
	copy(failures, c.failures)
	return &history.Run{
		Source:       source,
		StartedAt:    c.startedAt,
		FinishedAt:   c.finishedAt,
		FailureCount: len(failures),
		Failures:     failures,
	}
}
