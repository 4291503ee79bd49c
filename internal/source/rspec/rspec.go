// Package rspec feeds an RSpec JSON report (rspec --format json) to a
// reporter.
package rspec

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"go.uber.org/zap"

	"github.com/nixlim/failloc/internal/quickfix"
	"github.com/nixlim/failloc/internal/reporter"
)

// Name identifies this source in history.
const Name = "rspec"

const statusFailed = "failed"

// Report is the subset of the RSpec JSON formatter document that is read.
type Report struct {
	Version  string    `json:"version"`
	Examples []Example `json:"examples"`
	Summary  Summary   `json:"summary"`
}

type Example struct {
	ID              string     `json:"id"`
	Description     string     `json:"description"`
	FullDescription string     `json:"full_description"`
	Status          string     `json:"status"`
	FilePath        string     `json:"file_path"`
	LineNumber      int        `json:"line_number"`
	Exception       *Exception `json:"exception,omitempty"`
}

type Exception struct {
	Class     string   `json:"class"`
	Message   string   `json:"message"`
	Backtrace []string `json:"backtrace"`
}

type Summary struct {
	Duration     float64 `json:"duration"`
	ExampleCount int     `json:"example_count"`
	FailureCount int     `json:"failure_count"`
	PendingCount int     `json:"pending_count"`
}

// Stats summarizes what a run fed to the reporter.
type Stats struct {
	Examples int
	Failures int
}

// Location is the example's "file:line", as RSpec prints it.
func (e Example) Location() string {
	return e.FilePath + ":" + strconv.Itoa(e.LineNumber)
}

// Event converts a failed example to a failure event.
func (e Example) Event() quickfix.FailureEvent {
	ev := quickfix.FailureEvent{ExampleLocation: e.Location()}
	if e.Exception != nil {
		ev.ExceptionMessage = e.Exception.Message
		ev.Backtrace = e.Exception.Backtrace
	}
	return ev
}

// Source decodes RSpec JSON reports.
type Source struct {
	logger *zap.Logger
}

// New creates a Source. A nil logger discards log output.
func New(logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{logger: logger}
}

// Run decodes the report from r and reports each failed example in document
// order, then completes the run. Nothing is reported when decoding fails.
func (s *Source) Run(ctx context.Context, r io.Reader, rep reporter.Reporter) (Stats, error) {
	var report Report
	if err := json.NewDecoder(r).Decode(&report); err != nil {
		return Stats{}, fmt.Errorf("decoding rspec report: %w", err)
	}

	stats := Stats{Examples: len(report.Examples)}
	for _, ex := range report.Examples {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if ex.Status != statusFailed {
			continue
		}
		stats.Failures++
		s.logger.Debug("failed example",
			zap.String("id", ex.ID),
			zap.String("location", ex.Location()),
		)
		rep.OnFailure(ex.Event())
	}

	if report.Summary.FailureCount != stats.Failures {
		s.logger.Info("summary failure count differs from failed examples",
			zap.Int("summary", report.Summary.FailureCount),
			zap.Int("examples", stats.Failures),
		)
	}

	rep.OnRunComplete()
	return stats, nil
}
