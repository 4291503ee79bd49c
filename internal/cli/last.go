package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nixlim/failloc/internal/history"
	"github.com/nixlim/failloc/internal/quickfix"
	"github.com/nixlim/failloc/internal/source/gotest"
	"github.com/nixlim/failloc/internal/source/rspec"
)

// NewLastCmd replays the quickfix lines of the most recent run.
func NewLastCmd(opts *Options) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "last",
		Short: "Print the quickfix lines of the last recorded run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			run, err := e.lastRun(cmd, source)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "failloc: last %s run, %s, %s\n",
				run.Source, failureCount(run.FailureCount), humanize.Time(run.FinishedAt))

			out, closeOut, err := openOutput(cmd, opts, e.cfg)
			if err != nil {
				return err
			}
			if err := writeRun(out, run); err != nil {
				closeOut()
				return err
			}
			if err := closeOut(); err != nil {
				return fmt.Errorf("closing output: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Only consider runs from this source (rspec|gotest)")
	return cmd
}

// lastRun loads the most recent run, optionally restricted to one source.
func (e *env) lastRun(cmd *cobra.Command, source string) (*history.Run, error) {
	switch source {
	case "", rspec.Name, gotest.Name:
	default:
		return nil, fmt.Errorf("unknown source %q (want %s or %s)", source, rspec.Name, gotest.Name)
	}

	store := e.openHistory()
	if store == nil {
		return nil, errors.New("history is disabled or unavailable")
	}
	defer store.Close()

	run, err := store.LastRun(cmd.Context(), source)
	if errors.Is(err, history.ErrNoRuns) {
		return nil, errors.New("no recorded runs")
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func writeRun(w io.Writer, run *history.Run) error {
	for _, f := range run.Failures {
		if _, err := fmt.Fprintln(w, f.Line); err != nil {
			return fmt.Errorf("writing quickfix line: %w", err)
		}
	}
	if _, err := fmt.Fprintln(w, quickfix.FinishedMarker); err != nil {
		return fmt.Errorf("writing quickfix line: %w", err)
	}
	return nil
}

func failureCount(n int) string {
	if n == 1 {
		return "1 failure"
	}
	return humanize.Comma(int64(n)) + " failures"
}
