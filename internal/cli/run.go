package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nixlim/failloc/internal/history"
	"github.com/nixlim/failloc/internal/quickfix"
	"github.com/nixlim/failloc/internal/reporter"
	"github.com/nixlim/failloc/internal/source/gotest"
	"github.com/nixlim/failloc/internal/source/rspec"
)

// NewRSpecCmd formats an RSpec JSON report.
func NewRSpecCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "rspec [report.json]",
		Short: "Emit quickfix lines from an RSpec JSON report (rspec --format json)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSource(cmd, opts, args, rspec.Name, func(ctx context.Context, e *env, r io.Reader, rep reporter.Reporter) error {
				stats, err := rspec.New(e.logger).Run(ctx, r, rep)
				if err != nil {
					return err
				}
				e.logger.Info("rspec report processed",
					zap.Int("examples", stats.Examples),
					zap.Int("failures", stats.Failures),
				)
				return nil
			})
		},
	}
}

// NewGoTestCmd formats a go test -json event stream.
func NewGoTestCmd(opts *Options) *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "gotest [events.json]",
		Short: "Emit quickfix lines from go test -json output",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSource(cmd, opts, args, gotest.Name, func(ctx context.Context, e *env, r io.Reader, rep reporter.Reporter) error {
				dir := e.cfg.GoTest.Root
				if cmd.Flags().Changed("root") {
					dir = root
				}
				src := gotest.New(
					gotest.WithRoot(dir),
					gotest.WithMaxOutputLines(e.cfg.GoTest.MaxOutputLines),
					gotest.WithLogger(e.logger),
				)
				stats, err := src.Run(ctx, r, rep)
				if err != nil {
					return err
				}
				e.logger.Info("go test stream processed",
					zap.Int("tests", stats.Tests),
					zap.Int("failures", stats.Failures),
					zap.Int("skipped_lines", stats.Skipped),
				)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Directory go test ran in (default from config)")
	return cmd
}

type sourceFunc func(ctx context.Context, e *env, r io.Reader, rep reporter.Reporter) error

// runSource feeds one input through a source into the quickfix sink, the
// optional event log and the history collector, then records the run.
func runSource(cmd *cobra.Command, opts *Options, args []string, name string, run sourceFunc) error {
	e, err := setup(cmd, opts)
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	in, closeIn, err := openInput(cmd, args)
	if err != nil {
		return err
	}
	defer closeIn()

	out, closeOut, err := openOutput(cmd, opts, e.cfg)
	if err != nil {
		return err
	}

	locator := quickfix.NewLocator(
		quickfix.WithSuffixes(e.cfg.Locator.Suffixes...),
		quickfix.WithLogger(e.logger),
	)
	qf := reporter.NewQuickfix(out, locator)
	collector := reporter.NewCollector(locator)
	reporters := []reporter.Reporter{qf, collector}

	if opts.DebugPath != "" {
		f, err := os.Create(opts.DebugPath)
		if err != nil {
			closeOut()
			return fmt.Errorf("creating debug log: %w", err)
		}
		defer f.Close()
		reporters = append(reporters, reporter.NewEventLog(f))
	}

	runErr := run(cmd.Context(), e, in, reporter.Tee(reporters...))
	closeErr := closeOut()
	if runErr != nil {
		return runErr
	}
	if err := qf.Err(); err != nil {
		return err
	}
	if closeErr != nil {
		return fmt.Errorf("closing output: %w", closeErr)
	}

	if !opts.NoHistory && collector.Done() {
		e.record(cmd.Context(), collector.Run(name))
	}
	return nil
}

// record saves a completed run and prunes old ones. Failures are logged and
// never fail the command.
func (e *env) record(ctx context.Context, run *history.Run) {
	store := e.openHistory()
	if store == nil {
		return
	}
	defer store.Close()

	if err := store.SaveRun(ctx, run); err != nil {
		e.logger.Warn("saving run to history", zap.Error(err))
		return
	}
	pruned, err := store.Prune(ctx, e.cfg.History.KeepRuns)
	if err != nil {
		e.logger.Warn("pruning history", zap.Error(err))
		return
	}
	e.logger.Debug("run recorded",
		zap.String("run_id", run.ID),
		zap.Int("failures", run.FailureCount),
		zap.Int64("pruned", pruned),
	)
}
