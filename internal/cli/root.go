// Package cli wires the failloc command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nixlim/failloc/internal/version"
)

// Options holds global CLI options.
type Options struct {
	ConfigPath string
	OutPath    string
	DebugPath  string
	NoHistory  bool
}

// NewRootCmd constructs the base CLI command tree.
func NewRootCmd() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "failloc",
		Short: "Turn test failures into editor quickfix lines",
		Long: `failloc reads test results and prints one "location: message" line per
failure, pointing at the failing expectation, followed by "finished".`,
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigPath, "config", "", "Path to config file (default: ~/.config/failloc/config.toml)")
	flags.StringVarP(&opts.OutPath, "out", "o", "", "Write quickfix lines to this file instead of stdout")
	flags.StringVar(&opts.DebugPath, "debug", "", "Write a JSONL log of received failure events to this file")
	flags.BoolVar(&opts.NoHistory, "no-history", false, "Do not record this run in history")

	cmd.AddCommand(NewRSpecCmd(opts))
	cmd.AddCommand(NewGoTestCmd(opts))
	cmd.AddCommand(NewLastCmd(opts))
	cmd.AddCommand(NewBrowseCmd(opts))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failloc: %v\n", err)
		os.Exit(1)
	}
}
