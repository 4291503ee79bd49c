package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nixlim/failloc/internal/config"
	"github.com/nixlim/failloc/internal/history"
	"github.com/nixlim/failloc/internal/logging"
)

// env is what every command needs once flags are parsed.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

func setup(cmd *cobra.Command, opts *Options) (*env, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &env{cfg: cfg, logger: logger}, nil
}

// loadConfig loads the configured file and prints its warnings. An explicit
// --config path must exist; the default path is optional.
func loadConfig(cmd *cobra.Command, opts *Options) (config.Config, error) {
	var (
		res *config.LoadResult
		err error
	)
	if opts.ConfigPath != "" {
		if _, statErr := os.Stat(opts.ConfigPath); statErr != nil {
			return config.Config{}, fmt.Errorf("load config: %w", statErr)
		}
		res, err = config.LoadFrom(opts.ConfigPath)
	} else {
		res, err = config.Load()
	}
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}

	for _, w := range res.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "failloc: config warning: %s\n", w)
	}
	return res.Config, nil
}

// openHistory returns nil when history is disabled or unavailable.
func (e *env) openHistory() *history.Store {
	return history.NewStore(e.cfg.History, e.logger)
}

// openInput opens the named file, or stdin when no file or "-" is given.
func openInput(cmd *cobra.Command, args []string) (io.Reader, func(), error) {
	if len(args) == 0 || args[0] == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, nil, fmt.Errorf("opening input: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// openOutput opens the quickfix sink. The --out flag wins over the config
// file; with neither, lines go to stdout.
func openOutput(cmd *cobra.Command, opts *Options, cfg config.Config) (io.Writer, func() error, error) {
	path := opts.OutPath
	if path == "" {
		path = cfg.Output.Path
	}
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, f.Close, nil
}
