package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nixlim/failloc/internal/tui"
)

// NewBrowseCmd opens the failure browser on the last run. The chosen location
// is printed to stdout; the interface itself draws on stderr.
func NewBrowseCmd(opts *Options) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Pick a failure of the last run interactively",
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

			p := tea.NewProgram(tui.NewModel(run),
				tea.WithContext(cmd.Context()),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.ErrOrStderr()),
				tea.WithAltScreen(),
			)
			final, err := p.Run()
			if err != nil {
				return fmt.Errorf("running browser: %w", err)
			}

			if m, ok := final.(tui.Model); ok {
				if loc, chosen := m.Selected(); chosen {
					fmt.Fprintln(cmd.OutOrStdout(), loc)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Only consider runs from this source (rspec|gotest)")
	return cmd
}
