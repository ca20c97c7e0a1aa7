// cmd/watch.go
package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/aceteam-ai/shiftclock/internal/config"
	"github.com/aceteam-ai/shiftclock/internal/timer"
	"github.com/aceteam-ai/shiftclock/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:     "watch <job-id>",
	Aliases: []string{"w"},
	Short:   "Interactive session timer for a job",
	Long: `Opens a live timer for the job. The counter ticks every second while the
session runs and the job's shifts are shown in your time zone.

Keys: s start, p/space pause or resume, x stop (asks for notes), r resync, q quit.
Quitting leaves the session as it is on the service.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !tui.IsTTY() {
			return fmt.Errorf("watch needs a terminal; use 'shiftclock status %s' instead", args[0])
		}
		var bridge tui.Bridge
		return withMachine(args[0], bridge.OnChange, func(_ context.Context, m *timer.Machine, cfg *config.Config) error {
			zone, err := cfg.Location()
			if err != nil {
				return err
			}
			p := tea.NewProgram(tui.NewTimerModel(m, zone), tea.WithAltScreen())
			bridge.Attach(p)
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("timer view failed: %w", err)
			}
			printSnapshot(m.Snapshot())
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
