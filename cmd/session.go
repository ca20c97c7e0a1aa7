// cmd/session.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aceteam-ai/shiftclock/internal/availability"
	"github.com/aceteam-ai/shiftclock/internal/config"
	"github.com/aceteam-ai/shiftclock/internal/timer"
)

var stopNotes string

// withMachine mounts a timer for jobID against the configured service and
// runs fn with it. The machine is closed afterwards.
func withMachine(jobID string, onChange func(timer.Snapshot), fn func(ctx context.Context, m *timer.Machine, cfg *config.Config) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	zone, err := cfg.Location()
	if err != nil {
		return err
	}
	client := newHTTPClient(cfg)

	m, err := timer.New(timer.Config{
		JobID:    jobID,
		Jobs:     client,
		Client:   client,
		Zone:     zone,
		OnChange: onChange,
		LogFn:    logFn,
	})
	if err != nil {
		return err
	}
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.Mount(ctx); err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	return fn(ctx, m, cfg)
}

// printSnapshot writes the one-line session summary used by the action commands
func printSnapshot(s timer.Snapshot) {
	phase := s.Phase.String()
	switch s.Phase {
	case timer.Running:
		phase = goodColor.Sprint(phase)
	case timer.Paused:
		phase = warnColor.Sprint(phase)
	}
	fmt.Printf("%s %s  %s  %s\n", labelColor.Sprint(s.JobID), phase, s.Clock(), availabilityText(s.Availability, s.AvailabilityErr))
}

func availabilityText(r availability.Result, err error) string {
	if err != nil {
		return badColor.Sprintf("shift data error: %v", err)
	}
	if r.Available {
		return goodColor.Sprint(r.Message())
	}
	return warnColor.Sprint(r.Message())
}

// explain adds a hint for the errors users can act on
func explain(err error) error {
	var unavailable *timer.AvailabilityError
	switch {
	case errors.As(err, &unavailable):
		return fmt.Errorf("cannot track time now: %s", unavailable.Error())
	case errors.Is(err, timer.ErrInvalidTransition):
		return fmt.Errorf("%w (run 'shiftclock status <job>' to see the session)", err)
	case errors.Is(err, timer.ErrStaleState):
		return fmt.Errorf("%w; the local view has been refreshed", err)
	}
	return err
}

func sessionAction(name, short string, act func(ctx context.Context, m *timer.Machine) error) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <job-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMachine(args[0], nil, func(ctx context.Context, m *timer.Machine, _ *config.Config) error {
				if err := act(ctx, m); err != nil {
					printSnapshot(m.Snapshot())
					return explain(err)
				}
				printSnapshot(m.Snapshot())
				return nil
			})
		},
	}
}

var startCmd = sessionAction("start", "Start a work session on a job", func(ctx context.Context, m *timer.Machine) error {
	return m.Start(ctx)
})

var pauseCmd = sessionAction("pause", "Pause the running session", func(ctx context.Context, m *timer.Machine) error {
	return m.Pause(ctx)
})

var resumeCmd = sessionAction("resume", "Resume a paused session", func(ctx context.Context, m *timer.Machine) error {
	return m.Resume(ctx)
})

var stopCmd = sessionAction("stop", "Stop the session and save it", func(ctx context.Context, m *timer.Machine) error {
	return m.Stop(ctx, stopNotes)
})

var statusCmd = &cobra.Command{
	Use:     "status <job-id>",
	Aliases: []string{"st"},
	Short:   "Show the current session and availability for a job",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMachine(args[0], nil, func(_ context.Context, m *timer.Machine, _ *config.Config) error {
			s := m.Snapshot()
			printSnapshot(s)
			if s.ActiveLogID != "" {
				fmt.Printf("  log %s, run started %s\n", s.ActiveLogID, s.StartTime.Local().Format("2006-01-02 15:04:05"))
			}
			return nil
		})
	},
}

func init() {
	stopCmd.Flags().StringVar(&stopNotes, "notes", "", "notes saved with the session")
	rootCmd.AddCommand(startCmd, pauseCmd, resumeCmd, stopCmd, statusCmd)
}
