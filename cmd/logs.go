// cmd/logs.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aceteam-ai/shiftclock/internal/availability"
	"github.com/aceteam-ai/shiftclock/internal/export"
	"github.com/aceteam-ai/shiftclock/internal/timelog"
)

var logsXLSX string

var logsCmd = &cobra.Command{
	Use:   "logs <job-id>",
	Short: "List the time logs recorded for a job",
	Example: `  shiftclock logs warehouse-jan
  shiftclock logs warehouse-jan --xlsx timesheet.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		zone, err := cfg.Location()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		client := newHTTPClient(cfg)
		job, err := client.GetJob(ctx, args[0])
		if err != nil {
			return err
		}
		logs, err := client.ListLogs(ctx, job.ID)
		if err != nil {
			return err
		}
		now := time.Now()

		if logsXLSX != "" {
			f, err := os.Create(logsXLSX)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", logsXLSX, err)
			}
			if err := export.WriteTimesheet(f, job, logs, export.Options{Zone: zone, Now: now}); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			goodColor.Printf("✅ Wrote %d sessions to %s\n", len(logs), logsXLSX)
			return nil
		}

		if len(logs) == 0 {
			fmt.Printf("No time logged on %s yet.\n", job.ID)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		headerColor.Fprintln(w, "ID\tSTATUS\tSTARTED\tDURATION\tNOTES")
		var total int64
		for _, l := range logs {
			secs := l.Elapsed(now)
			total += secs
			started := l.CreatedAt
			if started.IsZero() {
				started = l.StartTime
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", l.ID, statusText(l.Status), started.In(zone).Format("2006-01-02 15:04"), availability.FormatClock(secs), l.Notes)
		}
		w.Flush()

		fmt.Println()
		for _, d := range export.DailyTotals(logs, zone, now) {
			fmt.Printf("%s  %s  (%d sessions)\n", labelColor.Sprint(d.Day), availability.FormatDuration(d.Seconds), d.Sessions)
		}
		fmt.Printf("%s %s\n", labelColor.Sprint("Total:"), availability.FormatDuration(total))
		return nil
	},
}

func statusText(s timelog.Status) string {
	switch s {
	case timelog.StatusInProgress:
		return goodColor.Sprint(string(s))
	case timelog.StatusPaused:
		return warnColor.Sprint(string(s))
	}
	return string(s)
}

func init() {
	logsCmd.Flags().StringVar(&logsXLSX, "xlsx", "", "write an .xlsx timesheet instead of printing")
	rootCmd.AddCommand(logsCmd)
}
