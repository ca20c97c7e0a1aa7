// cmd/jobs.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aceteam-ai/shiftclock/internal/availability"
	"github.com/aceteam-ai/shiftclock/internal/tzconv"
)

var jobsAllZones bool

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List jobs and whether time can be tracked on them now",
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

		jobs, err := newHTTPClient(cfg).ListJobs(ctx)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No jobs.")
			return nil
		}

		now := time.Now()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()
		headerColor.Fprintln(w, "ID\tTITLE\tDATES\tSHIFTS\tNOW")
		for _, j := range jobs {
			r, err := availability.Evaluate(j, now, zone)
			fmt.Fprintf(w, "%s\t%s\t%s to %s\t%d\t%s\n", j.ID, j.Title, j.StartDate, j.EndDate, len(j.Shifts), availabilityText(r, err))
		}
		return nil
	},
}

var jobShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show a job's shifts in your time zone",
	Args:  cobra.ExactArgs(1),
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

		job, err := newHTTPClient(cfg).GetJob(ctx, args[0])
		if err != nil {
			return err
		}

		now := time.Now()
		headerColor.Printf("%s (%s)\n", job.Title, job.ID)
		fmt.Printf("%s %s to %s\n", labelColor.Sprint("Dates:"), job.StartDate, job.EndDate)
		r, evalErr := availability.Evaluate(job, now, zone)
		fmt.Printf("%s %s\n\n", labelColor.Sprint("Now:"), availabilityText(r, evalErr))

		if len(job.Shifts) == 0 {
			fmt.Println("No shifts; time can be tracked any time within the dates.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintf(w, "SHIFT\tUTC\t%s\tACTIVE\n", zone)
		for _, s := range job.Shifts {
			start, err := tzconv.UTCTimeToLocal(s.StartTimeUTC, zone)
			if err != nil {
				fmt.Fprintf(w, "%s\t%s-%s\t%s\t%v\n", s.Title, s.StartTimeUTC, s.EndTimeUTC, badColor.Sprint("invalid"), s.IsActive)
				continue
			}
			end, err := tzconv.UTCTimeToLocal(s.EndTimeUTC, zone)
			if err != nil {
				fmt.Fprintf(w, "%s\t%s-%s\t%s\t%v\n", s.Title, s.StartTimeUTC, s.EndTimeUTC, badColor.Sprint("invalid"), s.IsActive)
				continue
			}
			note := ""
			if end < start {
				note = warnColor.Sprint(" (crosses midnight, never open)")
			}
			fmt.Fprintf(w, "%s\t%s-%s\t%s-%s%s\t%v\n", s.Title, s.StartTimeUTC, s.EndTimeUTC, start.Short(), end.Short(), note, s.IsActive)

			if jobsAllZones {
				utcStart, _ := tzconv.ParseTimeOfDay(s.StartTimeUTC)
				for _, zt := range tzconv.MultiZoneDisplayOn(now, utcStart) {
					fmt.Fprintf(w, "\t\t%s %s\t\n", zt.Label, zt.Local.Short())
				}
			}
		}
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <job-id>",
	Short: "Check whether time can be tracked on a job right now",
	Long: `Evaluates the job's date range and shifts in your zone.
Exits 0 when tracking is allowed and 2 when it is not.`,
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

		job, err := newHTTPClient(cfg).GetJob(ctx, args[0])
		if err != nil {
			return err
		}
		r, err := availability.Evaluate(job, time.Now(), zone)
		if err != nil {
			return fmt.Errorf("job %s has invalid shift data: %w", job.ID, err)
		}
		fmt.Println(availabilityText(r, nil))
		if !r.Available {
			if !r.WaitUntil.IsZero() {
				fmt.Printf("Opens at %s\n", r.WaitUntil.In(zone).Format("2006-01-02 15:04 MST"))
			}
			os.Exit(2)
		}
		return nil
	},
}

func init() {
	jobShowCmd.Flags().BoolVar(&jobsAllZones, "all-zones", false, "also show each shift start across common zones")
	jobsCmd.AddCommand(jobShowCmd)
	rootCmd.AddCommand(jobsCmd, checkCmd)
}
