// cmd/zones.go
package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aceteam-ai/shiftclock/internal/tzconv"
)

var zonesFromLocal bool

var zonesCmd = &cobra.Command{
	Use:   "zones [HH:MM]",
	Short: "Show a UTC time of day across common time zones",
	Long: `Renders a time of day (default: now) in every zone of the display catalog.

The time is read as UTC unless --local is set, in which case it is read in
your zone (--zone or config) and converted to UTC first.`,
	Example: `  shiftclock zones
  shiftclock zones 09:00
  shiftclock zones 14:30 --local --zone IST`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		zone, err := cfg.Location()
		if err != nil {
			return err
		}

		now := time.Now()
		utc := tzconv.FromTime(now.UTC())
		if len(args) == 1 {
			if zonesFromLocal {
				utc, err = tzconv.LocalTimeToUTC(args[0], zone)
			} else {
				utc, err = tzconv.ParseTimeOfDay(args[0])
			}
			if err != nil {
				return err
			}
		}

		if zonesFromLocal && len(args) == 1 {
			fmt.Printf("%s %s in %s is %s UTC\n\n", labelColor.Sprint("Converted:"), args[0], zone, utc.Short())
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()
		headerColor.Fprintln(w, "ZONE\tNAME\tTIME")
		for _, zt := range tzconv.MultiZoneDisplayOn(now, utc) {
			fmt.Fprintf(w, "%s\t%s\t%s\n", zt.Label, zt.Zone, zt.Local.Short())
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", "you", zone, tzconv.UTCToLocalOn(now, utc, zone).Short())
		return nil
	},
}

func init() {
	zonesCmd.Flags().BoolVar(&zonesFromLocal, "local", false, "read the time in your zone instead of UTC")
	rootCmd.AddCommand(zonesCmd)
}
