// Package export renders time logs as an .xlsx timesheet.
package export

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/aceteam-ai/shiftclock/internal/availability"
	"github.com/aceteam-ai/shiftclock/internal/timelog"
)

// Sheet names
const (
	SessionsSheet = "Sessions"
	DailySheet    = "Daily"
)

var sessionHeader = []any{"Log ID", "Status", "Started", "Ended", "Duration", "Hours", "Notes"}

// Options control how a timesheet is rendered.
type Options struct {
	// Zone renders timestamps and groups days (default: UTC)
	Zone *time.Location

	// Now values open sessions (default: time.Now)
	Now time.Time
}

// DayTotal is the tracked time attributed to one local calendar day.
type DayTotal struct {
	Day      string // 2006-01-02 in the export zone
	Sessions int
	Seconds  int64
}

// DailyTotals groups logs by the local day each session began, oldest first.
func DailyTotals(logs []timelog.TimeLog, zone *time.Location, now time.Time) []DayTotal {
	if zone == nil {
		zone = time.UTC
	}
	byDay := make(map[string]*DayTotal)
	for _, l := range logs {
		key := sessionStart(l).In(zone).Format("2006-01-02")
		d, ok := byDay[key]
		if !ok {
			d = &DayTotal{Day: key}
			byDay[key] = d
		}
		d.Sessions++
		d.Seconds += l.Elapsed(now)
	}

	out := make([]DayTotal, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

// sessionStart is when the session opened; StartTime moves on every resume
func sessionStart(l timelog.TimeLog) time.Time {
	if !l.CreatedAt.IsZero() {
		return l.CreatedAt
	}
	return l.StartTime
}

// WriteTimesheet writes job's logs as a workbook with a per-session sheet and
// a per-day summary. Sessions are listed oldest first.
func WriteTimesheet(w io.Writer, job timelog.Job, logs []timelog.TimeLog, opts Options) error {
	if opts.Zone == nil {
		opts.Zone = time.UTC
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	sorted := make([]timelog.TimeLog, len(logs))
	copy(sorted, logs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sessionStart(sorted[i]).Before(sessionStart(sorted[j]))
	})

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SessionsSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	title := job.Title
	if title == "" {
		title = job.ID
	}
	f.SetCellValue(SessionsSheet, "A1", fmt.Sprintf("%s (%s to %s, times in %s)", title, job.StartDate, job.EndDate, opts.Zone))
	f.SetCellStyle(SessionsSheet, "A1", "A1", bold)
	if err := f.SetSheetRow(SessionsSheet, "A3", &sessionHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	f.SetCellStyle(SessionsSheet, "A3", "G3", bold)

	var total int64
	for i, l := range sorted {
		secs := l.Elapsed(opts.Now)
		total += secs
		ended := ""
		if l.EndTime != nil {
			ended = l.EndTime.In(opts.Zone).Format("2006-01-02 15:04:05")
		}
		row := []any{
			l.ID,
			string(l.Status),
			sessionStart(l).In(opts.Zone).Format("2006-01-02 15:04:05"),
			ended,
			availability.FormatClock(secs),
			hours(secs),
			l.Notes,
		}
		cell, _ := excelize.CoordinatesToCellName(1, 4+i)
		if err := f.SetSheetRow(SessionsSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write session %s: %w", l.ID, err)
		}
	}

	totalRow := 4 + len(sorted)
	labelCell, _ := excelize.CoordinatesToCellName(4, totalRow)
	endCell, _ := excelize.CoordinatesToCellName(6, totalRow)
	if err := f.SetSheetRow(SessionsSheet, labelCell, &[]any{"Total", availability.FormatClock(total), hours(total)}); err != nil {
		return fmt.Errorf("failed to write total: %w", err)
	}
	f.SetCellStyle(SessionsSheet, labelCell, endCell, bold)
	f.SetColWidth(SessionsSheet, "A", "A", 38)
	f.SetColWidth(SessionsSheet, "B", "F", 20)
	f.SetColWidth(SessionsSheet, "G", "G", 40)

	if _, err := f.NewSheet(DailySheet); err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}
	if err := f.SetSheetRow(DailySheet, "A1", &[]any{"Day", "Sessions", "Duration", "Hours"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	f.SetCellStyle(DailySheet, "A1", "D1", bold)
	for i, d := range DailyTotals(sorted, opts.Zone, opts.Now) {
		cell, _ := excelize.CoordinatesToCellName(1, 2+i)
		row := []any{d.Day, d.Sessions, availability.FormatClock(d.Seconds), hours(d.Seconds)}
		if err := f.SetSheetRow(DailySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write day %s: %w", d.Day, err)
		}
	}
	f.SetColWidth(DailySheet, "A", "D", 14)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// hours rounds to hundredths for payroll-style columns
func hours(seconds int64) float64 {
	return float64(seconds*100/3600) / 100
}
