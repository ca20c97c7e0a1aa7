package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/aceteam-ai/shiftclock/internal/timelog"
)

var (
	day1 = time.Date(2025, time.January, 5, 22, 30, 0, 0, time.UTC)
	day2 = time.Date(2025, time.January, 6, 9, 0, 0, 0, time.UTC)
)

func ptr(t time.Time) *time.Time { return &t }

func sampleLogs() []timelog.TimeLog {
	return []timelog.TimeLog{
		{
			ID: "b", JobID: "job-1", Status: timelog.StatusInProgress,
			CreatedAt: day2, StartTime: day2.Add(30 * time.Minute), TotalSeconds: 600,
		},
		{
			ID: "a", JobID: "job-1", Status: timelog.StatusCompleted,
			CreatedAt: day1, StartTime: day1, TotalSeconds: 5400,
			EndTime: ptr(day1.Add(90 * time.Minute)), Notes: "late inventory",
		},
	}
}

func TestDailyTotals(t *testing.T) {
	now := day2.Add(40 * time.Minute) // open run is 10 minutes in

	utc := DailyTotals(sampleLogs(), nil, now)
	if len(utc) != 2 {
		t.Fatalf("DailyTotals(UTC) = %+v, want 2 days", utc)
	}
	if utc[0] != (DayTotal{Day: "2025-01-05", Sessions: 1, Seconds: 5400}) {
		t.Errorf("day 1 = %+v", utc[0])
	}
	if utc[1] != (DayTotal{Day: "2025-01-06", Sessions: 1, Seconds: 1200}) {
		t.Errorf("day 2 = %+v", utc[1])
	}

	// 22:30 UTC on the 5th is already the 6th in Kolkata
	ist := time.FixedZone("IST", 5*3600+1800)
	local := DailyTotals(sampleLogs(), ist, now)
	if len(local) != 1 || local[0].Day != "2025-01-06" || local[0].Sessions != 2 {
		t.Errorf("DailyTotals(IST) = %+v, want one day with both sessions", local)
	}
}

func TestWriteTimesheet(t *testing.T) {
	job := timelog.Job{
		ID: "job-1", Title: "Inventory",
		StartDate: timelog.NewDate(2025, time.January, 1),
		EndDate:   timelog.NewDate(2025, time.January, 10),
	}
	var buf bytes.Buffer
	err := WriteTimesheet(&buf, job, sampleLogs(), Options{Now: day2.Add(40 * time.Minute)})
	if err != nil {
		t.Fatalf("WriteTimesheet: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SessionsSheet)
	if err != nil {
		t.Fatalf("GetRows(%s): %v", SessionsSheet, err)
	}
	if len(rows) != 6 {
		t.Fatalf("sessions rows = %d, want 6: %v", len(rows), rows)
	}
	if rows[0][0] != "Inventory (2025-01-01 to 2025-01-10, times in UTC)" {
		t.Errorf("title = %q", rows[0][0])
	}
	if rows[2][0] != "Log ID" {
		t.Errorf("header = %v", rows[2])
	}
	// oldest first
	if rows[3][0] != "a" || rows[3][2] != "2025-01-05 22:30:00" || rows[3][3] != "2025-01-06 00:00:00" {
		t.Errorf("first session = %v, want log a", rows[3])
	}
	if rows[3][4] != "1:30:00" || rows[3][6] != "late inventory" {
		t.Errorf("first session = %v", rows[3])
	}
	if rows[4][0] != "b" || rows[4][3] != "" || rows[4][4] != "0:20:00" {
		t.Errorf("open session = %v", rows[4])
	}
	if rows[5][3] != "Total" || rows[5][4] != "1:50:00" || rows[5][5] != "1.83" {
		t.Errorf("total row = %v", rows[5])
	}

	daily, err := f.GetRows(DailySheet)
	if err != nil {
		t.Fatalf("GetRows(%s): %v", DailySheet, err)
	}
	if len(daily) != 3 || daily[1][0] != "2025-01-05" || daily[2][2] != "0:20:00" {
		t.Errorf("daily rows = %v", daily)
	}
}

func TestWriteTimesheetEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTimesheet(&buf, timelog.Job{ID: "job-9"}, nil, Options{}); err != nil {
		t.Fatalf("WriteTimesheet: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()
	rows, _ := f.GetRows(SessionsSheet)
	if len(rows) != 4 || rows[3][3] != "Total" || rows[3][4] != "0:00:00" {
		t.Errorf("rows = %v", rows)
	}
}

func TestHours(t *testing.T) {
	tests := map[int64]float64{0: 0, 3600: 1, 5400: 1.5, 6600: 1.83, 59: 0.01}
	for secs, want := range tests {
		if got := hours(secs); got != want {
			t.Errorf("hours(%d) = %v, want %v", secs, got, want)
		}
	}
}
