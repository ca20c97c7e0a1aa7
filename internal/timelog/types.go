// Package timelog holds the records shared between the timer and the
// authoritative time-log service: jobs, shifts and time logs.
package timelog

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Status is the lifecycle state of a TimeLog.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
)

// Active reports whether the log still counts against the one-open-log-per-job rule.
func (s Status) Active() bool {
	return s == StatusInProgress || s == StatusPaused
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusInProgress, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

// Shift is a recurring daily window stored in UTC. Times are kept as strings
// ("HH:MM" or "HH:MM:SS") and parsed where they are evaluated.
type Shift struct {
	ID           string `json:"id" yaml:"id"`
	Title        string `json:"title" yaml:"title"`
	StartTimeUTC string `json:"start_time_utc" yaml:"start_time_utc"`
	EndTimeUTC   string `json:"end_time_utc" yaml:"end_time_utc"`
	IsActive     bool   `json:"is_active" yaml:"is_active"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Job is a unit of work with an inclusive calendar date range. A job with no
// shifts may be tracked at any time inside its range.
type Job struct {
	ID        string  `json:"id" yaml:"id"`
	Title     string  `json:"title" yaml:"title"`
	StartDate Date    `json:"start_date" yaml:"start_date"`
	EndDate   Date    `json:"end_date" yaml:"end_date"`
	Shifts    []Shift `json:"shifts,omitempty" yaml:"shifts,omitempty"`
}

// TimeLog is the authoritative record of one work session against a job.
type TimeLog struct {
	ID            string     `json:"id"`
	JobID         string     `json:"job_id"`
	Status        Status     `json:"status"`
	StartTime     time.Time  `json:"start_time"`    // start of the current unbroken run
	TotalSeconds  int64      `json:"total_seconds"` // accumulated as of the last pause/stop
	LastResumedAt *time.Time `json:"last_resumed_at,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Elapsed returns the session's accumulated duration as of now.
func (l TimeLog) Elapsed(now time.Time) int64 {
	if l.Status != StatusInProgress || l.StartTime.IsZero() {
		return l.TotalSeconds
	}
	run := int64(now.Sub(l.StartTime) / time.Second)
	if run < 0 {
		run = 0
	}
	return l.TotalSeconds + run
}

// FindActive returns the first non-completed log, if any.
func FindActive(logs []TimeLog) (TimeLog, bool) {
	for _, l := range logs {
		if l.Status.Active() {
			return l, true
		}
	}
	return TimeLog{}, false
}

const dateLayout = "2006-01-02"

// Date is a calendar date with no time or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate builds a Date.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) IsZero() bool { return d == Date{} }

// StartIn returns midnight at the start of d in loc.
func (d Date) StartIn(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// EndIn returns the last representable instant of d in loc.
func (d Date) EndIn(loc *time.Location) time.Time {
	return d.StartIn(loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func (d Date) Before(o Date) bool {
	return d.StartIn(time.UTC).Before(o.StartIn(time.UTC))
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Date) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseDate(node.Value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
