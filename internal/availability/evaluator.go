// Package availability decides whether time tracking may start or resume for
// a job at a given instant, from the job's date range and its UTC shift
// windows as seen from the viewer's zone.
package availability

import (
	"fmt"
	"time"

	"github.com/aceteam-ai/shiftclock/internal/schedule"
	"github.com/aceteam-ai/shiftclock/internal/timelog"
	"github.com/aceteam-ai/shiftclock/internal/tzconv"
)

// Reason explains an unavailable result.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonBeforeStart  Reason = "before_start"
	ReasonEnded        Reason = "ended"
	ReasonBeforeShift  Reason = "before_shift"
	ReasonNoShiftToday Reason = "no_shift_today"
)

// Result is the outcome of an evaluation.
type Result struct {
	Available bool
	Reason    Reason

	// WaitUntil is the job's first instant, set for ReasonBeforeStart.
	WaitUntil time.Time

	// WaitSeconds is the time left until tracking opens, set for
	// ReasonBeforeShift and ReasonBeforeStart.
	WaitSeconds int64

	// ShiftTitle names the next shift for ReasonBeforeShift, or the shift
	// whose window contains now when Available.
	ShiftTitle string
}

// Message renders the result for a user.
func (r Result) Message() string {
	switch r.Reason {
	case ReasonBeforeStart:
		return fmt.Sprintf("Job has not started yet; tracking opens %s (in %s)",
			r.WaitUntil.Format("2006-01-02 15:04 MST"), FormatDuration(r.WaitSeconds))
	case ReasonEnded:
		return "Job has ended; time tracking is closed"
	case ReasonBeforeShift:
		return fmt.Sprintf("Next shift %q starts in %s", r.ShiftTitle, FormatDuration(r.WaitSeconds))
	case ReasonNoShiftToday:
		return "No more shifts today"
	}
	if r.ShiftTitle != "" {
		return fmt.Sprintf("Time tracking is available (shift %q)", r.ShiftTitle)
	}
	return "Time tracking is available"
}

// window is a shift's wall-clock span in the viewer's zone.
type window struct {
	title string
	start int
	end   int
}

// Evaluate decides availability for job at now, with calendar boundaries and
// shift windows interpreted in zone.
//
// Shift windows are compared as same-day times of day with inclusive bounds.
// A window that wraps past local midnight has end < start and never matches.
func Evaluate(job timelog.Job, now time.Time, zone *time.Location) (Result, error) {
	if zone == nil {
		zone = time.Local
	}

	jobStart := job.StartDate.StartIn(zone)
	jobEnd := job.EndDate.EndIn(zone)

	if now.Before(jobStart) {
		return Result{
			Reason:      ReasonBeforeStart,
			WaitUntil:   jobStart,
			WaitSeconds: ceilSeconds(jobStart.Sub(now)),
		}, nil
	}
	if now.After(jobEnd) {
		return Result{Reason: ReasonEnded}, nil
	}
	if len(job.Shifts) == 0 {
		return Result{Available: true}, nil
	}

	windows, err := localWindows(job.Shifts, now, zone)
	if err != nil {
		return Result{}, err
	}

	current := tzconv.FromTime(now.In(zone)).Seconds()

	for _, w := range windows {
		if current >= w.start && current <= w.end {
			return Result{Available: true, ShiftTitle: w.title}, nil
		}
	}

	var next *window
	var wait int
	for i := range windows {
		w := &windows[i]
		until := w.start - current
		if until <= 0 {
			continue
		}
		// strict comparison keeps the first shift on ties
		if next == nil || until < wait {
			next, wait = w, until
		}
	}
	if next == nil {
		return Result{Reason: ReasonNoShiftToday}, nil
	}

	return Result{
		Reason:      ReasonBeforeShift,
		WaitSeconds: int64(wait),
		ShiftTitle:  next.title,
	}, nil
}

// localWindows maps each active shift's UTC bounds onto the viewer's zone,
// applying them to now's UTC calendar day. Every active shift is parsed before
// any is compared so a malformed entry always fails the evaluation.
func localWindows(shifts []timelog.Shift, now time.Time, zone *time.Location) ([]window, error) {
	windows := make([]window, 0, len(shifts))
	for _, s := range shifts {
		if !s.IsActive {
			continue
		}
		start, err := tzconv.ParseTimeOfDay(s.StartTimeUTC)
		if err != nil {
			return nil, fmt.Errorf("shift %q start: %w", s.Title, err)
		}
		end, err := tzconv.ParseTimeOfDay(s.EndTimeUTC)
		if err != nil {
			return nil, fmt.Errorf("shift %q end: %w", s.Title, err)
		}
		windows = append(windows, window{
			title: s.Title,
			start: tzconv.UTCToLocalOn(now, start, zone).Seconds(),
			end:   tzconv.UTCToLocalOn(now, end, zone).Seconds(),
		})
	}
	return windows, nil
}

func ceilSeconds(d time.Duration) int64 {
	s := int64(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}

// Evaluator binds a viewer zone and clock for repeated checks.
type Evaluator struct {
	Zone  *time.Location
	Clock schedule.Clock
}

// NewEvaluator returns an evaluator for zone using clock (the system clock
// when nil).
func NewEvaluator(zone *time.Location, clock schedule.Clock) *Evaluator {
	if clock == nil {
		clock = schedule.NewSystem()
	}
	return &Evaluator{Zone: zone, Clock: clock}
}

// Check evaluates job at the evaluator's current instant.
func (e *Evaluator) Check(job timelog.Job) (Result, error) {
	return Evaluate(job, e.Clock.Now(), e.Zone)
}
