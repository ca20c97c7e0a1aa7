// Package tzconv converts wall-clock times of day between a local zone and UTC.
//
// Only a time of day is converted, never a full instant, so a conversion that
// crosses midnight loses the day rollover. Shift previews rely on that; the
// availability evaluator works on full instants where the day matters.
package tzconv

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedTime is matched by every MalformedTimeError.
var ErrMalformedTime = errors.New("malformed time of day")

// MalformedTimeError reports input that is not HH:MM or HH:MM:SS.
type MalformedTimeError struct {
	Input  string
	Reason string
}

func (e *MalformedTimeError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("malformed time of day %q", e.Input)
	}
	return fmt.Sprintf("malformed time of day %q: %s", e.Input, e.Reason)
}

// Is lets errors.Is(err, ErrMalformedTime) match.
func (e *MalformedTimeError) Is(target error) bool {
	return target == ErrMalformedTime
}

const secondsPerDay = 24 * 60 * 60

// TimeOfDay is a wall-clock time expressed as seconds since midnight.
type TimeOfDay int

// Clock builds a TimeOfDay from its components. Out of range components wrap
// around the day.
func Clock(hour, minute, second int) TimeOfDay {
	return normalize(hour*3600 + minute*60 + second)
}

// FromTime returns the wall-clock time of t in t's own location.
func FromTime(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return Clock(h, m, s)
}

func normalize(sec int) TimeOfDay {
	sec %= secondsPerDay
	if sec < 0 {
		sec += secondsPerDay
	}
	return TimeOfDay(sec)
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS" (24 hour clock).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	trimmed := strings.TrimSpace(s)
	parts := strings.Split(trimmed, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, &MalformedTimeError{Input: s, Reason: "expected HH:MM or HH:MM:SS"}
	}

	limits := []int{23, 59, 59}
	values := make([]int, 3)
	for i, p := range parts {
		if len(p) == 0 || len(p) > 2 {
			return 0, &MalformedTimeError{Input: s, Reason: "each component must have one or two digits"}
		}
		for j := 0; j < len(p); j++ {
			if p[j] < '0' || p[j] > '9' {
				return 0, &MalformedTimeError{Input: s, Reason: "non-numeric component"}
			}
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, &MalformedTimeError{Input: s, Reason: "non-numeric component"}
		}
		if n > limits[i] {
			return 0, &MalformedTimeError{Input: s, Reason: "component out of range"}
		}
		values[i] = n
	}

	return TimeOfDay(values[0]*3600 + values[1]*60 + values[2]), nil
}

// MustParse is ParseTimeOfDay for constants and tests.
func MustParse(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) Hour() int   { return int(t) / 3600 }
func (t TimeOfDay) Minute() int { return int(t) % 3600 / 60 }
func (t TimeOfDay) Second() int { return int(t) % 60 }

// Seconds returns the number of seconds since midnight.
func (t TimeOfDay) Seconds() int { return int(t) }

// On places t on the calendar day of day, in loc.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, loc)
}

// String formats as HH:MM:SS.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
}

// Short formats as HH:MM.
func (t TimeOfDay) Short() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
