package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aceteam-ai/shiftclock/internal/timelog"
	"github.com/aceteam-ai/shiftclock/internal/tzconv"
)

// Catalog is a read-only set of jobs and their shifts, loaded from YAML:
//
//	jobs:
//	  - id: warehouse-jan
//	    title: Warehouse inventory
//	    start_date: 2025-01-01
//	    end_date: 2025-01-10
//	    shifts:
//	      - id: morning
//	        title: Morning
//	        start_time_utc: "09:00"
//	        end_time_utc: "17:00"
//	        is_active: true
type Catalog struct {
	Jobs []timelog.Job `yaml:"jobs"`

	byID map[string]int
}

var _ timelog.JobSource = (*Catalog)(nil)

// LoadCatalog reads and validates a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job catalog: %w", err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("job catalog %s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog decodes and validates catalog YAML. Job IDs must be unique
// and every shift time must parse. Inverted date ranges are accepted; such a
// job is simply never available.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse job catalog: %w", err)
	}
	return NewCatalog(c.Jobs...)
}

// NewCatalog builds a catalog from jobs.
func NewCatalog(jobs ...timelog.Job) (*Catalog, error) {
	c := &Catalog{Jobs: jobs, byID: make(map[string]int, len(jobs))}
	for i, j := range jobs {
		if j.ID == "" {
			return nil, fmt.Errorf("job %d has no id", i)
		}
		if _, dup := c.byID[j.ID]; dup {
			return nil, fmt.Errorf("duplicate job id %q", j.ID)
		}
		if j.StartDate.IsZero() || j.EndDate.IsZero() {
			return nil, fmt.Errorf("job %q needs start_date and end_date", j.ID)
		}
		for _, s := range j.Shifts {
			if _, err := tzconv.ParseTimeOfDay(s.StartTimeUTC); err != nil {
				return nil, fmt.Errorf("job %q shift %q: %w", j.ID, s.Title, err)
			}
			if _, err := tzconv.ParseTimeOfDay(s.EndTimeUTC); err != nil {
				return nil, fmt.Errorf("job %q shift %q: %w", j.ID, s.Title, err)
			}
		}
		c.byID[j.ID] = i
	}
	return c, nil
}

// GetJob returns the job with id or timelog.ErrNotFound.
func (c *Catalog) GetJob(_ context.Context, id string) (timelog.Job, error) {
	i, ok := c.byID[id]
	if !ok {
		return timelog.Job{}, fmt.Errorf("job %q: %w", id, timelog.ErrNotFound)
	}
	return c.Jobs[i], nil
}

// ListJobs returns every job in file order.
func (c *Catalog) ListJobs(context.Context) ([]timelog.Job, error) {
	out := make([]timelog.Job, len(c.Jobs))
	copy(out, c.Jobs)
	return out, nil
}

const sampleCatalog = `# Jobs served by 'shiftclock serve'. Shift times are UTC wall-clock
# times (HH:MM or HH:MM:SS). Shifts whose end is before their start never
# open; split them into two shifts instead.
jobs:
  - id: sample-job
    title: Sample job
    start_date: %s
    end_date: %s
    shifts:
      - id: day
        title: Day shift
        start_time_utc: "08:00"
        end_time_utc: "16:00"
        is_active: true
      - id: late
        title: Late shift
        start_time_utc: "16:00"
        end_time_utc: "23:59:59"
        is_active: false
`

// WriteSampleCatalog writes a starter catalog running from today for 30
// days. An existing file is left untouched and reported via written=false.
func WriteSampleCatalog(path string, today time.Time) (written bool, err error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("failed to check job catalog: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return false, fmt.Errorf("failed to create catalog directory: %w", err)
	}
	start := timelog.DateOf(today)
	end := timelog.DateOf(today.AddDate(0, 0, 30))
	data := fmt.Sprintf(sampleCatalog, start, end)
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return false, fmt.Errorf("failed to write job catalog %s: %w", path, err)
	}
	return true, nil
}
