package tzconv

import (
	"fmt"
	"sync"
	"time"

	_ "time/tzdata" // conversions must not depend on the host zoneinfo
)

// now is swapped in tests.
var now = time.Now

// LocalToUTCOn interprets t as a wall-clock time on day's calendar date in
// zone and returns the UTC time of day.
func LocalToUTCOn(day time.Time, t TimeOfDay, zone *time.Location) TimeOfDay {
	return FromTime(t.On(day, zone).UTC())
}

// LocalToUTC is LocalToUTCOn for the current calendar day.
func LocalToUTC(t TimeOfDay, zone *time.Location) TimeOfDay {
	return LocalToUTCOn(now(), t, zone)
}

// UTCToLocalOn interprets t as a UTC time of day on day's UTC calendar date
// and returns the wall-clock time of day in zone.
func UTCToLocalOn(day time.Time, t TimeOfDay, zone *time.Location) TimeOfDay {
	return FromTime(t.On(day, time.UTC).In(zone))
}

// UTCToLocal is UTCToLocalOn for the current calendar day.
func UTCToLocal(t TimeOfDay, zone *time.Location) TimeOfDay {
	return UTCToLocalOn(now(), t, zone)
}

// LocalTimeToUTC parses s and converts it with LocalToUTC.
func LocalTimeToUTC(s string, zone *time.Location) (TimeOfDay, error) {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		return 0, err
	}
	return LocalToUTC(t, zone), nil
}

// UTCTimeToLocal parses s and converts it with UTCToLocal.
func UTCTimeToLocal(s string, zone *time.Location) (TimeOfDay, error) {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		return 0, err
	}
	return UTCToLocal(t, zone), nil
}

// NamedZone is one entry in the display catalog.
type NamedZone struct {
	Label string
	Name  string // IANA name
}

// Catalog is the fixed set of zones used by MultiZoneDisplay, in display order.
var Catalog = []NamedZone{
	{Label: "UTC", Name: "UTC"},
	{Label: "IST", Name: "Asia/Kolkata"},
	{Label: "ET", Name: "America/New_York"},
	{Label: "PT", Name: "America/Los_Angeles"},
	{Label: "CET", Name: "Europe/Berlin"},
	{Label: "AET", Name: "Australia/Sydney"},
	{Label: "JST", Name: "Asia/Tokyo"},
	{Label: "CST", Name: "America/Chicago"},
	{Label: "SGT", Name: "Asia/Singapore"},
	{Label: "GST", Name: "Asia/Dubai"},
}

var (
	catalogOnce sync.Once
	catalogLocs map[string]*time.Location
)

func catalogLocations() map[string]*time.Location {
	catalogOnce.Do(func() {
		catalogLocs = make(map[string]*time.Location, len(Catalog))
		for _, z := range Catalog {
			loc, err := time.LoadLocation(z.Name)
			if err != nil {
				// unreachable with the embedded tz database
				panic(fmt.Sprintf("tzconv: load %s: %v", z.Name, err))
			}
			catalogLocs[z.Label] = loc
		}
	})
	return catalogLocs
}

// ZoneTime is one row of a multi-zone display.
type ZoneTime struct {
	Label string
	Zone  *time.Location
	Local TimeOfDay
}

// MultiZoneDisplayOn renders a UTC time of day across Catalog, using day's
// UTC calendar date for offsets.
func MultiZoneDisplayOn(day time.Time, utc TimeOfDay) []ZoneTime {
	locs := catalogLocations()
	out := make([]ZoneTime, 0, len(Catalog))
	for _, z := range Catalog {
		loc := locs[z.Label]
		out = append(out, ZoneTime{
			Label: z.Label,
			Zone:  loc,
			Local: UTCToLocalOn(day, utc, loc),
		})
	}
	return out
}

// MultiZoneDisplay is MultiZoneDisplayOn for the current day.
func MultiZoneDisplay(utc TimeOfDay) []ZoneTime {
	return MultiZoneDisplayOn(now(), utc)
}

// LookupZone resolves a catalog label (e.g. "IST") or an IANA zone name.
// An empty name resolves to time.Local.
func LookupZone(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	if loc, ok := catalogLocations()[name]; ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", name, err)
	}
	return loc, nil
}
