package evidence

import (
	"sync"
	"time"
	_ "time/tzdata" // results must not depend on the host zoneinfo

	"cloud.google.com/go/civil"
)

// Moment is a local wall-clock time in an IANA zone. Zone may be empty, in
// which case the caller's default zone applies.
type Moment struct {
	Local civil.DateTime `json:"local"`
	Zone  string         `json:"tz,omitempty"`
}

// TimeRange is the closed interval a record asserts presence over.
type TimeRange struct {
	Start Moment `json:"start"`
	End   Moment `json:"end"`
}

var locations sync.Map // zone name -> *time.Location

// LoadLocation resolves an IANA zone name, caching the result.
func LoadLocation(name string) (*time.Location, error) {
	if loc, ok := locations.Load(name); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	locations.Store(name, loc)
	return loc, nil
}

// Location returns the moment's zone, falling back to def.
func (m Moment) Location(def *time.Location) (*time.Location, error) {
	if m.Zone == "" {
		if def == nil {
			return time.UTC, nil
		}
		return def, nil
	}
	return LoadLocation(m.Zone)
}

// Instant resolves the wall-clock time in its zone. Times skipped by a DST
// transition resolve the way time.Date does.
func (m Moment) Instant(def *time.Location) (time.Time, *time.Location, error) {
	loc, err := m.Location(def)
	if err != nil {
		return time.Time{}, nil, err
	}
	return m.Local.In(loc), loc, nil
}

// StartOfDay returns local 00:00 of date in loc.
func StartOfDay(date civil.Date, loc *time.Location) time.Time {
	return civil.DateTime{Date: date}.In(loc)
}
