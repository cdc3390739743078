package models

import (
	"cloud.google.com/go/civil"

	"residency/internal/presence/evidence"
	id "residency/pkg/domain"
)

// DayStatus is the attribution state of one day.
type DayStatus string

const (
	StatusResolved   DayStatus = "resolved"
	StatusGap        DayStatus = "gap"
	StatusConflicted DayStatus = "conflicted"
	StatusOverridden DayStatus = "overridden"
)

// PresenceDay is the attribution of one date under one policy.
//
// Invariants: a gap day has no country and confidence 0; a conflicted day
// has a non-empty Conflicts list and Country holds the best candidate;
// resolved and overridden days have exactly one authoritative Country.
type PresenceDay struct {
	Date              civil.Date        `json:"date"`
	Attribution       Attribution       `json:"attribution"`
	Status            DayStatus         `json:"status"`
	Country           *id.CountryCode   `json:"country"`
	AlsoPresent       []id.CountryCode  `json:"also_present,omitempty"`
	Confidence        float64           `json:"confidence"`
	Evidence          []evidence.Handle `json:"evidence"`
	Conflicts         []ConflictHandle  `json:"conflicts"`
	ResolvedConflicts []ConflictHandle  `json:"resolved_conflicts,omitempty"`
}

// CountryCode returns the day's authoritative or best-candidate country.
func (d PresenceDay) CountryCode() (id.CountryCode, bool) {
	if d.Country == nil {
		return "", false
	}
	return *d.Country, true
}

// IsPending reports whether the day carries unresolved conflicts.
func (d PresenceDay) IsPending() bool {
	return d.Status == StatusConflicted
}

// Calendar is the resolved calendar for one policy: one day per date from
// From to To inclusive, in date order.
type Calendar struct {
	Attribution Attribution   `json:"attribution"`
	From        civil.Date    `json:"from"`
	To          civil.Date    `json:"to"`
	Days        []PresenceDay `json:"days"`
}

// Index returns the position of date in Days.
func (c Calendar) Index(date civil.Date) (int, bool) {
	if date.Before(c.From) || date.After(c.To) {
		return 0, false
	}
	return date.DaysSince(c.From), true
}

// Day returns the entry for date.
func (c Calendar) Day(date civil.Date) (PresenceDay, bool) {
	i, ok := c.Index(date)
	if !ok || i >= len(c.Days) {
		return PresenceDay{}, false
	}
	return c.Days[i], true
}

// ShiftConflicts returns a copy of the calendar with every conflict handle
// moved by offset. Used when per-policy conflict arenas are merged.
func (c Calendar) ShiftConflicts(offset ConflictHandle) Calendar {
	out := c
	out.Days = make([]PresenceDay, len(c.Days))
	for i, d := range c.Days {
		d.Conflicts = shift(d.Conflicts, offset)
		d.ResolvedConflicts = shift(d.ResolvedConflicts, offset)
		out.Days[i] = d
	}
	return out
}

func shift(handles []ConflictHandle, offset ConflictHandle) []ConflictHandle {
	if handles == nil {
		return nil
	}
	out := make([]ConflictHandle, len(handles))
	for i, h := range handles {
		out[i] = h + offset
	}
	return out
}
