// Package models holds the derived structures shared by the presence
// engine stages: presence days, calendars and conflict records.
package models

import (
	"strings"

	dErrors "residency/pkg/domain-errors"
)

// Attribution decides which countries a calendar day belongs to.
type Attribution string

const (
	// AttributionMidnight assigns a day to the country held at local 00:00.
	AttributionMidnight Attribution = "midnight"
	// AttributionAnyPresence assigns a day to every country touched that day.
	AttributionAnyPresence Attribution = "any_presence"
)

// Attributions lists every policy in canonical order.
var Attributions = []Attribution{AttributionMidnight, AttributionAnyPresence}

// ParseAttribution validates an attribution policy name.
func ParseAttribution(s string) (Attribution, error) {
	a := Attribution(strings.ToLower(strings.TrimSpace(s)))
	if !a.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown attribution policy: "+s)
	}
	return a, nil
}

func (a Attribution) IsValid() bool {
	switch a {
	case AttributionMidnight, AttributionAnyPresence:
		return true
	default:
		return false
	}
}

func (a Attribution) String() string { return string(a) }
