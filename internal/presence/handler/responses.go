package handler

import (
	"time"

	"residency/internal/presence/rules"
	id "residency/pkg/domain"
)

// SnapshotResponse acknowledges a stored evidence snapshot.
type SnapshotResponse struct {
	SnapshotID id.SnapshotID `json:"snapshot_id"`
	Records    int           `json:"records"`
	CreatedAt  time.Time     `json:"created_at"`
}

// CountriesResponse lists the countries rules exist for.
type CountriesResponse struct {
	Countries []id.CountryCode `json:"countries"`
}

// CountryRulesResponse lists the rules applying to one country.
type CountryRulesResponse struct {
	Country id.CountryCode      `json:"country"`
	Rules   []rules.CountryRule `json:"rules"`
}
