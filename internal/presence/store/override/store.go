// Package override persists user conflict resolutions. A pin is keyed by
// (user, date, attribution); saving again for the same key replaces it.
// Every save bumps the user's revision so report fingerprints change when
// pins do.
package override

import (
	"cloud.google.com/go/civil"

	"residency/internal/presence/models"
	id "residency/pkg/domain"
)

// ConflictRef locates a conflict a user was shown, so a later resolve
// callback can be turned into a pin for the right date and policy.
type ConflictRef struct {
	ID          id.ConflictID
	Date        civil.Date
	Attribution models.Attribution
	Candidates  []id.CountryCode
}

// RefsFrom extracts the pending conflicts of an arena.
func RefsFrom(arena *models.ConflictArena) []ConflictRef {
	if arena == nil {
		return nil
	}
	var out []ConflictRef
	for _, rec := range arena.Records() {
		if rec.Resolution != models.ResolutionPending {
			continue
		}
		cands := make([]id.CountryCode, len(rec.Candidates))
		for i, c := range rec.Candidates {
			cands[i] = c.Country
		}
		out = append(out, ConflictRef{
			ID:          rec.ID,
			Date:        rec.Date,
			Attribution: rec.Attribution,
			Candidates:  cands,
		})
	}
	return out
}

type pinKey struct {
	date        civil.Date
	attribution models.Attribution
}
