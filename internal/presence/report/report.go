// Package report assembles the output of the presence engine into an
// immutable UniversalReport.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gowebpki/jcs"

	"residency/internal/presence/evidence"
	"residency/internal/presence/models"
	"residency/internal/presence/normalize"
	"residency/internal/presence/rules"
	id "residency/pkg/domain"
	dErrors "residency/pkg/domain-errors"
)

// Range is the inclusive report date range.
type Range struct {
	From civil.Date `json:"from"`
	To   civil.Date `json:"to"`
}

// Key is everything a report is a deterministic function of, besides the
// evidence snapshot content that SnapshotID stands for.
type Key struct {
	SnapshotID     id.SnapshotID      `json:"snapshot_id"`
	RuleSetVersion string             `json:"rule_set_version"`
	Range          Range              `json:"range"`
	Attribution    models.Attribution `json:"attribution"`
}

// Fingerprint is the hex SHA-256 of the RFC 8785 canonical form of the key.
func (k Key) Fingerprint() (string, error) {
	raw, err := json.Marshal(k)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "marshal report key")
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "canonicalize report key")
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// DataQuality summarizes the primary calendar.
type DataQuality struct {
	TotalDays       int     `json:"total_days"`
	ResolvedDays    int     `json:"resolved_days"`
	CompletenessPct float64 `json:"completeness_pct"`
	ConfidencePct   float64 `json:"confidence_pct"`
	ConflictCount   int     `json:"conflict_count"`
	GapCount        int     `json:"gap_count"`
}

// UniversalReport is the engine output. Evidence and conflict handles in
// the calendars index the Evidence and Conflicts arenas.
type UniversalReport struct {
	Fingerprint      string                       `json:"fingerprint"`
	GeneratedAt      time.Time                    `json:"generated_at"`
	SnapshotID       id.SnapshotID                `json:"snapshot_id"`
	RuleSetVersion   string                       `json:"rule_set_version"`
	Range            Range                        `json:"range"`
	Attribution      models.Attribution           `json:"attribution"`
	PresenceCalendar []models.Calendar            `json:"presence_calendar"`
	RuleEvaluations  []rules.RuleEvaluation       `json:"rule_evaluations"`
	Evidence         *evidence.Arena              `json:"evidence"`
	Conflicts        *models.ConflictArena        `json:"conflicts"`
	DataQuality      DataQuality                  `json:"data_quality"`
	EvidenceErrors   []*evidence.ValidationError  `json:"evidence_errors"`
	RuleErrors       []*rules.RuleDefinitionError `json:"rule_errors"`
	Merges           []normalize.Merge            `json:"merges"`
}

// Calendar returns the calendar built under policy.
func (r *UniversalReport) Calendar(policy models.Attribution) (models.Calendar, bool) {
	for _, c := range r.PresenceCalendar {
		if c.Attribution == policy {
			return c, true
		}
	}
	return models.Calendar{}, false
}

// Section is one resolved calendar with the conflicts its days reference.
type Section struct {
	Calendar  models.Calendar
	Conflicts *models.ConflictArena
}

// Parts are the stage outputs Assemble combines. Sections[0] must be the
// calendar for Key.Attribution.
type Parts struct {
	Key            Key
	GeneratedAt    time.Time
	Sections       []Section
	Evaluations    []rules.RuleEvaluation
	Evidence       *evidence.Arena
	EvidenceErrors []*evidence.ValidationError
	RuleErrors     []*rules.RuleDefinitionError
	Merges         []normalize.Merge
}

// Assemble merges the per-policy conflict arenas into one and computes
// data quality over the primary calendar.
func Assemble(p Parts) (*UniversalReport, error) {
	if len(p.Sections) == 0 || p.Sections[0].Calendar.Attribution != p.Key.Attribution {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "primary calendar does not match report attribution")
	}
	fingerprint, err := p.Key.Fingerprint()
	if err != nil {
		return nil, err
	}

	conflicts := models.NewConflictArena()
	calendars := make([]models.Calendar, len(p.Sections))
	for i, s := range p.Sections {
		offset := conflicts.Merge(s.Conflicts)
		calendars[i] = s.Calendar.ShiftConflicts(offset)
	}

	ev := p.Evidence
	if ev == nil {
		ev = evidence.NewArena(nil)
	}

	return &UniversalReport{
		Fingerprint:      fingerprint,
		GeneratedAt:      p.GeneratedAt.UTC(),
		SnapshotID:       p.Key.SnapshotID,
		RuleSetVersion:   p.Key.RuleSetVersion,
		Range:            p.Key.Range,
		Attribution:      p.Key.Attribution,
		PresenceCalendar: calendars,
		RuleEvaluations:  nonNil(p.Evaluations),
		Evidence:         ev,
		Conflicts:        conflicts,
		DataQuality:      Quality(calendars[0]),
		EvidenceErrors:   nonNil(p.EvidenceErrors),
		RuleErrors:       nonNil(p.RuleErrors),
		Merges:           nonNil(p.Merges),
	}, nil
}

// Quality computes the data-quality block for one calendar.
func Quality(cal models.Calendar) DataQuality {
	q := DataQuality{TotalDays: len(cal.Days)}
	var confidence float64
	for _, d := range cal.Days {
		switch d.Status {
		case models.StatusResolved, models.StatusOverridden:
			q.ResolvedDays++
		}
		if len(d.Conflicts) > 0 {
			q.ConflictCount++
		}
		if d.Country == nil {
			q.GapCount++
		}
		confidence += d.Confidence
	}
	if q.TotalDays > 0 {
		q.CompletenessPct = percent(float64(q.ResolvedDays) / float64(q.TotalDays))
		q.ConfidencePct = percent(confidence / float64(q.TotalDays))
	}
	return q
}

func percent(ratio float64) float64 {
	return math.Round(ratio*10000) / 100
}

func nonNil[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}
