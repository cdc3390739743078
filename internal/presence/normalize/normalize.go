// Package normalize validates, deduplicates and ranks evidence before
// calendar construction.
package normalize

import (
	"sort"
	"time"

	"residency/internal/presence/evidence"
	id "residency/pkg/domain"
	dErrors "residency/pkg/domain-errors"
)

// DefaultTolerance is how far apart the endpoints of two records may be
// while still describing the same stay.
const DefaultTolerance = 12 * time.Hour

// MergeReason explains why a record was discarded.
type MergeReason string

const (
	MergeChecksum      MergeReason = "checksum"
	MergeNearDuplicate MergeReason = "near_duplicate"
)

// Merge records a discarded duplicate for audit.
type Merge struct {
	Kept      id.EvidenceID `json:"kept"`
	Discarded id.EvidenceID `json:"discarded"`
	Reason    MergeReason   `json:"reason"`
}

// Result is the normalizer output. Records are canonical, unique and in
// evidentiary priority order.
type Result struct {
	Records []evidence.Record
	Errors  []*evidence.ValidationError
	Merges  []Merge
}

// Normalizer is safe for concurrent use.
type Normalizer struct {
	tolerance   time.Duration
	ranking     evidence.Ranking
	defaultZone *time.Location
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithTolerance sets the near-duplicate endpoint tolerance.
func WithTolerance(d time.Duration) Option {
	return func(n *Normalizer) { n.tolerance = d }
}

// WithRanking replaces the source reliability ranking.
func WithRanking(r evidence.Ranking) Option {
	return func(n *Normalizer) { n.ranking = r }
}

// WithDefaultZone sets the zone for moments that carry none.
func WithDefaultZone(loc *time.Location) Option {
	return func(n *Normalizer) { n.defaultZone = loc }
}

// New constructs a Normalizer.
func New(opts ...Option) (*Normalizer, error) {
	n := &Normalizer{
		tolerance:   DefaultTolerance,
		ranking:     evidence.DefaultRanking(),
		defaultZone: time.UTC,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.tolerance < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "near-duplicate tolerance must not be negative")
	}
	if err := n.ranking.Validate(); err != nil {
		return nil, err
	}
	if n.defaultZone == nil {
		n.defaultZone = time.UTC
	}
	return n, nil
}

// Ranking returns the configured reliability ranking.
func (n *Normalizer) Ranking() evidence.Ranking { return n.ranking }

// DefaultZone returns the zone applied to moments without one.
func (n *Normalizer) DefaultZone() *time.Location { return n.defaultZone }

type candidate struct {
	rec   evidence.Record
	index int
	start time.Time
	end   time.Time
	key   dedupKey
}

type dedupKey struct {
	country  id.CountryCode
	category evidence.Category
	origin   id.CountryCode
}

// Normalize validates every record, drops duplicates and ranks the rest.
// Invalid records are reported in Result.Errors and excluded. Running
// Normalize on its own output produces no merges.
func (n *Normalizer) Normalize(records []evidence.Record) Result {
	res := Result{
		Records: []evidence.Record{},
		Errors:  []*evidence.ValidationError{},
		Merges:  []Merge{},
	}

	cands := make([]candidate, 0, len(records))
	for i, r := range records {
		canon, err := evidence.Canonicalize(r, i, n.defaultZone)
		if err != nil {
			res.Errors = append(res.Errors, err.(*evidence.ValidationError))
			continue
		}
		start, _, _ := canon.Range.Start.Instant(n.defaultZone)
		end, _, _ := canon.Range.End.Instant(n.defaultZone)
		origin, _ := canon.Origin()
		cands = append(cands, candidate{
			rec:   canon,
			index: i,
			start: start,
			end:   end,
			key:   dedupKey{country: canon.Country, category: canon.Source.Category(), origin: origin},
		})
	}

	sort.SliceStable(cands, func(i, j int) bool { return n.less(cands[i], cands[j]) })

	byChecksum := make(map[string]id.EvidenceID)
	byID := make(map[id.EvidenceID]bool)
	byKey := make(map[dedupKey][]candidate)

	for _, c := range cands {
		if c.rec.Checksum != "" {
			if kept, ok := byChecksum[c.rec.Checksum]; ok {
				res.Merges = append(res.Merges, Merge{Kept: kept, Discarded: c.rec.ID, Reason: MergeChecksum})
				continue
			}
		}
		if byID[c.rec.ID] {
			res.Errors = append(res.Errors, &evidence.ValidationError{
				Index:    c.index,
				Evidence: c.rec.ID,
				Problems: []evidence.Problem{{Field: "id", Message: "duplicate evidence id with different content"}},
			})
			continue
		}
		if kept, ok := n.nearDuplicate(byKey[c.key], c); ok {
			res.Merges = append(res.Merges, Merge{Kept: kept, Discarded: c.rec.ID, Reason: MergeNearDuplicate})
			continue
		}

		if c.rec.Checksum != "" {
			byChecksum[c.rec.Checksum] = c.rec.ID
		}
		byID[c.rec.ID] = true
		byKey[c.key] = append(byKey[c.key], c)
		res.Records = append(res.Records, c.rec)
	}

	sort.Slice(res.Errors, func(i, j int) bool { return res.Errors[i].Index < res.Errors[j].Index })
	return res
}

// less is the evidentiary priority order: confidence, then reliability,
// then start time, then id. Checksum and input position only separate
// records that are otherwise identical.
func (n *Normalizer) less(a, b candidate) bool {
	if a.rec.Confidence != b.rec.Confidence {
		return a.rec.Confidence > b.rec.Confidence
	}
	if ra, rb := n.ranking.Rank(a.rec.Source), n.ranking.Rank(b.rec.Source); ra != rb {
		return ra < rb
	}
	if !a.start.Equal(b.start) {
		return a.start.Before(b.start)
	}
	if a.rec.ID != b.rec.ID {
		return a.rec.ID < b.rec.ID
	}
	if a.rec.Checksum != b.rec.Checksum {
		return a.rec.Checksum < b.rec.Checksum
	}
	return a.index < b.index
}

func (n *Normalizer) nearDuplicate(kept []candidate, c candidate) (id.EvidenceID, bool) {
	for _, k := range kept {
		if within(k.start, c.start, n.tolerance) && within(k.end, c.end, n.tolerance) {
			return k.rec.ID, true
		}
	}
	return "", false
}

func within(a, b time.Time, tol time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= tol
}
