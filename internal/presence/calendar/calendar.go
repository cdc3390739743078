// Package calendar turns ranked evidence into a draft calendar: one entry
// per date listing every country the evidence places the person in.
package calendar

import (
	"sort"
	"time"

	"cloud.google.com/go/civil"

	"residency/internal/presence/evidence"
	"residency/internal/presence/models"
	id "residency/pkg/domain"
	dErrors "residency/pkg/domain-errors"
)

// MaxRangeDays bounds a calendar at roughly a century.
const MaxRangeDays = 36600

// Candidate is one country asserted for a date.
type Candidate struct {
	models.Candidate
	// Boundary is set when some of the candidate's evidence begins or ends
	// strictly inside the day.
	Boundary bool
}

// DraftDay is the evidence picture for one date before conflict resolution.
type DraftDay struct {
	Date civil.Date
	// Candidates are ordered best first: confidence, reliability of the
	// best source, then country code.
	Candidates []Candidate
	// Evidence lists every handle touching the day in ascending order.
	Evidence []evidence.Handle
	// Overlap is set when segments of different countries overlap in time
	// on this day, which no journey can explain.
	Overlap bool
}

// Contested reports whether the day needs conflict resolution.
func (d DraftDay) Contested(policy models.Attribution) bool {
	if len(d.Candidates) < 2 {
		return false
	}
	switch policy {
	case models.AttributionMidnight:
		return true
	case models.AttributionAnyPresence:
		return d.Overlap
	default:
		panic("calendar: unknown attribution " + string(policy))
	}
}

// Draft covers From..To inclusive with exactly one DraftDay per date.
type Draft struct {
	Attribution models.Attribution
	From        civil.Date
	To          civil.Date
	Days        []DraftDay
}

// Builder is safe for concurrent use.
type Builder struct {
	ranking     evidence.Ranking
	defaultZone *time.Location
}

// Option configures a Builder.
type Option func(*Builder)

// WithRanking sets the reliability ranking used to order candidates.
func WithRanking(r evidence.Ranking) Option {
	return func(b *Builder) { b.ranking = r }
}

// WithDefaultZone sets the zone for moments that carry none.
func WithDefaultZone(loc *time.Location) Option {
	return func(b *Builder) { b.defaultZone = loc }
}

// NewBuilder constructs a Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{ranking: evidence.DefaultRanking(), defaultZone: time.UTC}
	for _, opt := range opts {
		opt(b)
	}
	if b.defaultZone == nil {
		b.defaultZone = time.UTC
	}
	return b
}

// ValidateRange checks a requested date range.
func ValidateRange(from, to civil.Date) error {
	if !from.IsValid() || !to.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "range dates must be valid calendar dates")
	}
	if to.Before(from) {
		return dErrors.New(dErrors.CodeValidation, "range end is before range start")
	}
	if to.DaysSince(from)+1 > MaxRangeDays {
		return dErrors.New(dErrors.CodeValidation, "range is too long")
	}
	return nil
}

type piece struct {
	country id.CountryCode
	span    evidence.Interval
}

type candidateAcc struct {
	country    id.CountryCode
	confidence float64
	handles    []evidence.Handle
	best       evidence.SourceType
	bestRank   int
	boundary   bool
	// midnight is set when some segment holds presence at local 00:00.
	midnight bool
}

type dayAcc struct {
	cands   []*candidateAcc
	handles []evidence.Handle
	pieces  []piece
}

// Build attributes every record in arena to the dates it covers under
// policy. Work is proportional to the days covered by evidence plus the
// length of the range.
func (b *Builder) Build(arena *evidence.Arena, from, to civil.Date, policy models.Attribution) (*Draft, error) {
	if err := ValidateRange(from, to); err != nil {
		return nil, err
	}
	if !policy.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown attribution policy: "+string(policy))
	}

	n := to.DaysSince(from) + 1
	acc := make([]dayAcc, n)

	for i := 0; i < arena.Len(); i++ {
		h := evidence.Handle(i)
		rec := arena.Get(h)
		segs, err := rec.Segments(b.defaultZone)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "evidence "+rec.ID.String()+" was not canonicalized")
		}
		for _, seg := range segs {
			b.place(acc, from, to, policy, h, rec, seg)
		}
	}

	draft := &Draft{
		Attribution: policy,
		From:        from,
		To:          to,
		Days:        make([]DraftDay, n),
	}
	for i := range acc {
		draft.Days[i] = b.finish(from.AddDays(i), policy, &acc[i])
	}
	return draft, nil
}

func (b *Builder) place(acc []dayAcc, from, to civil.Date, policy models.Attribution, h evidence.Handle, rec evidence.Record, seg evidence.Segment) {
	loc := seg.Location
	first := civil.DateOf(seg.Span.Start.In(loc))
	last := civil.DateOf(seg.Span.End.In(loc))
	if first.Before(from) {
		first = from
	}
	if last.After(to) {
		last = to
	}

	for d := first; !d.After(last); d = d.AddDays(1) {
		window := evidence.Interval{
			Start: evidence.StartOfDay(d, loc),
			End:   evidence.StartOfDay(d.AddDays(1), loc),
		}

		if !seg.Span.Overlaps(window) {
			continue
		}

		day := &acc[d.DaysSince(from)]
		c := day.candidate(seg.Country)
		c.add(h, rec, b.ranking.Rank(rec.Source))
		if !seg.Span.Start.After(window.Start) && seg.Span.End.After(window.Start) {
			c.midnight = true
		}
		if strictlyInside(seg.Span.Start, window) || strictlyInside(seg.Span.End, window) {
			c.boundary = true
		}
		day.addHandle(h)

		if policy == models.AttributionAnyPresence {
			if clipped, ok := seg.Span.Clip(window); ok {
				day.pieces = append(day.pieces, piece{country: seg.Country, span: clipped})
			}
		}
	}
}

func strictlyInside(t time.Time, window evidence.Interval) bool {
	return t.After(window.Start) && t.Before(window.End)
}

func (d *dayAcc) candidate(country id.CountryCode) *candidateAcc {
	for _, c := range d.cands {
		if c.country == country {
			return c
		}
	}
	c := &candidateAcc{country: country}
	d.cands = append(d.cands, c)
	return c
}

func (d *dayAcc) addHandle(h evidence.Handle) {
	for _, x := range d.handles {
		if x == h {
			return
		}
	}
	d.handles = append(d.handles, h)
}

// add records h and keeps the candidate's confidence and best source
// current. Evidence with equal confidence is ranked by reliability.
func (c *candidateAcc) add(h evidence.Handle, rec evidence.Record, rank int) {
	for _, x := range c.handles {
		if x == h {
			return
		}
	}
	first := len(c.handles) == 0
	c.handles = append(c.handles, h)
	if first || rec.Confidence > c.confidence || (rec.Confidence == c.confidence && rank < c.bestRank) {
		c.confidence = rec.Confidence
		c.best = rec.Source
		c.bestRank = rank
	}
}

func (b *Builder) finish(date civil.Date, policy models.Attribution, acc *dayAcc) DraftDay {
	cands := acc.cands
	if policy == models.AttributionMidnight && len(cands) > 1 {
		cands = heldMidnight(cands)
	}
	day := DraftDay{
		Date:       date,
		Candidates: make([]Candidate, 0, len(cands)),
		Evidence:   sortedHandles(acc.handles),
	}
	for _, c := range cands {
		day.Candidates = append(day.Candidates, Candidate{
			Candidate: models.Candidate{
				Country:    c.country,
				Confidence: c.confidence,
				Evidence:   sortedHandles(c.handles),
				BestSource: c.best,
			},
			Boundary: c.boundary,
		})
	}
	sort.Slice(day.Candidates, func(i, j int) bool {
		a, b2 := day.Candidates[i], day.Candidates[j]
		if a.Confidence != b2.Confidence {
			return a.Confidence > b2.Confidence
		}
		if ra, rb := b.ranking.Rank(a.BestSource), b.ranking.Rank(b2.BestSource); ra != rb {
			return ra < rb
		}
		return a.Country < b2.Country
	})
	day.Overlap = overlapping(acc.pieces)
	return day
}

// heldMidnight narrows several countries to those present at 00:00. When
// none was, every country touching the day stays a candidate.
func heldMidnight(cands []*candidateAcc) []*candidateAcc {
	var held []*candidateAcc
	for _, c := range cands {
		if c.midnight {
			held = append(held, c)
		}
	}
	if len(held) == 0 {
		return cands
	}
	return held
}

func sortedHandles(hs []evidence.Handle) []evidence.Handle {
	out := make([]evidence.Handle, len(hs))
	copy(out, hs)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// overlapping reports whether pieces of different countries share an instant.
func overlapping(pieces []piece) bool {
	for i := range pieces {
		for j := i + 1; j < len(pieces); j++ {
			if pieces[i].country != pieces[j].country && pieces[i].span.Overlaps(pieces[j].span) {
				return true
			}
		}
	}
	return false
}
