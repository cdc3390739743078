// Package conflict settles contested days in a draft calendar and applies
// user override pins.
package conflict

import (
	"sort"
	"time"

	"cloud.google.com/go/civil"

	"residency/internal/presence/calendar"
	"residency/internal/presence/evidence"
	"residency/internal/presence/models"
	id "residency/pkg/domain"
	dErrors "residency/pkg/domain-errors"
)

// DefaultFloor is the confidence below which a candidate may be dropped.
const DefaultFloor = 0.3

// Override pins a date to a country. An empty Attribution applies the pin
// under every policy. Pins are terminal: the pinned day is never derived
// from evidence again.
type Override struct {
	ConflictID  id.ConflictID      `json:"conflict_id"`
	Date        civil.Date         `json:"date"`
	Attribution models.Attribution `json:"attribution,omitempty"`
	Country     id.CountryCode     `json:"country"`
	ResolvedAt  time.Time          `json:"resolved_at"`
}

// Validate checks an override before it is stored or applied.
func (o Override) Validate() error {
	if !o.Date.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "override date is invalid")
	}
	if !o.Country.IsKnown() {
		return dErrors.New(dErrors.CodeValidation, "override country is unknown: "+o.Country.String())
	}
	if o.Attribution != "" && !o.Attribution.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "override attribution is unknown: "+o.Attribution.String())
	}
	return nil
}

// Resolver is safe for concurrent use.
type Resolver struct {
	floor   float64
	ranking evidence.Ranking
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFloor sets the confidence floor.
func WithFloor(f float64) Option {
	return func(r *Resolver) { r.floor = f }
}

// WithRanking sets the reliability ranking used for tie-breaks.
func WithRanking(rk evidence.Ranking) Option {
	return func(r *Resolver) { r.ranking = rk }
}

// New constructs a Resolver.
func New(opts ...Option) (*Resolver, error) {
	r := &Resolver{floor: DefaultFloor, ranking: evidence.DefaultRanking()}
	for _, opt := range opts {
		opt(r)
	}
	if r.floor < 0 || r.floor > 1 {
		return nil, dErrors.New(dErrors.CodeValidation, "confidence floor must be within [0, 1]")
	}
	if err := r.ranking.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Input is one resolution run. AsOf stamps automatic and pending records.
type Input struct {
	Draft     *calendar.Draft
	Evidence  *evidence.Arena
	Overrides []Override
	AsOf      time.Time
}

// Resolve produces the resolved calendar and the conflict records it
// references. The draft is not modified.
func (r *Resolver) Resolve(in Input) (models.Calendar, *models.ConflictArena) {
	policy := in.Draft.Attribution
	pins := pinsFor(in.Overrides, policy)
	arena := models.NewConflictArena()

	cal := models.Calendar{
		Attribution: policy,
		From:        in.Draft.From,
		To:          in.Draft.To,
		Days:        make([]models.PresenceDay, len(in.Draft.Days)),
	}

	for i, dd := range in.Draft.Days {
		day := models.PresenceDay{
			Date:        dd.Date,
			Attribution: policy,
			Evidence:    append([]evidence.Handle{}, dd.Evidence...),
			Conflicts:   []models.ConflictHandle{},
		}

		if pin, ok := pins[dd.Date]; ok {
			r.applyPin(&day, dd, pin, in.Evidence, arena)
			cal.Days[i] = day
			continue
		}

		switch {
		case len(dd.Candidates) == 0:
			day.Status = models.StatusGap
		case !dd.Contested(policy):
			best := dd.Candidates[0]
			day.Status = models.StatusResolved
			day.Country = countryPtr(best.Country)
			day.Confidence = best.Confidence
			day.AlsoPresent = alsoPresent(dd.Candidates)
		default:
			r.settle(&day, dd, in, arena)
		}
		cal.Days[i] = day
	}
	return cal, arena
}

func (r *Resolver) applyPin(day *models.PresenceDay, dd calendar.DraftDay, pin Override, ev *evidence.Arena, arena *models.ConflictArena) {
	day.Status = models.StatusOverridden
	day.Country = countryPtr(pin.Country)
	day.Confidence = 1

	var discarded []id.CountryCode
	for _, c := range dd.Candidates {
		if c.Country != pin.Country {
			discarded = append(discarded, c.Country)
		}
	}
	if len(discarded) == 0 {
		return
	}

	rec := r.record(dd, day.Attribution, ev, pin.ResolvedAt)
	rec.Resolution = models.ResolutionUserOverride
	rec.Rule = models.RuleUserOverride
	rec.Chosen = countryPtr(pin.Country)
	rec.Discarded = discarded
	day.ResolvedConflicts = []models.ConflictHandle{arena.Add(rec)}
}

func (r *Resolver) settle(day *models.PresenceDay, dd calendar.DraftDay, in Input, arena *models.ConflictArena) {
	rec := r.record(dd, day.Attribution, in.Evidence, in.AsOf)

	winner, rule, ok := r.automatic(dd.Candidates)
	if !ok {
		rec.Resolution = models.ResolutionPending
		best := dd.Candidates[0]
		day.Status = models.StatusConflicted
		day.Country = countryPtr(best.Country)
		day.Confidence = best.Confidence
		day.Conflicts = []models.ConflictHandle{arena.Add(rec)}
		return
	}

	rec.Resolution = models.ResolutionAutomatic
	rec.Rule = rule
	rec.Chosen = countryPtr(winner.Country)
	for _, c := range dd.Candidates {
		if c.Country != winner.Country {
			rec.Discarded = append(rec.Discarded, c.Country)
		}
	}
	day.Status = models.StatusResolved
	day.Country = countryPtr(winner.Country)
	day.Confidence = winner.Confidence
	day.ResolvedConflicts = []models.ConflictHandle{arena.Add(rec)}
}

// automatic applies the tie-break and the confidence floor in order.
func (r *Resolver) automatic(cands []calendar.Candidate) (calendar.Candidate, models.ResolutionRule, bool) {
	top := cands[0].Confidence
	var tied []calendar.Candidate
	for _, c := range cands {
		if c.Confidence == top {
			tied = append(tied, c)
		}
	}
	if len(tied) > 1 {
		best, bestRank, unique := tied[0], r.ranking.Rank(tied[0].BestSource), true
		for _, c := range tied[1:] {
			switch rank := r.ranking.Rank(c.BestSource); {
			case rank < bestRank:
				best, bestRank, unique = c, rank, true
			case rank == bestRank:
				unique = false
			}
		}
		if unique {
			return best, models.RuleReliabilityTieBreak, true
		}
	}

	var above []calendar.Candidate
	for _, c := range cands {
		if c.Confidence >= r.floor {
			above = append(above, c)
		}
	}
	if len(above) == 1 {
		return above[0], models.RuleConfidenceFloor, true
	}
	return calendar.Candidate{}, "", false
}

func (r *Resolver) record(dd calendar.DraftDay, policy models.Attribution, ev *evidence.Arena, at time.Time) models.ConflictRecord {
	involved := make([]evidence.Handle, len(dd.Evidence))
	copy(involved, dd.Evidence)

	cands := make([]models.Candidate, len(dd.Candidates))
	for i, c := range dd.Candidates {
		cands[i] = c.Candidate
	}

	ids := ev.IDs(involved)
	parts := make([]string, 0, len(ids)+2)
	parts = append(parts, policy.String(), dd.Date.String())
	sorted := make([]string, len(ids))
	for i, x := range ids {
		sorted[i] = x.String()
	}
	sort.Strings(sorted)
	parts = append(parts, sorted...)

	return models.ConflictRecord{
		ID:               id.NewConflictID(parts...),
		Type:             classify(dd.Candidates),
		Date:             dd.Date,
		Attribution:      policy,
		InvolvedEvidence: involved,
		Candidates:       cands,
		Timestamp:        at.UTC(),
	}
}

// classify: a candidate whose evidence starts or ends inside the day is a
// disagreement about when a move happened; otherwise the best sources
// decide between source and location conflicts.
func classify(cands []calendar.Candidate) models.ConflictType {
	sources := make(map[evidence.SourceType]bool)
	for _, c := range cands {
		if c.Boundary {
			return models.ConflictDate
		}
		sources[c.BestSource] = true
	}
	if len(sources) > 1 {
		return models.ConflictSource
	}
	return models.ConflictLocation
}

// pinsFor picks one override per date. A policy-specific pin beats a
// general one; otherwise the latest wins.
func pinsFor(overrides []Override, policy models.Attribution) map[civil.Date]Override {
	pins := make(map[civil.Date]Override)
	for _, o := range overrides {
		if o.Attribution != "" && o.Attribution != policy {
			continue
		}
		cur, ok := pins[o.Date]
		if !ok || supersedes(o, cur) {
			pins[o.Date] = o
		}
	}
	return pins
}

func supersedes(o, cur Override) bool {
	if (o.Attribution != "") != (cur.Attribution != "") {
		return o.Attribution != ""
	}
	if !o.ResolvedAt.Equal(cur.ResolvedAt) {
		return o.ResolvedAt.After(cur.ResolvedAt)
	}
	return o.ConflictID.String() > cur.ConflictID.String()
}

func alsoPresent(cands []calendar.Candidate) []id.CountryCode {
	if len(cands) < 2 {
		return nil
	}
	out := make([]id.CountryCode, 0, len(cands)-1)
	for _, c := range cands[1:] {
		out = append(out, c.Country)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func countryPtr(c id.CountryCode) *id.CountryCode {
	return &c
}
