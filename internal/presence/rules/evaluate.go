package rules

import (
	"fmt"
	"math"

	"cloud.google.com/go/civil"

	"residency/internal/presence/models"
	id "residency/pkg/domain"
	dErrors "residency/pkg/domain-errors"
)

// Outcome is the verdict of one evaluation.
type Outcome string

const (
	OutcomeMet           Outcome = "met"
	OutcomeNotMet        Outcome = "not_met"
	OutcomeNotApplicable Outcome = "not_applicable"
)

// CaveatCode classifies a confidence caveat.
type CaveatCode string

const (
	CaveatInsufficientData    CaveatCode = "insufficient_data"
	CaveatNotInEffect         CaveatCode = "not_in_effect"
	CaveatGapsInWindow        CaveatCode = "gaps_in_window"
	CaveatUnresolvedConflicts CaveatCode = "unresolved_conflicts"
)

// Caveat qualifies an evaluation without invalidating it.
type Caveat struct {
	Code    CaveatCode `json:"code"`
	Message string     `json:"message"`
}

// Window is an inclusive date span.
type Window struct {
	From civil.Date `json:"from"`
	To   civil.Date `json:"to"`
}

// Days returns the number of dates in the window.
func (w Window) Days() int { return w.To.DaysSince(w.From) + 1 }

// Bounds brackets a value that depends on pending conflicts.
type Bounds struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Run is a maximal span of absence. Days is the exemption-weighted length.
type Run struct {
	From civil.Date `json:"from"`
	To   civil.Date `json:"to"`
	Days float64    `json:"days"`
}

// Details carries the evidence behind a verdict.
type Details struct {
	Caveats     []Caveat `json:"caveats"`
	Bounds      *Bounds  `json:"bounds,omitempty"`
	AbsenceRuns []Run    `json:"absence_runs,omitempty"`
	ExcusedRuns []Run    `json:"excused_runs,omitempty"`
	Breaks      *int     `json:"breaks,omitempty"`
	PendingDays int      `json:"pending_days"`
	GapDays     int      `json:"gap_days"`
}

// HasCaveat reports whether a caveat with code is attached.
func (d Details) HasCaveat(code CaveatCode) bool {
	for _, c := range d.Caveats {
		if c.Code == code {
			return true
		}
	}
	return false
}

// RuleEvaluation is the result of applying one rule to one calendar.
type RuleEvaluation struct {
	RuleID           id.RuleID          `json:"rule_id"`
	RuleType         RuleType           `json:"rule_type"`
	Attribution      models.Attribution `json:"attribution"`
	RequiredValue    float64            `json:"required_value"`
	ActualValue      float64            `json:"actual_value"`
	Met              bool               `json:"met"`
	Outcome          Outcome            `json:"outcome"`
	EvaluationWindow *Window            `json:"evaluation_window"`
	Details          Details            `json:"details"`
}

// InsufficientDataError reports that a rule needs dates the calendar does
// not cover. Evaluate turns it into a caveat.
type InsufficientDataError struct {
	RuleID    id.RuleID
	Needed    Window
	Available Window
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("rule %s needs %s..%s but data covers %s..%s",
		e.RuleID, e.Needed.From, e.Needed.To, e.Available.From, e.Available.To)
}

// Caveat converts the error into its report form.
func (e *InsufficientDataError) Caveat() Caveat {
	return Caveat{Code: CaveatInsufficientData, Message: e.Error()}
}

const milli = 1000

// Evaluate applies rule to cal, the calendar built under the rule's
// attribution policy. conflicts supplies candidates for pending days.
func Evaluate(rule CountryRule, cal models.Calendar, conflicts *models.ConflictArena) (RuleEvaluation, error) {
	if rule.Params == nil {
		return RuleEvaluation{}, dErrors.New(dErrors.CodeInvariantViolation, "rule "+rule.ID.String()+" is not compiled")
	}
	if cal.Attribution != rule.Attribution {
		return RuleEvaluation{}, dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("rule %s uses %s but calendar uses %s", rule.ID, rule.Attribution, cal.Attribution))
	}

	ev := RuleEvaluation{
		RuleID:        rule.ID,
		RuleType:      rule.Type(),
		Attribution:   rule.Attribution,
		RequiredValue: float64(required(rule.Params)),
		Details:       Details{Caveats: []Caveat{}},
	}

	span, ok := evaluationSpan(rule, cal)
	if !ok {
		ev.Outcome = OutcomeNotApplicable
		ev.Details.Caveats = append(ev.Details.Caveats, Caveat{
			Code:    CaveatNotInEffect,
			Message: "rule is not in effect within the report range",
		})
		return ev, nil
	}
	ev.EvaluationWindow = &span

	if span.From != cal.From || span.To != cal.To {
		ev.Details.Caveats = append(ev.Details.Caveats, Caveat{
			Code:    CaveatNotInEffect,
			Message: fmt.Sprintf("rule is in effect from %s to %s only", span.From, span.To),
		})
	}

	s := newSeries(rule, cal, conflicts, span)
	ev.Details.PendingDays = s.pending
	ev.Details.GapDays = s.gaps

	pessimistic, optimistic := s.lo, s.hi
	if rw, ok := rule.Params.(RollingWindow); ok && rw.Mode == ModeCap {
		pessimistic, optimistic = s.hi, s.lo
	}

	res := s.apply(rule.Params, pessimistic)
	ev.ActualValue = res.value
	ev.Met = res.met
	if res.window != nil {
		ev.EvaluationWindow = res.window
	}
	ev.Details.AbsenceRuns = res.runs
	ev.Details.ExcusedRuns = res.excused
	ev.Details.Breaks = res.breaks

	if err := insufficient(rule, cal, span, res); err != nil {
		ev.Details.Caveats = append(ev.Details.Caveats, err.Caveat())
	}
	if s.gaps > 0 {
		ev.Details.Caveats = append(ev.Details.Caveats, Caveat{
			Code:    CaveatGapsInWindow,
			Message: fmt.Sprintf("%d days without evidence", s.gaps),
		})
	}
	if s.pending > 0 {
		alt := s.apply(rule.Params, optimistic)
		ev.Details.Bounds = &Bounds{
			Lower: math.Min(res.value, alt.value),
			Upper: math.Max(res.value, alt.value),
		}
		ev.Details.Caveats = append(ev.Details.Caveats, Caveat{
			Code:    CaveatUnresolvedConflicts,
			Message: fmt.Sprintf("%d days have pending conflicts; the verdict uses the conservative bound", s.pending),
		})
	}

	if ev.Met {
		ev.Outcome = OutcomeMet
	} else {
		ev.Outcome = OutcomeNotMet
	}
	return ev, nil
}

func required(p Params) int {
	switch p := p.(type) {
	case RollingWindow:
		return p.Limit
	case Cumulative:
		return p.RequiredDays
	case AbsenceLimit:
		return p.MaxAbsenceDays
	case ContinuousResidence:
		return p.BreaksAllowed
	default:
		panic(fmt.Sprintf("rules: unknown params %T", p))
	}
}

// evaluationSpan intersects the calendar range with the rule's effective
// span.
func evaluationSpan(rule CountryRule, cal models.Calendar) (Window, bool) {
	w := Window{From: cal.From, To: cal.To}
	if rule.EffectiveFrom != nil && rule.EffectiveFrom.After(w.From) {
		w.From = *rule.EffectiveFrom
	}
	if rule.EffectiveTo != nil && rule.EffectiveTo.Before(w.To) {
		w.To = *rule.EffectiveTo
	}
	return w, !w.To.Before(w.From)
}

// insufficient reports missing data that could change the verdict: rolling
// windows reaching before the span, or a whole-span rule whose effective
// span extends past the calendar.
func insufficient(rule CountryRule, cal models.Calendar, span Window, res result) *InsufficientDataError {
	available := Window{From: cal.From, To: cal.To}
	switch p := rule.Params.(type) {
	case RollingWindow:
		if !res.truncated {
			return nil
		}
		return &InsufficientDataError{
			RuleID:    rule.ID,
			Needed:    Window{From: span.From.AddDays(1 - p.WindowDays), To: span.To},
			Available: available,
		}
	case Cumulative, ContinuousResidence:
		needed := span
		if rule.EffectiveFrom != nil && rule.EffectiveFrom.Before(cal.From) {
			needed.From = *rule.EffectiveFrom
		}
		if rule.EffectiveTo != nil && rule.EffectiveTo.After(cal.To) {
			needed.To = *rule.EffectiveTo
		}
		if needed == span {
			return nil
		}
		return &InsufficientDataError{RuleID: rule.ID, Needed: needed, Available: available}
	default:
		return nil
	}
}

// series holds the day indicators over the evaluation span. lo and hi are
// the presence bounds; they differ only on pending days.
type series struct {
	from    civil.Date
	lo, hi  []bool
	weight  []int64
	pending int
	gaps    int
}

func newSeries(rule CountryRule, cal models.Calendar, conflicts *models.ConflictArena, span Window) series {
	n := span.Days()
	s := series{
		from:   span.From,
		lo:     make([]bool, n),
		hi:     make([]bool, n),
		weight: make([]int64, n),
	}
	start, _ := cal.Index(span.From)
	for i := 0; i < n; i++ {
		day := cal.Days[start+i]
		switch day.Status {
		case models.StatusGap:
			s.gaps++
		case models.StatusResolved, models.StatusOverridden:
			in := dayIncludes(rule, day)
			s.lo[i], s.hi[i] = in, in
		case models.StatusConflicted:
			s.pending++
			s.lo[i], s.hi[i] = pendingBounds(rule, day, conflicts)
		default:
			panic("rules: unknown day status " + string(day.Status))
		}
		if day.Status != models.StatusGap {
			s.weight[i] = exemptionWeight(rule.Exemptions, day.Date)
		}
	}
	return s
}

func dayIncludes(rule CountryRule, day models.PresenceDay) bool {
	if c, ok := day.CountryCode(); ok && rule.Includes(c) {
		return true
	}
	for _, c := range day.AlsoPresent {
		if rule.Includes(c) {
			return true
		}
	}
	return false
}

// pendingBounds: the day counts for certain only if every candidate is in
// the jurisdiction, and possibly if any is.
func pendingBounds(rule CountryRule, day models.PresenceDay, conflicts *models.ConflictArena) (lo, hi bool) {
	var cands []id.CountryCode
	for _, h := range day.Conflicts {
		if conflicts == nil || int(h) < 0 || int(h) >= conflicts.Len() {
			continue
		}
		for _, c := range conflicts.Get(h).Candidates {
			cands = append(cands, c.Country)
		}
	}
	if len(cands) == 0 {
		if c, ok := day.CountryCode(); ok {
			cands = append(cands, c)
		}
	}
	if len(cands) == 0 {
		return false, false
	}
	lo = true
	for _, c := range cands {
		in := rule.Includes(c)
		lo = lo && in
		hi = hi || in
	}
	return lo, hi
}

func exemptionWeight(exemptions []Exemption, d civil.Date) int64 {
	var w int64
	for _, e := range exemptions {
		if e.Covers(d) {
			w += int64(math.Round(e.Weight * milli))
		}
	}
	if w > milli {
		w = milli
	}
	return w
}

type result struct {
	value     float64
	met       bool
	window    *Window
	runs      []Run
	excused   []Run
	breaks    *int
	truncated bool
}

func (s series) apply(p Params, present []bool) result {
	switch p := p.(type) {
	case RollingWindow:
		return s.rolling(p, present)
	case Cumulative:
		return s.cumulative(p, present)
	case AbsenceLimit:
		return s.absenceLimit(p, present)
	case ContinuousResidence:
		return s.continuous(p, present)
	default:
		panic(fmt.Sprintf("rules: unknown params %T", p))
	}
}

// requirementCredit: present days count fully, absent days count their
// exemption weight. Gap days carry no weight, so they never earn credit.
func (s series) requirementCredit(i int, present []bool) int64 {
	if present[i] {
		return milli
	}
	return s.weight[i]
}

// capCharge: present days count except for their exempted share.
func (s series) capCharge(i int, present []bool) int64 {
	if present[i] {
		return milli - s.weight[i]
	}
	return 0
}

// rolling slides a window of p.WindowDays over the span in one pass and
// reports the earliest window with the maximum sum. truncated is set when
// a window reaching before the span could flip the verdict if the missing
// days were all present.
func (s series) rolling(p RollingWindow, present []bool) result {
	limit := int64(p.Limit) * milli
	width := p.WindowDays
	charge := s.requirementCredit
	if p.Mode == ModeCap {
		charge = s.capCharge
	}

	var sum int64
	best, bestEnd := int64(-1), 0
	var headroom []int64
	for i := range present {
		sum += charge(i, present)
		if i >= width {
			sum -= charge(i-width, present)
		}
		if sum > best {
			best, bestEnd = sum, i
		}
		if missing := width - 1 - i; missing > 0 {
			headroom = append(headroom, sum+int64(missing)*milli)
		}
	}

	res := result{value: float64(best) / milli}
	if p.Mode == ModeCap {
		res.met = best <= limit
	} else {
		res.met = best >= limit
	}
	for _, h := range headroom {
		if p.Mode == ModeCap && res.met && h > limit {
			res.truncated = true
		}
		if p.Mode == ModeRequirement && !res.met && h >= limit {
			res.truncated = true
		}
	}
	end := s.from.AddDays(bestEnd)
	res.window = &Window{From: end.AddDays(1 - width), To: end}
	return res
}

func (s series) cumulative(p Cumulative, present []bool) result {
	var total int64
	for i := range present {
		total += s.requirementCredit(i, present)
	}
	return result{
		value: float64(total) / milli,
		met:   total >= int64(p.RequiredDays)*milli,
	}
}

type absenceRun struct {
	Run
	weighted int64
}

// absences splits the span into maximal absence runs. A run whose every
// day is fully exempted has weighted length 0 and is excused.
func (s series) absences(present []bool) (counted, excused []absenceRun) {
	for i := 0; i < len(present); {
		if present[i] {
			i++
			continue
		}
		j := i
		var w int64
		for j < len(present) && !present[j] {
			w += milli - s.weight[j]
			j++
		}
		run := absenceRun{
			Run:      Run{From: s.from.AddDays(i), To: s.from.AddDays(j - 1), Days: float64(w) / milli},
			weighted: w,
		}
		if w == 0 {
			excused = append(excused, run)
		} else {
			counted = append(counted, run)
		}
		i = j
	}
	return counted, excused
}

func plain(runs []absenceRun) []Run {
	if len(runs) == 0 {
		return nil
	}
	out := make([]Run, len(runs))
	for i, r := range runs {
		out[i] = r.Run
	}
	return out
}

func (s series) absenceLimit(p AbsenceLimit, present []bool) result {
	counted, excused := s.absences(present)
	var longest int64
	for _, r := range counted {
		if r.weighted > longest {
			longest = r.weighted
		}
	}
	return result{
		value:   float64(longest) / milli,
		met:     longest <= int64(p.MaxAbsenceDays)*milli,
		runs:    plain(counted),
		excused: plain(excused),
	}
}

func (s series) continuous(p ContinuousResidence, present []bool) result {
	counted, excused := s.absences(present)
	limit := int64(p.MaxAbsenceDays) * milli
	breaks, disqualifying := 0, 0
	for _, r := range counted {
		if r.weighted > limit {
			disqualifying++
		} else {
			breaks++
		}
	}
	return result{
		value:   float64(breaks),
		met:     disqualifying == 0 && breaks <= p.BreaksAllowed,
		runs:    plain(counted),
		excused: plain(excused),
		breaks:  &breaks,
	}
}
