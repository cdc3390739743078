// Package rules compiles jurisdiction rule definitions and evaluates them
// against a resolved presence calendar.
package rules

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/civil"

	"residency/internal/presence/models"
	id "residency/pkg/domain"
)

// RuleType selects the evaluation algorithm.
type RuleType string

const (
	TypeRollingWindow       RuleType = "rolling_window"
	TypeCumulative          RuleType = "cumulative"
	TypeAbsenceLimit        RuleType = "absence_limit"
	TypeContinuousResidence RuleType = "continuous_residence"
)

// ParseRuleType validates a rule type name.
func ParseRuleType(s string) (RuleType, bool) {
	t := RuleType(strings.TrimSpace(s))
	switch t {
	case TypeRollingWindow, TypeCumulative, TypeAbsenceLimit, TypeContinuousResidence:
		return t, true
	}
	return "", false
}

func (t RuleType) String() string { return string(t) }

// Params holds the parameters legal for one rule type.
type Params interface {
	Type() RuleType
}

// WindowMode distinguishes a stay cap from a presence requirement.
type WindowMode string

const (
	ModeCap         WindowMode = "cap"
	ModeRequirement WindowMode = "requirement"
)

// RollingWindow sums presence over every trailing window of WindowDays.
// In cap mode Limit is max_days; in requirement mode it is required_days.
type RollingWindow struct {
	WindowDays int
	Mode       WindowMode
	Limit      int
}

// Cumulative sums presence over the whole evaluation range.
type Cumulative struct {
	RequiredDays int
}

// AbsenceLimit bounds the longest absence run.
type AbsenceLimit struct {
	MaxAbsenceDays int
}

// ContinuousResidence tolerates BreaksAllowed absence runs no longer than
// MaxAbsenceDays over the effective span.
type ContinuousResidence struct {
	MaxAbsenceDays int
	BreaksAllowed  int
}

func (RollingWindow) Type() RuleType       { return TypeRollingWindow }
func (Cumulative) Type() RuleType          { return TypeCumulative }
func (AbsenceLimit) Type() RuleType        { return TypeAbsenceLimit }
func (ContinuousResidence) Type() RuleType { return TypeContinuousResidence }

// Exemption discounts absence on covered days. Weight 1 excuses fully.
type Exemption struct {
	Type   string     `json:"type"`
	From   civil.Date `json:"from"`
	To     civil.Date `json:"to"`
	Weight float64    `json:"weight"`
}

// Covers reports whether d lies within the exemption, inclusive.
func (e Exemption) Covers(d civil.Date) bool {
	return !d.Before(e.From) && !d.After(e.To)
}

// CountryRule is a compiled, validated rule. Targets is the jurisdiction
// resolved to member countries, sorted.
type CountryRule struct {
	ID            id.RuleID
	Name          string
	Jurisdiction  id.Jurisdiction
	Targets       []id.CountryCode
	Attribution   models.Attribution
	EffectiveFrom *civil.Date
	EffectiveTo   *civil.Date
	Exemptions    []Exemption
	Params        Params
}

// Type returns the rule type carried by the parameters.
func (r CountryRule) Type() RuleType { return r.Params.Type() }

// Includes reports whether c belongs to the rule's jurisdiction.
func (r CountryRule) Includes(c id.CountryCode) bool {
	i := sort.Search(len(r.Targets), func(i int) bool { return r.Targets[i] >= c })
	return i < len(r.Targets) && r.Targets[i] == c
}

// Definition returns the loose form of the rule. Compile(r.Definition())
// yields an equivalent rule.
func (r CountryRule) Definition() Definition {
	def := Definition{
		ID:           r.ID.String(),
		Name:         r.Name,
		Jurisdiction: r.Jurisdiction.String(),
		RuleType:     r.Type().String(),
		Attribution:  r.Attribution.String(),
	}
	if r.EffectiveFrom != nil {
		def.EffectiveFrom = r.EffectiveFrom.String()
	}
	if r.EffectiveTo != nil {
		def.EffectiveTo = r.EffectiveTo.String()
	}
	for _, e := range r.Exemptions {
		w := e.Weight
		def.Exemptions = append(def.Exemptions, ExemptionDefinition{
			Type: e.Type, From: e.From.String(), To: e.To.String(), Weight: &w,
		})
	}
	switch p := r.Params.(type) {
	case RollingWindow:
		def.WindowDays = intPtr(p.WindowDays)
		if p.Mode == ModeCap {
			def.MaxDays = intPtr(p.Limit)
		} else {
			def.RequiredDays = intPtr(p.Limit)
		}
	case Cumulative:
		def.RequiredDays = intPtr(p.RequiredDays)
	case AbsenceLimit:
		def.MaxAbsenceDays = intPtr(p.MaxAbsenceDays)
	case ContinuousResidence:
		def.MaxAbsenceDays = intPtr(p.MaxAbsenceDays)
		def.BreaksAllowed = intPtr(p.BreaksAllowed)
	default:
		panic(fmt.Sprintf("rules: unknown params %T", r.Params))
	}
	return def
}

type ruleView struct {
	Definition
	Targets []id.CountryCode `json:"targets"`
}

func (r CountryRule) MarshalJSON() ([]byte, error) {
	return json.Marshal(ruleView{Definition: r.Definition(), Targets: r.Targets})
}

// Definition is a rule as written in a rule-set file. Pointer fields
// distinguish absent parameters from zero.
type Definition struct {
	ID             string                `yaml:"id" json:"id"`
	Name           string                `yaml:"name" json:"name,omitempty"`
	Jurisdiction   string                `yaml:"jurisdiction" json:"jurisdiction"`
	RuleType       string                `yaml:"rule_type" json:"rule_type"`
	Attribution    string                `yaml:"attribution" json:"attribution,omitempty"`
	EffectiveFrom  string                `yaml:"effective_from" json:"effective_from,omitempty"`
	EffectiveTo    string                `yaml:"effective_to" json:"effective_to,omitempty"`
	WindowDays     *int                  `yaml:"window_days" json:"window_days,omitempty"`
	MaxDays        *int                  `yaml:"max_days" json:"max_days,omitempty"`
	RequiredDays   *int                  `yaml:"required_days" json:"required_days,omitempty"`
	MaxAbsenceDays *int                  `yaml:"max_absence_days" json:"max_absence_days,omitempty"`
	BreaksAllowed  *int                  `yaml:"breaks_allowed" json:"breaks_allowed,omitempty"`
	Exemptions     []ExemptionDefinition `yaml:"exemptions" json:"exemptions,omitempty"`
}

// ExemptionDefinition is the loose form of an Exemption. A missing weight
// means 1.
type ExemptionDefinition struct {
	Type   string   `yaml:"type" json:"type"`
	From   string   `yaml:"from" json:"from"`
	To     string   `yaml:"to" json:"to"`
	Weight *float64 `yaml:"weight" json:"weight,omitempty"`
}

// Zones maps zone codes to member countries.
type Zones map[id.ZoneCode][]id.CountryCode

// RuleDefinitionError reports an internally inconsistent rule. The rule is
// skipped; other rules still evaluate.
type RuleDefinitionError struct {
	RuleID   string   `json:"rule_id"`
	Problems []string `json:"problems"`
}

func (e *RuleDefinitionError) Error() string {
	return fmt.Sprintf("rule %q: %s", e.RuleID, strings.Join(e.Problems, "; "))
}

// Compile validates def and resolves its jurisdiction against zones.
// An omitted attribution means midnight.
func Compile(def Definition, zones Zones) (CountryRule, error) {
	c := compiler{def: def}
	rule := CountryRule{Name: strings.TrimSpace(def.Name)}

	ruleID, err := id.ParseRuleID(def.ID)
	if err != nil {
		c.fail("id: %s", err.Error())
	}
	rule.ID = ruleID

	rule.Jurisdiction, rule.Targets = c.jurisdiction(zones)

	rule.Attribution = models.AttributionMidnight
	if def.Attribution != "" {
		a, err := models.ParseAttribution(def.Attribution)
		if err != nil {
			c.fail("attribution: unknown policy %q", def.Attribution)
		}
		rule.Attribution = a
	}

	rule.EffectiveFrom = c.date("effective_from", def.EffectiveFrom)
	rule.EffectiveTo = c.date("effective_to", def.EffectiveTo)
	if rule.EffectiveFrom != nil && rule.EffectiveTo != nil && rule.EffectiveTo.Before(*rule.EffectiveFrom) {
		c.fail("effective_to is before effective_from")
	}

	for i, e := range def.Exemptions {
		if ex, ok := c.exemption(i, e); ok {
			rule.Exemptions = append(rule.Exemptions, ex)
		}
	}

	rt, ok := ParseRuleType(def.RuleType)
	if !ok {
		c.fail("rule_type: unknown type %q", def.RuleType)
	} else {
		rule.Params = c.params(rt)
	}

	if len(c.problems) > 0 {
		return CountryRule{}, &RuleDefinitionError{RuleID: strings.TrimSpace(def.ID), Problems: c.problems}
	}
	return rule, nil
}

type compiler struct {
	def      Definition
	problems []string
}

func (c *compiler) fail(format string, args ...any) {
	c.problems = append(c.problems, fmt.Sprintf(format, args...))
}

func (c *compiler) jurisdiction(zones Zones) (id.Jurisdiction, []id.CountryCode) {
	j, err := id.ParseJurisdiction(c.def.Jurisdiction)
	if err != nil {
		c.fail("jurisdiction: %s", err.Error())
		return id.Jurisdiction{}, nil
	}
	if !j.IsZone() {
		return j, []id.CountryCode{j.Country}
	}
	members, ok := zones[j.Zone]
	if !ok || len(members) == 0 {
		c.fail("jurisdiction: zone %s has no members", j.Zone)
		return j, nil
	}
	targets := append([]id.CountryCode{}, members...)
	sort.Slice(targets, func(a, b int) bool { return targets[a] < targets[b] })
	return j, targets
}

func (c *compiler) date(field, s string) *civil.Date {
	if s == "" {
		return nil
	}
	d, err := civil.ParseDate(strings.TrimSpace(s))
	if err != nil {
		c.fail("%s: invalid date %q", field, s)
		return nil
	}
	return &d
}

func (c *compiler) exemption(i int, e ExemptionDefinition) (Exemption, bool) {
	field := fmt.Sprintf("exemptions[%d]", i)
	before := len(c.problems)
	ex := Exemption{Type: strings.TrimSpace(e.Type), Weight: 1}
	if ex.Type == "" {
		c.fail("%s.type: required", field)
	}
	from := c.date(field+".from", e.From)
	to := c.date(field+".to", e.To)
	if from == nil || to == nil {
		if e.From == "" || e.To == "" {
			c.fail("%s: from and to are required", field)
		}
	} else {
		if to.Before(*from) {
			c.fail("%s: to is before from", field)
		}
		ex.From, ex.To = *from, *to
	}
	if e.Weight != nil {
		if *e.Weight < 0 || *e.Weight > 1 {
			c.fail("%s.weight: must be within [0, 1]", field)
		}
		ex.Weight = *e.Weight
	}
	return ex, len(c.problems) == before
}

// params builds the variant for rt and rejects parameters it does not take.
func (c *compiler) params(rt RuleType) Params {
	def := c.def
	legal := map[RuleType][]string{
		TypeRollingWindow:       {"window_days", "max_days", "required_days"},
		TypeCumulative:          {"required_days"},
		TypeAbsenceLimit:        {"max_absence_days"},
		TypeContinuousResidence: {"max_absence_days", "breaks_allowed"},
	}[rt]
	present := map[string]*int{
		"window_days":      def.WindowDays,
		"max_days":         def.MaxDays,
		"required_days":    def.RequiredDays,
		"max_absence_days": def.MaxAbsenceDays,
		"breaks_allowed":   def.BreaksAllowed,
	}
	names := make([]string, 0, len(present))
	for name := range present {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if present[name] != nil && !contains(legal, name) {
			c.fail("%s: not a parameter of %s rules", name, rt)
		}
	}

	switch rt {
	case TypeRollingWindow:
		p := RollingWindow{WindowDays: c.atLeast("window_days", def.WindowDays, 1)}
		switch {
		case def.MaxDays != nil && def.RequiredDays != nil:
			c.fail("rolling_window takes exactly one of max_days and required_days")
		case def.MaxDays != nil:
			p.Mode, p.Limit = ModeCap, c.atLeast("max_days", def.MaxDays, 0)
		case def.RequiredDays != nil:
			p.Mode, p.Limit = ModeRequirement, c.atLeast("required_days", def.RequiredDays, 1)
		default:
			c.fail("rolling_window requires max_days or required_days")
		}
		if p.WindowDays > 0 && p.Limit > p.WindowDays {
			c.fail("limit %d exceeds window_days %d", p.Limit, p.WindowDays)
		}
		return p
	case TypeCumulative:
		return Cumulative{RequiredDays: c.atLeast("required_days", def.RequiredDays, 1)}
	case TypeAbsenceLimit:
		return AbsenceLimit{MaxAbsenceDays: c.atLeast("max_absence_days", def.MaxAbsenceDays, 0)}
	case TypeContinuousResidence:
		p := ContinuousResidence{}
		if def.MaxAbsenceDays == nil {
			if def.BreaksAllowed != nil {
				c.fail("breaks_allowed requires max_absence_days")
			} else {
				c.fail("max_absence_days: required")
			}
		} else {
			p.MaxAbsenceDays = c.atLeast("max_absence_days", def.MaxAbsenceDays, 0)
		}
		if def.BreaksAllowed != nil {
			p.BreaksAllowed = c.atLeast("breaks_allowed", def.BreaksAllowed, 0)
		}
		return p
	default:
		panic("rules: unhandled rule type " + rt)
	}
}

func (c *compiler) atLeast(field string, v *int, min int) int {
	if v == nil {
		c.fail("%s: required", field)
		return 0
	}
	if *v < min {
		c.fail("%s: must be at least %d", field, min)
		return 0
	}
	return *v
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func intPtr(v int) *int { return &v }
