// Package catalog loads versioned rule sets from YAML files and answers
// jurisdiction queries over them.
package catalog

import (
	"embed"
	"errors"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"residency/internal/presence/rules"
	id "residency/pkg/domain"
	dErrors "residency/pkg/domain-errors"
)

//go:embed rulesets/*.yaml
var embedded embed.FS

// DefaultName is the rule set used when a request names none.
const DefaultName = "default"

// file is the on-disk form of a rule set.
type file struct {
	Name    string              `yaml:"name"`
	Version string              `yaml:"version"`
	Zones   map[string][]string `yaml:"zones"`
	Rules   []rules.Definition  `yaml:"rules"`
}

// RuleSet is one named, versioned collection of compiled rules. Rules that
// failed to compile are kept in Errors and never evaluated.
type RuleSet struct {
	Name    string
	Version *semver.Version
	Zones   rules.Zones
	Rules   []rules.CountryRule
	Errors  []*rules.RuleDefinitionError
}

// ID is the name@version label reports carry.
func (rs *RuleSet) ID() string {
	return rs.Name + "@" + rs.Version.String()
}

// AvailableCountries lists every country some rule targets, sorted.
func (rs *RuleSet) AvailableCountries() []id.CountryCode {
	seen := make(map[id.CountryCode]bool)
	var out []id.CountryCode
	for _, r := range rs.Rules {
		for _, c := range r.Targets {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CountryRules returns the rules that apply to code, directly or through a
// zone it belongs to, in file order.
func (rs *RuleSet) CountryRules(code id.CountryCode) []rules.CountryRule {
	var out []rules.CountryRule
	for _, r := range rs.Rules {
		if r.Includes(code) {
			out = append(out, r)
		}
	}
	return out
}

// Filter returns a copy holding only rules whose jurisdiction is one of js.
// A country in js also selects zone rules that include it.
func (rs *RuleSet) Filter(js []id.Jurisdiction) *RuleSet {
	if len(js) == 0 {
		return rs
	}
	out := &RuleSet{Name: rs.Name, Version: rs.Version, Zones: rs.Zones, Errors: rs.Errors}
	for _, r := range rs.Rules {
		for _, j := range js {
			if r.Jurisdiction == j || (!j.IsZone() && r.Includes(j.Country)) {
				out.Rules = append(out.Rules, r)
				break
			}
		}
	}
	return out
}

// Catalog holds every loaded version of every rule set.
type Catalog struct {
	sets map[string][]*RuleSet // newest first
}

// Default loads the rule sets compiled into the binary.
func Default() (*Catalog, error) {
	return Load(embedded, "rulesets")
}

// LoadDir loads every *.yaml and *.yml file in dir.
func LoadDir(dir string) (*Catalog, error) {
	return Load(os.DirFS(dir), ".")
}

// Load reads the rule-set files in dir of fsys. Malformed files, bad
// versions and duplicate versions fail the load; inconsistent rules are
// recorded on their rule set.
func Load(fsys fs.FS, dir string) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "read rule directory")
	}

	c := &Catalog{sets: make(map[string][]*RuleSet)}
	for _, e := range entries {
		ext := path.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		name := path.Join(dir, e.Name())
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "read "+name)
		}
		rs, err := Parse(data)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "load "+name)
		}
		if err := c.add(rs); err != nil {
			return nil, err
		}
	}
	if len(c.sets) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "no rule sets in "+dir)
	}
	return c, nil
}

func (c *Catalog) add(rs *RuleSet) error {
	versions := c.sets[rs.Name]
	for _, v := range versions {
		if v.Version.Equal(rs.Version) {
			return dErrors.New(dErrors.CodeConflict, "duplicate rule set "+rs.ID())
		}
	}
	versions = append(versions, rs)
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version.GreaterThan(versions[j].Version) })
	c.sets[rs.Name] = versions
	return nil
}

// Parse decodes and compiles one rule-set file.
func Parse(data []byte) (*RuleSet, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "parse rule set")
	}
	name := strings.TrimSpace(f.Name)
	if name == "" || strings.ContainsAny(name, "@ \t") {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "rule set name is missing or invalid")
	}
	version, err := semver.StrictNewVersion(strings.TrimSpace(f.Version))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "rule set "+name+" has an invalid version")
	}

	zones, err := parseZones(f.Zones)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "rule set "+name)
	}

	rs := &RuleSet{Name: name, Version: version, Zones: zones}
	seen := make(map[id.RuleID]bool)
	for _, def := range f.Rules {
		rule, err := rules.Compile(def, zones)
		if err != nil {
			var defErr *rules.RuleDefinitionError
			if !errors.As(err, &defErr) {
				return nil, err
			}
			rs.Errors = append(rs.Errors, defErr)
			continue
		}
		if seen[rule.ID] {
			rs.Errors = append(rs.Errors, &rules.RuleDefinitionError{
				RuleID:   rule.ID.String(),
				Problems: []string{"duplicate rule id"},
			})
			continue
		}
		seen[rule.ID] = true
		rs.Rules = append(rs.Rules, rule)
	}
	return rs, nil
}

func parseZones(raw map[string][]string) (rules.Zones, error) {
	zones := make(rules.Zones, len(raw))
	for name, members := range raw {
		z, err := id.ParseZoneCode(name)
		if err != nil {
			return nil, err
		}
		codes := make([]id.CountryCode, 0, len(members))
		for _, m := range members {
			c, err := id.ParseCountryCode(m)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "zone "+z.String())
			}
			codes = append(codes, c)
		}
		zones[z] = codes
	}
	return zones, nil
}

// Resolve picks a rule set by name and optional semver constraint. The
// newest matching version wins; an empty name means DefaultName and an
// empty constraint means the newest version.
func (c *Catalog) Resolve(name, constraint string) (*RuleSet, error) {
	if name == "" {
		name = DefaultName
	}
	versions, ok := c.sets[name]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "unknown rule set: "+name)
	}
	if constraint == "" {
		return versions[0], nil
	}
	cons, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid rule set version constraint")
	}
	for _, rs := range versions {
		if cons.Check(rs.Version) {
			return rs, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "no version of "+name+" satisfies "+constraint)
}

// Names lists the loaded rule-set names, sorted.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.sets))
	for name := range c.sets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// AvailableCountries answers over the newest default rule set.
func (c *Catalog) AvailableCountries() ([]id.CountryCode, error) {
	rs, err := c.Resolve("", "")
	if err != nil {
		return nil, err
	}
	return rs.AvailableCountries(), nil
}

// CountryRules answers over the newest default rule set.
func (c *Catalog) CountryRules(code id.CountryCode) ([]rules.CountryRule, error) {
	rs, err := c.Resolve("", "")
	if err != nil {
		return nil, err
	}
	return rs.CountryRules(code), nil
}
