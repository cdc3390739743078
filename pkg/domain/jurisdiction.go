package domain

import (
	"regexp"
	"strings"

	dErrors "residency/pkg/domain-errors"
)

// ZoneCode names a multi-country area such as SCHENGEN. Members are
// defined by the rule catalog, not here.
type ZoneCode string

var zonePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]{2,31}$`)

// ParseZoneCode validates a zone code. Zone codes are at least three
// characters so they never collide with country codes.
func ParseZoneCode(s string) (ZoneCode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !zonePattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid zone code: "+s)
	}
	return ZoneCode(s), nil
}

func (z ZoneCode) String() string { return string(z) }

// Jurisdiction is the target of a rule: exactly one of a country or a zone.
type Jurisdiction struct {
	Country CountryCode
	Zone    ZoneCode
}

// ParseJurisdiction accepts either a country code or a zone code.
func ParseJurisdiction(s string) (Jurisdiction, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(s))
	if len(trimmed) == 2 {
		c, err := ParseCountryCode(trimmed)
		if err != nil {
			return Jurisdiction{}, err
		}
		return Jurisdiction{Country: c}, nil
	}
	z, err := ParseZoneCode(trimmed)
	if err != nil {
		return Jurisdiction{}, err
	}
	return Jurisdiction{Zone: z}, nil
}

// IsZone reports whether the jurisdiction names a zone.
func (j Jurisdiction) IsZone() bool { return j.Zone != "" }

func (j Jurisdiction) String() string {
	if j.IsZone() {
		return j.Zone.String()
	}
	return j.Country.String()
}

func (j Jurisdiction) MarshalText() ([]byte, error) {
	return []byte(j.String()), nil
}

func (j *Jurisdiction) UnmarshalText(b []byte) error {
	parsed, err := ParseJurisdiction(string(b))
	if err != nil {
		return err
	}
	*j = parsed
	return nil
}
