package domain

import (
	"strings"

	dErrors "residency/pkg/domain-errors"
)

// CountryCode is an ISO 3166-1 alpha-2 country code.
// Invariant: upper case and present in the ISO code list.
//
// Usage: construct via ParseCountryCode at trust boundaries; direct casting
// bypasses validation and is reserved for tests and static tables.
type CountryCode string

// iso3166 is the set of officially assigned alpha-2 codes plus XK (Kosovo),
// which border authorities stamp even though it is user-assigned.
var iso3166 = func() map[CountryCode]struct{} {
	const codes = "AD AE AF AG AI AL AM AO AQ AR AS AT AU AW AX AZ " +
		"BA BB BD BE BF BG BH BI BJ BL BM BN BO BQ BR BS BT BV BW BY BZ " +
		"CA CC CD CF CG CH CI CK CL CM CN CO CR CU CV CW CX CY CZ " +
		"DE DJ DK DM DO DZ EC EE EG EH ER ES ET FI FJ FK FM FO FR " +
		"GA GB GD GE GF GG GH GI GL GM GN GP GQ GR GS GT GU GW GY " +
		"HK HM HN HR HT HU ID IE IL IM IN IO IQ IR IS IT JE JM JO JP " +
		"KE KG KH KI KM KN KP KR KW KY KZ LA LB LC LI LK LR LS LT LU LV LY " +
		"MA MC MD ME MF MG MH MK ML MM MN MO MP MQ MR MS MT MU MV MW MX MY MZ " +
		"NA NC NE NF NG NI NL NO NP NR NU NZ OM " +
		"PA PE PF PG PH PK PL PM PN PR PS PT PW PY QA RE RO RS RU RW " +
		"SA SB SC SD SE SG SH SI SJ SK SL SM SN SO SR SS ST SV SX SY SZ " +
		"TC TD TF TG TH TJ TK TL TM TN TO TR TT TV TW TZ " +
		"UA UG UM US UY UZ VA VC VE VG VI VN VU WF WS XK YE YT ZA ZM ZW"
	set := make(map[CountryCode]struct{})
	for _, c := range strings.Fields(codes) {
		set[CountryCode(c)] = struct{}{}
	}
	return set
}()

// ParseCountryCode validates a country code. Surrounding whitespace and
// lower case input are accepted and normalized.
func ParseCountryCode(s string) (CountryCode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "country code cannot be empty")
	}
	c := CountryCode(s)
	if !c.IsKnown() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown country code: "+s)
	}
	return c, nil
}

// IsKnown reports whether the code is in the ISO list.
func (c CountryCode) IsKnown() bool {
	_, ok := iso3166[c]
	return ok
}

func (c CountryCode) String() string {
	return string(c)
}

// IsNil returns true for the empty code, used for gap days.
func (c CountryCode) IsNil() bool {
	return c == ""
}
