package evidence

import (
	"strings"

	dErrors "residency/pkg/domain-errors"
)

// SourceType identifies where a record came from.
type SourceType string

const (
	SourcePassportStamp  SourceType = "passport_stamp"
	SourceFlightRecord   SourceType = "flight_record"
	SourceEmailItinerary SourceType = "email_itinerary"
	SourceHotelBooking   SourceType = "hotel_booking"
	SourceManualEntry    SourceType = "manual_entry"
)

// AllSourceTypes lists every source type in default reliability order.
var AllSourceTypes = []SourceType{
	SourcePassportStamp,
	SourceEmailItinerary,
	SourceHotelBooking,
	SourceFlightRecord,
	SourceManualEntry,
}

// ParseSourceType validates a source type string.
func ParseSourceType(s string) (SourceType, error) {
	st := SourceType(strings.TrimSpace(s))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown source type: "+s)
	}
	return st, nil
}

// IsValid reports whether the source type is known.
func (s SourceType) IsValid() bool {
	switch s {
	case SourcePassportStamp, SourceFlightRecord, SourceEmailItinerary, SourceHotelBooking, SourceManualEntry:
		return true
	default:
		return false
	}
}

func (s SourceType) String() string { return string(s) }

// Category groups source types for near-duplicate detection. Records from
// different categories never merge.
type Category string

const (
	CategoryDocumentary Category = "documentary"
	CategoryTravel      Category = "travel"
	CategoryLodging     Category = "lodging"
	CategoryDeclared    Category = "declared"
)

// Category returns the source type's category.
func (s SourceType) Category() Category {
	switch s {
	case SourcePassportStamp:
		return CategoryDocumentary
	case SourceFlightRecord, SourceEmailItinerary:
		return CategoryTravel
	case SourceHotelBooking:
		return CategoryLodging
	case SourceManualEntry:
		return CategoryDeclared
	default:
		panic("evidence: category of unknown source type " + string(s))
	}
}

// Ranking orders source types from most to least reliable. It only breaks
// ties between records of equal confidence.
type Ranking []SourceType

// DefaultRanking is passport_stamp > email_itinerary > hotel_booking >
// flight_record > manual_entry.
func DefaultRanking() Ranking {
	r := make(Ranking, len(AllSourceTypes))
	copy(r, AllSourceTypes)
	return r
}

// ParseRanking parses a comma separated ranking such as
// "passport_stamp,hotel_booking,...". Every source type must appear once.
func ParseRanking(s string) (Ranking, error) {
	var r Ranking
	for _, part := range strings.Split(s, ",") {
		st, err := ParseSourceType(part)
		if err != nil {
			return nil, err
		}
		r = append(r, st)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks that the ranking is a permutation of all source types.
func (r Ranking) Validate() error {
	if len(r) != len(AllSourceTypes) {
		return dErrors.New(dErrors.CodeValidation, "ranking must list every source type exactly once")
	}
	seen := make(map[SourceType]bool, len(r))
	for _, st := range r {
		if !st.IsValid() {
			return dErrors.New(dErrors.CodeValidation, "ranking contains unknown source type: "+string(st))
		}
		if seen[st] {
			return dErrors.New(dErrors.CodeValidation, "ranking lists source type twice: "+string(st))
		}
		seen[st] = true
	}
	return nil
}

// Rank returns the position of s; lower is more reliable.
func (r Ranking) Rank(s SourceType) int {
	for i, st := range r {
		if st == s {
			return i
		}
	}
	return len(r)
}
