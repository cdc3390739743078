package evidence

import (
	"fmt"
	"math"
	"strings"
	"time"

	id "residency/pkg/domain"
)

// Problem is one reason a record was rejected.
type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports every problem found in one record. Index is the
// record's position in the submitted feed.
type ValidationError struct {
	Index    int           `json:"index"`
	Evidence id.EvidenceID `json:"evidence_id,omitempty"`
	Problems []Problem     `json:"problems"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.Field + ": " + p.Message
	}
	return fmt.Sprintf("evidence %q (index %d) invalid: %s", e.Evidence, e.Index, strings.Join(parts, "; "))
}

func (e *ValidationError) add(field, msg string) {
	e.Problems = append(e.Problems, Problem{Field: field, Message: msg})
}

// Canonicalize validates r and returns its canonical form (trimmed id,
// upper-case country codes). def is the zone used for moments without one.
// The returned error is nil or a *ValidationError.
func Canonicalize(r Record, index int, def *time.Location) (Record, error) {
	verr := &ValidationError{Index: index, Evidence: r.ID}

	if parsed, err := id.ParseEvidenceID(r.ID.String()); err != nil {
		verr.add("id", err.Error())
	} else {
		r.ID = parsed
		verr.Evidence = parsed
	}

	if !r.Source.IsValid() {
		verr.add("source_type", "unknown source type "+quote(string(r.Source)))
	} else if r.Detail == nil {
		d, _ := newDetail(r.Source)
		r.Detail = d
	} else if r.Detail.Source() != r.Source {
		verr.add("detail", "detail does not match source type")
	}

	if c, err := id.ParseCountryCode(r.Country.String()); err != nil {
		verr.add("country_code", err.Error())
	} else {
		r.Country = c
	}

	switch d := r.Detail.(type) {
	case FlightRecord:
		if c, err := id.ParseCountryCode(d.Origin.String()); err != nil {
			verr.add("detail.origin", err.Error())
		} else {
			d.Origin = c
			r.Detail = d
		}
	case EmailItinerary:
		if !d.Origin.IsNil() {
			if c, err := id.ParseCountryCode(d.Origin.String()); err != nil {
				verr.add("detail.origin", err.Error())
			} else {
				d.Origin = c
				r.Detail = d
			}
		}
	case PassportStamp:
		if d.Direction != "" && d.Direction != DirectionEntry && d.Direction != DirectionExit {
			verr.add("detail.direction", "must be entry or exit")
		}
	}

	if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1 {
		verr.add("confidence", "must be within [0, 1]")
	}

	start, _, serr := r.Range.Start.Instant(def)
	if serr != nil {
		verr.add("time_range.start.tz", "unknown time zone "+quote(r.Range.Start.Zone))
	}
	end, _, eerr := r.Range.End.Instant(def)
	if eerr != nil {
		verr.add("time_range.end.tz", "unknown time zone "+quote(r.Range.End.Zone))
	}
	if serr == nil && eerr == nil {
		if !r.Range.Start.Local.IsValid() || !r.Range.End.Local.IsValid() {
			verr.add("time_range", "invalid local time")
		} else if end.Before(start) {
			verr.add("time_range", "end is before start")
		}
	}

	if len(verr.Problems) > 0 {
		return Record{}, verr
	}
	return r, nil
}

func quote(s string) string { return "\"" + s + "\"" }

// Interval is a half-open span of instants. An interval with Start equal
// to End is a point observation.
type Interval struct {
	Start time.Time
	End   time.Time
}

// IsPoint reports whether the interval has zero length.
func (iv Interval) IsPoint() bool { return iv.Start.Equal(iv.End) }

// Overlaps reports whether two intervals share an instant. A point
// overlaps an interval that contains it.
func (iv Interval) Overlaps(o Interval) bool {
	switch {
	case iv.IsPoint() && o.IsPoint():
		return iv.Start.Equal(o.Start)
	case iv.IsPoint():
		return !iv.Start.Before(o.Start) && iv.Start.Before(o.End)
	case o.IsPoint():
		return !o.Start.Before(iv.Start) && o.Start.Before(iv.End)
	default:
		return iv.Start.Before(o.End) && o.Start.Before(iv.End)
	}
}

// Clip intersects iv with bounds. ok is false when they are disjoint.
func (iv Interval) Clip(bounds Interval) (Interval, bool) {
	if !iv.Overlaps(bounds) {
		return Interval{}, false
	}
	out := iv
	if out.Start.Before(bounds.Start) {
		out.Start = bounds.Start
	}
	if out.End.After(bounds.End) {
		out.End = bounds.End
	}
	return out, true
}

// Segment is a stretch of presence in one country. Day boundaries for the
// segment are taken in Location.
type Segment struct {
	Country  id.CountryCode
	Span     Interval
	Location *time.Location
}

// Segments expands a canonical record into the presence it asserts. A
// travel record with an origin asserts the origin from local midnight of
// the departure date until departure, and the destination from departure
// until arrival. Everything else asserts Country over its range.
func (r Record) Segments(def *time.Location) ([]Segment, error) {
	start, startLoc, err := r.Range.Start.Instant(def)
	if err != nil {
		return nil, err
	}
	end, endLoc, err := r.Range.End.Instant(def)
	if err != nil {
		return nil, err
	}

	origin, travel := r.Origin()
	if !travel {
		return []Segment{{
			Country:  r.Country,
			Span:     Interval{Start: start, End: end},
			Location: startLoc,
		}}, nil
	}

	dayStart := StartOfDay(r.Range.Start.Local.Date, startLoc)
	return []Segment{
		{
			Country:  origin,
			Span:     Interval{Start: dayStart, End: start},
			Location: startLoc,
		},
		{
			Country:  r.Country,
			Span:     Interval{Start: start, End: end},
			Location: endLoc,
		},
	}, nil
}
