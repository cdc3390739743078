// Package evidence defines presence evidence records, the arena that holds
// them and the decoding of evidence feeds.
package evidence

import (
	"encoding/json"
	"fmt"

	id "residency/pkg/domain"
)

// Record is one atomic presence observation. Records are values; the
// engine never mutates a record it was given.
type Record struct {
	ID           id.EvidenceID  `json:"id"`
	Source       SourceType     `json:"source_type"`
	Country      id.CountryCode `json:"country_code"`
	Range        TimeRange      `json:"time_range"`
	Confidence   float64        `json:"confidence"`
	Checksum     string         `json:"checksum,omitempty"`
	RawReference string         `json:"raw_reference,omitempty"`
	Detail       Detail         `json:"-"`
}

// Detail carries the fields legal for one source type.
type Detail interface {
	Source() SourceType
}

// Direction of a passport stamp.
type Direction string

const (
	DirectionEntry Direction = "entry"
	DirectionExit  Direction = "exit"
)

type PassportStamp struct {
	Direction Direction `json:"direction"`
	Port      string    `json:"port,omitempty"`
}

type FlightRecord struct {
	Origin       id.CountryCode `json:"origin"`
	FlightNumber string         `json:"flight_number,omitempty"`
}

type EmailItinerary struct {
	Origin    id.CountryCode `json:"origin,omitempty"`
	Reference string         `json:"reference,omitempty"`
}

type HotelBooking struct {
	Property string `json:"property,omitempty"`
}

type ManualEntry struct {
	Note string `json:"note,omitempty"`
}

func (PassportStamp) Source() SourceType  { return SourcePassportStamp }
func (FlightRecord) Source() SourceType   { return SourceFlightRecord }
func (EmailItinerary) Source() SourceType { return SourceEmailItinerary }
func (HotelBooking) Source() SourceType   { return SourceHotelBooking }
func (ManualEntry) Source() SourceType    { return SourceManualEntry }

// Origin returns the departure country of a travel record.
func (r Record) Origin() (id.CountryCode, bool) {
	switch d := r.Detail.(type) {
	case FlightRecord:
		return d.Origin, !d.Origin.IsNil()
	case EmailItinerary:
		return d.Origin, !d.Origin.IsNil()
	default:
		return "", false
	}
}

// newDetail returns the zero detail for a source type.
func newDetail(st SourceType) (Detail, error) {
	switch st {
	case SourcePassportStamp:
		return PassportStamp{}, nil
	case SourceFlightRecord:
		return FlightRecord{}, nil
	case SourceEmailItinerary:
		return EmailItinerary{}, nil
	case SourceHotelBooking:
		return HotelBooking{}, nil
	case SourceManualEntry:
		return ManualEntry{}, nil
	default:
		return nil, fmt.Errorf("unknown source type %q", st)
	}
}

type recordJSON struct {
	ID           id.EvidenceID   `json:"id"`
	Source       SourceType      `json:"source_type"`
	Country      id.CountryCode  `json:"country_code"`
	Range        TimeRange       `json:"time_range"`
	Confidence   float64         `json:"confidence"`
	Checksum     string          `json:"checksum,omitempty"`
	RawReference string          `json:"raw_reference,omitempty"`
	Detail       json.RawMessage `json:"detail,omitempty"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		ID:           r.ID,
		Source:       r.Source,
		Country:      r.Country,
		Range:        r.Range,
		Confidence:   r.Confidence,
		Checksum:     r.Checksum,
		RawReference: r.RawReference,
	}
	if r.Detail != nil {
		b, err := json.Marshal(r.Detail)
		if err != nil {
			return nil, err
		}
		out.Detail = b
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the detail object according to source_type. An
// unknown source type leaves Detail nil so validation can report it per
// record instead of failing the whole feed.
func (r *Record) UnmarshalJSON(b []byte) error {
	var in recordJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*r = Record{
		ID:           in.ID,
		Source:       in.Source,
		Country:      in.Country,
		Range:        in.Range,
		Confidence:   in.Confidence,
		Checksum:     in.Checksum,
		RawReference: in.RawReference,
	}
	detail, err := newDetail(in.Source)
	if err != nil {
		return nil
	}
	if len(in.Detail) > 0 && string(in.Detail) != "null" {
		detail, err = decodeDetail(in.Source, in.Detail)
		if err != nil {
			return fmt.Errorf("evidence %s: detail: %w", in.ID, err)
		}
	}
	r.Detail = detail
	return nil
}

func decodeDetail(st SourceType, raw json.RawMessage) (Detail, error) {
	switch st {
	case SourcePassportStamp:
		var d PassportStamp
		err := json.Unmarshal(raw, &d)
		return d, err
	case SourceFlightRecord:
		var d FlightRecord
		err := json.Unmarshal(raw, &d)
		return d, err
	case SourceEmailItinerary:
		var d EmailItinerary
		err := json.Unmarshal(raw, &d)
		return d, err
	case SourceHotelBooking:
		var d HotelBooking
		err := json.Unmarshal(raw, &d)
		return d, err
	case SourceManualEntry:
		var d ManualEntry
		err := json.Unmarshal(raw, &d)
		return d, err
	default:
		return nil, fmt.Errorf("unknown source type %q", st)
	}
}
