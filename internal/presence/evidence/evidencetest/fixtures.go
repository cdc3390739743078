// Package evidencetest builds evidence records for tests.
package evidencetest

import (
	"fmt"

	"cloud.google.com/go/civil"

	"residency/internal/presence/evidence"
	id "residency/pkg/domain"
)

// Date parses YYYY-MM-DD and panics on error.
func Date(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// At builds a moment from YYYY-MM-DDTHH:MM:SS and a zone.
func At(local, zone string) evidence.Moment {
	dt, err := civil.ParseDateTime(local)
	if err != nil {
		panic(err)
	}
	return evidence.Moment{Local: dt, Zone: zone}
}

// Stay is a record of the given source asserting country between two
// local times in one zone.
func Stay(evID string, src evidence.SourceType, country, from, to, zone string, confidence float64) evidence.Record {
	d, err := detailFor(src)
	if err != nil {
		panic(err)
	}
	return evidence.Record{
		ID:         id.EvidenceID(evID),
		Source:     src,
		Country:    id.CountryCode(country),
		Range:      evidence.TimeRange{Start: At(from, zone), End: At(to, zone)},
		Confidence: confidence,
		Checksum:   "sha256:" + evID,
		Detail:     d,
	}
}

// Days is a manual entry covering n whole days starting at local midnight
// of from, in UTC.
func Days(evID, country string, from civil.Date, n int, confidence float64) evidence.Record {
	start := civil.DateTime{Date: from}
	end := civil.DateTime{Date: from.AddDays(n)}
	return evidence.Record{
		ID:         id.EvidenceID(evID),
		Source:     evidence.SourceManualEntry,
		Country:    id.CountryCode(country),
		Range:      evidence.TimeRange{Start: evidence.Moment{Local: start, Zone: "UTC"}, End: evidence.Moment{Local: end, Zone: "UTC"}},
		Confidence: confidence,
		Checksum:   "sha256:" + evID,
		Detail:     evidence.ManualEntry{Note: fmt.Sprintf("%s for %d days", country, n)},
	}
}

// DaysOf is Days with a chosen source type.
func DaysOf(evID string, src evidence.SourceType, country string, from civil.Date, n int, confidence float64) evidence.Record {
	r := Days(evID, country, from, n, confidence)
	r.Source = src
	d, err := detailFor(src)
	if err != nil {
		panic(err)
	}
	r.Detail = d
	return r
}

// Flight departs origin at dep (in depZone) and lands in dest at arr (in
// arrZone).
func Flight(evID, origin, dest, dep, depZone, arr, arrZone string, confidence float64) evidence.Record {
	return evidence.Record{
		ID:         id.EvidenceID(evID),
		Source:     evidence.SourceFlightRecord,
		Country:    id.CountryCode(dest),
		Range:      evidence.TimeRange{Start: At(dep, depZone), End: At(arr, arrZone)},
		Confidence: confidence,
		Checksum:   "sha256:" + evID,
		Detail:     evidence.FlightRecord{Origin: id.CountryCode(origin), FlightNumber: "XX" + evID},
	}
}

// Arena wraps records in an arena in the given order.
func Arena(records ...evidence.Record) *evidence.Arena {
	return evidence.NewArena(records)
}

func detailFor(src evidence.SourceType) (evidence.Detail, error) {
	switch src {
	case evidence.SourcePassportStamp:
		return evidence.PassportStamp{Direction: evidence.DirectionEntry}, nil
	case evidence.SourceFlightRecord:
		return evidence.FlightRecord{}, nil
	case evidence.SourceEmailItinerary:
		return evidence.EmailItinerary{}, nil
	case evidence.SourceHotelBooking:
		return evidence.HotelBooking{Property: "Test Hotel"}, nil
	case evidence.SourceManualEntry:
		return evidence.ManualEntry{}, nil
	default:
		return nil, fmt.Errorf("unknown source type %q", src)
	}
}
