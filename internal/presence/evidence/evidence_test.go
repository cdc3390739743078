package evidence

import (
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "residency/pkg/domain"
	dErrors "residency/pkg/domain-errors"
)

func at(s, zone string) Moment {
	dt, err := civil.ParseDateTime(s)
	if err != nil {
		panic(err)
	}
	return Moment{Local: dt, Zone: zone}
}

func hotel(evID, country, from, to string) Record {
	return Record{
		ID:         id.EvidenceID(evID),
		Source:     SourceHotelBooking,
		Country:    id.CountryCode(country),
		Range:      TimeRange{Start: at(from, "Europe/Paris"), End: at(to, "Europe/Paris")},
		Confidence: 0.8,
		Detail:     HotelBooking{Property: "Hotel"},
	}
}

func TestCanonicalize(t *testing.T) {
	t.Run("normalizes codes and identifiers", func(t *testing.T) {
		r := hotel("  ev-1 ", "fr", "2024-03-01T15:00:00", "2024-03-03T11:00:00")
		got, err := Canonicalize(r, 0, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, id.EvidenceID("ev-1"), got.ID)
		assert.Equal(t, id.CountryCode("FR"), got.Country)
	})

	t.Run("collects every problem", func(t *testing.T) {
		r := Record{
			ID:         "ev-2",
			Source:     "carrier_pigeon",
			Country:    "ZZ",
			Range:      TimeRange{Start: at("2024-03-02T00:00:00", "Mars/Olympus"), End: at("2024-03-01T00:00:00", "")},
			Confidence: 1.5,
		}
		_, err := Canonicalize(r, 4, time.UTC)
		require.Error(t, err)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, 4, verr.Index)
		assert.Equal(t, id.EvidenceID("ev-2"), verr.Evidence)

		fields := make([]string, 0, len(verr.Problems))
		for _, p := range verr.Problems {
			fields = append(fields, p.Field)
		}
		assert.ElementsMatch(t, []string{"source_type", "country_code", "confidence", "time_range.start.tz"}, fields)
	})

	t.Run("rejects inverted range", func(t *testing.T) {
		r := hotel("ev-3", "FR", "2024-03-05T00:00:00", "2024-03-01T00:00:00")
		_, err := Canonicalize(r, 0, time.UTC)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "time_range", verr.Problems[0].Field)
	})

	t.Run("rejects unknown origin", func(t *testing.T) {
		r := Record{
			ID:         "ev-4",
			Source:     SourceFlightRecord,
			Country:    "FR",
			Range:      TimeRange{Start: at("2024-03-01T10:00:00", "UTC"), End: at("2024-03-01T12:00:00", "UTC")},
			Confidence: 0.9,
			Detail:     FlightRecord{Origin: "QQ"},
		}
		_, err := Canonicalize(r, 0, time.UTC)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "detail.origin", verr.Problems[0].Field)
	})

	t.Run("fills missing detail", func(t *testing.T) {
		r := hotel("ev-5", "FR", "2024-03-01T15:00:00", "2024-03-03T11:00:00")
		r.Detail = nil
		got, err := Canonicalize(r, 0, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, HotelBooking{}, got.Detail)
	})
}

func TestSegments(t *testing.T) {
	t.Run("stay is a single segment", func(t *testing.T) {
		segs, err := hotel("ev-1", "FR", "2024-03-01T15:00:00", "2024-03-03T11:00:00").Segments(time.UTC)
		require.NoError(t, err)
		require.Len(t, segs, 1)
		assert.Equal(t, id.CountryCode("FR"), segs[0].Country)
		assert.Equal(t, "Europe/Paris", segs[0].Location.String())
	})

	t.Run("flight splits into origin and destination", func(t *testing.T) {
		r := Record{
			ID:         "fl-1",
			Source:     SourceFlightRecord,
			Country:    "FR",
			Range:      TimeRange{Start: at("2024-03-01T22:00:00", "Europe/London"), End: at("2024-03-02T01:00:00", "Europe/Paris")},
			Confidence: 0.9,
			Detail:     FlightRecord{Origin: "GB", FlightNumber: "BA304"},
		}
		segs, err := r.Segments(time.UTC)
		require.NoError(t, err)
		require.Len(t, segs, 2)

		london, _ := LoadLocation("Europe/London")
		assert.Equal(t, id.CountryCode("GB"), segs[0].Country)
		assert.True(t, segs[0].Span.Start.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, london)))
		assert.True(t, segs[0].Span.End.Equal(segs[1].Span.Start))
		assert.Equal(t, id.CountryCode("FR"), segs[1].Country)
		assert.Equal(t, "Europe/Paris", segs[1].Location.String())
	})

	t.Run("itinerary without origin is a single segment", func(t *testing.T) {
		r := Record{
			ID:      "em-1",
			Source:  SourceEmailItinerary,
			Country: "DE",
			Range:   TimeRange{Start: at("2024-03-01T10:00:00", "UTC"), End: at("2024-03-01T12:00:00", "UTC")},
			Detail:  EmailItinerary{Reference: "PNR123"},
		}
		segs, err := r.Segments(time.UTC)
		require.NoError(t, err)
		assert.Len(t, segs, 1)
	})
}

func TestIntervalOverlaps(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	iv := func(from, to int) Interval {
		return Interval{Start: base.Add(time.Duration(from) * time.Hour), End: base.Add(time.Duration(to) * time.Hour)}
	}

	assert.True(t, iv(0, 5).Overlaps(iv(4, 8)))
	assert.False(t, iv(0, 5).Overlaps(iv(5, 8)), "half-open intervals touching at a boundary do not overlap")
	assert.True(t, iv(3, 3).Overlaps(iv(0, 5)))
	assert.False(t, iv(5, 5).Overlaps(iv(0, 5)))
	assert.True(t, iv(2, 2).Overlaps(iv(2, 2)))

	clipped, ok := iv(0, 30).Clip(iv(24, 48))
	require.True(t, ok)
	assert.Equal(t, iv(24, 30), clipped)
}

func TestRanking(t *testing.T) {
	r := DefaultRanking()
	require.NoError(t, r.Validate())
	assert.Less(t, r.Rank(SourcePassportStamp), r.Rank(SourceEmailItinerary))
	assert.Less(t, r.Rank(SourceHotelBooking), r.Rank(SourceFlightRecord))
	assert.Less(t, r.Rank(SourceFlightRecord), r.Rank(SourceManualEntry))

	custom, err := ParseRanking("manual_entry,passport_stamp,email_itinerary,hotel_booking,flight_record")
	require.NoError(t, err)
	assert.Equal(t, 0, custom.Rank(SourceManualEntry))

	_, err = ParseRanking("passport_stamp,passport_stamp")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestArena(t *testing.T) {
	a := NewArena([]Record{
		hotel("ev-1", "FR", "2024-03-01T15:00:00", "2024-03-03T11:00:00"),
		hotel("ev-2", "DE", "2024-03-03T15:00:00", "2024-03-05T11:00:00"),
	})
	assert.Equal(t, 2, a.Len())

	h, ok := a.Lookup("ev-2")
	require.True(t, ok)
	assert.Equal(t, Handle(1), h)
	assert.Equal(t, id.CountryCode("DE"), a.Get(h).Country)
	assert.True(t, a.Valid(h))
	assert.False(t, a.Valid(Handle(2)))
	assert.Equal(t, []id.EvidenceID{"ev-2", "ev-1"}, a.IDs([]Handle{1, 0}))

	var nilArena *Arena
	assert.Equal(t, 0, nilArena.Len())
	assert.Nil(t, nilArena.Records())
}

func TestDecodeFeed(t *testing.T) {
	t.Run("decodes detail by source type", func(t *testing.T) {
		data := []byte(`{"records":[
			{"id":"fl-1","source_type":"flight_record","country_code":"FR",
			 "time_range":{"start":{"local":"2024-03-01T22:00:00","tz":"Europe/London"},
			               "end":{"local":"2024-03-02T01:00:00","tz":"Europe/Paris"}},
			 "confidence":0.9,"detail":{"origin":"GB","flight_number":"BA304"}},
			{"id":"st-1","source_type":"passport_stamp","country_code":"FR",
			 "time_range":{"start":{"local":"2024-03-02T01:30:00"},"end":{"local":"2024-03-02T01:30:00"}},
			 "confidence":1,"detail":{"direction":"entry","port":"CDG"}}
		]}`)
		feed, err := DecodeFeed(data)
		require.NoError(t, err)
		require.Len(t, feed.Records, 2)
		assert.Equal(t, FlightRecord{Origin: "GB", FlightNumber: "BA304"}, feed.Records[0].Detail)
		assert.Equal(t, PassportStamp{Direction: DirectionEntry, Port: "CDG"}, feed.Records[1].Detail)
	})

	t.Run("unknown source type survives decoding for per-record validation", func(t *testing.T) {
		data := []byte(`{"records":[
			{"id":"x-1","source_type":"telepathy","country_code":"FR",
			 "time_range":{"start":{"local":"2024-03-01T00:00:00"},"end":{"local":"2024-03-02T00:00:00"}},
			 "confidence":0.5}
		]}`)
		feed, err := DecodeFeed(data)
		require.NoError(t, err)
		_, err = Canonicalize(feed.Records[0], 0, time.UTC)
		require.Error(t, err)
	})

	t.Run("structural problems reject the feed", func(t *testing.T) {
		_, err := DecodeFeed([]byte(`{"records":[{"id":"x-1"}]}`))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = DecodeFeed([]byte(`not json`))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("record round trips through JSON", func(t *testing.T) {
		r := hotel("ev-1", "FR", "2024-03-01T15:00:00", "2024-03-03T11:00:00")
		b, err := json.Marshal(r)
		require.NoError(t, err)
		var back Record
		require.NoError(t, json.Unmarshal(b, &back))
		assert.Equal(t, r, back)
	})
}
