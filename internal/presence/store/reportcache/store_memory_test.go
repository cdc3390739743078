package reportcache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"residency/internal/presence/engine"
	"residency/internal/presence/evidence"
	et "residency/internal/presence/evidence/evidencetest"
	"residency/internal/presence/models"
	"residency/internal/presence/report"
	"residency/internal/presence/store/reportcache"
	"residency/pkg/platform/sentinel"
	"residency/pkg/requestcontext"
)

var generatedAt = time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)

// sampleReport generates a small report with a conflict and a gap so cache
// round trips exercise every arena.
func sampleReport(t *testing.T) *report.UniversalReport {
	t.Helper()
	e, err := engine.New()
	if err != nil {
		t.Fatal(err)
	}
	rep, err := e.Generate(context.Background(), engine.Input{
		Evidence: []evidence.Record{
			et.Days("ev-fr", "FR", et.Date("2024-06-01"), 5, 0.8),
			et.Days("ev-de", "DE", et.Date("2024-06-04"), 3, 0.8),
		},
		From:           et.Date("2024-06-01"),
		To:             et.Date("2024-06-10"),
		Attribution:    models.AttributionMidnight,
		SnapshotID:     "snap-cache",
		RuleSetVersion: "default@1.0.0",
		AsOf:           generatedAt,
		GeneratedAt:    generatedAt,
	})
	if err != nil {
		t.Fatal(err)
	}
	return rep
}

type MemoryCacheSuite struct {
	suite.Suite
	cache *reportcache.MemoryCache
	ctx   context.Context
}

func TestMemoryCacheSuite(t *testing.T) {
	suite.Run(t, new(MemoryCacheSuite))
}

func (s *MemoryCacheSuite) SetupTest() {
	s.cache = reportcache.NewMemoryCache(10 * time.Minute)
	s.ctx = requestcontext.WithTime(context.Background(), generatedAt)
}

func (s *MemoryCacheSuite) TestRoundTrip() {
	rep := sampleReport(s.T())
	s.Require().NoError(s.cache.Save(s.ctx, rep))

	found, err := s.cache.Find(s.ctx, rep.Fingerprint)
	s.Require().NoError(err)
	s.Same(rep, found)
}

func (s *MemoryCacheSuite) TestMissIsNotFound() {
	_, err := s.cache.Find(s.ctx, "absent")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryCacheSuite) TestEntriesExpire() {
	rep := sampleReport(s.T())
	s.Require().NoError(s.cache.Save(s.ctx, rep))

	later := requestcontext.WithTime(context.Background(), generatedAt.Add(10*time.Minute))
	_, err := s.cache.Find(later, rep.Fingerprint)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryCacheSuite) TestSaveSweepsExpiredEntries() {
	first := sampleReport(s.T())
	s.Require().NoError(s.cache.Save(s.ctx, first))

	second := *first
	second.Fingerprint = "other"
	later := requestcontext.WithTime(context.Background(), generatedAt.Add(time.Hour))
	s.Require().NoError(s.cache.Save(later, &second))
	s.Equal(1, s.cache.Len())
}

func (s *MemoryCacheSuite) TestSaveIgnoresUnfingerprintedReports() {
	s.Require().NoError(s.cache.Save(s.ctx, nil))
	s.Require().NoError(s.cache.Save(s.ctx, &report.UniversalReport{}))
	s.Equal(0, s.cache.Len())
}
