package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks EvidenceStore,OverrideStore,ReportCache,RuleCatalog,Transactor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"residency/internal/presence/catalog"
	"residency/internal/presence/conflict"
	"residency/internal/presence/evidence"
	et "residency/internal/presence/evidence/evidencetest"
	"residency/internal/presence/metrics"
	"residency/internal/presence/models"
	"residency/internal/presence/report"
	"residency/internal/presence/service/mocks"
	evidencestore "residency/internal/presence/store/evidence"
	"residency/internal/presence/store/override"
	"residency/internal/presence/store/reportcache"
	id "residency/pkg/domain"
	dErrors "residency/pkg/domain-errors"
	"residency/pkg/platform/sentinel"
	"residency/pkg/requestcontext"
)

var (
	user    = id.UserID{0x42}
	other   = id.UserID{0x77}
	putTime = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
)

func feed(records ...evidence.Record) []byte {
	b, err := json.Marshal(evidence.Feed{Records: records})
	if err != nil {
		panic(err)
	}
	return b
}

func marchRequest() ReportRequest {
	return ReportRequest{
		UserID:      user,
		From:        et.Date("2024-03-01"),
		To:          et.Date("2024-03-10"),
		Attribution: models.AttributionMidnight,
	}
}

// =============================================================================
// Against in-memory stores
// =============================================================================

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	svc     *Service
	cache   *reportcache.MemoryCache
	metrics *metrics.Metrics
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	cat, err := catalog.Default()
	s.Require().NoError(err)
	s.cache = reportcache.NewMemoryCache(time.Hour)
	s.metrics = metrics.NewWith(promauto.With(prometheus.NewRegistry()))
	s.svc, err = New(
		evidencestore.NewInMemoryStore(),
		override.NewInMemoryStore(),
		s.cache,
		cat,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
	s.ctx = requestcontext.WithTime(context.Background(), putTime)
}

func (s *ServiceSuite) put(records ...evidence.Record) {
	_, err := s.svc.PutEvidence(s.ctx, user, feed(records...))
	s.Require().NoError(err)
}

func (s *ServiceSuite) generate(req ReportRequest) *report.UniversalReport {
	rep, err := s.svc.GenerateReport(s.ctx, req)
	s.Require().NoError(err)
	return rep
}

func dayOf(rep *report.UniversalReport, date string) models.PresenceDay {
	d, ok := rep.PresenceCalendar[0].Day(et.Date(date))
	if !ok {
		panic("date outside calendar: " + date)
	}
	return d
}

func (s *ServiceSuite) TestRepeatRequestsHitTheCache() {
	s.put(et.Days("ev-fr", "FR", et.Date("2024-03-01"), 10, 0.9))

	first := s.generate(marchRequest())
	second := s.generate(marchRequest())

	s.Same(first, second)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues("hit")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues("miss")))
	s.Equal(putTime, first.GeneratedAt)
}

func (s *ServiceSuite) TestNewEvidenceChangesTheFingerprint() {
	s.put(et.Days("ev-fr", "FR", et.Date("2024-03-01"), 5, 0.9))
	before := s.generate(marchRequest())

	s.put(
		et.Days("ev-fr", "FR", et.Date("2024-03-01"), 5, 0.9),
		et.Days("ev-it", "IT", et.Date("2024-03-06"), 5, 0.9),
	)
	after := s.generate(marchRequest())

	s.NotEqual(before.Fingerprint, after.Fingerprint)
	s.NotEqual(before.SnapshotID, after.SnapshotID)
	s.Equal(5, before.DataQuality.GapCount)
	s.Equal(0, after.DataQuality.GapCount)
}

func (s *ServiceSuite) TestRequestOptionsChangeTheFingerprint() {
	s.put(et.Days("ev-fr", "FR", et.Date("2024-03-01"), 10, 0.9))
	base := s.generate(marchRequest())

	filtered := marchRequest()
	filtered.Jurisdictions = []id.Jurisdiction{{Zone: "SCHENGEN"}}
	narrowed := s.generate(filtered)
	s.NotEqual(base.Fingerprint, narrowed.Fingerprint)
	s.Equal("default@1.0.0[SCHENGEN]", narrowed.RuleSetVersion)
	s.Require().Len(narrowed.RuleEvaluations, 1)

	zoned := marchRequest()
	zoned.Timezone = "Asia/Tokyo"
	s.NotEqual(base.Fingerprint, s.generate(zoned).Fingerprint)
}

func (s *ServiceSuite) TestResolvedConflictSurvivesNewEvidence() {
	s.put(
		et.Days("ev-fr", "FR", et.Date("2024-03-01"), 5, 0.8),
		et.Days("ev-de", "DE", et.Date("2024-03-04"), 3, 0.8),
	)
	rep := s.generate(marchRequest())
	contested := dayOf(rep, "2024-03-04")
	s.Require().Equal(models.StatusConflicted, contested.Status)
	s.Require().NotEmpty(contested.Conflicts)
	pending := rep.Conflicts.Get(contested.Conflicts[0])

	pin, err := s.svc.ResolveConflict(s.ctx, user, pending.ID, "DE")
	s.Require().NoError(err)
	s.Equal(et.Date("2024-03-04"), pin.Date)
	s.Equal(models.AttributionMidnight, pin.Attribution)

	s.put(
		et.Days("ev-fr", "FR", et.Date("2024-03-01"), 5, 0.8),
		et.Days("ev-de", "DE", et.Date("2024-03-04"), 3, 0.8),
		et.Days("ev-it", "IT", et.Date("2024-03-04"), 1, 0.95),
	)
	rerun := s.generate(marchRequest())
	pinned := dayOf(rerun, "2024-03-04")
	s.Equal(models.StatusOverridden, pinned.Status)
	s.Require().NotNil(pinned.Country)
	s.Equal(id.CountryCode("DE"), *pinned.Country)
	s.NotEqual(rep.Fingerprint, rerun.Fingerprint)
}

func (s *ServiceSuite) TestIdenticalEvidenceIsNotSharedAcrossUsers() {
	records := []evidence.Record{
		et.Days("ev-fr", "FR", et.Date("2024-03-01"), 5, 0.8),
		et.Days("ev-de", "DE", et.Date("2024-03-04"), 3, 0.8),
	}
	s.put(records...)
	_, err := s.svc.PutEvidence(s.ctx, other, feed(records...))
	s.Require().NoError(err)

	mine := s.generate(marchRequest())
	req := marchRequest()
	req.UserID = other
	theirs := s.generate(req)

	s.NotSame(mine, theirs)
	s.NotEqual(mine.Fingerprint, theirs.Fingerprint)
	s.NotEqual(mine.SnapshotID, theirs.SnapshotID)
	s.Equal(2.0, testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues("miss")))

	contested := dayOf(theirs, "2024-03-04")
	s.Require().NotEmpty(contested.Conflicts)
	pending := theirs.Conflicts.Get(contested.Conflicts[0])
	_, err = s.svc.ResolveConflict(s.ctx, other, pending.ID, "DE")
	s.Require().NoError(err)

	rerun := s.generate(req)
	s.Equal(models.StatusOverridden, dayOf(rerun, "2024-03-04").Status)
	s.Equal(models.StatusConflicted, dayOf(s.generate(marchRequest()), "2024-03-04").Status,
		"one user's pin never reaches another user's report")
}

func (s *ServiceSuite) TestResolveUnknownConflict() {
	_, err := s.svc.ResolveConflict(s.ctx, user, id.NewConflictID("nope"), "FR")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestGenerateWithoutEvidence() {
	_, err := s.svc.GenerateReport(s.ctx, marchRequest())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestRejectedFeed() {
	_, err := s.svc.PutEvidence(s.ctx, user, []byte(`{"records":[{"id":"x"}]}`))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestInvalidRequests() {
	tests := []struct {
		name   string
		mutate func(*ReportRequest)
	}{
		{"nil user", func(r *ReportRequest) { r.UserID = id.UserID{} }},
		{"bad policy", func(r *ReportRequest) { r.Attribution = "noon" }},
		{"inverted range", func(r *ReportRequest) { r.From, r.To = r.To, r.From }},
		{"bad timezone", func(r *ReportRequest) { r.Timezone = "Mars/Olympus" }},
		{"bad constraint", func(r *ReportRequest) { r.RuleSetVersion = "not-semver" }},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := marchRequest()
			tt.mutate(&req)
			_, err := s.svc.GenerateReport(s.ctx, req)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		})
	}
}

func (s *ServiceSuite) TestCatalogQueries() {
	countries, err := s.svc.AvailableCountries(s.ctx)
	s.Require().NoError(err)
	s.Contains(countries, id.CountryCode("PT"))

	pt, err := s.svc.CountryRules(s.ctx, "PT")
	s.Require().NoError(err)
	s.Len(pt, 2)

	jp, err := s.svc.CountryRules(s.ctx, "JP")
	s.Require().NoError(err)
	s.NotNil(jp)
	s.Empty(jp)

	_, err = s.svc.CountryRules(s.ctx, "QQ")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// =============================================================================
// Against mocked ports
// =============================================================================

type ServiceMockSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	evidence  *mocks.MockEvidenceStore
	overrides *mocks.MockOverrideStore
	cache     *mocks.MockReportCache
	catalog   *mocks.MockRuleCatalog
	svc       *Service
	ruleSet   *catalog.RuleSet
	ctx       context.Context
}

func TestServiceMockSuite(t *testing.T) {
	suite.Run(t, new(ServiceMockSuite))
}

func (s *ServiceMockSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.evidence = mocks.NewMockEvidenceStore(s.ctrl)
	s.overrides = mocks.NewMockOverrideStore(s.ctrl)
	s.cache = mocks.NewMockReportCache(s.ctrl)
	s.catalog = mocks.NewMockRuleCatalog(s.ctrl)

	var err error
	s.svc, err = New(s.evidence, s.overrides, s.cache, s.catalog,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)

	cat, err := catalog.Default()
	s.Require().NoError(err)
	s.ruleSet, err = cat.Resolve("", "")
	s.Require().NoError(err)
	s.ctx = requestcontext.WithTime(context.Background(), putTime)
}

func (s *ServiceMockSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceMockSuite) snapshot() *evidencestore.Snapshot {
	return &evidencestore.Snapshot{
		ID:        "ev-abc",
		UserID:    user,
		Records:   []evidence.Record{et.Days("ev-fr", "FR", et.Date("2024-03-01"), 10, 0.9)},
		CreatedAt: putTime,
	}
}

func (s *ServiceMockSuite) expectPlan() {
	s.catalog.EXPECT().Resolve("", "").Return(s.ruleSet, nil)
	s.evidence.EXPECT().Latest(gomock.Any(), user).Return(s.snapshot(), nil)
	s.overrides.EXPECT().Revision(gomock.Any(), user).Return(int64(2), nil)
}

func (s *ServiceMockSuite) TestCacheHitSkipsGeneration() {
	s.expectPlan()
	cached := &report.UniversalReport{Fingerprint: "cached"}
	s.cache.EXPECT().Find(gomock.Any(), gomock.Any()).Return(cached, nil)
	s.overrides.EXPECT().RecordConflicts(gomock.Any(), user, gomock.Len(0)).Return(nil)

	rep, err := s.svc.GenerateReport(s.ctx, marchRequest())
	s.Require().NoError(err)
	s.Same(cached, rep)
}

func (s *ServiceMockSuite) TestCacheHitRecordsPendingConflicts() {
	s.expectPlan()
	conflicts := models.NewConflictArena()
	pendingID := id.NewConflictID("midnight", "2024-03-04", "ev-de", "ev-fr")
	conflicts.Add(models.ConflictRecord{
		ID:          pendingID,
		Date:        et.Date("2024-03-04"),
		Attribution: models.AttributionMidnight,
		Candidates:  []models.Candidate{{Country: "FR"}, {Country: "DE"}},
		Resolution:  models.ResolutionPending,
	})
	cached := &report.UniversalReport{Fingerprint: "cached", Conflicts: conflicts}
	s.cache.EXPECT().Find(gomock.Any(), gomock.Any()).Return(cached, nil)

	var recorded []override.ConflictRef
	s.overrides.EXPECT().RecordConflicts(gomock.Any(), user, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ id.UserID, refs []override.ConflictRef) error {
			recorded = refs
			return nil
		})

	_, err := s.svc.GenerateReport(s.ctx, marchRequest())
	s.Require().NoError(err)
	s.Require().Len(recorded, 1)
	s.Equal(pendingID, recorded[0].ID)
	s.Equal([]id.CountryCode{"FR", "DE"}, recorded[0].Candidates)
}

func (s *ServiceMockSuite) TestCacheHitFailsWhenConflictsCannotBeRecorded() {
	s.expectPlan()
	s.cache.EXPECT().Find(gomock.Any(), gomock.Any()).Return(&report.UniversalReport{}, nil)
	s.overrides.EXPECT().RecordConflicts(gomock.Any(), user, gomock.Any()).Return(errors.New("db down"))

	_, err := s.svc.GenerateReport(s.ctx, marchRequest())
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceMockSuite) TestSnapshotIDCarriesRevisionAndZone() {
	s.expectPlan()
	s.cache.EXPECT().Find(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)
	s.overrides.EXPECT().List(gomock.Any(), user).Return(nil, nil)
	s.overrides.EXPECT().RecordConflicts(gomock.Any(), user, gomock.Any()).Return(nil)
	s.cache.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)

	rep, err := s.svc.GenerateReport(s.ctx, marchRequest())
	s.Require().NoError(err)
	s.Equal(id.SnapshotID(user.String()+"/ev-abc/r2/UTC"), rep.SnapshotID)
	s.Equal("default@1.0.0", rep.RuleSetVersion)
}

func (s *ServiceMockSuite) TestCacheFailuresDoNotFailTheRequest() {
	s.expectPlan()
	s.cache.EXPECT().Find(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrUnavailable)
	s.overrides.EXPECT().List(gomock.Any(), user).Return(nil, nil)
	s.overrides.EXPECT().RecordConflicts(gomock.Any(), user, gomock.Any()).Return(nil)
	s.cache.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

	rep, err := s.svc.GenerateReport(s.ctx, marchRequest())
	s.Require().NoError(err)
	s.NotEmpty(rep.Fingerprint)
}

func (s *ServiceMockSuite) TestOverrideStoreFailureIsInternal() {
	s.expectPlan()
	s.cache.EXPECT().Find(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)
	s.overrides.EXPECT().List(gomock.Any(), user).Return(nil, errors.New("db down"))

	_, err := s.svc.GenerateReport(s.ctx, marchRequest())
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceMockSuite) TestResolveConflictStoresPin() {
	cid := id.NewConflictID("c")
	s.overrides.EXPECT().FindConflict(gomock.Any(), user, cid).Return(override.ConflictRef{
		ID:          cid,
		Date:        et.Date("2024-03-04"),
		Attribution: models.AttributionAnyPresence,
		Candidates:  []id.CountryCode{"FR", "DE"},
	}, nil)
	s.overrides.EXPECT().Save(gomock.Any(), user, conflict.Override{
		ConflictID:  cid,
		Date:        et.Date("2024-03-04"),
		Attribution: models.AttributionAnyPresence,
		Country:     "FR",
		ResolvedAt:  putTime,
	}).Return(int64(1), nil)

	pin, err := s.svc.ResolveConflict(s.ctx, user, cid, "FR")
	s.Require().NoError(err)
	s.Equal(id.CountryCode("FR"), pin.Country)
}

func (s *ServiceMockSuite) TestResolveConflictRejectsUnknownCountry() {
	cid := id.NewConflictID("c")
	s.overrides.EXPECT().FindConflict(gomock.Any(), user, cid).Return(override.ConflictRef{
		ID: cid, Date: et.Date("2024-03-04"), Attribution: models.AttributionMidnight,
	}, nil)

	_, err := s.svc.ResolveConflict(s.ctx, user, cid, "QQ")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

type inTxKey struct{}

func (s *ServiceMockSuite) transactional() (*Service, *mocks.MockTransactor) {
	tx := mocks.NewMockTransactor(s.ctrl)
	svc, err := New(s.evidence, s.overrides, s.cache, s.catalog,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithTransactor(tx))
	s.Require().NoError(err)
	return svc, tx
}

func (s *ServiceMockSuite) TestResolveConflictRunsInOneTransaction() {
	svc, tx := s.transactional()
	cid := id.NewConflictID("c")
	tx.EXPECT().RunInTx(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(context.WithValue(ctx, inTxKey{}, true))
		})
	var seen []context.Context
	s.overrides.EXPECT().FindConflict(gomock.Any(), user, cid).DoAndReturn(
		func(ctx context.Context, _ id.UserID, _ id.ConflictID) (override.ConflictRef, error) {
			seen = append(seen, ctx)
			return override.ConflictRef{ID: cid, Date: et.Date("2024-03-04"), Candidates: []id.CountryCode{"FR", "DE"}}, nil
		})
	s.overrides.EXPECT().Save(gomock.Any(), user, gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ id.UserID, _ conflict.Override) (int64, error) {
			seen = append(seen, ctx)
			return 4, nil
		})

	_, err := svc.ResolveConflict(s.ctx, user, cid, "DE")
	s.Require().NoError(err)
	s.Require().Len(seen, 2)
	for _, ctx := range seen {
		s.Equal(true, ctx.Value(inTxKey{}), "store call made outside the transaction")
	}
}

func (s *ServiceMockSuite) TestResolveConflictKeepsCodesFromTheTransaction() {
	svc, tx := s.transactional()
	cid := id.NewConflictID("c")
	tx.EXPECT().RunInTx(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) })
	s.overrides.EXPECT().FindConflict(gomock.Any(), user, cid).Return(override.ConflictRef{}, sentinel.ErrNotFound)

	_, err := svc.ResolveConflict(s.ctx, user, cid, "DE")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceMockSuite) TestResolveConflictCommitFailureIsInternal() {
	svc, tx := s.transactional()
	cid := id.NewConflictID("c")
	tx.EXPECT().RunInTx(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			if err := fn(ctx); err != nil {
				return err
			}
			return errors.New("commit override tx: conn reset")
		})
	s.overrides.EXPECT().FindConflict(gomock.Any(), user, cid).Return(override.ConflictRef{
		ID: cid, Date: et.Date("2024-03-04"), Candidates: []id.CountryCode{"FR", "DE"},
	}, nil)
	s.overrides.EXPECT().Save(gomock.Any(), user, gomock.Any()).Return(int64(1), nil)

	_, err := svc.ResolveConflict(s.ctx, user, cid, "FR")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceMockSuite) TestCancelledCallerStopsWaiting() {
	s.expectPlan()
	s.cache.EXPECT().Find(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)
	release := make(chan struct{})
	s.overrides.EXPECT().List(gomock.Any(), user).DoAndReturn(
		func(context.Context, id.UserID) ([]conflict.Override, error) {
			<-release
			return nil, nil
		})
	s.overrides.EXPECT().RecordConflicts(gomock.Any(), user, gomock.Any()).Return(nil)
	done := make(chan struct{})
	s.cache.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, *report.UniversalReport) error {
			close(done)
			return nil
		})

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, err := s.svc.GenerateReport(ctx, marchRequest())
	s.ErrorIs(err, context.Canceled)

	// The shared generation outlives the cancelled caller and still fills
	// the cache.
	close(release)
	<-done
}
