// Package service runs the presence engine against a user's stored
// evidence and pins, caching reports by fingerprint.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"golang.org/x/sync/singleflight"

	"residency/internal/presence/calendar"
	"residency/internal/presence/catalog"
	"residency/internal/presence/conflict"
	"residency/internal/presence/engine"
	"residency/internal/presence/evidence"
	"residency/internal/presence/metrics"
	"residency/internal/presence/models"
	"residency/internal/presence/report"
	"residency/internal/presence/rules"
	evidencestore "residency/internal/presence/store/evidence"
	"residency/internal/presence/store/override"
	id "residency/pkg/domain"
	dErrors "residency/pkg/domain-errors"
	"residency/pkg/platform/sentinel"
	"residency/pkg/requestcontext"
)

// EvidenceStore holds each user's current evidence snapshot.
type EvidenceStore interface {
	Put(ctx context.Context, userID id.UserID, records []evidence.Record) (*evidencestore.Snapshot, error)
	Latest(ctx context.Context, userID id.UserID) (*evidencestore.Snapshot, error)
}

// OverrideStore persists user pins and the conflicts they may resolve.
type OverrideStore interface {
	Save(ctx context.Context, userID id.UserID, o conflict.Override) (int64, error)
	List(ctx context.Context, userID id.UserID) ([]conflict.Override, error)
	Revision(ctx context.Context, userID id.UserID) (int64, error)
	RecordConflicts(ctx context.Context, userID id.UserID, refs []override.ConflictRef) error
	FindConflict(ctx context.Context, userID id.UserID, conflictID id.ConflictID) (override.ConflictRef, error)
}

// ReportCache stores generated reports by fingerprint.
type ReportCache interface {
	Find(ctx context.Context, fingerprint string) (*report.UniversalReport, error)
	Save(ctx context.Context, rep *report.UniversalReport) error
}

// RuleCatalog picks a rule set by name and semver constraint.
type RuleCatalog interface {
	Resolve(name, constraint string) (*catalog.RuleSet, error)
}

// Transactor runs fn so the store calls it makes with the given context
// commit or roll back together.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type noTx struct{}

func (noTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// ReportRequest asks for one report over a user's current evidence.
type ReportRequest struct {
	UserID      id.UserID
	From, To    civil.Date
	Attribution models.Attribution
	// Timezone applies to evidence moments without a zone. Empty means UTC.
	Timezone string
	// RuleSet and RuleSetVersion select the rules; empty means the newest
	// default set.
	RuleSet        string
	RuleSetVersion string
	// Jurisdictions narrows the rules evaluated. Empty means all.
	Jurisdictions []id.Jurisdiction
}

// Service is safe for concurrent use.
type Service struct {
	engine    *engine.Engine
	evidence  EvidenceStore
	overrides OverrideStore
	cache     ReportCache
	catalog   RuleCatalog
	tx        Transactor
	metrics   *metrics.Metrics
	logger    *slog.Logger
	flight    singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTransactor groups the conflict lookup and pin save of
// ResolveConflict into one transaction.
func WithTransactor(t Transactor) Option {
	return func(s *Service) { s.tx = t }
}

// WithEngine replaces the default engine.
func WithEngine(e *engine.Engine) Option {
	return func(s *Service) { s.engine = e }
}

// New constructs a Service. Every store is required.
func New(ev EvidenceStore, overrides OverrideStore, cache ReportCache, rules RuleCatalog, opts ...Option) (*Service, error) {
	if ev == nil || overrides == nil || cache == nil || rules == nil {
		return nil, errors.New("evidence store, override store, report cache and rule catalog are required")
	}
	s := &Service{
		evidence:  ev,
		overrides: overrides,
		cache:     cache,
		catalog:   rules,
		tx:        noTx{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		e, err := engine.New()
		if err != nil {
			return nil, err
		}
		s.engine = e
	}
	return s, nil
}

// =============================================================================
// Evidence
// =============================================================================

// PutEvidence replaces the user's evidence with a decoded feed.
func (s *Service) PutEvidence(ctx context.Context, userID id.UserID, feed []byte) (*evidencestore.Snapshot, error) {
	decoded, err := evidence.DecodeFeed(feed)
	if err != nil {
		return nil, err
	}
	snap, err := s.evidence.Put(ctx, userID, decoded.Records)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store evidence")
	}
	s.logger.InfoContext(ctx, "evidence snapshot stored",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID.String(),
		"snapshot_id", snap.ID.String(),
		"records", len(snap.Records),
	)
	return snap, nil
}

// =============================================================================
// Reports
// =============================================================================

// plan is everything a report depends on, resolved before the cache is
// consulted.
type plan struct {
	key      report.Key
	snapshot *evidencestore.Snapshot
	ruleSet  *catalog.RuleSet
	zone     *time.Location
}

// GenerateReport returns the cached report for the request's fingerprint
// or generates it. Concurrent requests for one fingerprint share a single
// generation.
func (s *Service) GenerateReport(ctx context.Context, req ReportRequest) (*report.UniversalReport, error) {
	start := time.Now()
	p, err := s.plan(ctx, req)
	if err != nil {
		return nil, err
	}
	fingerprint, err := p.key.Fingerprint()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to fingerprint report")
	}

	cached, err := s.cache.Find(ctx, fingerprint)
	switch {
	case err == nil:
		if err := s.recordConflicts(ctx, req.UserID, cached); err != nil {
			return nil, err
		}
		s.metrics.IncrementCacheHit()
		s.metrics.ObserveGenerateLatency("hit", time.Since(start))
		s.logger.InfoContext(ctx, "report served from cache",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", req.UserID.String(),
			"fingerprint", fingerprint,
		)
		return cached, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		s.logger.WarnContext(ctx, "report cache lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"fingerprint", fingerprint,
			"error", err,
		)
	}
	s.metrics.IncrementCacheMiss()

	generatedAt := requestcontext.Now(ctx).UTC()
	ch := s.flight.DoChan(fingerprint, func() (any, error) {
		return s.generate(context.WithoutCancel(ctx), req.UserID, p, generatedAt)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.metrics.IncrementShared()
		}
		rep := res.Val.(*report.UniversalReport)
		s.metrics.ObserveGenerateLatency("miss", time.Since(start))
		s.logger.InfoContext(ctx, "report generated",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", req.UserID.String(),
			"fingerprint", fingerprint,
			"shared", res.Shared,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return rep, nil
	}
}

func (s *Service) plan(ctx context.Context, req ReportRequest) (plan, error) {
	if req.UserID.IsNil() {
		return plan{}, dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	if !req.Attribution.IsValid() {
		return plan{}, dErrors.New(dErrors.CodeValidation, "unknown attribution policy: "+req.Attribution.String())
	}
	if err := calendar.ValidateRange(req.From, req.To); err != nil {
		return plan{}, err
	}
	zoneName := req.Timezone
	if zoneName == "" {
		zoneName = "UTC"
	}
	zone, err := time.LoadLocation(zoneName)
	if err != nil {
		return plan{}, dErrors.New(dErrors.CodeValidation, "unknown timezone: "+zoneName)
	}

	rs, err := s.catalog.Resolve(req.RuleSet, req.RuleSetVersion)
	if err != nil {
		return plan{}, err
	}
	rs = rs.Filter(req.Jurisdictions)

	snap, err := s.evidence.Latest(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return plan{}, dErrors.New(dErrors.CodeNotFound, "no evidence stored for user")
		}
		return plan{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load evidence")
	}
	revision, err := s.overrides.Revision(ctx, req.UserID)
	if err != nil {
		return plan{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load override revision")
	}

	// Snapshot ids are content hashes, so the user id keeps identical
	// uploads from two users apart in the cache.
	return plan{
		key: report.Key{
			SnapshotID:     id.SnapshotID(fmt.Sprintf("%s/%s/r%d/%s", req.UserID, snap.ID, revision, zone.String())),
			RuleSetVersion: ruleSetLabel(rs, req.Jurisdictions),
			Range:          report.Range{From: req.From, To: req.To},
			Attribution:    req.Attribution,
		},
		snapshot: snap,
		ruleSet:  rs,
		zone:     zone,
	}, nil
}

// ruleSetLabel names the rule set and, when filtered, the jurisdictions
// kept, so filtered and unfiltered reports never share a fingerprint.
func ruleSetLabel(rs *catalog.RuleSet, js []id.Jurisdiction) string {
	if len(js) == 0 {
		return rs.ID()
	}
	names := make([]string, len(js))
	for i, j := range js {
		names[i] = j.String()
	}
	sort.Strings(names)
	return rs.ID() + "[" + strings.Join(names, ",") + "]"
}

func (s *Service) generate(ctx context.Context, userID id.UserID, p plan, generatedAt time.Time) (*report.UniversalReport, error) {
	pins, err := s.overrides.List(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load overrides")
	}

	rep, err := s.engine.Generate(ctx, engine.Input{
		Evidence:       p.snapshot.Records,
		Rules:          p.ruleSet.Rules,
		RuleErrors:     p.ruleSet.Errors,
		Overrides:      pins,
		From:           p.key.Range.From,
		To:             p.key.Range.To,
		Attribution:    p.key.Attribution,
		DefaultZone:    p.zone,
		SnapshotID:     p.key.SnapshotID,
		RuleSetVersion: p.key.RuleSetVersion,
		AsOf:           p.snapshot.CreatedAt,
		GeneratedAt:    generatedAt,
	})
	if err != nil {
		return nil, err
	}
	s.observe(rep)

	if err := s.recordConflicts(ctx, userID, rep); err != nil {
		return nil, err
	}
	if err := s.cache.Save(ctx, rep); err != nil {
		s.logger.WarnContext(ctx, "report cache write failed",
			"fingerprint", rep.Fingerprint,
			"error", err,
		)
	}
	return rep, nil
}

// recordConflicts logs the pending conflicts a user is about to see so the
// resolve callback can find them, whether the report is fresh or cached.
func (s *Service) recordConflicts(ctx context.Context, userID id.UserID, rep *report.UniversalReport) error {
	if err := s.overrides.RecordConflicts(ctx, userID, override.RefsFrom(rep.Conflicts)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record conflicts")
	}
	return nil
}

func (s *Service) observe(rep *report.UniversalReport) {
	byResolution := make(map[models.Resolution]int)
	for _, rec := range rep.Conflicts.Records() {
		byResolution[rec.Resolution]++
	}
	for resolution, n := range byResolution {
		s.metrics.AddConflicts(string(resolution), n)
	}
	for _, ev := range rep.RuleEvaluations {
		s.metrics.IncrementRuleOutcome(string(ev.RuleType), string(ev.Outcome))
	}
	s.metrics.AddRejectedEvidence(len(rep.EvidenceErrors))
}

// =============================================================================
// Conflict resolution
// =============================================================================

// ResolveConflict pins the date of a conflict the user was shown to the
// country they chose. The pin applies under the conflict's policy and
// survives later evidence.
func (s *Service) ResolveConflict(ctx context.Context, userID id.UserID, conflictID id.ConflictID, country id.CountryCode) (conflict.Override, error) {
	var (
		ref      override.ConflictRef
		o        conflict.Override
		revision int64
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		ref, err = s.overrides.FindConflict(ctx, userID, conflictID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "conflict not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load conflict")
		}
		o = conflict.Override{
			ConflictID:  conflictID,
			Date:        ref.Date,
			Attribution: ref.Attribution,
			Country:     country,
			ResolvedAt:  requestcontext.Now(ctx).UTC(),
		}
		if err := o.Validate(); err != nil {
			return err
		}
		revision, err = s.overrides.Save(ctx, userID, o)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save override")
		}
		return nil
	})
	if err != nil {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return conflict.Override{}, err
		}
		return conflict.Override{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve conflict")
	}

	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID.String(),
		"conflict_id", conflictID.String(),
		"date", ref.Date.String(),
		"country", country.String(),
		"revision", revision,
	}
	if !containsCountry(ref.Candidates, country) {
		s.logger.WarnContext(ctx, "conflict resolved to a country no evidence asserted", attrs...)
	} else {
		s.logger.InfoContext(ctx, "conflict resolved", attrs...)
	}
	return o, nil
}

func containsCountry(cs []id.CountryCode, c id.CountryCode) bool {
	for _, x := range cs {
		if x == c {
			return true
		}
	}
	return false
}

// =============================================================================
// Catalog queries
// =============================================================================

// AvailableCountries lists the countries the newest default rule set
// covers.
func (s *Service) AvailableCountries(_ context.Context) ([]id.CountryCode, error) {
	rs, err := s.catalog.Resolve("", "")
	if err != nil {
		return nil, err
	}
	return rs.AvailableCountries(), nil
}

// CountryRules lists the rules of the newest default rule set that apply
// to code.
func (s *Service) CountryRules(_ context.Context, code id.CountryCode) ([]rules.CountryRule, error) {
	if !code.IsKnown() {
		return nil, dErrors.New(dErrors.CodeNotFound, "unknown country: "+code.String())
	}
	rs, err := s.catalog.Resolve("", "")
	if err != nil {
		return nil, err
	}
	out := rs.CountryRules(code)
	if out == nil {
		out = []rules.CountryRule{}
	}
	return out, nil
}
