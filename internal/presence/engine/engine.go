// Package engine composes the presence stages into one pure function from
// evidence, rules, range and policy to a UniversalReport.
package engine

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"residency/internal/presence/calendar"
	"residency/internal/presence/conflict"
	"residency/internal/presence/evidence"
	"residency/internal/presence/models"
	"residency/internal/presence/normalize"
	"residency/internal/presence/report"
	"residency/internal/presence/rules"
	id "residency/pkg/domain"
	dErrors "residency/pkg/domain-errors"
)

var tracer = otel.Tracer("residency.presence.engine")

// Input is one report request. The report is a deterministic function of
// Input except for GeneratedAt, which is copied to the report verbatim.
type Input struct {
	Evidence    []evidence.Record
	Rules       []rules.CountryRule
	RuleErrors  []*rules.RuleDefinitionError
	Overrides   []conflict.Override
	From, To    civil.Date
	Attribution models.Attribution
	// DefaultZone applies to evidence moments without a zone. Nil means
	// the engine default.
	DefaultZone *time.Location

	SnapshotID     id.SnapshotID
	RuleSetVersion string
	// AsOf stamps automatic and pending conflict records.
	AsOf        time.Time
	GeneratedAt time.Time
}

// Engine is safe for concurrent use.
type Engine struct {
	tolerance   time.Duration
	ranking     evidence.Ranking
	floor       float64
	defaultZone *time.Location
}

// Option configures an Engine.
type Option func(*Engine)

// WithTolerance sets the near-duplicate tolerance.
func WithTolerance(d time.Duration) Option {
	return func(e *Engine) { e.tolerance = d }
}

// WithRanking sets the source reliability ranking.
func WithRanking(r evidence.Ranking) Option {
	return func(e *Engine) { e.ranking = r }
}

// WithConfidenceFloor sets the conflict resolver's confidence floor.
func WithConfidenceFloor(f float64) Option {
	return func(e *Engine) { e.floor = f }
}

// WithDefaultZone sets the zone for moments without one when the input
// does not name one.
func WithDefaultZone(loc *time.Location) Option {
	return func(e *Engine) { e.defaultZone = loc }
}

// New constructs an Engine and validates its configuration.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		tolerance:   normalize.DefaultTolerance,
		ranking:     evidence.DefaultRanking(),
		floor:       conflict.DefaultFloor,
		defaultZone: time.UTC,
	}
	for _, opt := range opts {
		opt(e)
	}
	if _, err := e.normalizer(e.defaultZone); err != nil {
		return nil, err
	}
	if _, err := e.resolver(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) normalizer(zone *time.Location) (*normalize.Normalizer, error) {
	return normalize.New(
		normalize.WithTolerance(e.tolerance),
		normalize.WithRanking(e.ranking),
		normalize.WithDefaultZone(zone),
	)
}

func (e *Engine) resolver() (*conflict.Resolver, error) {
	return conflict.New(conflict.WithFloor(e.floor), conflict.WithRanking(e.ranking))
}

// Generate runs all stages. Evidence and rule-definition problems are
// reported inside the report; only invalid requests, cancellation and
// internal faults return an error.
func (e *Engine) Generate(ctx context.Context, in Input) (*report.UniversalReport, error) {
	ctx, span := tracer.Start(ctx, "presence.Generate",
		trace.WithAttributes(
			attribute.String("presence.attribution", in.Attribution.String()),
			attribute.String("presence.from", in.From.String()),
			attribute.String("presence.to", in.To.String()),
			attribute.Int("presence.evidence_count", len(in.Evidence)),
			attribute.Int("presence.rule_count", len(in.Rules)),
		),
	)
	defer span.End()

	rep, err := e.generate(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return rep, nil
}

func (e *Engine) generate(ctx context.Context, in Input) (*report.UniversalReport, error) {
	if !in.Attribution.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown attribution policy: "+in.Attribution.String())
	}
	if err := calendar.ValidateRange(in.From, in.To); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	zone := in.DefaultZone
	if zone == nil {
		zone = e.defaultZone
	}
	norm, err := e.normalizer(zone)
	if err != nil {
		return nil, err
	}
	resolver, err := e.resolver()
	if err != nil {
		return nil, err
	}

	_, nspan := tracer.Start(ctx, "presence.normalize")
	normalized := norm.Normalize(in.Evidence)
	nspan.SetAttributes(
		attribute.Int("presence.kept", len(normalized.Records)),
		attribute.Int("presence.rejected", len(normalized.Errors)),
		attribute.Int("presence.merged", len(normalized.Merges)),
	)
	nspan.End()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	arena := evidence.NewArena(normalized.Records)

	policies := policiesFor(in.Attribution, in.Rules)
	sections, err := e.resolveCalendars(ctx, resolver, arena, zone, policies, in)
	if err != nil {
		return nil, err
	}

	evaluations, err := evaluateRules(ctx, in.Rules, policies, sections)
	if err != nil {
		return nil, err
	}

	return report.Assemble(report.Parts{
		Key: report.Key{
			SnapshotID:     in.SnapshotID,
			RuleSetVersion: in.RuleSetVersion,
			Range:          report.Range{From: in.From, To: in.To},
			Attribution:    in.Attribution,
		},
		GeneratedAt:    in.GeneratedAt,
		Sections:       sections,
		Evaluations:    evaluations,
		Evidence:       arena,
		EvidenceErrors: normalized.Errors,
		RuleErrors:     in.RuleErrors,
		Merges:         normalized.Merges,
	})
}

// policiesFor lists the report policy first, then every other policy a
// rule needs, in canonical order.
func policiesFor(primary models.Attribution, rs []rules.CountryRule) []models.Attribution {
	needed := map[models.Attribution]bool{primary: true}
	for _, r := range rs {
		needed[r.Attribution] = true
	}
	out := []models.Attribution{primary}
	for _, p := range models.Attributions {
		if p != primary && needed[p] {
			out = append(out, p)
		}
	}
	return out
}

// resolveCalendars builds and resolves one calendar per policy in parallel.
// Results land at the policy's index so output order never depends on
// scheduling.
func (e *Engine) resolveCalendars(ctx context.Context, resolver *conflict.Resolver, arena *evidence.Arena, zone *time.Location, policies []models.Attribution, in Input) ([]report.Section, error) {
	builder := calendar.NewBuilder(calendar.WithRanking(e.ranking), calendar.WithDefaultZone(zone))
	sections := make([]report.Section, len(policies))

	g, gctx := errgroup.WithContext(ctx)
	for i, policy := range policies {
		g.Go(func() error {
			_, span := tracer.Start(gctx, "presence.calendar",
				trace.WithAttributes(attribute.String("presence.attribution", policy.String())))
			defer span.End()

			if err := gctx.Err(); err != nil {
				return err
			}
			draft, err := builder.Build(arena, in.From, in.To, policy)
			if err != nil {
				return err
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			cal, conflicts := resolver.Resolve(conflict.Input{
				Draft:     draft,
				Evidence:  arena,
				Overrides: in.Overrides,
				AsOf:      in.AsOf,
			})
			span.SetAttributes(attribute.Int("presence.conflicts", conflicts.Len()))
			sections[i] = report.Section{Calendar: cal, Conflicts: conflicts}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sections, ctx.Err()
}

func evaluateRules(ctx context.Context, rs []rules.CountryRule, policies []models.Attribution, sections []report.Section) ([]rules.RuleEvaluation, error) {
	ctx, span := tracer.Start(ctx, "presence.evaluate",
		trace.WithAttributes(attribute.Int("presence.rule_count", len(rs))))
	defer span.End()

	byPolicy := make(map[models.Attribution]report.Section, len(policies))
	for i, p := range policies {
		byPolicy[p] = sections[i]
	}

	out := make([]rules.RuleEvaluation, len(rs))
	g, gctx := errgroup.WithContext(ctx)
	for i, rule := range rs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s := byPolicy[rule.Attribution]
			ev, err := rules.Evaluate(rule, s.Calendar, s.Conflicts)
			if err != nil {
				return err
			}
			out[i] = ev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, ctx.Err()
}
