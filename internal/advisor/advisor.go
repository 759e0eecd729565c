// Package advisor is the entry point of the launch decision core. It resolves
// the launch window, fans out to the three feeds, evaluates the rule table and
// aggregates the outcomes into one immutable DecisionResult.
package advisor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/couchcryptid/launch-advisor/internal/domain"
	"github.com/couchcryptid/launch-advisor/internal/observability"
	"github.com/couchcryptid/launch-advisor/internal/risk"
	"github.com/couchcryptid/launch-advisor/internal/rules"
)

// Fetcher fetches one normalized observation. Implementations own their
// timeout and retry policy; an error means the feed hard-failed.
type Fetcher[T any] interface {
	Fetch(ctx context.Context, w domain.LaunchWindow) (T, error)
}

// Feeds groups the three observation sources.
type Feeds struct {
	Weather      Fetcher[domain.WeatherObservation]
	SpaceWeather Fetcher[domain.SpaceWeatherObservation]
	Conjunction  Fetcher[domain.ConjunctionObservation]
}

// SiteRegistry resolves site codes.
type SiteRegistry interface {
	Lookup(code string) (domain.LaunchSite, bool)
	Codes() []string
	Len() int
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the clock used for decision timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithIDGenerator replaces the random decision id generator.
func WithIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) { o.newID = gen }
}

// Orchestrator computes launch decisions. It holds no per-request state and
// is safe for concurrent use.
type Orchestrator struct {
	registry   SiteRegistry
	feeds      Feeds
	engine     *rules.Engine
	aggregator *risk.Aggregator
	clock      clockwork.Clock
	newID      func() string
	tracer     trace.Tracer
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// New creates an Orchestrator.
func New(registry SiteRegistry, feeds Feeds, engine *rules.Engine, aggregator *risk.Aggregator, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) (*Orchestrator, error) {
	if feeds.Weather == nil || feeds.SpaceWeather == nil || feeds.Conjunction == nil {
		return nil, errors.New("advisor: all three feeds are required")
	}
	if registry == nil || engine == nil || aggregator == nil {
		return nil, errors.New("advisor: registry, engine and aggregator are required")
	}

	o := &Orchestrator{
		registry:   registry,
		feeds:      feeds,
		engine:     engine,
		aggregator: aggregator,
		clock:      clockwork.NewRealClock(),
		newID:      uuid.NewString,
		tracer:     otel.Tracer(observability.TracerName),
		logger:     logger,
		metrics:    metrics,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// CheckReadiness returns nil once a non-empty site registry and rule table
// are installed.
func (o *Orchestrator) CheckReadiness(_ context.Context) error {
	if o.registry.Len() == 0 {
		return errors.New("site registry is empty")
	}
	if t := o.engine.Table(); t == nil || t.Len() == 0 {
		return errors.New("rule table is empty")
	}
	return nil
}

// Decide computes the decision for a site code and an ISO-8601 launch time.
// Invalid input returns a *domain.ValidationError before any feed is called.
// If ctx ends while feeds are outstanding, they are canceled and ctx's error
// is returned instead of a verdict.
func (o *Orchestrator) Decide(ctx context.Context, siteCode, launchTime string) (domain.DecisionResult, error) {
	at, err := domain.ParseLaunchTime(launchTime)
	if err != nil {
		return domain.DecisionResult{}, err
	}
	site, ok := o.registry.Lookup(strings.TrimSpace(siteCode))
	if !ok {
		return domain.DecisionResult{}, domain.NewValidationError("site_code",
			"Invalid site_code. Available sites: "+strings.Join(o.registry.Codes(), ", "))
	}

	ctx, span := o.tracer.Start(ctx, "advisor.Decide",
		trace.WithAttributes(
			attribute.String("site.code", site.Code),
			attribute.String("launch.time", at.Format("2006-01-02T15:04:05Z07:00")),
		))
	defer span.End()

	start := o.clock.Now()
	window := domain.LaunchWindow{Site: site, Time: at}

	obs := o.gather(ctx, window)
	if err := ctx.Err(); err != nil {
		return domain.DecisionResult{}, err
	}

	result := o.evaluate(obs)
	result.ID = o.newID()
	result.DecidedAt = o.clock.Now().UTC()

	o.metrics.DecisionsTotal.WithLabelValues(string(result.Verdict)).Inc()
	o.metrics.DecisionDuration.Observe(o.clock.Since(start).Seconds())
	span.SetAttributes(
		attribute.String("decision.verdict", string(result.Verdict)),
		attribute.Int("decision.risk_score", result.RiskScore),
	)
	o.logger.Info("decision computed",
		"decision_id", result.ID,
		"site", site.Code,
		"launch_time", at,
		"verdict", result.Verdict,
		"risk_score", result.RiskScore,
		"citations", result.Citations,
	)
	return result, nil
}

// gather fetches the three feeds concurrently and waits for all of them.
// Results land in fixed slots, so the merged observations do not depend on
// completion order.
func (o *Orchestrator) gather(ctx context.Context, w domain.LaunchWindow) domain.Observations {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	obs := domain.Observations{Window: w}
	var (
		wg                            sync.WaitGroup
		weatherErr, spaceErr, conjErr error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		obs.Weather, weatherErr = o.feeds.Weather.Fetch(ctx, w)
	}()
	go func() {
		defer wg.Done()
		obs.SpaceWeather, spaceErr = o.feeds.SpaceWeather.Fetch(ctx, w)
	}()
	go func() {
		defer wg.Done()
		obs.Conjunction, conjErr = o.feeds.Conjunction.Fetch(ctx, w)
	}()
	wg.Wait()

	fail := func(f domain.Feed, err error) {
		if obs.Failures == nil {
			obs.Failures = make(map[domain.Feed]error, 3)
		}
		obs.Failures[f] = err
	}
	if weatherErr != nil {
		obs.Weather = domain.WeatherObservation{}
		fail(domain.FeedWeather, weatherErr)
	}
	if spaceErr != nil {
		obs.SpaceWeather = domain.SpaceWeatherObservation{}
		fail(domain.FeedSpaceWeather, spaceErr)
	}
	if conjErr != nil {
		obs.Conjunction = domain.ConjunctionObservation{}
		fail(domain.FeedConjunction, conjErr)
	}
	return obs
}

// evaluate runs the rule engine and the aggregator. Internal failures fail
// closed to an ERROR verdict and are logged for operators.
func (o *Orchestrator) evaluate(obs domain.Observations) domain.DecisionResult {
	result := domain.DecisionResult{
		SiteCode:   obs.Window.Site.Code,
		LaunchTime: obs.Window.Time,
		Data:       obs.Snapshot(),
	}

	outcomes, err := o.engine.Evaluate(obs)
	var assessment domain.Assessment
	if err == nil {
		assessment, err = o.aggregator.Aggregate(outcomes, o.engine.Table().TotalSeverity())
	}
	if err != nil {
		o.logger.Error("decision evaluation failed",
			"site", obs.Window.Site.Code,
			"launch_time", obs.Window.Time,
			"error", err,
		)
		assessment = risk.Failure()
		outcomes = []domain.RuleOutcome{}
	}

	for _, oc := range outcomes {
		o.metrics.RuleOutcomes.WithLabelValues(oc.RuleID, string(oc.Status)).Inc()
	}

	result.Verdict = assessment.Verdict
	result.RiskScore = assessment.RiskScore
	result.Why = assessment.Why
	result.Citations = assessment.Citations
	result.Outcomes = outcomes
	return result
}
