package advisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/launch-advisor/internal/domain"
	"github.com/couchcryptid/launch-advisor/internal/observability"
	"github.com/couchcryptid/launch-advisor/internal/risk"
	"github.com/couchcryptid/launch-advisor/internal/rules"
	"github.com/couchcryptid/launch-advisor/internal/sites"
)

const (
	testSite = "KSC_LC39A"
	testTime = "2026-03-01T14:30:00Z"
)

type stub[T any] struct {
	value T
	err   error
	calls atomic.Int32
	// wait, when set, runs before the stub answers.
	wait func(ctx context.Context) error
}

func (s *stub[T]) Fetch(ctx context.Context, _ domain.LaunchWindow) (T, error) {
	s.calls.Add(1)
	if s.wait != nil {
		if err := s.wait(ctx); err != nil {
			var zero T
			return zero, err
		}
	}
	return s.value, s.err
}

type fixture struct {
	weather *stub[domain.WeatherObservation]
	space   *stub[domain.SpaceWeatherObservation]
	conj    *stub[domain.ConjunctionObservation]
	clock   *clockwork.FakeClock
	metrics *observability.Metrics
	ids     atomic.Int32
}

func newFixture() *fixture {
	return &fixture{
		weather: &stub[domain.WeatherObservation]{value: domain.WeatherObservation{
			WindSpeedKn:          domain.Known(8.0),
			WindGustKn:           domain.Known(12.0),
			PrecipitationMm:      domain.Known(0.0),
			CloudCeilingFt:       domain.Known(9000.0),
			LightningProbability: domain.Known(0.05),
			TemperatureC:         domain.Known(24.0),
		}},
		space: &stub[domain.SpaceWeatherObservation]{value: domain.SpaceWeatherObservation{
			KpIndex:    domain.Known(2.0),
			FlareClass: domain.Known("C1.0"),
			ProtonFlux: domain.Known(0.3),
		}},
		conj: &stub[domain.ConjunctionObservation]{value: domain.ConjunctionObservation{
			ApproachCount: domain.Known(0),
		}},
		clock:   clockwork.NewFakeClockAt(time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC)),
		metrics: observability.NewMetricsForTesting(),
	}
}

func (f *fixture) orchestrator(t *testing.T, table *rules.Table) *Orchestrator {
	t.Helper()
	registry, err := sites.Load("")
	require.NoError(t, err)
	agg, err := risk.NewAggregator(risk.DefaultThresholds())
	require.NoError(t, err)

	o, err := New(registry,
		Feeds{Weather: f.weather, SpaceWeather: f.space, Conjunction: f.conj},
		rules.NewEngine(table), agg,
		slog.New(slog.NewTextHandler(io.Discard, nil)), f.metrics,
		WithClock(f.clock),
		WithIDGenerator(func() string { return "decision-" + string(rune('a'+f.ids.Add(1)-1)) }),
	)
	require.NoError(t, err)
	return o
}

func (f *fixture) feedCalls() int32 {
	return f.weather.calls.Load() + f.space.calls.Load() + f.conj.calls.Load()
}

func TestDecide_AllNominalIsGo(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(t, rules.Default())

	got, err := o.Decide(context.Background(), testSite, testTime)
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictGo, got.Verdict)
	assert.Equal(t, 0, got.RiskScore)
	assert.NotNil(t, got.Citations)
	assert.Empty(t, got.Citations)
	assert.Equal(t, "decision-a", got.ID)
	assert.Equal(t, testSite, got.SiteCode)
	assert.Equal(t, time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC), got.LaunchTime)
	assert.Equal(t, f.clock.Now().UTC(), got.DecidedAt)
	assert.Len(t, got.Outcomes, rules.Default().Len())
	require.NotNil(t, got.Data.Weather)
	require.NotNil(t, got.Data.SpaceWeather)
	require.NotNil(t, got.Data.Conjunction)
	assert.Equal(t, int32(3), f.feedCalls())
}

func TestDecide_InvalidLaunchTime(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(t, rules.Default())

	_, err := o.Decide(context.Background(), "NOPE", "next tuesday")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "launch_time", verr.Field, "time is validated before the site")
	assert.Equal(t, "Invalid launch_time format. Use ISO format: YYYY-MM-DDTHH:MM:SSZ", verr.Detail)
	assert.Zero(t, f.feedCalls(), "no feed is called for invalid input")
}

func TestDecide_UnknownSite(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(t, rules.Default())

	_, err := o.Decide(context.Background(), "MARS_BASE", testTime)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "site_code", verr.Field)
	assert.True(t, strings.HasPrefix(verr.Detail, "Invalid site_code. Available sites: KSC_LC39A, CCSFS_SLC40, VAFB"))
	assert.Zero(t, f.feedCalls())
}

func TestDecide_ConjunctionHardFailureIsError(t *testing.T) {
	f := newFixture()
	f.conj.err = &domain.UpstreamError{Feed: domain.FeedConjunction, Err: errors.New("timeout")}
	o := f.orchestrator(t, rules.Default())

	got, err := o.Decide(context.Background(), testSite, testTime)
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictError, got.Verdict)
	assert.Equal(t, 100, got.RiskScore)
	assert.Equal(t, []string{rules.RuleCollisionProb}, got.Citations)
	assert.Contains(t, got.Why, "conjunction")
	assert.Nil(t, got.Data.Conjunction)
	assert.NotNil(t, got.Data.Weather, "other feeds are still reported")
}

func TestDecide_SpaceWeatherFailureDegrades(t *testing.T) {
	f := newFixture()
	f.space.err = errors.New("swpc down")
	o := f.orchestrator(t, rules.Default())

	got, err := o.Decide(context.Background(), testSite, testTime)
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictGo, got.Verdict, "no critical rule depends on space weather")
	assert.Empty(t, got.Citations)
	assert.Contains(t, got.Why, "SWPC-KP-STORM: data unavailable for space weather feed; rule not conclusively evaluated.")
	assert.Nil(t, got.Data.SpaceWeather)
}

func TestDecide_PartialWeather(t *testing.T) {
	f := newFixture()
	f.weather.value.WindSpeedKn = domain.Unavailable[float64]()
	f.weather.value.PrecipitationMm = domain.Known(2.0)
	o := f.orchestrator(t, rules.Default())

	got, err := o.Decide(context.Background(), testSite, testTime)
	require.NoError(t, err)

	// 0.7 / 7.3 severity fails.
	assert.Equal(t, 10, got.RiskScore)
	assert.Equal(t, domain.VerdictGo, got.Verdict)
	assert.Equal(t, []string{rules.RulePrecipitation}, got.Citations)
	assert.Contains(t, got.Why, "SOP-PAD-WIND: data unavailable for wind speed; rule not conclusively evaluated.")
	assert.NotContains(t, got.Citations, rules.RulePadWind)
}

func TestDecide_AbsoluteBlocker(t *testing.T) {
	f := newFixture()
	f.weather.value.WindSpeedKn = domain.Known(45.0)
	o := f.orchestrator(t, rules.Default())

	got, err := o.Decide(context.Background(), testSite, testTime)
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictNoGo, got.Verdict)
	assert.Equal(t, 60, got.RiskScore)
	assert.Equal(t, []string{rules.RulePadWind}, got.Citations)
}

func TestDecide_Idempotent(t *testing.T) {
	f := newFixture()
	f.weather.value.CloudCeilingFt = domain.Known(2000.0)
	f.conj.value = domain.ConjunctionObservation{
		ApproachCount:        domain.Known(2),
		ClosestApproachKm:    domain.Known(3.5),
		CollisionProbability: domain.Known(2e-5),
	}
	o := f.orchestrator(t, rules.Default())

	first, err := o.Decide(context.Background(), testSite, testTime)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	second, err := o.Decide(context.Background(), testSite, testTime)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.DecidedAt, second.DecidedAt)

	diff := cmp.Diff(first, second,
		cmpopts.IgnoreFields(domain.DecisionResult{}, "ID", "DecidedAt"),
		cmp.AllowUnexported(domain.Value[float64]{}, domain.Value[string]{}, domain.Value[int]{}),
	)
	assert.Empty(t, diff)
}

func TestDecide_FetchesConcurrently(t *testing.T) {
	f := newFixture()
	var started sync.WaitGroup
	started.Add(3)
	allStarted := make(chan struct{})
	go func() {
		started.Wait()
		close(allStarted)
	}()
	barrier := func(ctx context.Context) error {
		started.Done()
		select {
		case <-allStarted:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("feeds were not fetched concurrently")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.weather.wait = barrier
	f.space.wait = barrier
	f.conj.wait = barrier
	o := f.orchestrator(t, rules.Default())

	got, err := o.Decide(context.Background(), testSite, testTime)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictGo, got.Verdict)
}

func TestDecide_CallerCancellation(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())

	var canceled atomic.Int32
	block := func(ctx context.Context) error {
		<-ctx.Done()
		canceled.Add(1)
		return ctx.Err()
	}
	f.space.wait = block
	f.conj.wait = block
	f.weather.wait = func(context.Context) error {
		cancel()
		return nil
	}
	o := f.orchestrator(t, rules.Default())

	_, err := o.Decide(ctx, testSite, testTime)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(2), canceled.Load(), "outstanding fetches observe cancellation")
}

func TestDecide_InternalErrorFailsClosed(t *testing.T) {
	f := newFixture()
	broken := rules.MustNewTable(domain.Rule{
		ID:        "BROKEN",
		Severity:  0.5,
		Feeds:     []domain.Feed{domain.FeedWeather},
		Predicate: func(domain.Observations) domain.Finding { panic("corrupt table") },
	})
	o := f.orchestrator(t, broken)

	got, err := o.Decide(context.Background(), testSite, testTime)
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictError, got.Verdict)
	assert.Equal(t, 100, got.RiskScore)
	assert.Empty(t, got.Outcomes)
	assert.NotContains(t, got.Why, "corrupt table", "internal details stay in the log")
}

func TestCheckReadiness(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(t, rules.Default())
	require.NoError(t, o.CheckReadiness(context.Background()))

	empty := f.orchestrator(t, nil)
	require.Error(t, empty.CheckReadiness(context.Background()))
}

func TestNew_RequiresFeeds(t *testing.T) {
	registry, err := sites.Load("")
	require.NoError(t, err)
	agg, err := risk.NewAggregator(risk.DefaultThresholds())
	require.NoError(t, err)

	_, err = New(registry, Feeds{}, rules.NewEngine(rules.Default()), agg, slog.Default(), observability.NewMetricsForTesting())
	require.Error(t, err)
}
