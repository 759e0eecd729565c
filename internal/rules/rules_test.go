package rules

import (
	"errors"
	"testing"

	"github.com/couchcryptid/launch-advisor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWindow() domain.LaunchWindow {
	return domain.LaunchWindow{Site: domain.LaunchSite{
		Code:   "KSC_LC39A",
		Name:   "Kennedy Space Center (LC-39A)",
		Limits: domain.DefaultLimits(),
	}}
}

// nominal returns observations under which every default rule passes.
func nominal() domain.Observations {
	return domain.Observations{
		Window: testWindow(),
		Weather: domain.WeatherObservation{
			WindSpeedKn:          domain.Known(8.0),
			WindGustKn:           domain.Known(12.0),
			PrecipitationMm:      domain.Known(0.0),
			CloudCeilingFt:       domain.Known(9000.0),
			LightningProbability: domain.Known(0.05),
			TemperatureC:         domain.Known(24.0),
		},
		SpaceWeather: domain.SpaceWeatherObservation{
			KpIndex:    domain.Known(2.0),
			FlareClass: domain.Known("C1.2"),
			ProtonFlux: domain.Known(0.4),
		},
		Conjunction: domain.ConjunctionObservation{
			ApproachCount: domain.Known(0),
		},
	}
}

func outcomeByID(t *testing.T, outcomes []domain.RuleOutcome, id string) domain.RuleOutcome {
	t.Helper()
	for _, o := range outcomes {
		if o.RuleID == id {
			return o
		}
	}
	t.Fatalf("no outcome for rule %s", id)
	return domain.RuleOutcome{}
}

func TestDefaultTable_Shape(t *testing.T) {
	table := Default()

	assert.Equal(t, 11, table.Len())
	assert.InDelta(t, 7.3, table.TotalSeverity(), 1e-9)

	for _, id := range []string{RulePadWind, RuleLightning, RuleCollisionProb} {
		r, ok := table.Lookup(id)
		require.True(t, ok, id)
		assert.True(t, r.Critical, id)
		assert.True(t, r.AbsoluteBlocker(), id)
	}

	rules := table.Rules()
	rules[0].Severity = 0.1
	first, _ := table.Lookup(rules[0].ID)
	assert.Equal(t, 1.0, first.Severity, "Rules returns a copy")
}

func TestNewTable_Invalid(t *testing.T) {
	pass := func(domain.Observations) domain.Finding { return domain.Pass("ok") }

	_, err := NewTable()
	require.Error(t, err)

	_, err = NewTable(
		domain.Rule{ID: "A", Severity: 0.5, Feeds: []domain.Feed{domain.FeedWeather}, Predicate: pass},
		domain.Rule{ID: "A", Severity: 0.5, Feeds: []domain.Feed{domain.FeedWeather}, Predicate: pass},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate rule id")

	_, err = NewTable(domain.Rule{ID: "B", Severity: 2, Feeds: []domain.Feed{domain.FeedWeather}, Predicate: pass})
	require.Error(t, err)

	assert.Panics(t, func() { MustNewTable() })
}

func TestEngine_AllNominalPass(t *testing.T) {
	outcomes, err := NewEngine(Default()).Evaluate(nominal())
	require.NoError(t, err)

	require.Len(t, outcomes, Default().Len())
	assert.Equal(t, Default().IDs(), ids(outcomes), "outcomes follow table order")
	for _, o := range outcomes {
		assert.Equal(t, domain.StatusPass, o.Status, "%s: %s", o.RuleID, o.Rationale)
		assert.False(t, o.Blocking)
		assert.NotEmpty(t, o.Rationale)
	}
}

func TestEngine_Deterministic(t *testing.T) {
	engine := NewEngine(Default())
	obs := nominal()
	obs.Weather.WindSpeedKn = domain.Known(40.0)

	first, err := engine.Evaluate(obs)
	require.NoError(t, err)
	second, err := engine.Evaluate(obs)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEngine_PartialWeatherIsUnknown(t *testing.T) {
	obs := nominal()
	obs.Weather.WindSpeedKn = domain.Unavailable[float64]()

	outcomes, err := NewEngine(Default()).Evaluate(obs)
	require.NoError(t, err)

	wind := outcomeByID(t, outcomes, RulePadWind)
	assert.Equal(t, domain.StatusUnknown, wind.Status)
	assert.Equal(t, "wind speed", wind.Rationale)
	assert.False(t, wind.Blocking, "missing fields are not a feed failure")
	assert.Empty(t, wind.FailedFeeds)

	precip := outcomeByID(t, outcomes, RulePrecipitation)
	assert.Equal(t, domain.StatusPass, precip.Status)
}

func TestEngine_FeedFailureBlocksCriticalRules(t *testing.T) {
	obs := nominal()
	obs.Conjunction = domain.ConjunctionObservation{}
	obs.Failures = map[domain.Feed]error{domain.FeedConjunction: errors.New("timeout")}

	outcomes, err := NewEngine(Default()).Evaluate(obs)
	require.NoError(t, err)

	pc := outcomeByID(t, outcomes, RuleCollisionProb)
	assert.Equal(t, domain.StatusUnknown, pc.Status)
	assert.True(t, pc.Blocking)
	assert.Equal(t, []domain.Feed{domain.FeedConjunction}, pc.FailedFeeds)
	assert.Equal(t, "conjunction feed", pc.Rationale)

	miss := outcomeByID(t, outcomes, RuleMissDistance)
	assert.Equal(t, domain.StatusUnknown, miss.Status)
	assert.False(t, miss.Blocking, "non-critical rules degrade to UNKNOWN")

	wind := outcomeByID(t, outcomes, RulePadWind)
	assert.Equal(t, domain.StatusPass, wind.Status, "other feeds are still evaluated")
}

func TestEngine_SpaceWeatherFailureNeverBlocks(t *testing.T) {
	obs := nominal()
	obs.SpaceWeather = domain.SpaceWeatherObservation{}
	obs.Failures = map[domain.Feed]error{domain.FeedSpaceWeather: errors.New("502")}

	outcomes, err := NewEngine(Default()).Evaluate(obs)
	require.NoError(t, err)
	for _, o := range outcomes {
		assert.False(t, o.Blocking, o.RuleID)
	}
	assert.Equal(t, domain.StatusUnknown, outcomeByID(t, outcomes, RuleGeomagneticStorm).Status)
}

func TestEngine_PredicatePanicIsInternalError(t *testing.T) {
	table := MustNewTable(domain.Rule{
		ID:        "BROKEN",
		Severity:  0.5,
		Feeds:     []domain.Feed{domain.FeedWeather},
		Predicate: func(domain.Observations) domain.Finding { panic("boom") },
	})

	_, err := NewEngine(table).Evaluate(nominal())
	require.Error(t, err)

	var ierr *domain.InternalError
	require.ErrorAs(t, err, &ierr)
	assert.Contains(t, ierr.Error(), "BROKEN")
	assert.Contains(t, ierr.Error(), "boom")
}

func TestEngine_InvalidStatusIsInternalError(t *testing.T) {
	table := MustNewTable(domain.Rule{
		ID:        "ODD",
		Severity:  0.5,
		Feeds:     []domain.Feed{domain.FeedWeather},
		Predicate: func(domain.Observations) domain.Finding { return domain.Finding{Status: "MAYBE"} },
	})

	_, err := NewEngine(table).Evaluate(nominal())
	var ierr *domain.InternalError
	require.ErrorAs(t, err, &ierr)
}

func TestEngine_NilTable(t *testing.T) {
	_, err := NewEngine(nil).Evaluate(nominal())
	var ierr *domain.InternalError
	require.ErrorAs(t, err, &ierr)
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name   string
		rule   string
		mutate func(o *domain.Observations)
		want   domain.Status
	}{
		{"wind at limit passes", RulePadWind, func(o *domain.Observations) { o.Weather.WindSpeedKn = domain.Known(30.0) }, domain.StatusPass},
		{"wind over limit fails", RulePadWind, func(o *domain.Observations) { o.Weather.WindSpeedKn = domain.Known(30.1) }, domain.StatusFail},
		{"gust over limit fails", RulePadGust, func(o *domain.Observations) { o.Weather.WindGustKn = domain.Known(36.0) }, domain.StatusFail},
		{"gust missing", RulePadGust, func(o *domain.Observations) { o.Weather.WindGustKn = domain.Value[float64]{} }, domain.StatusUnknown},
		{"lightning at limit fails", RuleLightning, func(o *domain.Observations) { o.Weather.LightningProbability = domain.Known(0.2) }, domain.StatusFail},
		{"lightning missing", RuleLightning, func(o *domain.Observations) { o.Weather.LightningProbability = domain.Value[float64]{} }, domain.StatusUnknown},
		{"precip over limit fails", RulePrecipitation, func(o *domain.Observations) { o.Weather.PrecipitationMm = domain.Known(0.31) }, domain.StatusFail},
		{"measured zero precip passes", RulePrecipitation, func(o *domain.Observations) { o.Weather.PrecipitationMm = domain.Known(0.0) }, domain.StatusPass},
		{"low ceiling fails", RuleCloudCeiling, func(o *domain.Observations) { o.Weather.CloudCeilingFt = domain.Known(4499.0) }, domain.StatusFail},
		{"ceiling at limit passes", RuleCloudCeiling, func(o *domain.Observations) { o.Weather.CloudCeilingFt = domain.Known(4500.0) }, domain.StatusPass},
		{"hot fails", RuleTemperatureRange, func(o *domain.Observations) { o.Weather.TemperatureC = domain.Known(41.0) }, domain.StatusFail},
		{"cold fails", RuleTemperatureRange, func(o *domain.Observations) { o.Weather.TemperatureC = domain.Known(-11.0) }, domain.StatusFail},
		{"kp storm fails", RuleGeomagneticStorm, func(o *domain.Observations) { o.SpaceWeather.KpIndex = domain.Known(5.0) }, domain.StatusFail},
		{"kp missing", RuleGeomagneticStorm, func(o *domain.Observations) { o.SpaceWeather.KpIndex = domain.Value[float64]{} }, domain.StatusUnknown},
		{"x flare fails", RuleSolarFlare, func(o *domain.Observations) { o.SpaceWeather.FlareClass = domain.Known("X1.1") }, domain.StatusFail},
		{"lowercase x flare fails", RuleSolarFlare, func(o *domain.Observations) { o.SpaceWeather.FlareClass = domain.Known("x2") }, domain.StatusFail},
		{"m flare passes", RuleSolarFlare, func(o *domain.Observations) { o.SpaceWeather.FlareClass = domain.Known("M9.9") }, domain.StatusPass},
		{"garbled flare class", RuleSolarFlare, func(o *domain.Observations) { o.SpaceWeather.FlareClass = domain.Known("?") }, domain.StatusUnknown},
		{"proton event fails", RuleProtonEvent, func(o *domain.Observations) { o.SpaceWeather.ProtonFlux = domain.Known(10.0) }, domain.StatusFail},
		{"high pc fails", RuleCollisionProb, func(o *domain.Observations) {
			o.Conjunction = domain.ConjunctionObservation{ApproachCount: domain.Known(1), CollisionProbability: domain.Known(2e-4)}
		}, domain.StatusFail},
		{"low pc passes", RuleCollisionProb, func(o *domain.Observations) {
			o.Conjunction = domain.ConjunctionObservation{ApproachCount: domain.Known(3), CollisionProbability: domain.Known(1e-6)}
		}, domain.StatusPass},
		{"pc missing with approaches", RuleCollisionProb, func(o *domain.Observations) {
			o.Conjunction = domain.ConjunctionObservation{ApproachCount: domain.Known(2)}
		}, domain.StatusUnknown},
		{"approach count missing", RuleCollisionProb, func(o *domain.Observations) {
			o.Conjunction = domain.ConjunctionObservation{}
		}, domain.StatusUnknown},
		{"close approach fails", RuleMissDistance, func(o *domain.Observations) {
			o.Conjunction = domain.ConjunctionObservation{ApproachCount: domain.Known(1), ClosestApproachKm: domain.Known(1.2)}
		}, domain.StatusFail},
		{"distant approach passes", RuleMissDistance, func(o *domain.Observations) {
			o.Conjunction = domain.ConjunctionObservation{ApproachCount: domain.Known(1), ClosestApproachKm: domain.Known(12.0)}
		}, domain.StatusPass},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := nominal()
			tt.mutate(&obs)
			rule, ok := Default().Lookup(tt.rule)
			require.True(t, ok)

			finding := rule.Predicate(obs)
			assert.Equal(t, tt.want, finding.Status, finding.Rationale)
			assert.NotEmpty(t, finding.Rationale)
		})
	}
}

func TestPredicates_UseSiteLimits(t *testing.T) {
	obs := nominal()
	obs.Window.Site.Limits.MaxWindKn = 20
	obs.Weather.WindSpeedKn = domain.Known(25.0)

	rule, _ := Default().Lookup(RulePadWind)
	finding := rule.Predicate(obs)
	assert.Equal(t, domain.StatusFail, finding.Status)
	assert.Equal(t, "Wind 25.0 kn exceeds the pad limit of 20 kn.", finding.Rationale)
}

func ids(outcomes []domain.RuleOutcome) []string {
	out := make([]string, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.RuleID
	}
	return out
}
