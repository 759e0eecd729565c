package domain

// Feed identifies one of the external data domains.
type Feed string

const (
	FeedWeather      Feed = "weather"
	FeedSpaceWeather Feed = "space_weather"
	FeedConjunction  Feed = "conjunction"
)

// Feeds lists every feed in a fixed order.
var Feeds = []Feed{FeedWeather, FeedSpaceWeather, FeedConjunction}

// Label is the human-readable feed name used in rationale text.
func (f Feed) Label() string {
	switch f {
	case FeedWeather:
		return "weather"
	case FeedSpaceWeather:
		return "space weather"
	case FeedConjunction:
		return "conjunction"
	default:
		return string(f)
	}
}

// WeatherObservation holds the terrestrial weather fields rules read.
type WeatherObservation struct {
	WindSpeedKn          Value[float64] `json:"wind_speed_kn"`
	WindGustKn           Value[float64] `json:"wind_gust_kn"`
	PrecipitationMm      Value[float64] `json:"precipitation_mm"`
	CloudCeilingFt       Value[float64] `json:"cloud_ceiling_ft"`
	LightningProbability Value[float64] `json:"lightning_probability"`
	TemperatureC         Value[float64] `json:"temperature_c"`
}

// SpaceWeatherObservation holds geomagnetic and solar activity fields.
type SpaceWeatherObservation struct {
	KpIndex    Value[float64] `json:"kp_index"`
	FlareClass Value[string]  `json:"flare_class"`
	ProtonFlux Value[float64] `json:"proton_flux_pfu"`
}

// ConjunctionObservation summarizes screened close approaches around the
// launch time. ApproachCount present and zero means nothing was screened in
// the window; the remaining fields are then unavailable.
type ConjunctionObservation struct {
	ApproachCount         Value[int]     `json:"approach_count"`
	ClosestApproachKm     Value[float64] `json:"closest_approach_km"`
	CollisionProbability  Value[float64] `json:"collision_probability"`
	TimeToClosestApproach Value[float64] `json:"time_to_closest_approach_s"`
}

// Observations is the normalized input to rule evaluation. Feeds are merged
// by key, so the content does not depend on which feed answered first.
type Observations struct {
	Window       LaunchWindow
	Weather      WeatherObservation
	SpaceWeather SpaceWeatherObservation
	Conjunction  ConjunctionObservation

	// Failures holds the hard failure for each feed that could not be
	// retrieved at all. Partial data is not a failure.
	Failures map[Feed]error
}

// Failed reports whether the feed suffered a hard failure.
func (o Observations) Failed(f Feed) bool {
	_, ok := o.Failures[f]
	return ok
}

// Snapshot returns the audit view of the observations: nil for failed feeds.
func (o Observations) Snapshot() ObservationData {
	var data ObservationData
	if !o.Failed(FeedWeather) {
		w := o.Weather
		data.Weather = &w
	}
	if !o.Failed(FeedSpaceWeather) {
		sw := o.SpaceWeather
		data.SpaceWeather = &sw
	}
	if !o.Failed(FeedConjunction) {
		c := o.Conjunction
		data.Conjunction = &c
	}
	return data
}

// ObservationData is the per-feed snapshot carried on a decision for audit.
// A nil entry means the feed could not be retrieved.
type ObservationData struct {
	Weather      *WeatherObservation      `json:"weather"`
	SpaceWeather *SpaceWeatherObservation `json:"space_weather"`
	Conjunction  *ConjunctionObservation  `json:"conjunction"`
}
