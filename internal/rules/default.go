package rules

import (
	"strings"

	"github.com/couchcryptid/launch-advisor/internal/domain"
)

// Fixed screening thresholds that do not vary by site.
const (
	// CollisionProbabilityLimit is the probability of collision at or above
	// which a collision avoidance maneuver or hold is required.
	CollisionProbabilityLimit = 1e-4
	// MissDistanceLimitKm is the screening volume radius for close approaches.
	MissDistanceLimitKm = 5.0
	// KpStormLevel is the planetary K-index of a G1 geomagnetic storm.
	KpStormLevel = 5.0
	// ProtonEventPFU is the ≥10 MeV proton flux of an S1 radiation storm.
	ProtonEventPFU = 10.0
)

// Rule ids. They double as citations shown to operators.
const (
	RulePadWind          = "SOP-PAD-WIND"
	RuleLightning        = "LLCC-LIGHTNING"
	RuleCollisionProb    = "COLA-PC"
	RulePrecipitation    = "NASA-STD-4010A-4.1.10"
	RulePadGust          = "SOP-PAD-GUST"
	RuleCloudCeiling     = "NASA-STD-4010A-4.1.8"
	RuleMissDistance     = "COLA-MISS-DISTANCE"
	RuleProtonEvent      = "SWPC-PROTON-S1"
	RuleTemperatureRange = "VEHICLE-TEMP-RANGE"
	RuleGeomagneticStorm = "SWPC-KP-STORM"
	RuleSolarFlare       = "SWPC-XRAY-FLARE"
)

var defaultTable = MustNewTable(
	domain.Rule{
		ID:          RulePadWind,
		Description: "Vehicle SOP: sustained pad wind limit",
		Severity:    1.0,
		Critical:    true,
		Feeds:       []domain.Feed{domain.FeedWeather},
		Predicate:   padWind,
	},
	domain.Rule{
		ID:          RuleLightning,
		Description: "Lightning launch commit criteria",
		Severity:    1.0,
		Critical:    true,
		Feeds:       []domain.Feed{domain.FeedWeather},
		Predicate:   lightning,
	},
	domain.Rule{
		ID:          RuleCollisionProb,
		Description: "Collision avoidance: probability of collision",
		Severity:    1.0,
		Critical:    true,
		Feeds:       []domain.Feed{domain.FeedConjunction},
		Predicate:   collisionProbability,
	},
	domain.Rule{
		ID:          RulePrecipitation,
		Description: "NASA-STD-4010A §4.1.10 precipitation",
		Severity:    0.7,
		Feeds:       []domain.Feed{domain.FeedWeather},
		Predicate:   precipitation,
	},
	domain.Rule{
		ID:          RulePadGust,
		Description: "Vehicle SOP: peak gust limit",
		Severity:    0.7,
		Feeds:       []domain.Feed{domain.FeedWeather},
		Predicate:   padGust,
	},
	domain.Rule{
		ID:          RuleCloudCeiling,
		Description: "NASA-STD-4010A §4.1.8 thick cloud layers",
		Severity:    0.6,
		Feeds:       []domain.Feed{domain.FeedWeather},
		Predicate:   cloudCeiling,
	},
	domain.Rule{
		ID:          RuleMissDistance,
		Description: "Collision avoidance: closest approach distance",
		Severity:    0.6,
		Feeds:       []domain.Feed{domain.FeedConjunction},
		Predicate:   missDistance,
	},
	domain.Rule{
		ID:          RuleProtonEvent,
		Description: "SWPC S1 solar radiation storm",
		Severity:    0.5,
		Feeds:       []domain.Feed{domain.FeedSpaceWeather},
		Predicate:   protonEvent,
	},
	domain.Rule{
		ID:          RuleTemperatureRange,
		Description: "Vehicle ambient temperature range",
		Severity:    0.5,
		Feeds:       []domain.Feed{domain.FeedWeather},
		Predicate:   temperatureRange,
	},
	domain.Rule{
		ID:          RuleGeomagneticStorm,
		Description: "SWPC Kp advisory: geomagnetic storm",
		Severity:    0.4,
		Feeds:       []domain.Feed{domain.FeedSpaceWeather},
		Predicate:   geomagneticStorm,
	},
	domain.Rule{
		ID:          RuleSolarFlare,
		Description: "SWPC X-class solar flare",
		Severity:    0.3,
		Feeds:       []domain.Feed{domain.FeedSpaceWeather},
		Predicate:   solarFlare,
	},
)

// Default returns the process-wide launch-safety table.
func Default() *Table {
	return defaultTable
}

func padWind(obs domain.Observations) domain.Finding {
	wind, ok := obs.Weather.WindSpeedKn.Get()
	if !ok {
		return domain.Missing("wind speed")
	}
	limit := obs.Window.Site.Limits.MaxWindKn
	if wind > limit {
		return domain.Fail("Wind %.1f kn exceeds the pad limit of %g kn.", wind, limit)
	}
	return domain.Pass("Wind %.1f kn is within the pad limit of %g kn.", wind, limit)
}

func padGust(obs domain.Observations) domain.Finding {
	gust, ok := obs.Weather.WindGustKn.Get()
	if !ok {
		return domain.Missing("wind gust")
	}
	limit := obs.Window.Site.Limits.MaxGustKn
	if gust > limit {
		return domain.Fail("Peak gust %.1f kn exceeds the %g kn gust limit.", gust, limit)
	}
	return domain.Pass("Peak gust %.1f kn is within the %g kn gust limit.", gust, limit)
}

func lightning(obs domain.Observations) domain.Finding {
	p, ok := obs.Weather.LightningProbability.Get()
	if !ok {
		return domain.Missing("lightning probability")
	}
	limit := obs.Window.Site.Limits.MaxLightningProbability
	if p >= limit {
		return domain.Fail("Lightning probability %.0f%% meets or exceeds the %.0f%% launch commit limit.", p*100, limit*100)
	}
	return domain.Pass("Lightning probability %.0f%% is below the %.0f%% launch commit limit.", p*100, limit*100)
}

func precipitation(obs domain.Observations) domain.Finding {
	mm, ok := obs.Weather.PrecipitationMm.Get()
	if !ok {
		return domain.Missing("precipitation")
	}
	limit := obs.Window.Site.Limits.MaxPrecipitationMm
	if mm > limit {
		return domain.Fail("Precipitation %.1f mm exceeds the %g mm limit.", mm, limit)
	}
	return domain.Pass("Precipitation %.1f mm is within the %g mm limit.", mm, limit)
}

func cloudCeiling(obs domain.Observations) domain.Finding {
	ft, ok := obs.Weather.CloudCeilingFt.Get()
	if !ok {
		return domain.Missing("cloud ceiling")
	}
	limit := obs.Window.Site.Limits.MinCloudCeilingFt
	if ft < limit {
		return domain.Fail("Cloud ceiling %.0f ft is below the %g ft thick-cloud limit.", ft, limit)
	}
	return domain.Pass("Cloud ceiling %.0f ft clears the %g ft thick-cloud limit.", ft, limit)
}

func temperatureRange(obs domain.Observations) domain.Finding {
	c, ok := obs.Weather.TemperatureC.Get()
	if !ok {
		return domain.Missing("temperature")
	}
	lim := obs.Window.Site.Limits
	if c < lim.MinTempC || c > lim.MaxTempC {
		return domain.Fail("Temperature %.1f°C is outside the %g to %g°C vehicle range.", c, lim.MinTempC, lim.MaxTempC)
	}
	return domain.Pass("Temperature %.1f°C is within the %g to %g°C vehicle range.", c, lim.MinTempC, lim.MaxTempC)
}

func geomagneticStorm(obs domain.Observations) domain.Finding {
	kp, ok := obs.SpaceWeather.KpIndex.Get()
	if !ok {
		return domain.Missing("Kp index")
	}
	if kp >= KpStormLevel {
		return domain.Fail("Kp index %.1f indicates a geomagnetic storm (Kp ≥ %g).", kp, KpStormLevel)
	}
	return domain.Pass("Kp index %.1f is below storm level.", kp)
}

func solarFlare(obs domain.Observations) domain.Finding {
	class, ok := obs.SpaceWeather.FlareClass.Get()
	if !ok {
		return domain.Missing("solar flare class")
	}
	letter, ok := flareLetter(class)
	if !ok {
		return domain.Missing("solar flare class")
	}
	if letter == 'X' {
		return domain.Fail("Latest solar flare is class %s.", class)
	}
	return domain.Pass("Latest solar flare is class %s, below X.", class)
}

func protonEvent(obs domain.Observations) domain.Finding {
	flux, ok := obs.SpaceWeather.ProtonFlux.Get()
	if !ok {
		return domain.Missing("proton flux")
	}
	if flux >= ProtonEventPFU {
		return domain.Fail("Proton flux %.1f pfu meets the S1 radiation storm level of %g pfu.", flux, ProtonEventPFU)
	}
	return domain.Pass("Proton flux %.1f pfu is below the S1 radiation storm level.", flux)
}

func collisionProbability(obs domain.Observations) domain.Finding {
	if noApproaches(obs.Conjunction) {
		return domain.Pass("No conjunctions screened within the launch window.")
	}
	pc, ok := obs.Conjunction.CollisionProbability.Get()
	if !ok {
		return domain.Missing("collision probability")
	}
	if pc >= CollisionProbabilityLimit {
		return domain.Fail("Collision probability %.1e meets or exceeds the %.0e avoidance threshold.", pc, CollisionProbabilityLimit)
	}
	return domain.Pass("Collision probability %.1e is below the %.0e avoidance threshold.", pc, CollisionProbabilityLimit)
}

func missDistance(obs domain.Observations) domain.Finding {
	if noApproaches(obs.Conjunction) {
		return domain.Pass("No conjunctions screened within the launch window.")
	}
	km, ok := obs.Conjunction.ClosestApproachKm.Get()
	if !ok {
		return domain.Missing("closest approach distance")
	}
	if km < MissDistanceLimitKm {
		return domain.Fail("Closest approach of %.2f km is inside the %g km screening volume.", km, MissDistanceLimitKm)
	}
	return domain.Pass("Closest approach of %.2f km is outside the %g km screening volume.", km, MissDistanceLimitKm)
}

func noApproaches(c domain.ConjunctionObservation) bool {
	n, ok := c.ApproachCount.Get()
	return ok && n == 0
}

// flareLetter extracts the GOES class letter from a flare class such as "M2.4".
func flareLetter(class string) (byte, bool) {
	class = strings.ToUpper(strings.TrimSpace(class))
	if class == "" {
		return 0, false
	}
	switch c := class[0]; c {
	case 'A', 'B', 'C', 'M', 'X':
		return c, true
	default:
		return 0, false
	}
}
