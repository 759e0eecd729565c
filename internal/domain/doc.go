// Package domain models launch-window readiness data and the decision
// artifacts produced from it.
//
// # Data Sources
//
// Three independent feeds are normalized into observations before any rule
// sees them:
//
//	weather        Meteomatics point forecast for the site and launch time
//	space_weather  NOAA SWPC planetary K-index, GOES X-ray flares, GOES protons
//	conjunction    Space-Track public conjunction data messages (CDMs)
//
// A feed either answers (possibly with some fields missing) or fails hard.
// A hard failure is recorded per feed in [Observations.Failures]; every field
// of that feed's observation is then unavailable.
//
// # Present vs. unavailable
//
// Every observed quantity is a [Value]. The zero Value is "unavailable", so a
// field the provider omitted can never masquerade as a measured zero. Rule
// predicates read fields through [Value.Get] and must report UNKNOWN when a
// required field is missing. JSON encodes unavailable fields as null.
//
// # Units
//
//	wind speed, gust        knots
//	precipitation           millimetres over the preceding hour
//	cloud ceiling           feet above ground level
//	lightning probability   fraction 0–1
//	temperature             degrees Celsius
//	proton flux             pfu (particles cm⁻² s⁻¹ sr⁻¹), ≥10 MeV channel
//	closest approach        kilometres
//	time to closest approach seconds relative to the launch time (negative = before)
//
// # Verdicts
//
// A [DecisionResult] carries one of four verdicts. ERROR is reserved for
// results where a critical rule could not be assessed because its feed was
// unreachable, or where evaluation itself failed. The risk score is always in
// [0, 100].
package domain
