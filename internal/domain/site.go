package domain

import (
	"strings"
	"time"
)

// Limits are the pad and vehicle limits rule predicates compare against.
type Limits struct {
	MaxWindKn               float64 `yaml:"max_wind_kn" json:"max_wind_kn"`
	MaxGustKn               float64 `yaml:"max_gust_kn" json:"max_gust_kn"`
	MaxPrecipitationMm      float64 `yaml:"max_precipitation_mm" json:"max_precipitation_mm"`
	MinCloudCeilingFt       float64 `yaml:"min_cloud_ceiling_ft" json:"min_cloud_ceiling_ft"`
	MinTempC                float64 `yaml:"min_temp_c" json:"min_temp_c"`
	MaxTempC                float64 `yaml:"max_temp_c" json:"max_temp_c"`
	MaxLightningProbability float64 `yaml:"max_lightning_probability" json:"max_lightning_probability"`
}

// DefaultLimits returns the limits applied to sites that do not override them.
func DefaultLimits() Limits {
	return Limits{
		MaxWindKn:               30,
		MaxGustKn:               35,
		MaxPrecipitationMm:      0.3,
		MinCloudCeilingFt:       4500,
		MinTempC:                -10,
		MaxTempC:                40,
		MaxLightningProbability: 0.2,
	}
}

// LaunchSite is a registered launch location. Sites are loaded once at
// startup and never modified.
type LaunchSite struct {
	Code   string  `json:"code"`
	Name   string  `json:"name"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Limits Limits  `json:"-"`
}

// LaunchWindow is the site and instant a decision is requested for.
type LaunchWindow struct {
	Site LaunchSite
	Time time.Time
}

// launchTimeLayouts are tried in order. Layouts without a zone are read as UTC.
var launchTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseLaunchTime parses an ISO-8601 timestamp into a UTC instant.
func ParseLaunchTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, NewValidationError("launch_time", launchTimeDetail)
	}
	for _, layout := range launchTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, NewValidationError("launch_time", launchTimeDetail)
}

const launchTimeDetail = "Invalid launch_time format. Use ISO format: YYYY-MM-DDTHH:MM:SSZ"
