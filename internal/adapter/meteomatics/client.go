// Package meteomatics fetches terrestrial weather for a launch window from the
// Meteomatics time-series API and normalizes it to launch units.
package meteomatics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/couchcryptid/launch-advisor/internal/adapter/feed"
	"github.com/couchcryptid/launch-advisor/internal/domain"
)

// DefaultBaseURL is the public Meteomatics API endpoint.
const DefaultBaseURL = "https://api.meteomatics.com"

// Unit conversions.
const (
	knotsPerMeterPerSecond = 1.94384
	feetPerMeter           = 3.28084
)

// Requested parameters, in request order.
const (
	paramWindSpeed     = "wind_speed_10m:ms"
	paramWindGust      = "wind_gusts_10m_1h:ms"
	paramPrecipitation = "precip_1h:mm"
	paramCloudBase     = "cloud_base_agl:m"
	paramTemperature   = "t_2m:C"
	paramLightning     = "prob_lightning_1h:p"
)

var parameters = []string{
	paramWindSpeed,
	paramWindGust,
	paramPrecipitation,
	paramCloudBase,
	paramTemperature,
	paramLightning,
}

// Meteomatics marks values it cannot compute with these sentinels.
var invalidValues = []float64{-999, -666}

// Client implements feed.Source[domain.WeatherObservation].
type Client struct {
	username   string
	password   string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a Meteomatics client. An empty baseURL selects the public API.
func NewClient(baseURL, username, password string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		username:   username,
		password:   password,
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

var _ feed.Source[domain.WeatherObservation] = (*Client)(nil)

// Fetch returns the forecast for the window's site and time. Parameters the
// API does not return are unavailable; an empty payload is an error.
func (c *Client) Fetch(ctx context.Context, w domain.LaunchWindow) (domain.WeatherObservation, error) {
	u := fmt.Sprintf("%s/%s/%s/%.4f,%.4f/json",
		c.baseURL,
		w.Time.UTC().Format("2006-01-02T15:04:05Z"),
		strings.Join(parameters, ","),
		w.Site.Lat, w.Site.Lon,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.WeatherObservation{}, fmt.Errorf("create request: %w", err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WeatherObservation{}, fmt.Errorf("meteomatics request: %w", err)
	}
	defer resp.Body.Close()

	if err := feed.CheckResponse(resp); err != nil {
		return domain.WeatherObservation{}, fmt.Errorf("meteomatics: %w", err)
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.WeatherObservation{}, fmt.Errorf("decode response: %w", err)
	}
	if body.Status != "" && !strings.EqualFold(body.Status, "OK") {
		return domain.WeatherObservation{}, fmt.Errorf("meteomatics status %q", body.Status)
	}
	if len(body.Data) == 0 {
		return domain.WeatherObservation{}, errors.New("meteomatics returned no parameters")
	}

	values := body.values()
	obs := domain.WeatherObservation{
		WindSpeedKn:          scaled(values, paramWindSpeed, knotsPerMeterPerSecond),
		WindGustKn:           scaled(values, paramWindGust, knotsPerMeterPerSecond),
		PrecipitationMm:      scaled(values, paramPrecipitation, 1),
		CloudCeilingFt:       scaled(values, paramCloudBase, feetPerMeter),
		TemperatureC:         scaled(values, paramTemperature, 1),
		LightningProbability: scaled(values, paramLightning, 0.01),
	}

	if missing := len(parameters) - len(values); missing > 0 {
		c.logger.Debug("meteomatics returned partial data", "site", w.Site.Code, "missing", missing)
	}
	return obs, nil
}

func scaled(values map[string]float64, param string, factor float64) domain.Value[float64] {
	v, ok := values[param]
	if !ok {
		return domain.Unavailable[float64]()
	}
	return domain.Known(v * factor)
}

// Meteomatics API response types.

type response struct {
	Status string          `json:"status"`
	Data   []parameterData `json:"data"`
}

type parameterData struct {
	Parameter   string       `json:"parameter"`
	Coordinates []coordinate `json:"coordinates"`
}

type coordinate struct {
	Lat   float64     `json:"lat"`
	Lon   float64     `json:"lon"`
	Dates []datedItem `json:"dates"`
}

type datedItem struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// values returns the first valid value per parameter.
func (r response) values() map[string]float64 {
	out := make(map[string]float64, len(r.Data))
	for _, d := range r.Data {
		if len(d.Coordinates) == 0 || len(d.Coordinates[0].Dates) == 0 {
			continue
		}
		v := d.Coordinates[0].Dates[0].Value
		if v == nil || isInvalid(*v) {
			continue
		}
		out[d.Parameter] = *v
	}
	return out
}

func isInvalid(v float64) bool {
	for _, s := range invalidValues {
		if v == s {
			return true
		}
	}
	return false
}
