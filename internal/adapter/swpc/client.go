// Package swpc reads current space weather from the public NOAA Space Weather
// Prediction Center JSON products.
package swpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/couchcryptid/launch-advisor/internal/adapter/feed"
	"github.com/couchcryptid/launch-advisor/internal/domain"
)

// DefaultBaseURL is the SWPC services host.
const DefaultBaseURL = "https://services.swpc.noaa.gov"

// Product paths, relative to the base URL.
const (
	kpIndexPath = "/json/planetary_k_index_1m.json"
	flaresPath  = "/json/goes/primary/xray-flares-latest.json"
	protonsPath = "/json/goes/primary/integral-protons-1-day.json"
)

// protonEnergy selects the integral proton channel used for S-scale storms.
const protonEnergy = ">=10 MeV"

// Client implements feed.Source[domain.SpaceWeatherObservation]. The three
// products are fetched concurrently and fail independently: a product that
// cannot be read leaves its field unavailable. Only when every product fails
// does Fetch return an error.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates an SWPC client. An empty baseURL selects the public host.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

var (
	_ feed.Source[domain.SpaceWeatherObservation] = (*Client)(nil)
	_ feed.CacheKeyer                             = (*Client)(nil)
)

// CacheKey is constant: SWPC products describe the whole planet, now.
func (c *Client) CacheKey(domain.LaunchWindow) string {
	return "swpc"
}

// Fetch returns the latest Kp index, flare class and proton flux.
func (c *Client) Fetch(ctx context.Context, w domain.LaunchWindow) (domain.SpaceWeatherObservation, error) {
	var (
		wg   sync.WaitGroup
		obs  domain.SpaceWeatherObservation
		errs [3]error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		obs.KpIndex, errs[0] = c.kpIndex(ctx)
	}()
	go func() {
		defer wg.Done()
		obs.FlareClass, errs[1] = c.flareClass(ctx)
	}()
	go func() {
		defer wg.Done()
		obs.ProtonFlux, errs[2] = c.protonFlux(ctx)
	}()
	wg.Wait()

	if errs[0] != nil && errs[1] != nil && errs[2] != nil {
		return domain.SpaceWeatherObservation{}, fmt.Errorf("all swpc products failed: %w", errors.Join(errs[:]...))
	}
	for i, product := range []string{"kp_index", "xray_flares", "integral_protons"} {
		if errs[i] != nil {
			c.logger.Warn("swpc product unavailable", "product", product, "site", w.Site.Code, "error", errs[i])
		}
	}
	return obs, nil
}

func (c *Client) kpIndex(ctx context.Context) (domain.Value[float64], error) {
	var rows []kpRow
	if err := c.get(ctx, kpIndexPath, &rows); err != nil {
		return domain.Unavailable[float64](), err
	}
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].KpIndex != nil {
			return domain.Known(*rows[i].KpIndex), nil
		}
	}
	return domain.Unavailable[float64](), nil
}

func (c *Client) flareClass(ctx context.Context) (domain.Value[string], error) {
	var rows []flareRow
	if err := c.get(ctx, flaresPath, &rows); err != nil {
		return domain.Unavailable[string](), err
	}
	for i := len(rows) - 1; i >= 0; i-- {
		if class := strings.TrimSpace(rows[i].MaxClass); class != "" {
			return domain.Known(class), nil
		}
	}
	return domain.Unavailable[string](), nil
}

func (c *Client) protonFlux(ctx context.Context) (domain.Value[float64], error) {
	var rows []protonRow
	if err := c.get(ctx, protonsPath, &rows); err != nil {
		return domain.Unavailable[float64](), err
	}
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Energy == protonEnergy && rows[i].Flux != nil {
			return domain.Known(*rows[i].Flux), nil
		}
	}
	return domain.Unavailable[float64](), nil
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("swpc request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if err := feed.CheckResponse(resp); err != nil {
		return fmt.Errorf("swpc %s: %w", path, err)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// SWPC product row types.

type kpRow struct {
	TimeTag string   `json:"time_tag"`
	KpIndex *float64 `json:"kp_index"`
}

type flareRow struct {
	TimeTag  string `json:"time_tag"`
	MaxClass string `json:"max_class"`
}

type protonRow struct {
	TimeTag string   `json:"time_tag"`
	Flux    *float64 `json:"flux"`
	Energy  string   `json:"energy"`
}
