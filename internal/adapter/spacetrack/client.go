// Package spacetrack screens a launch window for predicted conjunctions using
// the public conjunction data messages (cdm_public) published on Space-Track.
package spacetrack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/couchcryptid/launch-advisor/internal/adapter/feed"
	"github.com/couchcryptid/launch-advisor/internal/domain"
)

// DefaultBaseURL is the Space-Track host.
const DefaultBaseURL = "https://www.space-track.org"

// DefaultScreenWindow is how far either side of the launch time conjunctions
// are screened.
const DefaultScreenWindow = time.Hour

const (
	loginPath   = "/ajaxauth/login"
	queryLayout = "2006-01-02T15:04:05"
	maxRows     = 100
)

// ErrNoCredentials is returned when the client has no Space-Track account.
// Screening without data must not read as a clear sky.
var ErrNoCredentials = errors.New("space-track credentials are not configured")

var tcaLayouts = []string{
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	time.RFC3339Nano,
}

// Client implements feed.Source[domain.ConjunctionObservation]. It keeps one
// authenticated session and logs in again when the session expires.
type Client struct {
	username   string
	password   string
	httpClient *http.Client
	baseURL    string
	window     time.Duration
	logger     *slog.Logger

	// login admits one login round trip at a time; waiters give up when
	// their own context ends.
	login    *semaphore.Weighted
	loggedIn atomic.Bool
}

// NewClient creates a Space-Track client. An empty baseURL selects the public
// host and a non-positive window selects DefaultScreenWindow.
func NewClient(baseURL, username, password string, window time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if window <= 0 {
		window = DefaultScreenWindow
	}
	jar, _ := cookiejar.New(nil) // never fails without options
	return &Client{
		username:   username,
		password:   password,
		httpClient: &http.Client{Jar: jar},
		baseURL:    strings.TrimRight(baseURL, "/"),
		window:     window,
		logger:     logger,
		login:      semaphore.NewWeighted(1),
	}
}

var _ feed.Source[domain.ConjunctionObservation] = (*Client)(nil)

// Fetch screens ±window around the launch time. No messages in the window is
// a valid observation with ApproachCount 0.
func (c *Client) Fetch(ctx context.Context, w domain.LaunchWindow) (domain.ConjunctionObservation, error) {
	if c.username == "" || c.password == "" {
		return domain.ConjunctionObservation{}, ErrNoCredentials
	}
	if err := c.ensureLogin(ctx); err != nil {
		return domain.ConjunctionObservation{}, err
	}

	rows, err := c.query(ctx, w.Time)
	var se *feed.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized {
		c.logger.Info("space-track session expired, logging in again")
		c.resetLogin()
		if err := c.ensureLogin(ctx); err != nil {
			return domain.ConjunctionObservation{}, err
		}
		rows, err = c.query(ctx, w.Time)
	}
	if err != nil {
		return domain.ConjunctionObservation{}, err
	}
	return summarize(rows, w.Time), nil
}

func (c *Client) ensureLogin(ctx context.Context) error {
	if c.loggedIn.Load() {
		return nil
	}
	if err := c.login.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for space-track login: %w", err)
	}
	defer c.login.Release(1)
	if c.loggedIn.Load() {
		return nil
	}

	form := url.Values{"identity": {c.username}, "password": {c.password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("space-track login: %w", err)
	}
	defer resp.Body.Close()

	if err := feed.CheckResponse(resp); err != nil {
		return fmt.Errorf("space-track login: %w", err)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("read login response: %w", err)
	}
	// Failed logins still answer 200 with {"Login":"Failed"}.
	if bytes.Contains(body, []byte(`"Failed"`)) {
		return errors.New("space-track login rejected")
	}

	c.loggedIn.Store(true)
	return nil
}

func (c *Client) resetLogin() {
	c.loggedIn.Store(false)
}

func (c *Client) query(ctx context.Context, at time.Time) ([]cdmRow, error) {
	from := at.Add(-c.window).UTC().Format(queryLayout)
	to := at.Add(c.window).UTC().Format(queryLayout)
	u := fmt.Sprintf("%s/basicspacedata/query/class/cdm_public/TCA/%s--%s/orderby/MIN_RNG%%20asc/limit/%d/format/json",
		c.baseURL, from, to, maxRows)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("space-track query: %w", err)
	}
	defer resp.Body.Close()

	if err := feed.CheckResponse(resp); err != nil {
		return nil, fmt.Errorf("space-track query: %w", err)
	}

	var rows []cdmRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return rows, nil
}

// summarize folds conjunction messages into one observation: the closest
// approach, its time relative to launch and the highest collision probability.
func summarize(rows []cdmRow, launch time.Time) domain.ConjunctionObservation {
	obs := domain.ConjunctionObservation{ApproachCount: domain.Known(len(rows))}
	if len(rows) == 0 {
		return obs
	}

	closest := -1
	for i, r := range rows {
		if !r.MinRange.ok {
			continue
		}
		if closest < 0 || r.MinRange.v < rows[closest].MinRange.v {
			closest = i
		}
	}
	if closest >= 0 {
		r := rows[closest]
		obs.ClosestApproachKm = domain.Known(r.MinRange.v / 1000)
		if tca, ok := parseTCA(r.TCA); ok {
			obs.TimeToClosestApproach = domain.Known(tca.Sub(launch).Seconds())
		}
	}

	maxPc, havePc := 0.0, false
	for _, r := range rows {
		if r.Pc.ok && (!havePc || r.Pc.v > maxPc) {
			maxPc, havePc = r.Pc.v, true
		}
	}
	if havePc {
		obs.CollisionProbability = domain.Known(maxPc)
	}
	return obs
}

func parseTCA(s string) (time.Time, bool) {
	for _, layout := range tcaLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Space-Track response types. Numeric columns arrive as strings.

type cdmRow struct {
	CDMID    string `json:"CDM_ID"`
	TCA      string `json:"TCA"`
	MinRange number `json:"MIN_RNG"` // meters
	Pc       number `json:"PC"`
	Sat1Name string `json:"SAT_1_NAME"`
	Sat2Name string `json:"SAT_2_NAME"`
}

// number decodes a JSON number or numeric string; null and "" are absent.
type number struct {
	v  float64
	ok bool
}

func (n *number) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*n = number{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	*n = number{v: v, ok: err == nil}
	return nil
}
