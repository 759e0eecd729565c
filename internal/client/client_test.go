package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/launch-advisor/internal/domain"
)

func newAPI(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", 2*time.Second)
}

func TestClient_Sites(t *testing.T) {
	c := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sites", r.URL.Path)
		_, _ = io.WriteString(w, `{"sites":[{"code":"VAFB","name":"Vandenberg Space Force Base","lat":34.742,"lon":-120.5724}]}`)
	})

	sites, err := c.Sites(context.Background())
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "VAFB", sites[0].Code)
	assert.InDelta(t, 34.742, sites[0].Lat, 1e-9)
}

func TestClient_Decide(t *testing.T) {
	c := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/decide", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, map[string]string{"site_code": "KSC_LC39A", "launch_time": "2026-03-01T14:30:00Z"}, req)

		_, _ = io.WriteString(w, `{
			"decision_id": "dec-9", "verdict": "NO-GO", "risk_score": 60,
			"why": "Verdict NO-GO with risk score 60/100.",
			"rule_citations": ["SOP-PAD-WIND"],
			"data": {"weather": {"wind_speed_kn": 41.2}, "space_weather": null, "conjunction": null}
		}`)
	})

	d, err := c.Decide(context.Background(), "KSC_LC39A", "2026-03-01T14:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, "dec-9", d.DecisionID)
	assert.Equal(t, domain.VerdictNoGo, d.Verdict)
	assert.Equal(t, []string{"SOP-PAD-WIND"}, d.RuleCitations)
	require.NotNil(t, d.Data.Weather)
	wind, ok := d.Data.Weather.WindSpeedKn.Get()
	require.True(t, ok)
	assert.InDelta(t, 41.2, wind, 1e-9)
	assert.False(t, d.Data.Weather.WindGustKn.Available())
	assert.Nil(t, d.Data.Conjunction)
}

func TestClient_Decide_ValidationDetail(t *testing.T) {
	c := newAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"detail":"Invalid site_code. Available sites: KSC_LC39A"}`)
	})

	_, err := c.Decide(context.Background(), "MARS", "2026-03-01T14:30:00Z")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Invalid site_code. Available sites: KSC_LC39A", apiErr.Detail)
	assert.Contains(t, err.Error(), "status 400")
}

func TestClient_Decision(t *testing.T) {
	c := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/decisions/dec 1", r.URL.Path)
		_, _ = io.WriteString(w, `{"id":"dec 1","site_code":"WFF","verdict":"GO","risk_score":4,"rule_citations":[]}`)
	})

	d, err := c.Decision(context.Background(), "dec 1")
	require.NoError(t, err)
	assert.Equal(t, "WFF", d.SiteCode)
	assert.Equal(t, 4, d.RiskScore)
}

func TestClient_ErrorWithoutDetail(t *testing.T) {
	c := newAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gateway exploded", http.StatusBadGateway)
	})

	_, err := c.Sites(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Empty(t, apiErr.Detail)
}
