package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/launch-advisor/internal/domain"
	"github.com/couchcryptid/launch-advisor/internal/observability"
)

const (
	serviceName = "Launch Go/No-Go Advisor"
	maxBodySize = 1 << 16
	// auditTimeout bounds each sink write. Sinks run after the response is
	// computed, detached from the caller's cancellation.
	auditTimeout = 5 * time.Second
)

// Decider computes launch decisions.
type Decider interface {
	Decide(ctx context.Context, siteCode, launchTime string) (domain.DecisionResult, error)
}

// SiteLister lists registered sites in registry order.
type SiteLister interface {
	List() []domain.LaunchSite
}

// AuditRecorder receives every computed decision.
type AuditRecorder interface {
	Name() string
	Record(ctx context.Context, d domain.DecisionResult) error
}

// DecisionStore looks up recorded decisions.
type DecisionStore interface {
	Get(ctx context.Context, id string) (domain.DecisionResult, error)
}

// Option customizes a Server.
type Option func(*Server)

// WithAuditRecorders adds sinks that receive every decision.
func WithAuditRecorders(recorders ...AuditRecorder) Option {
	return func(s *Server) { s.recorders = append(s.recorders, recorders...) }
}

// WithDecisionStore enables GET /api/decisions/{id}.
func WithDecisionStore(store DecisionStore) Option {
	return func(s *Server) { s.store = store }
}

// WithCORSOrigins allows browser requests from the given origins.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) {
		for _, o := range origins {
			s.origins[o] = struct{}{}
		}
	}
}

// WithVersion sets the version reported by GET /.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// Server exposes the decision API along with health, readiness, and metrics
// endpoints.
type Server struct {
	httpServer *http.Server
	decider    Decider
	sites      SiteLister
	recorders  []AuditRecorder
	store      DecisionStore
	origins    map[string]struct{}
	version    string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewServer creates the HTTP server and registers its routes.
func NewServer(addr string, decider Decider, sites SiteLister, ready sharedobs.ReadinessChecker, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Server {
	mux := http.NewServeMux()

	s := &Server{
		decider: decider,
		sites:   sites,
		origins: make(map[string]struct{}),
		version: "dev",
		logger:  logger,
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.cors(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /sites", s.handleSites)
	mux.HandleFunc("POST /api/decide", s.handleDecide)
	mux.HandleFunc("GET /api/decisions/{id}", s.handleGetDecision)
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "operational",
		"service": serviceName,
		"version": s.version,
	})
}

func (s *Server) handleSites(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, map[string][]domain.LaunchSite{"sites": s.sites.List()})
}

type decideRequest struct {
	SiteCode   string `json:"site_code"`
	LaunchTime string `json:"launch_time"`
}

// DecideResponse is the body of a successful POST /api/decide.
type DecideResponse struct {
	DecisionID    string                 `json:"decision_id"`
	Verdict       domain.Verdict         `json:"verdict"`
	RiskScore     int                    `json:"risk_score"`
	Why           string                 `json:"why"`
	RuleCitations []string               `json:"rule_citations"`
	Data          domain.ObservationData `json:"data"`
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body: expected JSON with site_code and launch_time")
		return
	}

	result, err := s.decider.Decide(r.Context(), req.SiteCode, req.LaunchTime)
	var verr *domain.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &verr):
		writeDetail(w, http.StatusBadRequest, verr.Detail)
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("decision abandoned", "site", req.SiteCode, "error", err)
		writeDetail(w, http.StatusServiceUnavailable, "Request canceled before a decision was reached")
		return
	default:
		s.logger.Error("decide failed", "site", req.SiteCode, "error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal error")
		return
	}

	s.record(r.Context(), result)

	sharedobs.WriteJSON(w, http.StatusOK, DecideResponse{
		DecisionID:    result.ID,
		Verdict:       result.Verdict,
		RiskScore:     result.RiskScore,
		Why:           result.Why,
		RuleCitations: result.Citations,
		Data:          result.Data,
	})
}

// record hands the decision to every audit sink. Sink failures are logged and
// counted; they never change the response.
func (s *Server) record(ctx context.Context, d domain.DecisionResult) {
	if len(s.recorders) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()

	for _, rec := range s.recorders {
		outcome := "success"
		if err := rec.Record(ctx, d); err != nil {
			outcome = "error"
			s.logger.Warn("audit record failed", "sink", rec.Name(), "decision_id", d.ID, "error", err)
		}
		s.metrics.AuditRecords.WithLabelValues(rec.Name(), outcome).Inc()
	}
}

func (s *Server) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeDetail(w, http.StatusNotFound, "Decision history is not enabled")
		return
	}
	id := r.PathValue("id")
	d, err := s.store.Get(r.Context(), id)
	if errors.Is(err, domain.ErrDecisionNotFound) {
		writeDetail(w, http.StatusNotFound, "Decision not found")
		return
	}
	if err != nil {
		s.logger.Error("decision lookup failed", "decision_id", id, "error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal error")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, d)
}

// cors answers preflight requests and tags responses for allowed origins.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if _, ok := s.origins[origin]; !ok || origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", strings.TrimSpace(reqHeaders))
			}
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	sharedobs.WriteJSON(w, status, map[string]string{"detail": detail})
}
