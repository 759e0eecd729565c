package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/launch-advisor/internal/adapter/feed"
	httpadapter "github.com/couchcryptid/launch-advisor/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/launch-advisor/internal/adapter/kafka"
	"github.com/couchcryptid/launch-advisor/internal/adapter/meteomatics"
	"github.com/couchcryptid/launch-advisor/internal/adapter/spacetrack"
	"github.com/couchcryptid/launch-advisor/internal/adapter/sqlstore"
	"github.com/couchcryptid/launch-advisor/internal/adapter/swpc"
	"github.com/couchcryptid/launch-advisor/internal/advisor"
	"github.com/couchcryptid/launch-advisor/internal/config"
	"github.com/couchcryptid/launch-advisor/internal/domain"
	"github.com/couchcryptid/launch-advisor/internal/observability"
	"github.com/couchcryptid/launch-advisor/internal/risk"
	"github.com/couchcryptid/launch-advisor/internal/rules"
	"github.com/couchcryptid/launch-advisor/internal/sites"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTELEndpoint, "launch-advisor", version)
	if err != nil {
		logger.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}

	registry, err := sites.Load(cfg.SitesFile)
	if err != nil {
		logger.Error("failed to load site registry", "error", err)
		os.Exit(1)
	}
	aggregator, err := risk.NewAggregator(cfg.Thresholds)
	if err != nil {
		logger.Error("invalid verdict thresholds", "error", err)
		os.Exit(1)
	}

	if cfg.Conjunction.Username == "" {
		logger.Warn("space-track credentials not set; conjunction screening will fail and decisions will be ERROR")
	}
	feeds := advisor.Feeds{
		Weather: feed.NewClient[domain.WeatherObservation](domain.FeedWeather,
			meteomatics.NewClient(cfg.Weather.BaseURL, cfg.Weather.Username, cfg.Weather.Password, logger),
			cfg.Weather.Policy(), logger, metrics),
		SpaceWeather: feed.NewClient[domain.SpaceWeatherObservation](domain.FeedSpaceWeather,
			swpc.NewClient(cfg.SpaceWeather.BaseURL, logger),
			cfg.SpaceWeather.Policy(), logger, metrics),
		Conjunction: feed.NewClient[domain.ConjunctionObservation](domain.FeedConjunction,
			spacetrack.NewClient(cfg.Conjunction.BaseURL, cfg.Conjunction.Username, cfg.Conjunction.Password, cfg.ConjunctionScreenWindow, logger),
			cfg.Conjunction.Policy(), logger, metrics),
	}

	orchestrator, err := advisor.New(registry, feeds, rules.NewEngine(rules.Default()), aggregator, logger, metrics)
	if err != nil {
		logger.Error("failed to build advisor", "error", err)
		os.Exit(1)
	}
	logger.Info("advisor ready",
		"sites", registry.Len(),
		"rules", rules.Default().Len(),
		"marginal_threshold", cfg.Thresholds.Marginal,
		"nogo_threshold", cfg.Thresholds.NoGo,
	)

	checks := readiness{orchestrator}
	opts := []httpadapter.Option{
		httpadapter.WithCORSOrigins(cfg.CORSAllowedOrigins...),
		httpadapter.WithVersion(version),
	}

	// Decision audit sinks (each optional).
	var publisher *kafkaadapter.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaAuditTopic, logger)
		opts = append(opts, httpadapter.WithAuditRecorders(publisher))
		logger.Info("kafka audit publisher enabled", "topic", cfg.KafkaAuditTopic)
	}
	var store *sqlstore.Store
	if cfg.AuditDBDriver != "" {
		store, err = sqlstore.Open(ctx, cfg.AuditDBDriver, cfg.AuditDBDSN)
		if err != nil {
			logger.Error("failed to open audit store", "driver", cfg.AuditDBDriver, "error", err)
			os.Exit(1)
		}
		opts = append(opts, httpadapter.WithAuditRecorders(store), httpadapter.WithDecisionStore(store))
		checks = append(checks, store)
		logger.Info("sql audit store enabled", "driver", cfg.AuditDBDriver)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, orchestrator, registry, checks, logger, metrics, opts...)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("audit store close error", "error", err)
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// readiness is ready when every check is.
type readiness []sharedobs.ReadinessChecker

func (r readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}
