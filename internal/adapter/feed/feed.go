// Package feed wraps provider adapters with the per-feed fetch policy: an
// independent timeout per attempt, a fixed retry budget for transient
// failures, an optional response cache, metrics and tracing.
//
// The orchestrator only sees the Fetch contract. A returned error is always a
// *domain.UpstreamError and means the feed hard-failed; partial data comes
// back as a successful observation with unavailable fields.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/couchcryptid/launch-advisor/internal/domain"
	"github.com/couchcryptid/launch-advisor/internal/observability"
)

// Source fetches one normalized observation for a launch window.
type Source[T any] interface {
	Fetch(ctx context.Context, w domain.LaunchWindow) (T, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc[T any] func(ctx context.Context, w domain.LaunchWindow) (T, error)

func (f SourceFunc[T]) Fetch(ctx context.Context, w domain.LaunchWindow) (T, error) {
	return f(ctx, w)
}

// CacheKeyer is implemented by sources whose responses do not depend on the
// full launch window, for example global space weather products.
type CacheKeyer interface {
	CacheKey(w domain.LaunchWindow) string
}

// Policy configures timeouts, retries and caching for one feed.
type Policy struct {
	// Timeout bounds each attempt independently.
	Timeout time.Duration
	// Retries is the number of extra attempts after a transient failure.
	Retries int
	// Backoff is the wait before the first retry; it doubles up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
	// CacheTTL enables the response cache when positive.
	CacheTTL  time.Duration
	CacheSize int
}

// DefaultPolicy returns a 5s timeout, one retry and no cache.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:    5 * time.Second,
		Retries:    1,
		Backoff:    200 * time.Millisecond,
		MaxBackoff: 2 * time.Second,
		CacheSize:  256,
	}
}

// Option customizes a Client.
type Option func(*settings)

type settings struct {
	clock  clockwork.Clock
	tracer trace.Tracer
}

// WithClock sets the clock used for backoff and cache expiry.
func WithClock(c clockwork.Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *settings) { s.tracer = t }
}

// Client applies a Policy around a Source.
type Client[T any] struct {
	feed    domain.Feed
	source  Source[T]
	policy  Policy
	cache   *lruCache[T]
	clock   clockwork.Clock
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewClient wraps source for the given feed.
func NewClient[T any](f domain.Feed, source Source[T], policy Policy, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Client[T] {
	s := settings{clock: clockwork.NewRealClock(), tracer: otel.Tracer(observability.TracerName)}
	for _, opt := range opts {
		opt(&s)
	}
	if policy.Timeout <= 0 {
		policy.Timeout = DefaultPolicy().Timeout
	}
	if policy.Retries < 0 {
		policy.Retries = 0
	}
	if policy.MaxBackoff < policy.Backoff {
		policy.MaxBackoff = policy.Backoff
	}

	c := &Client[T]{
		feed:    f,
		source:  source,
		policy:  policy,
		clock:   s.clock,
		tracer:  s.tracer,
		logger:  logger.With("feed", string(f)),
		metrics: metrics,
	}
	if policy.CacheTTL > 0 && policy.CacheSize > 0 {
		c.cache = newLRUCache[T](policy.CacheSize, policy.CacheTTL, s.clock)
	}
	return c
}

// Feed returns the feed this client serves.
func (c *Client[T]) Feed() domain.Feed {
	return c.feed
}

// Fetch returns the observation for w or a *domain.UpstreamError.
func (c *Client[T]) Fetch(ctx context.Context, w domain.LaunchWindow) (T, error) {
	ctx, span := c.tracer.Start(ctx, "feed.fetch",
		trace.WithAttributes(
			attribute.String("feed", string(c.feed)),
			attribute.String("site.code", w.Site.Code),
		))
	defer span.End()

	label := string(c.feed)
	key := c.cacheKey(w)
	if c.cache != nil {
		if v, ok := c.cache.get(key); ok {
			c.metrics.FeedCache.WithLabelValues(label, "hit").Inc()
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return v, nil
		}
		c.metrics.FeedCache.WithLabelValues(label, "miss").Inc()
	}

	start := c.clock.Now()
	v, err := c.fetchWithRetry(ctx, w)
	c.metrics.FeedDuration.WithLabelValues(label).Observe(c.clock.Since(start).Seconds())

	if err != nil {
		c.metrics.FeedFetches.WithLabelValues(label, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "feed unavailable")
		c.logger.Warn("feed unavailable", "site", w.Site.Code, "error", err)
		var zero T
		return zero, &domain.UpstreamError{Feed: c.feed, Err: err}
	}

	c.metrics.FeedFetches.WithLabelValues(label, "success").Inc()
	if c.cache != nil {
		c.cache.put(key, v)
	}
	return v, nil
}

func (c *Client[T]) fetchWithRetry(ctx context.Context, w domain.LaunchWindow) (T, error) {
	var (
		zero    T
		lastErr error
		backoff = c.policy.Backoff
	)
	for attempt := 0; attempt <= c.policy.Retries; attempt++ {
		if attempt > 0 {
			c.metrics.FeedRetries.WithLabelValues(string(c.feed)).Inc()
			c.logger.Debug("retrying feed", "attempt", attempt+1, "backoff", backoff, "error", lastErr)
			if !sleepWithContext(ctx, c.clock, backoff) {
				return zero, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
			}
			backoff = sharedretry.NextBackoff(backoff, c.policy.MaxBackoff)
		}

		v, err := c.attempt(ctx, w)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if ctx.Err() != nil || !IsTransient(err) {
			break
		}
	}
	return zero, lastErr
}

func (c *Client[T]) attempt(ctx context.Context, w domain.LaunchWindow) (T, error) {
	actx, cancel := context.WithTimeout(ctx, c.policy.Timeout)
	defer cancel()

	v, err := c.source.Fetch(actx, w)
	if err != nil && ctx.Err() == nil && actx.Err() != nil {
		return v, &timeoutError{after: c.policy.Timeout, err: err}
	}
	return v, err
}

func (c *Client[T]) cacheKey(w domain.LaunchWindow) string {
	if k, ok := c.source.(CacheKeyer); ok {
		return k.CacheKey(w)
	}
	return w.Site.Code + "|" + w.Time.UTC().Format(time.RFC3339)
}
