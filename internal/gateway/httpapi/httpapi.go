// Package httpapi implements the optional admin HTTP API for api-vault-mcp.
//
// Endpoints:
//   - GET /healthz          liveness, always ok while the process runs
//   - GET /readyz           store executable and access log readiness
//   - GET /metrics          Prometheus exposition (when metrics are enabled)
//   - GET /v1/access-log    recorded credential accesses, ?credential= filter
//
// /v1 requires "Authorization: Bearer <key>" when an API key is configured
// (constant-time comparison). Credential values are never served.
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jkaninda/okapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/api-vault-mcp/internal/accesslog"
	"github.com/jkaninda/api-vault-mcp/internal/observability"
	"github.com/jkaninda/api-vault-mcp/internal/ratelimit"
)

// HealthResponse is the liveness response.
type HealthResponse struct {
	Status string `json:"status"`
}

// AccessLogResponse is the JSON response for GET /v1/access-log.
type AccessLogResponse struct {
	Entries       []accesslog.Entry `json:"entries"`
	Count         int               `json:"count"`
	CorrelationID string            `json:"correlation_id"`
}

// HistoryReader reads recorded accesses.
type HistoryReader interface {
	History(ctx context.Context, credential string) ([]accesslog.Entry, error)
}

// Config configures the admin API.
type Config struct {
	ListenAddr string             // e.g., "127.0.0.1:8791"
	APIKey     string             // Empty = /v1 unauthenticated.
	Limiter    *ratelimit.Limiter // Per client address on /v1. nil = unlimited.

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Gateway is the admin HTTP API.
type Gateway struct {
	config  Config
	history HistoryReader
	logger  *slog.Logger
	okapi   *okapi.Okapi

	mu      sync.Mutex
	server  *http.Server
	stopped bool
}

// NewGateway creates an admin API gateway with its routes registered.
func NewGateway(cfg Config, history HistoryReader, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		config:  cfg,
		history: history,
		logger:  logger,
		okapi:   okapi.New(),
	}
	g.routes()
	return g
}

// routes registers every endpoint. Global middleware must be added first;
// okapi binds it when a route is registered.
func (g *Gateway) routes() {
	// Metrics/tracing middleware (applied globally).
	if g.config.Metrics != nil || g.config.Tracer != nil {
		g.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return observability.HTTPMetricsMiddleware(g.config.Metrics, g.config.Tracer, next)
		})
	}

	g.okapi.Get("/healthz", g.handleLiveness,
		okapi.DocSummary("Liveness check"),
		okapi.DocTags("Health"),
		okapi.DocResponse(HealthResponse{}),
	)
	g.okapi.Get("/readyz", g.handleReadiness,
		okapi.DocSummary("Readiness of the store executable and access log"),
		okapi.DocTags("Health"),
		okapi.DocResponse(observability.HealthStatus{}),
		okapi.DocResponse(http.StatusServiceUnavailable, observability.HealthStatus{}),
	)

	// Rate-limited, authenticated /v1 group.
	v1 := g.okapi.Group("/v1", g.rateLimit, g.authenticate)
	v1.Get("/access-log", g.handleAccessLog,
		okapi.DocSummary("List recorded credential accesses"),
		okapi.DocTags("Access Log"),
		okapi.DocQueryParam("credential", "string", "Only accesses of this credential", false),
		okapi.DocResponse(AccessLogResponse{}),
		okapi.DocResponse(http.StatusUnauthorized, okapi.ErrorResponse{}),
		okapi.DocResponse(http.StatusTooManyRequests, okapi.ErrorResponse{}),
		okapi.DocResponse(http.StatusInternalServerError, okapi.ErrorResponse{}),
	)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
}

// ServeHTTP serves the admin API routes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.okapi.ServeHTTP(w, r)
}

// Start launches the HTTP server and blocks until it exits. A gateway that
// was already stopped returns immediately.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return nil
	}
	server := &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	g.server = server
	g.mu.Unlock()

	g.logger.Info("admin api starting", slog.String("addr", g.config.ListenAddr))
	if err := g.okapi.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the HTTP server and prevents a later Start.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	g.stopped = true
	server := g.server
	g.mu.Unlock()

	if server == nil {
		return nil
	}
	g.logger.Info("admin api stopping")
	return g.okapi.Shutdown(server, ctx)
}

// --- Handlers ---

// handleLiveness is the liveness probe.
func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

func (g *Gateway) handleAccessLog(c *okapi.Context) error {
	correlationID := uuid.NewString()
	credential := c.Query("credential")

	entries, err := g.history.History(c.Context(), credential)
	if err != nil {
		g.logger.Error("reading access log failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("reading access log failed")
	}

	g.logger.Debug("access log served",
		slog.String("correlation_id", correlationID),
		slog.String("credential", credential),
		slog.Int("count", len(entries)),
	)
	return c.OK(AccessLogResponse{
		Entries:       entries,
		Count:         len(entries),
		CorrelationID: correlationID,
	})
}

// --- Middleware ---

// rateLimit applies the per-client token bucket, keyed by client IP.
func (g *Gateway) rateLimit(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		if err := g.config.Limiter.Allow(c.RealIP()); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
		return next(c)
	}
}

// authenticate enforces the configured bearer key. No key configured means
// no authentication.
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		if g.config.APIKey == "" {
			return next(c)
		}
		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(g.config.APIKey)) != 1 {
			return c.AbortUnauthorized("invalid API key")
		}
		return next(c)
	}
}
