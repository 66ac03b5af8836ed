package v1

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/assistant"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/breaker"
	aicache "github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/cache"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/metrics"
)

// MessageHandler processes one inbound client message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, in assistant.Inbound) (*assistant.Reply, error)
}

// CacheStatsProvider reports the in-memory context cache counters.
type CacheStatsProvider interface {
	CacheStats() aicache.Stats
}

// APIV1Service serves the inbound message hook and the operational endpoints.
type APIV1Service struct {
	Version  string
	Messages MessageHandler
	Breakers *breaker.Registry
	Contexts CacheStatsProvider
	Metrics  metrics.MetricsService
	Gatherer prometheus.Gatherer
	// Ping checks the durable store for /healthz. Optional.
	Ping func(ctx context.Context) error

	Logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewAPIV1Service creates the service. Nil collaborators disable their endpoints' data.
func NewAPIV1Service(messages MessageHandler, breakers *breaker.Registry, contexts CacheStatsProvider, m metrics.MetricsService) *APIV1Service {
	return &APIV1Service{
		Messages: messages,
		Breakers: breakers,
		Contexts: contexts,
		Metrics:  m,
		Gatherer: prometheus.DefaultGatherer,
		Logger:   slog.Default(),
		validate: validator.New(),
		now:      time.Now,
	}
}

// RegisterRoutes mounts all endpoints on e. Extra middleware applies to the
// message hook only.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo, hook ...echo.MiddlewareFunc) {
	e.GET("/healthz", s.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})))

	api := e.Group("/api/v1", middleware.CORS())
	api.POST("/messages", s.PostMessage, hook...)
	api.GET("/status/breakers", s.GetBreakers)
	api.GET("/status/cache", s.GetCacheStats)
	api.GET("/stats", s.GetStats)
}

// Health reports liveness and store reachability.
// GET /healthz
func (s *APIV1Service) Health(c echo.Context) error {
	body := map[string]string{"status": "ok"}
	if s.Version != "" {
		body["version"] = s.Version
	}
	if s.Ping != nil {
		if err := s.Ping(c.Request().Context()); err != nil {
			s.Logger.Warn("health check failed", slog.String("error", err.Error()))
			body["status"] = "degraded"
			body["store"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, body)
		}
	}
	return c.JSON(http.StatusOK, body)
}
