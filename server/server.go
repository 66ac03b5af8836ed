// Package server assembles the assistant and serves it over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vosarsen/ai-admin-v2-sub004/internal/profile"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/assistant"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/breaker"
	aicache "github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/cache"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/command"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/dialog"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/metrics"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/ratelimit"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/response"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/timeout"
	"github.com/vosarsen/ai-admin-v2-sub004/server/middleware"
	v1 "github.com/vosarsen/ai-admin-v2-sub004/server/router/api/v1"
	"github.com/vosarsen/ai-admin-v2-sub004/server/service/booking"
	"github.com/vosarsen/ai-admin-v2-sub004/server/service/booking/yclients"
	"github.com/vosarsen/ai-admin-v2-sub004/server/service/catalog"
	"github.com/vosarsen/ai-admin-v2-sub004/store"
	storecache "github.com/vosarsen/ai-admin-v2-sub004/store/cache"
)

// Breaker names.
const (
	BookingBreaker = "yclients"
	LLMBreaker     = "llm"
)

const maintenanceInterval = time.Minute

// Server owns every long-lived component.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer  *echo.Echo
	registry    *prometheus.Registry
	metrics     *metrics.Service
	breakers    *breaker.Registry
	shared      storecache.SharedCache
	catalogs    *aicache.Service
	contexts    *dialog.Manager
	limiter     *ratelimit.CompositeLimiter
	httpLimiter *middleware.RateLimiter
	pipeline    *assistant.Pipeline
	logger      *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Collaborators overrides the external APIs. Nil fields use the defaults
// built from the profile.
type Collaborators struct {
	Booking   booking.Client
	Catalog   catalog.Loader
	Generator assistant.Generator
}

// NewServer wires the assistant from profile p on top of s.
func NewServer(p *profile.Profile, s *store.Store, collab Collaborators) (*Server, error) {
	logger := slog.Default()
	srv := &Server{
		Profile:  p,
		Store:    s,
		registry: prometheus.NewRegistry(),
		logger:   logger,
	}
	srv.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	exporter := metrics.NewExporter(srv.registry)
	srv.metrics = metrics.NewService(s, metrics.DefaultPersisterConfig(), metrics.WithExporter(exporter), metrics.WithLogger(logger))

	srv.breakers = breaker.NewRegistry(breaker.Config{
		FailureThreshold: p.BreakerFailureThreshold,
		ResetTimeout:     p.BreakerResetTimeout,
		Timeout:          p.BreakerCallTimeout,
		HistoryLimit:     100,
	}, breaker.WithLogger(logger))
	srv.breakers.OnStateChange(exporter.BreakerListener())

	if collab.Booking == nil || collab.Catalog == nil {
		if !p.IsYClientsConfigured() {
			return nil, errors.New("yclients partner token is required")
		}
		yc := yclients.New(yclients.Config{
			BaseURL:           p.YClientsBaseURL,
			PartnerToken:      p.YClientsPartnerToken,
			UserToken:         p.YClientsUserToken,
			RequestsPerSecond: p.YClientsRPS,
		}, yclients.WithLogger(logger))
		if collab.Booking == nil {
			collab.Booking = yc
		}
		if collab.Catalog == nil {
			collab.Catalog = yc
		}
	}

	if collab.Generator == nil {
		if !p.IsLLMConfigured() {
			return nil, errors.New("llm api key and model are required")
		}
		gen, err := assistant.NewOpenAIGenerator(assistant.GeneratorConfig{
			APIKey:      p.LLMAPIKey,
			BaseURL:     p.LLMBaseURL,
			Model:       p.LLMModel,
			Temperature: float32(p.LLMTemperature),
			MaxTokens:   p.LLMMaxTokens,
			Timeout:     timeout.GenerationTimeout,
		})
		if err != nil {
			return nil, errors.Wrap(err, "create generator")
		}
		collab.Generator = gen
	}

	if p.SharedCacheEnabled {
		shared, err := storecache.OpenBadgerCache(storecache.BadgerConfig{
			Path:       p.SharedCacheDir,
			InMemory:   p.SharedCacheDir == "",
			DefaultTTL: p.SharedCacheTTL,
			GCInterval: 10 * time.Minute,
			Logger:     logger,
		})
		if err != nil {
			return nil, errors.Wrap(err, "open shared cache")
		}
		srv.shared = shared
	} else {
		srv.shared = storecache.NewNilSharedCache()
	}

	srv.catalogs = aicache.NewService(aicache.ServiceConfig{
		Capacity:        aicache.DefaultMaxSize,
		DefaultTTL:      timeout.CatalogTTL,
		CleanupInterval: maintenanceInterval,
	})
	loader := catalog.NewCachedLoader(collab.Catalog, srv.catalogs, timeout.CatalogTTL, logger)

	tiered := storecache.NewTiered(
		aicache.NewLRUCache[*dialog.Context](p.ContextCacheSize, p.ContextFreshness),
		srv.shared, p.SharedCacheTTL, logger,
	)
	srv.contexts = dialog.NewManager(s, loader,
		dialog.WithCache(tiered),
		dialog.WithExporter(exporter),
		dialog.WithFreshness(p.ContextFreshness),
		dialog.WithLogger(logger),
	)

	bookingSvc := booking.NewService(collab.Booking, s,
		booking.WithBreaker(srv.breakers.Get(BookingBreaker)),
		booking.WithMetrics(srv.metrics),
		booking.WithLogger(logger),
	)
	executor := command.NewExecutor(command.WithMetrics(srv.metrics), command.WithLogger(logger))
	command.RegisterDefaults(executor, &command.Handlers{Booking: bookingSvc, Preferences: srv.contexts})
	processor := response.NewProcessor(executor, response.WithLogger(logger))

	srv.limiter = ratelimit.DefaultMessageLimits(p.MessagesPerMinute, p.MessagesPerHour, ratelimit.WithLogger(logger))

	llmBreaker := srv.breakers.Get(LLMBreaker, breaker.Config{
		FailureThreshold: p.BreakerFailureThreshold,
		ResetTimeout:     p.BreakerResetTimeout,
		Timeout:          timeout.GenerationTimeout,
		HistoryLimit:     100,
	})
	srv.pipeline = assistant.NewPipeline(srv.contexts, collab.Generator, processor,
		assistant.WithLimiter(srv.limiter),
		assistant.WithBreaker(llmBreaker),
		assistant.WithMetrics(srv.metrics),
		assistant.WithExporter(exporter),
		assistant.WithLogger(logger),
	)

	api := v1.NewAPIV1Service(srv.pipeline, srv.breakers, srv.contexts, srv.metrics)
	api.Version = p.Version
	api.Gatherer = srv.registry
	api.Logger = logger
	api.Ping = func(ctx context.Context) error {
		return s.GetDriver().GetDB().PingContext(ctx)
	}

	srv.httpLimiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: p.HTTPRequestsPerSecond,
		Burst:             p.HTTPBurst,
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.RequestID(), echomw.Recover())
	api.RegisterRoutes(e, srv.httpLimiter.Middleware())
	srv.echoServer = e

	return srv, nil
}

// Handler exposes the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

// Pipeline exposes the message pipeline.
func (s *Server) Pipeline() *assistant.Pipeline {
	return s.pipeline
}

// Start launches the background loops and the HTTP listener. It returns once
// the listener fails or is shut down.
func (s *Server) Start(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.metrics.Start()

	s.runBackground(func() { s.contexts.RunCacheCleanup(bgCtx, maintenanceInterval) })
	s.runBackground(func() { s.limiter.Run(bgCtx, maintenanceInterval) })
	s.runBackground(func() { s.httpLimiter.Run(bgCtx, maintenanceInterval) })

	addr := s.Profile.Address()
	s.logger.Info("salonbot server started", slog.String("address", addr), slog.String("mode", s.Profile.Mode))
	if err := s.echoServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "start http server")
	}
	return nil
}

func (s *Server) runBackground(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Shutdown stops the listener, the background loops and closes every resource.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	if err := s.echoServer.Shutdown(ctx); err != nil {
		firstErr = errors.Wrap(err, "shutdown http server")
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	// Flushes the remaining metric buckets.
	s.metrics.Close()
	s.catalogs.Close()
	if err := s.shared.Close(); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, "close shared cache")
	}
	if err := s.Store.Close(); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, "close store")
	}
	s.logger.Info("salonbot server stopped")
	return firstErr
}
