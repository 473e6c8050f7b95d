// Package server exposes the generation pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/haasonsaas/textgen/internal/agent"
	"github.com/haasonsaas/textgen/internal/config"
	ctxwindow "github.com/haasonsaas/textgen/internal/context"
	"github.com/haasonsaas/textgen/internal/observability"
	"github.com/haasonsaas/textgen/internal/ratelimit"
)

const (
	defaultMaxBodyBytes    = 4 << 20 // 4 MiB
	defaultShutdownTimeout = 10 * time.Second
	readTimeout            = 30 * time.Second
	idleTimeout            = 120 * time.Second
)

// ModelResolver builds the language model for a configured provider name
// and model ID. Empty values select the configured defaults.
type ModelResolver func(ctx context.Context, provider, model string) (agent.LanguageModel, error)

// Options carries the shared dependencies of the server.
type Options struct {
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	// Limiter, if set, throttles inbound requests per client IP.
	Limiter *ratelimit.Limiter

	// Generator is the base configuration for every generator the server
	// creates. Logger, Metrics and Tracer are filled from the fields above.
	Generator agent.Options
}

// Server serves POST /v1/generate backed by per-model generators.
type Server struct {
	cfg     *config.Config
	resolve ModelResolver
	opts    Options
	logger  *observability.Logger
	tracer  *observability.Tracer
	handler *ctxwindow.Handler
	app     *echo.Echo

	mu         sync.Mutex
	generators map[string]*agent.Generator
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg *config.Config, resolve ModelResolver, opts Options) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config must not be nil")
	}
	if resolve == nil {
		return nil, errors.New("model resolver must not be nil")
	}
	handler, err := cfg.ContextWindow.Handler()
	if err != nil {
		return nil, fmt.Errorf("context_window: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{Level: "info"})
	}
	httpLogger := logger.WithFields("component", "http")
	tracer := opts.Tracer
	if tracer == nil {
		tracer, _ = observability.NewTracer(observability.TraceConfig{ServiceName: "textgen"})
	}
	opts.Generator.Logger = logger
	opts.Generator.Metrics = opts.Metrics
	opts.Generator.Tracer = tracer

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler

	s := &Server{
		cfg:        cfg,
		resolve:    resolve,
		opts:       opts,
		logger:     httpLogger,
		tracer:     tracer,
		handler:    handler,
		app:        e,
		generators: make(map[string]*agent.Generator),
	}

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency: true,
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			httpLogger.Info(c.Request().Context(), "request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			)
			return nil
		},
	}))
	e.Use(s.instrument)
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))

	s.registerRoutes()
	return s, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Server.Addr
	s.logger.Info(ctx, "starting server", "addr", addr)

	httpServer := &http.Server{
		Addr:        addr,
		Handler:     s.app,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		grace := s.cfg.Server.ShutdownTimeout
		if grace <= 0 {
			grace = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info(context.Background(), "server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/healthz", s.handleHealth)
	s.app.POST("/v1/generate", s.handleGenerate, s.rateLimit)
	if s.opts.Metrics != nil {
		s.app.GET("/metrics", echo.WrapHandler(s.opts.Metrics.Handler()))
	}
}

// healthResponse reports liveness and, when backend calls are rate limited,
// the bucket of every provider a request has used so far.
type healthResponse struct {
	Status     string                      `json:"status"`
	RateLimits map[string]ratelimit.Status `json:"rate_limits,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := healthResponse{Status: "ok"}
	if limiter := s.opts.Generator.Limiter; limiter != nil {
		resp.RateLimits = make(map[string]ratelimit.Status)
		s.mu.Lock()
		for _, gen := range s.generators {
			provider := gen.Model().Provider()
			resp.RateLimits[provider] = limiter.Peek(provider)
		}
		s.mu.Unlock()
	}
	return c.JSON(http.StatusOK, resp)
}

// instrument assigns a request ID, opens the server span and records the
// request duration. Errors are rendered here so the recorded status is final.
func (s *Server) instrument(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		path := c.Path()
		if path == "" {
			path = "unmatched"
		}

		requestID := req.Header.Get(echo.HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Response().Header().Set(echo.HeaderXRequestID, requestID)

		ctx := observability.AddRequestID(req.Context(), requestID)
		ctx, span := s.tracer.TraceHTTPRequest(ctx, req.Method, path)
		defer span.End()
		c.SetRequest(req.WithContext(ctx))

		start := time.Now()
		if err := next(c); err != nil {
			s.tracer.RecordError(span, err)
			if !c.Response().Committed {
				c.Error(err)
			}
		}
		status := c.Response().Status
		s.tracer.SetAttributes(span, "http.status_code", status)
		s.opts.Metrics.RecordHTTPRequest(req.Method, path, strconv.Itoa(status), time.Since(start))
		return nil
	}
}

func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.opts.Limiter != nil && !s.opts.Limiter.Allow(c.RealIP()) {
			retryAfter := s.opts.Limiter.WaitTime(c.RealIP())
			c.Response().Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			return requestError{
				Status:  http.StatusTooManyRequests,
				Message: "rate limit exceeded",
				Type:    "rate_limit_error",
			}
		}
		return next(c)
	}
}

// generator returns the cached generator for a provider/model pair,
// resolving the model on first use.
func (s *Server) generator(ctx context.Context, provider, model string) (*agent.Generator, error) {
	key := provider + "\x00" + model

	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.generators[key]; ok {
		return g, nil
	}

	lm, err := s.resolve(ctx, provider, model)
	if err != nil {
		return nil, err
	}
	g := agent.NewGenerator(lm, s.opts.Generator)
	s.generators[key] = g
	return g, nil
}
