// Package router assembles the entryd gin engine.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/logger"
	"github.com/DataProRU/Auto-transfers-accounting/internal/interfaces/http/handler"
	"github.com/DataProRU/Auto-transfers-accounting/internal/interfaces/http/middleware"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Config carries the engine wide settings.
type Config struct {
	ServiceName string
	APIVersion  string
	BodyLimit   int64
	Logger      *zap.Logger
	Tracer      trace.TracerProvider
	Metrics     http.Handler
}

// Router manages HTTP route registration
type Router struct {
	engine    *gin.Engine
	cfg       Config
	public    []RouteRegistrar
	protected []RouteRegistrar
	principal middleware.Principal
	health    *handler.HealthHandler
}

// NewRouter creates an engine with the shared middleware chain installed.
func NewRouter(cfg Config) *Router {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v1"
	}
	if cfg.BodyLimit == 0 {
		cfg.BodyLimit = middleware.DefaultBodyLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider()
	}

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.Tracing(cfg.ServiceName, cfg.Tracer),
		middleware.SpanAttributes(),
		logger.GinMiddleware(cfg.Logger),
		logger.Recovery(cfg.Logger),
	)
	return &Router{engine: engine, cfg: cfg}
}

// Public adds registrars reachable without a session.
func (r *Router) Public(registrars ...RouteRegistrar) *Router {
	r.public = append(r.public, registrars...)
	return r
}

// Protected adds registrars that require a signed-in user.
func (r *Router) Protected(p middleware.Principal, registrars ...RouteRegistrar) *Router {
	r.principal = p
	r.protected = append(r.protected, registrars...)
	return r
}

// Health sets the /healthz handler.
func (r *Router) Health(h *handler.HealthHandler) *Router {
	r.health = h
	return r
}

// Setup registers all routes and returns the engine.
func (r *Router) Setup() *gin.Engine {
	if r.health != nil {
		r.engine.GET("/healthz", r.health.Healthz)
	}
	if r.cfg.Metrics != nil {
		r.engine.GET("/metrics", gin.WrapH(r.cfg.Metrics))
	}

	api := r.engine.Group("/api/"+r.cfg.APIVersion, middleware.BodyLimit(r.cfg.BodyLimit))
	for _, reg := range r.public {
		reg.RegisterRoutes(api)
	}

	if len(r.protected) > 0 {
		guarded := api.Group("", middleware.RequireSession(r.principal))
		for _, reg := range r.protected {
			reg.RegisterRoutes(guarded)
		}
	}
	return r.engine
}
