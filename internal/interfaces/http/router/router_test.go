package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/shared"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/logger"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/telemetry"
	"github.com/DataProRU/Auto-transfers-accounting/internal/interfaces/http/dto"
	"github.com/DataProRU/Auto-transfers-accounting/internal/interfaces/http/handler"
	"github.com/DataProRU/Auto-transfers-accounting/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type pingRoutes struct{}

func (pingRoutes) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{
			"request_id": logger.RequestID(c.Request.Context()),
			"user":       logger.Username(c.Request.Context()),
		}))
	})
}

type securedRoutes struct{}

func (securedRoutes) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/secret", func(c *gin.Context) {
		c.JSON(http.StatusOK, dto.NewSuccessResponse(logger.Username(c.Request.Context())))
	})
	rg.GET("/boom", func(*gin.Context) {
		panic("boom")
	})
}

type principal struct{ name string }

func (p *principal) Username() string { return p.name }

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func serve(e *gin.Engine, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

func TestRouter_RequestID(t *testing.T) {
	e := NewRouter(Config{ServiceName: "entryd"}).Public(pingRoutes{}).Setup()

	w := serve(e, http.MethodGet, "/api/v1/ping", http.Header{middleware.RequestIDHeader: {"abc-123"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc-123", w.Header().Get(middleware.RequestIDHeader))
	assert.Contains(t, w.Body.String(), `"request_id":"abc-123"`)

	w = serve(e, http.MethodGet, "/api/v1/ping", nil)
	assert.Len(t, w.Header().Get(middleware.RequestIDHeader), 36)
}

func TestRouter_ProtectedRoutes(t *testing.T) {
	p := &principal{}
	e := NewRouter(Config{ServiceName: "entryd"}).Protected(p, securedRoutes{}).Setup()

	w := serve(e, http.MethodGet, "/api/v1/secret", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, shared.CodeNoSession, resp.Error.Code)

	p.name = "alice"
	w = serve(e, http.MethodGet, "/api/v1/secret", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alice")
}

func TestRouter_Recovery(t *testing.T) {
	e := NewRouter(Config{ServiceName: "entryd"}).Protected(&principal{name: "alice"}, securedRoutes{}).Setup()

	w := serve(e, http.MethodGet, "/api/v1/boom", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	m := telemetry.NewMetrics()
	m.RecordGuardCheck("valid")

	healthy := NewRouter(Config{Metrics: m.Handler()}).
		Health(handler.NewHealthHandler(map[string]handler.Pinger{"session_store": pinger{}})).
		Setup()

	w := serve(healthy, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"session_store":"up"`)

	w = serve(healthy, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `entry_guard_checks_total{result="valid"} 1`)

	down := NewRouter(Config{}).
		Health(handler.NewHealthHandler(map[string]handler.Pinger{"session_store": pinger{err: errors.New("closed")}})).
		Setup()
	w = serve(down, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_TracingSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	e := NewRouter(Config{ServiceName: "entryd", Tracer: tp}).
		Protected(&principal{name: "alice"}, securedRoutes{}).
		Setup()

	w := serve(e, http.MethodGet, "/api/v1/secret", http.Header{middleware.RequestIDHeader: {"req-9"}})
	require.Equal(t, http.StatusOK, w.Code)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "req-9", attrs["request_id"])
	assert.Equal(t, "alice", attrs["username"])
}

func TestRouter_BodyLimit(t *testing.T) {
	e := NewRouter(Config{BodyLimit: 8}).Public(pingRoutes{}).Setup()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req.ContentLength = 64
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
