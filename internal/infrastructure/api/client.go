// Package api is the HTTP client of the accounting backend. Every call carries the
// session bearer token, is rate limited and traced, and fails with a normalized *Error.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/logger"
)

// TokenSource yields the bearer token of the current session, empty when logged out.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

// Token implements TokenSource
func (f TokenFunc) Token() string { return f() }

// Observer records backend call durations. The telemetry metrics implement it.
type Observer interface {
	ObserveBackend(endpoint string, status int, d time.Duration)
}

// Config holds client settings.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RateLimit     float64 // requests per second; 0 disables limiting
	Burst         int
	UserAgent     string
	TLSSkipVerify bool
}

// RetryConfig configures retry behavior of idempotent requests.
type RetryConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultRetryConfig retries GETs twice with exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
	}
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l.Named("api") }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithRetry overrides the retry configuration.
func WithRetry(r RetryConfig) Option {
	return func(c *Client) { c.retry = r }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTracer overrides the tracer provider.
func WithTracer(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

const tracerName = "github.com/DataProRU/Auto-transfers-accounting/api"

// Client talks to the accounting backend.
type Client struct {
	http     *http.Client
	baseURL  *url.URL
	headers  map[string]string
	limiter  *rate.Limiter
	retry    RetryConfig
	tokens   TokenSource
	tracer   trace.Tracer
	observer Observer
	logger   *zap.Logger

	mu             sync.RWMutex
	onUnauthorized func()
}

// NewClient creates a backend client. tokens may be nil for unauthenticated use.
func NewClient(cfg Config, tokens TokenSource, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "entry-client/1.0"
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{InsecureSkipVerify: cfg.TLSSkipVerify}, //nolint:gosec // opt-in, rejected in production config
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL: base,
		headers: map[string]string{
			"Accept":     "application/json",
			"User-Agent": cfg.UserAgent,
		},
		limiter: rate.NewLimiter(limit, burst),
		retry:   DefaultRetryConfig(),
		tokens:  tokens,
		tracer:  otel.Tracer(tracerName),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// OnUnauthorized registers the hook run whenever the backend answers 401.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Request describes one backend call.
type Request struct {
	Method    string
	Path      string
	Query     url.Values
	Body      any
	Endpoint  string // low-cardinality name for metrics and spans
	Fallback  string // message used when the backend sends none
	Cookie    bool   // mirror the token into the "token" cookie
	Anonymous bool   // no token, and a 401 does not fire the unauthorized hook
}

// Response is a successful backend response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Do executes req. GETs are retried on 5xx, 429 and transport errors; other methods
// run exactly once. Non-2xx answers are returned as *Error.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	u := c.resolve(req.Path, req.Query)

	var body []byte
	if req.Body != nil {
		var err error
		if body, err = json.Marshal(req.Body); err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
	}

	ctx, span := c.tracer.Start(ctx, "backend "+req.Endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", u.Path),
			attribute.String("entry.endpoint", req.Endpoint),
		),
	)
	defer span.End()

	requestID := logger.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	maxAttempts := 1
	if req.Method == http.MethodGet {
		maxAttempts += c.retry.MaxRetries
	}

	var (
		resp *Response
		err  error
	)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, c.fail(ctx, span, &Error{Endpoint: req.Endpoint, Message: MsgNetwork, cause: ctx.Err()})
			case <-time.After(c.backoff(attempt)):
			}
		}

		resp, err = c.once(ctx, req, u, body, requestID)
		if !retryable(resp, err) {
			break
		}
		logger.Enrich(ctx, c.logger).Debug("retrying backend call",
			zap.String("endpoint", req.Endpoint), zap.Int("attempt", attempt+1), zap.Error(err))
	}

	if err != nil {
		return nil, c.fail(ctx, span, &Error{Endpoint: req.Endpoint, Message: MsgNetwork, cause: err})
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	apiErr := &Error{Status: resp.StatusCode, Endpoint: req.Endpoint, Message: serverMessage(resp.Body)}
	if apiErr.Message == "" {
		apiErr.Message = req.Fallback
	}
	if resp.StatusCode == http.StatusUnauthorized && !req.Anonymous {
		c.mu.RLock()
		hook := c.onUnauthorized
		c.mu.RUnlock()
		if hook != nil {
			hook()
		}
	}
	return nil, c.fail(ctx, span, apiErr)
}

func (c *Client) once(ctx context.Context, req Request, u *url.URL, body []byte, requestID string) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), rd)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("X-Request-ID", requestID)
	if c.tokens != nil && !req.Anonymous {
		if tok := c.tokens.Token(); tok != "" {
			httpReq.Header.Set("Authorization", "Bearer "+tok)
			if req.Cookie {
				httpReq.AddCookie(&http.Cookie{Name: "token", Value: tok, Path: "/"})
			}
		}
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		c.observe(req.Endpoint, 0, elapsed)
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	c.observe(req.Endpoint, httpResp.StatusCode, elapsed)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

func (c *Client) fail(ctx context.Context, span trace.Span, err *Error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Detail())
	l := logger.Enrich(ctx, c.logger).With(zap.String("endpoint", err.Endpoint), zap.Int("status", err.Status))
	if err.Status == 0 || err.Status >= 500 {
		l.Warn("backend call failed", zap.String("detail", err.Detail()))
	} else {
		l.Debug("backend rejected call", zap.String("message", err.Message))
	}
	return err
}

func (c *Client) observe(endpoint string, status int, d time.Duration) {
	if c.observer != nil {
		c.observer.ObserveBackend(endpoint, status, d)
	}
}

func (c *Client) resolve(path string, query url.Values) *url.URL {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return &u
}

func retryable(resp *Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
}

// backoff returns the delay before the given attempt, with ±25% jitter.
func (c *Client) backoff(attempt int) time.Duration {
	delay := float64(c.retry.RetryDelay) * math.Pow(c.retry.Multiplier, float64(attempt-1))
	if c.retry.MaxDelay > 0 && delay > float64(c.retry.MaxDelay) {
		delay = float64(c.retry.MaxDelay)
	}
	jitter := delay * 0.25
	return time.Duration(delay + (rand.Float64()*2-1)*jitter)
}

func decode(resp *Response, endpoint string, out any) error {
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &Error{Status: resp.StatusCode, Endpoint: endpoint, Message: MsgUnexpectedPayload, cause: err}
	}
	return nil
}
