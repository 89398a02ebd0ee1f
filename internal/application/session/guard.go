// Package session owns the signed-in user's credential: login, periodic validation,
// token refresh and teardown.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/shared"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/api"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/persistence"
)

// Teardown reasons passed to listeners.
const (
	ReasonLogout       = "logout"
	ReasonInvalid      = "invalid"
	ReasonUnauthorized = "unauthorized"
	ReasonExpired      = "expired"
	ReasonReplaced     = "replaced"
)

// Guard check results recorded in metrics.
const (
	CheckValid   = "valid"
	CheckInvalid = "invalid"
	CheckError   = "error"
)

// Backend is the part of the API client the guard calls.
type Backend interface {
	Login(ctx context.Context, username, password string) (string, error)
	Verify(ctx context.Context, token string) (*api.Verification, error)
	Refresh(ctx context.Context) (string, error)
}

// Store persists the credential between runs.
type Store interface {
	Save(ctx context.Context, c persistence.Credential) error
	Current(ctx context.Context) (*persistence.Credential, error)
	UpdateToken(ctx context.Context, username, token string, expiresAt *time.Time) error
	Clear(ctx context.Context) error
}

// Recorder counts guard checks.
type Recorder interface {
	RecordGuardCheck(result string)
}

type nopRecorder struct{}

func (nopRecorder) RecordGuardCheck(string) {}

// Config holds guard timing.
type Config struct {
	PollInterval  time.Duration
	RefreshBefore time.Duration
}

// Info describes the current session.
type Info struct {
	Username  string     `json:"username"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Listener is notified after the session is torn down.
type Listener func(ctx context.Context, reason string)

// Guard holds the session and keeps it valid.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Guard struct {
	backend  Backend
	store    Store
	cfg      Config
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.RWMutex
	cred      *persistence.Credential
	listeners []Listener
}

// Option configures a Guard
type Option func(*Guard)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(g *Guard) { g.logger = l.Named("session") }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(g *Guard) { g.recorder = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// NewGuard creates a guard with no session.
func NewGuard(backend Backend, store Store, cfg Config, opts ...Option) *Guard {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 7 * time.Minute
	}
	if cfg.RefreshBefore <= 0 {
		cfg.RefreshBefore = 2 * time.Minute
	}
	g := &Guard{
		backend:  backend,
		store:    store,
		cfg:      cfg,
		recorder: nopRecorder{},
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// OnTeardown registers a listener run after every eviction or logout.
func (g *Guard) OnTeardown(fn Listener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

// Token implements api.TokenSource.
func (g *Guard) Token() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.cred == nil {
		return ""
	}
	return g.cred.Token
}

// Username returns the signed-in user, empty when logged out.
func (g *Guard) Username() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.cred == nil {
		return ""
	}
	return g.cred.Username
}

// Authenticated reports whether a session is held.
func (g *Guard) Authenticated() bool {
	return g.Token() != ""
}

// Current describes the session or returns shared.ErrNoSession.
func (g *Guard) Current() (Info, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.cred == nil {
		return Info{}, shared.ErrNoSession
	}
	return Info{Username: g.cred.Username, ExpiresAt: g.cred.ExpiresAt}, nil
}

// Restore loads a persisted session. A credential whose token has expired is dropped.
func (g *Guard) Restore(ctx context.Context) error {
	c, err := g.store.Current(ctx)
	if err != nil {
		return err
	}
	if c.Expired(g.now()) {
		g.logger.Info("stored session expired", zap.String("username", c.Username))
		if err := g.store.Clear(ctx); err != nil {
			g.logger.Warn("failed to clear expired session", zap.Error(err))
		}
		return shared.ErrNoSession
	}

	g.mu.Lock()
	g.cred = c
	g.mu.Unlock()
	g.logger.Info("session restored", zap.String("username", c.Username))
	return nil
}

// Login signs username in and persists the token.
func (g *Guard) Login(ctx context.Context, username, password string) error {
	token, err := g.backend.Login(ctx, username, password)
	if err != nil {
		return err
	}
	c := persistence.Credential{Username: username, Token: token, ExpiresAt: tokenExpiry(token)}
	if err := g.store.Save(ctx, c); err != nil {
		return err
	}

	g.mu.Lock()
	prev := g.cred
	g.cred = &c
	listeners := g.snapshotListeners()
	g.mu.Unlock()

	if prev != nil && prev.Username != username {
		g.notify(ctx, listeners, ReasonReplaced)
	}
	g.logger.Info("signed in", zap.String("username", username))
	return nil
}

// Check asks the backend whether the token is still valid. An invalid or rejected
// token evicts the session. Any other failure is logged and keeps it; the error is
// returned for display.
func (g *Guard) Check(ctx context.Context) (bool, error) {
	token := g.Token()
	if token == "" {
		return false, shared.ErrNoSession
	}

	v, err := g.backend.Verify(ctx, token)
	switch {
	case err != nil && api.IsUnauthorized(err):
		g.recorder.RecordGuardCheck(CheckInvalid)
		g.Evict(ctx, ReasonUnauthorized)
		return false, nil
	case err != nil:
		g.recorder.RecordGuardCheck(CheckError)
		g.logger.Warn("session check failed", zap.Error(err))
		return true, err
	case !v.Valid:
		g.recorder.RecordGuardCheck(CheckInvalid)
		g.Evict(ctx, ReasonInvalid)
		return false, nil
	}
	g.recorder.RecordGuardCheck(CheckValid)
	return true, nil
}

// Refresh swaps the token for a fresh one.
func (g *Guard) Refresh(ctx context.Context) error {
	username := g.Username()
	if username == "" {
		return shared.ErrNoSession
	}

	token, err := g.backend.Refresh(ctx)
	if err != nil {
		if api.IsUnauthorized(err) {
			g.Evict(ctx, ReasonUnauthorized)
		}
		return err
	}
	exp := tokenExpiry(token)
	if err := g.store.UpdateToken(ctx, username, token, exp); err != nil && !errors.Is(err, shared.ErrNoSession) {
		g.logger.Warn("failed to persist refreshed token", zap.Error(err))
	}

	g.mu.Lock()
	if g.cred != nil && g.cred.Username == username {
		g.cred = &persistence.Credential{Username: username, Token: token, ExpiresAt: exp, CreatedAt: g.cred.CreatedAt}
	}
	g.mu.Unlock()
	g.logger.Debug("token refreshed", zap.String("username", username))
	return nil
}

// RefreshDue reports whether the token expires within the refresh window.
func (g *Guard) RefreshDue() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.cred == nil || g.cred.ExpiresAt == nil {
		return false
	}
	return g.cred.ExpiresAt.Sub(g.now()) <= g.cfg.RefreshBefore
}

// Run checks the session now and then every poll interval until ctx is done, refreshing
// the token when it is about to expire.
func (g *Guard) Run(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()

	for {
		g.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (g *Guard) tick(ctx context.Context) {
	if !g.Authenticated() {
		return
	}
	valid, _ := g.Check(ctx)
	if !valid || !g.RefreshDue() {
		return
	}
	if err := g.Refresh(ctx); err != nil {
		g.logger.Warn("token refresh failed", zap.Error(err))
	}
}

// Evict tears the session down and notifies listeners. It is a no-op without a session.
func (g *Guard) Evict(ctx context.Context, reason string) {
	g.mu.Lock()
	if g.cred == nil {
		g.mu.Unlock()
		return
	}
	username := g.cred.Username
	g.cred = nil
	listeners := g.snapshotListeners()
	g.mu.Unlock()

	if err := g.store.Clear(ctx); err != nil {
		g.logger.Warn("failed to clear stored session", zap.Error(err))
	}
	g.logger.Info("session ended", zap.String("username", username), zap.String("reason", reason))
	g.notify(ctx, listeners, reason)
}

// Logout ends the session.
func (g *Guard) Logout(ctx context.Context) {
	g.Evict(ctx, ReasonLogout)
}

func (g *Guard) snapshotListeners() []Listener {
	return append([]Listener(nil), g.listeners...)
}

func (g *Guard) notify(ctx context.Context, listeners []Listener, reason string) {
	for _, fn := range listeners {
		fn(ctx, reason)
	}
}

// tokenExpiry reads the exp claim. The signature is not checked.
func tokenExpiry(token string) *time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	t := claims.ExpiresAt.Time
	return &t
}
