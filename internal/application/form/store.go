// Package form holds the draft being edited and runs its submission.
package form

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/entry"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/invoice"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/reference"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/shared"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/validation"
)

// Backend is the part of the API client the store calls.
type Backend interface {
	Submit(ctx context.Context, p entry.Payload) error
	Invoices(ctx context.Context) (invoice.List, error)
}

// ReferenceSource serves the session's reference data.
type ReferenceSource interface {
	Get(ctx context.Context, scope string) (*reference.Data, error)
	Peek() *reference.Data
}

// Session names the signed-in user.
type Session interface {
	Username() string
}

// Settlement receives the invoice created by a successful submission.
type Settlement interface {
	Open(ctx context.Context, inv invoice.Invoice) error
}

// Recorder counts submissions.
type Recorder interface {
	RecordSubmission(kind, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordSubmission(string, string) {}

// Config holds banner lifetimes.
type Config struct {
	SuccessTTL time.Duration
	ErrorTTL   time.Duration
}

// View is a snapshot of the form for display.
type View struct {
	Draft          entry.Draft             `json:"draft"`
	Kind           reference.OperationKind `json:"kind"`
	FieldErrors    validation.FieldErrors  `json:"field_errors,omitempty"`
	RequiredFields []entry.Field           `json:"required_fields"`
	Filled         bool                    `json:"filled"`
	Submitting     bool                    `json:"submitting"`
	Success        bool                    `json:"success"`
	Error          string                  `json:"error,omitempty"`
}

// Store owns the draft. Every edit goes through Update.
//
// Thread Safety: Safe for concurrent use. Network calls run without the lock held.
type Store struct {
	backend    Backend
	refs       ReferenceSource
	session    Session
	settlement Settlement
	recorder   Recorder
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time

	mu          sync.Mutex
	draft       entry.Draft
	fieldErrs   validation.FieldErrors
	success     bool
	holdSuccess bool
	errMsg      string
	submitting  bool
	successGen  uint64
	errGen      uint64
}

// Option configures a Store
type Option func(*Store)

// WithSettlement hands created invoices to s.
func WithSettlement(s Settlement) Option {
	return func(st *Store) { st.settlement = s }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(st *Store) { st.recorder = r }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(st *Store) { st.logger = l.Named("form") }
}

// WithClock overrides time.Now, used for the default issue date.
func WithClock(now func() time.Time) Option {
	return func(st *Store) { st.now = now }
}

// NewStore creates a store holding the default draft.
func NewStore(backend Backend, refs ReferenceSource, session Session, cfg Config, opts ...Option) *Store {
	if cfg.SuccessTTL <= 0 {
		cfg.SuccessTTL = 3 * time.Second
	}
	if cfg.ErrorTTL <= 0 {
		cfg.ErrorTTL = 3 * time.Second
	}
	s := &Store{
		backend:  backend,
		refs:     refs,
		session:  session,
		recorder: nopRecorder{},
		cfg:      cfg,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.draft = entry.NewDraft(s.now())
	return s
}

// Reference returns the session's reference data, loading it on first use.
func (s *Store) Reference(ctx context.Context) (*reference.Data, error) {
	username := s.session.Username()
	if username == "" {
		return nil, shared.ErrNoSession
	}
	return s.refs.Get(ctx, username)
}

// Update sets one field and applies the cascade. Errors of every changed field are
// cleared. It returns the changed fields.
func (s *Store) Update(field entry.Field, value string) []entry.Field {
	ref := s.refs.Peek()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(field, value, ref)
}

// UpdateMany applies several edits in form order, so that a company or operation change
// lands before the category and article that depend on it.
func (s *Store) UpdateMany(values map[entry.Field]string) []entry.Field {
	ref := s.refs.Peek()

	s.mu.Lock()
	defer s.mu.Unlock()
	var changed []entry.Field
	for _, f := range entry.Fields {
		if v, ok := values[f]; ok {
			changed = append(changed, s.updateLocked(f, v, ref)...)
		}
	}
	return changed
}

func (s *Store) updateLocked(field entry.Field, value string, ref *reference.Data) []entry.Field {
	var kinds entry.KindResolver
	if ref != nil {
		kinds = ref
	}
	changed := s.draft.Set(field, value, kinds)
	for _, f := range changed {
		delete(s.fieldErrs, f)
	}
	return changed
}

// Draft returns a copy of the draft.
func (s *Store) Draft() entry.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// View returns a snapshot of the form.
func (s *Store) View() View {
	ref := s.refs.Peek()

	s.mu.Lock()
	defer s.mu.Unlock()
	schema := validation.Select(s.draft, ref)
	errs := make(validation.FieldErrors, len(s.fieldErrs))
	for f, msg := range s.fieldErrs {
		errs[f] = msg
	}
	return View{
		Draft:          s.draft,
		Kind:           schema.Kind,
		FieldErrors:    errs,
		RequiredFields: schema.RequiredFields(),
		Filled:         schema.Filled(s.draft),
		Submitting:     s.submitting,
		Success:        s.success,
		Error:          s.errMsg,
	}
}

// Reset restores the default draft and clears errors and banners.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = entry.NewDraft(s.now())
	s.fieldErrs = nil
	s.success = false
	s.holdSuccess = false
	s.errMsg = ""
	s.successGen++
	s.errGen++
}

// Teardown resets the form when the session ends.
func (s *Store) Teardown(_ context.Context, reason string) {
	s.logger.Debug("resetting form", zap.String("reason", reason))
	s.Reset()
}

// MarkPaid records a settled invoice on the draft status.
func (s *Store) MarkPaid(_ context.Context, _ invoice.Invoice) {
	s.Update(entry.FieldStatus, entry.StatusPaid)
}

// ReleaseSuccess ends a success banner held open for the settlement workflow.
func (s *Store) ReleaseSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holdSuccess {
		s.holdSuccess = false
		s.success = false
		s.successGen++
	}
}

func (s *Store) setSuccessLocked(hold bool) {
	s.success = true
	s.holdSuccess = hold
	s.successGen++
	if hold {
		return
	}
	gen := s.successGen
	time.AfterFunc(s.cfg.SuccessTTL, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.successGen == gen {
			s.success = false
		}
	})
}

func (s *Store) setErrorLocked(msg string) {
	s.errMsg = msg
	s.errGen++
	gen := s.errGen
	time.AfterFunc(s.cfg.ErrorTTL, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.errGen == gen {
			s.errMsg = ""
		}
	})
}

func (s *Store) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErrorLocked(msg)
}
