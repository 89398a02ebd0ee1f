package form

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/entry"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/invoice"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/reference"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/shared"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/validation"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/api"
)

// MsgInvoiceNotLoaded is shown when the created invoice cannot be found.
const MsgInvoiceNotLoaded = "Не удалось загрузить созданный счет"

// ErrSubmissionInFlight rejects a submit while another is running.
var ErrSubmissionInFlight = shared.NewDomainError(shared.CodeInFlight, "Форма уже отправляется")

// Submission outcomes recorded in metrics.
const (
	OutcomeSuccess       = "success"
	OutcomeInvalid       = "validation_error"
	OutcomePrecondition  = "precondition_error"
	OutcomeBackendError  = "backend_error"
	OutcomeUnauthorized  = "unauthorized"
	OutcomeReferenceFail = "reference_error"
)

// Outcome describes an accepted submission.
type Outcome struct {
	Kind    reference.OperationKind `json:"kind"`
	Payload entry.Payload           `json:"payload"`
	// Invoice is the invoice handed to settlement, set for invoice kinds only.
	Invoice *invoice.Invoice `json:"invoice,omitempty"`
	// Warning is set when the submission went through but a follow-up step failed.
	Warning string `json:"warning,omitempty"`
}

// Submit validates the draft, resolves it into a payload and sends it. Failures are
// reported both as the returned error and as the form's banner or field errors. The
// draft is reset only after the backend accepts it, and only if it was not edited
// while the request was in flight.
func (s *Store) Submit(ctx context.Context) (*Outcome, error) {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	s.submitting = true
	s.success = false
	s.holdSuccess = false
	s.errMsg = ""
	draft := s.draft
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.submitting = false
		s.mu.Unlock()
	}()

	username := s.session.Username()
	if username == "" {
		return nil, shared.ErrNoSession
	}

	ref, err := s.refs.Get(ctx, username)
	if err != nil {
		s.recorder.RecordSubmission(reference.KindUnknown.String(), OutcomeReferenceFail)
		if !api.IsUnauthorized(err) {
			s.setError(api.Message(err, api.MsgFormDataFailed))
		}
		return nil, err
	}

	schema := validation.Select(draft, ref)
	if errs := schema.Validate(draft); len(errs) > 0 {
		s.mu.Lock()
		s.fieldErrs = errs
		s.setErrorLocked(validation.MsgFormInvalid)
		s.mu.Unlock()
		s.recorder.RecordSubmission(schema.Kind.String(), OutcomeInvalid)
		return nil, &validation.Error{Fields: errs}
	}

	res, err := entry.Resolve(draft, ref, username)
	if err != nil {
		s.setError(err.Error())
		s.recorder.RecordSubmission(schema.Kind.String(), OutcomePrecondition)
		return nil, err
	}
	kind := res.Kind.String()

	if err := s.backend.Submit(ctx, res.Payload); err != nil {
		if api.IsUnauthorized(err) {
			s.recorder.RecordSubmission(kind, OutcomeUnauthorized)
			return nil, err
		}
		s.setError(api.Message(err, api.MsgSubmitFailed))
		s.recorder.RecordSubmission(kind, OutcomeBackendError)
		s.logger.Warn("submission rejected", zap.String("kind", kind), zap.Error(err))
		return nil, err
	}
	s.recorder.RecordSubmission(kind, OutcomeSuccess)
	s.logger.Info("submission accepted", zap.String("kind", kind), zap.String("username", username))

	s.mu.Lock()
	if s.draft == draft {
		s.draft = entry.NewDraft(s.now())
		s.fieldErrs = nil
	} else {
		s.logger.Debug("draft edited during submission, keeping the edits")
	}
	s.setSuccessLocked(res.Kind.IssuesInvoice() && s.settlement != nil)
	s.mu.Unlock()

	out := &Outcome{Kind: res.Kind, Payload: res.Payload}
	if !res.Kind.IssuesInvoice() || s.settlement == nil {
		return out, nil
	}

	inv, err := s.latestInvoice(ctx)
	if err != nil {
		s.logger.Warn("created invoice not found", zap.Error(err))
		s.ReleaseSuccess()
		s.setError(MsgInvoiceNotLoaded)
		out.Warning = MsgInvoiceNotLoaded
		return out, nil
	}
	out.Invoice = &inv

	// The preview outcome is held in the settlement view.
	if err := s.settlement.Open(ctx, inv); err != nil {
		s.logger.Warn("invoice preview failed", zap.Int64("invoice_id", inv.ID), zap.Error(err))
	}
	return out, nil
}

var errNoInvoices = errors.New("invoice list is empty")

func (s *Store) latestInvoice(ctx context.Context) (invoice.Invoice, error) {
	list, err := s.backend.Invoices(ctx)
	if err != nil {
		return invoice.Invoice{}, err
	}
	inv, ok := list.Latest()
	if !ok {
		return invoice.Invoice{}, errNoInvoices
	}
	return inv, nil
}
