// Package settlement drives the review and payment of an issued invoice: document
// preview, wallet selection and payment confirmation.
package settlement

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/invoice"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/reference"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/shared"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/api"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/storage"
)

// State is the workflow state.
type State string

const (
	StateClosed           State = "closed"
	StatePreviewLoading   State = "preview_loading"
	StatePreviewReady     State = "preview_ready"
	StatePreviewFailed    State = "preview_failed"
	StateWalletPromptOpen State = "wallet_prompt_open"
	StateSubmitting       State = "submitting"
)

// WalletState is the wallet list state while the prompt is open.
type WalletState string

const (
	WalletsIdle    WalletState = ""
	WalletsLoading WalletState = "loading"
	WalletsReady   WalletState = "ready"
	WalletsFailed  WalletState = "failed"
	WalletsEmpty   WalletState = "empty"
)

// User-facing messages.
const (
	MsgSelectWallet   = "Пожалуйста, выберите кошелек"
	MsgNoWallets      = "Кошельки не найдены"
	MsgPromptReceived = "Укажите кошелек, на который поступили средства"
	MsgPromptPaidOut  = "Укажите кошелек, с которого будут списаны средства"
)

var (
	ErrAlreadyPaid    = shared.NewDomainError(shared.CodeAlreadyProcessed, "Счет уже оплачен")
	ErrInFlight       = shared.NewDomainError(shared.CodeInFlight, "Операция уже выполняется")
	ErrWalletRequired = shared.NewDomainError(shared.CodeWalletRequired, MsgSelectWallet)
	ErrUnknownWallet  = shared.NewDomainError(shared.CodeValidation, "Выберите действительный кошелёк")
	ErrNoDocument     = shared.NewDomainError(shared.CodeDocumentMissing, "Документ не загружен")
)

// Settlement outcomes recorded in metrics.
const (
	OutcomePaid   = "paid"
	OutcomeFailed = "failed"
)

// Backend is the part of the API client the workflow calls.
type Backend interface {
	InvoicePDF(ctx context.Context, id int64) ([]byte, error)
	Wallets(ctx context.Context) ([]reference.Wallet, error)
	PayInvoice(ctx context.Context, invoiceID, walletID int64) error
}

// DocumentStore keeps fetched documents until they are released.
type DocumentStore interface {
	Put(name string, data []byte) (*storage.Document, error)
}

// Sharer publishes a document and returns a link to it.
type Sharer interface {
	Share(ctx context.Context, key string, doc *storage.Document) (string, error)
}

// Recorder counts settlement attempts.
type Recorder interface {
	RecordSettlement(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordSettlement(string) {}

// ConfirmListener runs after an invoice is paid.
type ConfirmListener func(ctx context.Context, inv invoice.Invoice)

// DocumentInfo describes the previewed document.
type DocumentInfo struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

// View is a snapshot of the workflow for display.
type View struct {
	State          State              `json:"state"`
	Invoice        *invoice.Invoice   `json:"invoice,omitempty"`
	Document       *DocumentInfo      `json:"document,omitempty"`
	PreviewError   string             `json:"preview_error,omitempty"`
	CanPay         bool               `json:"can_pay"`
	Prompt         string             `json:"prompt,omitempty"`
	WalletState    WalletState        `json:"wallet_state,omitempty"`
	Wallets        []reference.Wallet `json:"wallets,omitempty"`
	WalletError    string             `json:"wallet_error,omitempty"`
	SelectedWallet int64              `json:"selected_wallet,omitempty"`
	FieldError     string             `json:"field_error,omitempty"`
	PaymentError   string             `json:"payment_error,omitempty"`
	ShareLink      string             `json:"share_link,omitempty"`
}

// Workflow is the settlement state machine for one invoice at a time.
//
// Every request captures the generation token current when it started. A response
// whose token no longer matches belongs to a closed or replaced preview and is dropped.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Workflow struct {
	backend  Backend
	docs     DocumentStore
	sharer   Sharer
	catalog  reference.Catalog
	recorder Recorder
	refresh  func(ctx context.Context) error
	logger   *zap.Logger

	mu          sync.Mutex
	confirmFns  []ConfirmListener
	closeFns    []func()
	state       State
	inv         *invoice.Invoice
	doc         *storage.Document
	previewErr  string
	walletState WalletState
	wallets     []reference.Wallet
	walletErr   string
	selected    int64
	fieldErr    string
	paymentErr  string
	shareLink   string
	token       uint64
	walletToken uint64
	paid        map[int64]bool
}

// Option configures a Workflow
type Option func(*Workflow)

// WithSharer enables share links.
func WithSharer(s Sharer) Option {
	return func(w *Workflow) { w.sharer = s }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(w *Workflow) { w.recorder = r }
}

// WithRefresh sets the invoice-list refresh run after a payment.
func WithRefresh(fn func(ctx context.Context) error) Option {
	return func(w *Workflow) { w.refresh = fn }
}

// WithCatalog sets the catalog used to tell invoice directions apart.
func WithCatalog(c reference.Catalog) Option {
	return func(w *Workflow) { w.catalog = c }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(w *Workflow) { w.logger = l.Named("settlement") }
}

// NewWorkflow creates a closed workflow.
func NewWorkflow(backend Backend, docs DocumentStore, opts ...Option) *Workflow {
	w := &Workflow{
		backend:  backend,
		docs:     docs,
		catalog:  reference.DefaultCatalog(),
		recorder: nopRecorder{},
		logger:   zap.NewNop(),
		state:    StateClosed,
		paid:     make(map[int64]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnConfirm registers a listener run after each successful payment.
func (w *Workflow) OnConfirm(fn ConfirmListener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.confirmFns = append(w.confirmFns, fn)
}

// OnClose registers a listener run whenever an open workflow closes.
func (w *Workflow) OnClose(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeFns = append(w.closeFns, fn)
}

// Open starts previewing inv, replacing any open preview. It fetches the document and
// returns the fetch error, which is also held in the view.
func (w *Workflow) Open(ctx context.Context, inv invoice.Invoice) error {
	w.mu.Lock()
	if w.state == StatePreviewLoading && w.inv != nil && w.inv.ID == inv.ID {
		w.mu.Unlock()
		return ErrInFlight
	}
	w.resetLocked()
	if w.paid[inv.ID] {
		inv.IsPaid = true
	}
	w.inv = &inv
	w.state = StatePreviewLoading
	token := w.token
	w.mu.Unlock()

	data, err := w.backend.InvoicePDF(ctx, inv.ID)
	var doc *storage.Document
	if err == nil {
		doc, err = w.docs.Put(fmt.Sprintf("invoice-%d.pdf", inv.ID), data)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.token != token {
		w.logger.Debug("dropping stale preview", zap.Int64("invoice_id", inv.ID))
		w.release(doc)
		return err
	}
	if err != nil {
		w.state = StatePreviewFailed
		w.previewErr = api.Message(err, api.MsgPDFFailed)
		return err
	}
	w.doc = doc
	w.state = StatePreviewReady
	return nil
}

// BeginPayment opens the wallet prompt and loads the wallets.
func (w *Workflow) BeginPayment(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StatePreviewReady {
		w.mu.Unlock()
		return shared.ErrInvalidState
	}
	if w.inv.IsPaid {
		w.mu.Unlock()
		return ErrAlreadyPaid
	}
	w.state = StateWalletPromptOpen
	w.selected = 0
	w.fieldErr = ""
	w.paymentErr = ""
	token := w.startWalletLoadLocked()
	w.mu.Unlock()

	return w.loadWallets(ctx, token)
}

// RetryWallets reloads the wallets after a failed or empty load.
func (w *Workflow) RetryWallets(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StateWalletPromptOpen || (w.walletState != WalletsFailed && w.walletState != WalletsEmpty) {
		w.mu.Unlock()
		return shared.ErrInvalidState
	}
	token := w.startWalletLoadLocked()
	w.mu.Unlock()

	return w.loadWallets(ctx, token)
}

func (w *Workflow) startWalletLoadLocked() uint64 {
	w.walletToken++
	w.walletState = WalletsLoading
	w.walletErr = ""
	w.wallets = nil
	return w.walletToken
}

func (w *Workflow) loadWallets(ctx context.Context, token uint64) error {
	ws, err := w.backend.Wallets(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	if token != w.walletToken || w.state != StateWalletPromptOpen {
		return nil
	}
	switch {
	case err != nil:
		w.walletState = WalletsFailed
		w.walletErr = api.Message(err, api.MsgWalletsFailed)
		return err
	case len(ws) == 0:
		w.walletState = WalletsEmpty
		w.walletErr = MsgNoWallets
	default:
		w.walletState = WalletsReady
		w.wallets = ws
	}
	return nil
}

// SelectWallet picks the wallet to settle from. The id must be one of the loaded wallets.
func (w *Workflow) SelectWallet(id int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateWalletPromptOpen {
		return shared.ErrInvalidState
	}
	found := false
	for _, wl := range w.wallets {
		if wl.ID == id {
			found = true
			break
		}
	}
	if !found {
		return ErrUnknownWallet
	}
	w.selected = id
	w.fieldErr = ""
	w.paymentErr = ""
	return nil
}

// CancelPayment closes the wallet prompt and returns to the preview.
func (w *Workflow) CancelPayment() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case StateSubmitting:
		return ErrInFlight
	case StateWalletPromptOpen:
	default:
		return shared.ErrInvalidState
	}
	w.state = StatePreviewReady
	w.walletToken++
	w.clearPromptLocked()
	return nil
}

// Confirm marks the invoice paid from the selected wallet. On success the refresh and
// confirm listeners run and the workflow closes. On failure the prompt stays open with
// the message.
func (w *Workflow) Confirm(ctx context.Context) error {
	w.mu.Lock()
	switch w.state {
	case StateSubmitting:
		w.mu.Unlock()
		return ErrInFlight
	case StateWalletPromptOpen:
	default:
		w.mu.Unlock()
		return shared.ErrInvalidState
	}
	if w.selected == 0 {
		w.fieldErr = MsgSelectWallet
		w.mu.Unlock()
		return ErrWalletRequired
	}
	w.state = StateSubmitting
	w.paymentErr = ""
	inv := *w.inv
	walletID := w.selected
	token := w.token
	w.mu.Unlock()

	if err := w.backend.PayInvoice(ctx, inv.ID, walletID); err != nil {
		w.recorder.RecordSettlement(OutcomeFailed)
		w.mu.Lock()
		if w.token == token && w.state == StateSubmitting {
			w.state = StateWalletPromptOpen
			w.paymentErr = api.Message(err, api.MsgPayInvoiceFailed)
		}
		w.mu.Unlock()
		return err
	}

	w.recorder.RecordSettlement(OutcomePaid)
	w.mu.Lock()
	w.paid[inv.ID] = true
	listeners := append([]ConfirmListener(nil), w.confirmFns...)
	w.mu.Unlock()

	w.logger.Info("invoice paid", zap.Int64("invoice_id", inv.ID), zap.Int64("wallet_id", walletID))
	inv.IsPaid = true

	if w.refresh != nil {
		if err := w.refresh(ctx); err != nil {
			w.logger.Warn("invoice refresh after payment failed", zap.Error(err))
		}
	}
	for _, fn := range listeners {
		fn(ctx, inv)
	}

	w.mu.Lock()
	closed := false
	if w.token == token {
		closed = w.closeLocked()
	}
	fns := append([]func(){}, w.closeFns...)
	w.mu.Unlock()
	if closed {
		runAll(fns)
	}
	return nil
}

// Close releases the document and discards any pending response. It is valid in every
// state.
func (w *Workflow) Close() {
	w.mu.Lock()
	closed := w.closeLocked()
	fns := append([]func(){}, w.closeFns...)
	w.mu.Unlock()
	if closed {
		runAll(fns)
	}
}

// ShareLink publishes the previewed document and returns a download link. The link is
// remembered for the open preview.
func (w *Workflow) ShareLink(ctx context.Context) (string, error) {
	w.mu.Lock()
	if w.sharer == nil {
		w.mu.Unlock()
		return "", storage.ErrSharingDisabled
	}
	if w.doc == nil {
		w.mu.Unlock()
		return "", ErrNoDocument
	}
	if w.shareLink != "" {
		link := w.shareLink
		w.mu.Unlock()
		return link, nil
	}
	doc := w.doc
	if err := doc.Acquire(); err != nil {
		w.mu.Unlock()
		return "", ErrNoDocument
	}
	id := w.inv.ID
	token := w.token
	w.mu.Unlock()

	link, err := w.sharer.Share(ctx, fmt.Sprintf("%d/%s.pdf", id, uuid.NewString()), doc)
	w.done(doc)
	if err != nil {
		return "", err
	}

	w.mu.Lock()
	if w.token == token {
		w.shareLink = link
	}
	w.mu.Unlock()
	return link, nil
}

// Document returns the previewed document.
func (w *Workflow) Document() (*storage.Document, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.doc == nil {
		return nil, ErrNoDocument
	}
	return w.doc, nil
}

// ReadDocument returns the download name and bytes of the previewed document. A Close
// racing the read does not remove the file before the read completes.
func (w *Workflow) ReadDocument() (string, []byte, error) {
	w.mu.Lock()
	doc := w.doc
	if doc == nil || doc.Acquire() != nil {
		w.mu.Unlock()
		return "", nil, ErrNoDocument
	}
	w.mu.Unlock()
	defer w.done(doc)

	data, err := doc.Bytes()
	if err != nil {
		return "", nil, ErrNoDocument
	}
	return doc.Name(), data, nil
}

// IsPaid reports whether id was paid through this workflow.
func (w *Workflow) IsPaid(id int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paid[id]
}

// View returns a snapshot of the workflow.
func (w *Workflow) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()

	v := View{
		State:          w.state,
		PreviewError:   w.previewErr,
		WalletState:    w.walletState,
		Wallets:        append([]reference.Wallet(nil), w.wallets...),
		WalletError:    w.walletErr,
		SelectedWallet: w.selected,
		FieldError:     w.fieldErr,
		PaymentError:   w.paymentErr,
		ShareLink:      w.shareLink,
	}
	if w.inv != nil {
		inv := *w.inv
		v.Invoice = &inv
		v.CanPay = w.state == StatePreviewReady && !inv.IsPaid
		if w.state == StateWalletPromptOpen || w.state == StateSubmitting {
			v.Prompt = w.prompt(inv)
		}
	}
	if w.doc != nil {
		v.Document = &DocumentInfo{Name: w.doc.Name(), Size: w.doc.Size()}
	}
	return v
}

func (w *Workflow) prompt(inv invoice.Invoice) string {
	if w.catalog.KindOf(inv.OperationType.Name) == reference.KindIssueInvoice {
		return MsgPromptReceived
	}
	return MsgPromptPaidOut
}

func (w *Workflow) closeLocked() bool {
	wasOpen := w.state != StateClosed
	w.resetLocked()
	return wasOpen
}

// resetLocked returns to Closed and invalidates every pending response.
func (w *Workflow) resetLocked() {
	w.release(w.doc)
	w.token++
	w.walletToken++
	w.state = StateClosed
	w.inv = nil
	w.doc = nil
	w.previewErr = ""
	w.shareLink = ""
	w.clearPromptLocked()
}

func (w *Workflow) clearPromptLocked() {
	w.walletState = WalletsIdle
	w.wallets = nil
	w.walletErr = ""
	w.selected = 0
	w.fieldErr = ""
	w.paymentErr = ""
}

func (w *Workflow) release(doc *storage.Document) {
	if doc == nil {
		return
	}
	if err := doc.Release(); err != nil {
		w.logger.Warn("failed to release document", zap.String("path", doc.Path()), zap.Error(err))
	}
}

func (w *Workflow) done(doc *storage.Document) {
	if err := doc.Done(); err != nil {
		w.logger.Warn("failed to release document", zap.String("path", doc.Path()), zap.Error(err))
	}
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
