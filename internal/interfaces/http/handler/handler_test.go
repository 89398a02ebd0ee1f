package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataProRU/Auto-transfers-accounting/internal/application/form"
	"github.com/DataProRU/Auto-transfers-accounting/internal/application/session"
	"github.com/DataProRU/Auto-transfers-accounting/internal/application/settlement"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/entry"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/invoice"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/reference"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/shared"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/api"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/cache"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/storage"
	"github.com/DataProRU/Auto-transfers-accounting/internal/interfaces/http/middleware"
)

type registrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

func newEngine(regs ...registrar) *gin.Engine {
	e := gin.New()
	e.Use(middleware.RequestID())
	g := e.Group("/api/v1")
	for _, r := range regs {
		r.RegisterRoutes(g)
	}
	return e
}

func do(t *testing.T, e *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

// dataOf re-decodes the envelope data into out.
func dataOf(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	require.True(t, env.Success, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, out))
}

// session

type fakeGuard struct {
	mu       sync.Mutex
	username string
	loginErr error
	valid    bool
}

func (g *fakeGuard) Login(_ context.Context, username, _ string) error {
	if g.loginErr != nil {
		return g.loginErr
	}
	g.mu.Lock()
	g.username = username
	g.mu.Unlock()
	return nil
}

func (g *fakeGuard) Logout(context.Context) {
	g.mu.Lock()
	g.username = ""
	g.mu.Unlock()
}

func (g *fakeGuard) Current() (session.Info, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.username == "" {
		return session.Info{}, shared.ErrNoSession
	}
	return session.Info{Username: g.username}, nil
}

func (g *fakeGuard) Check(context.Context) (bool, error) {
	if !g.valid {
		g.Logout(context.Background())
	}
	return g.valid, nil
}

func TestSessionHandler(t *testing.T) {
	g := &fakeGuard{valid: true}
	e := newEngine(NewSessionHandler(g))

	w := do(t, e, http.MethodGet, "/api/v1/session", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, e, http.MethodPost, "/api/v1/session/login", map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, e, http.MethodPost, "/api/v1/session/login", map[string]string{"username": "alice", "password": "pw"})
	require.Equal(t, http.StatusOK, w.Code)
	var info session.Info
	dataOf(t, w, &info)
	assert.Equal(t, "alice", info.Username)

	w = do(t, e, http.MethodGet, "/api/v1/session?verify=true", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	g.valid = false
	w = do(t, e, http.MethodGet, "/api/v1/session?verify=true", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, e, http.MethodGet, "/api/v1/session", nil).Code)
}

func TestSessionHandler_BadCredentials(t *testing.T) {
	g := &fakeGuard{loginErr: &api.Error{Status: http.StatusUnauthorized, Endpoint: "login", Message: api.MsgLoginInvalid}}
	e := newEngine(NewSessionHandler(g))

	w := do(t, e, http.MethodPost, "/api/v1/session/login", map[string]string{"username": "alice", "password": "bad"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, api.MsgLoginInvalid, resp.Error.Message)
}

// form

type formBackend struct {
	mu       sync.Mutex
	payloads []entry.Payload
}

func (b *formBackend) Submit(_ context.Context, p entry.Payload) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, p)
	return nil
}

func (b *formBackend) Invoices(context.Context) (invoice.List, error) {
	return invoice.List{}, nil
}

type sampleRefs struct{}

func (sampleRefs) Get(context.Context, string) (*reference.Data, error) {
	return reference.MustLoadSample(), nil
}

func (sampleRefs) Peek() *reference.Data { return reference.MustLoadSample() }

type principal string

func (p principal) Username() string { return string(p) }

func newFormEngine(b *formBackend) *gin.Engine {
	s := form.NewStore(b, sampleRefs{}, principal("alice"), form.Config{SuccessTTL: time.Minute, ErrorTTL: time.Minute})
	return newEngine(NewFormHandler(s))
}

func TestFormHandler_UpdateAndReference(t *testing.T) {
	e := newFormEngine(&formBackend{})

	w := do(t, e, http.MethodPatch, "/api/v1/form", map[string]any{
		"values": map[string]string{"company": "1", "operation": "1"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var upd struct {
		Form form.View `json:"form"`
	}
	dataOf(t, w, &upd)
	assert.Equal(t, "1", upd.Form.Draft.Company)
	assert.Equal(t, reference.KindIncome, upd.Form.Kind)

	w = do(t, e, http.MethodGet, "/api/v1/form/reference", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ref struct {
		Options    map[string][]reference.Option `json:"options"`
		Categories []string                      `json:"categories"`
	}
	dataOf(t, w, &ref)
	assert.Equal(t, []string{"Sales"}, ref.Categories)
	assert.NotEmpty(t, ref.Options)
}

func TestFormHandler_UnknownField(t *testing.T) {
	e := newFormEngine(&formBackend{})

	w := do(t, e, http.MethodPatch, "/api/v1/form", map[string]any{
		"values": map[string]string{"colour": "red"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFormHandler_Submit(t *testing.T) {
	b := &formBackend{}
	e := newFormEngine(b)

	w := do(t, e, http.MethodPost, "/api/v1/form/submit", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, shared.CodeValidation, resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "company")

	do(t, e, http.MethodPatch, "/api/v1/form", map[string]any{"values": map[string]string{
		"company":      "1",
		"operation":    "1",
		"amount":       "250",
		"currency":     "USD",
		"payment_type": "1",
		"date_finish":  "2026-03-12",
		"wallet":       "7",
	}})

	w = do(t, e, http.MethodPost, "/api/v1/form/submit", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out form.Outcome
	dataOf(t, w, &out)
	assert.Equal(t, reference.KindIncome, out.Kind)
	require.Len(t, b.payloads, 1)
	assert.Equal(t, "alice", b.payloads[0].Username)
	assert.Equal(t, int64(7), b.payloads[0].WalletID)

	w = do(t, e, http.MethodGet, "/api/v1/form", nil)
	var view form.View
	dataOf(t, w, &view)
	assert.True(t, view.Success)
	assert.Empty(t, view.Draft.Amount)
}

// invoices and settlement

type invoiceList struct {
	items []invoice.Invoice
}

func (l invoiceList) Invoices(context.Context) (invoice.List, error) {
	return invoice.List{Items: l.items, Total: len(l.items)}, nil
}

func (l invoiceList) Refresh(ctx context.Context) (invoice.List, error) {
	return l.Invoices(ctx)
}

type settleBackend struct {
	mu     sync.Mutex
	pdfErr error
	paid   map[int64]int64
}

func (b *settleBackend) InvoicePDF(context.Context, int64) ([]byte, error) {
	if b.pdfErr != nil {
		return nil, b.pdfErr
	}
	return []byte("%PDF-1.4 test"), nil
}

func (b *settleBackend) Wallets(context.Context) ([]reference.Wallet, error) {
	return []reference.Wallet{{ID: 7, Name: "Main"}, {ID: 8, Name: "Reserve"}}, nil
}

func (b *settleBackend) PayInvoice(_ context.Context, invoiceID, walletID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paid[invoiceID] = walletID
	return nil
}

func sampleInvoices() invoiceList {
	return invoiceList{items: []invoice.Invoice{
		{
			ID:            15,
			Company:       invoice.Ref{ID: 1, Name: "Alpha Logistics"},
			Counterparty:  invoice.CounterpartyRef{ID: 31, FullName: "ООО Ромашка"},
			Currency:      invoice.CurrencyRef{ID: 1, Code: "KGS", Symbol: "с"},
			OperationType: invoice.Ref{ID: 4, Name: "Выставить счёт"},
			Date:          "2026-03-01",
			Amount:        decimal.NewFromInt(1000),
		},
		{
			ID:            16,
			Company:       invoice.Ref{ID: 1, Name: "Alpha Logistics"},
			Counterparty:  invoice.CounterpartyRef{ID: 32, FullName: "ИП Иванов"},
			Currency:      invoice.CurrencyRef{ID: 1, Code: "KGS", Symbol: "с"},
			OperationType: invoice.Ref{ID: 4, Name: "Выставить счёт"},
			Date:          "2026-03-02",
			Amount:        decimal.NewFromInt(500),
		},
	}}
}

func newSettlementEngine(t *testing.T, b *settleBackend) (*gin.Engine, *settlement.Workflow) {
	t.Helper()
	docs, err := storage.NewTempStore(t.TempDir(), nil)
	require.NoError(t, err)
	w := settlement.NewWorkflow(b, docs)
	inv := sampleInvoices()
	return newEngine(NewSettlementHandler(w, inv), NewInvoiceHandler(inv, w)), w
}

func TestSettlementHandler_PayFlow(t *testing.T) {
	b := &settleBackend{paid: map[int64]int64{}}
	e, _ := newSettlementEngine(t, b)

	w := do(t, e, http.MethodPost, "/api/v1/settlement/open", map[string]int64{"invoice_id": 15})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var view settlement.View
	dataOf(t, w, &view)
	assert.Equal(t, settlement.StatePreviewReady, view.State)
	assert.True(t, view.CanPay)

	w = do(t, e, http.MethodGet, "/api/v1/settlement/document", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.4 test", w.Body.String())

	w = do(t, e, http.MethodPost, "/api/v1/settlement/pay", nil)
	require.Equal(t, http.StatusOK, w.Code)
	dataOf(t, w, &view)
	assert.Equal(t, settlement.StateWalletPromptOpen, view.State)
	assert.Equal(t, settlement.MsgPromptReceived, view.Prompt)
	assert.Len(t, view.Wallets, 2)

	w = do(t, e, http.MethodPost, "/api/v1/settlement/confirm", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, shared.CodeWalletRequired, decodeResponse(t, w).Error.Code)

	w = do(t, e, http.MethodPut, "/api/v1/settlement/wallet", map[string]int64{"wallet_id": 99})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, e, http.MethodPut, "/api/v1/settlement/wallet", map[string]int64{"wallet_id": 8})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, e, http.MethodPost, "/api/v1/settlement/confirm", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	dataOf(t, w, &view)
	assert.Equal(t, settlement.StateClosed, view.State)
	assert.Equal(t, map[int64]int64{15: 8}, b.paid)

	w = do(t, e, http.MethodGet, "/api/v1/invoices?unpaid=true", nil)
	var l invoice.List
	dataOf(t, w, &l)
	require.Len(t, l.Items, 1)
	assert.Equal(t, int64(16), l.Items[0].ID)
}

func TestSettlementHandler_OpenUnknownInvoice(t *testing.T) {
	e, _ := newSettlementEngine(t, &settleBackend{paid: map[int64]int64{}})

	w := do(t, e, http.MethodPost, "/api/v1/settlement/open", map[string]int64{"invoice_id": 99})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSettlementHandler_PreviewFailure(t *testing.T) {
	b := &settleBackend{paid: map[int64]int64{}, pdfErr: &api.Error{Status: http.StatusBadGateway, Endpoint: "invoice_pdf", Message: api.MsgPDFFailed}}
	e, _ := newSettlementEngine(t, b)

	w := do(t, e, http.MethodPost, "/api/v1/settlement/open", map[string]int64{"invoice_id": 15})
	require.Equal(t, http.StatusOK, w.Code)
	var view settlement.View
	dataOf(t, w, &view)
	assert.Equal(t, settlement.StatePreviewFailed, view.State)
	assert.Equal(t, api.MsgPDFFailed, view.PreviewError)

	w = do(t, e, http.MethodGet, "/api/v1/settlement/document", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, e, http.MethodPost, "/api/v1/settlement/share", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestSettlementHandler_CloseReleasesDocument(t *testing.T) {
	e, wf := newSettlementEngine(t, &settleBackend{paid: map[int64]int64{}})

	do(t, e, http.MethodPost, "/api/v1/settlement/open", map[string]int64{"invoice_id": 16})
	doc, err := wf.Document()
	require.NoError(t, err)

	w := do(t, e, http.MethodPost, "/api/v1/settlement/close", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, doc.Released())
	assert.Equal(t, http.StatusNotFound, do(t, e, http.MethodGet, "/api/v1/settlement/document", nil).Code)
}

func TestInvoiceHandler_Summary(t *testing.T) {
	inv := sampleInvoices()
	e := newEngine(NewInvoiceHandler(inv, nil))

	w := do(t, e, http.MethodGet, "/api/v1/invoices/summary?ids=16", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var s invoice.Summary
	dataOf(t, w, &s)
	assert.Equal(t, "Alpha Logistics", s.Issuer)
	require.Len(t, s.Items, 1)
	assert.Equal(t, int64(16), s.Items[0].Invoice.ID)

	w = do(t, e, http.MethodGet, "/api/v1/invoices/summary", nil)
	dataOf(t, w, &s)
	assert.Len(t, s.Items, 2)

	assert.Equal(t, http.StatusBadRequest, do(t, e, http.MethodGet, "/api/v1/invoices/summary?ids=x", nil).Code)
}

type issuedInvoices struct {
	mu    sync.Mutex
	items []invoice.Invoice
	calls int
}

func (b *issuedInvoices) Invoices(context.Context) (invoice.List, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	items := append([]invoice.Invoice(nil), b.items...)
	return invoice.List{Items: items, Total: len(items)}, nil
}

func (b *issuedInvoices) issue(inv invoice.Invoice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, inv)
}

func TestInvoiceHandler_ServesMirror(t *testing.T) {
	backend := &issuedInvoices{items: sampleInvoices().items}
	mirror := cache.NewInvoiceMirror(backend, nil)
	e := newEngine(NewInvoiceHandler(mirror, nil))

	var l invoice.List
	dataOf(t, do(t, e, http.MethodGet, "/api/v1/invoices", nil), &l)
	assert.Len(t, l.Items, 2)

	backend.issue(invoice.Invoice{ID: 17})
	dataOf(t, do(t, e, http.MethodGet, "/api/v1/invoices", nil), &l)
	assert.Len(t, l.Items, 2)
	assert.Equal(t, 1, backend.calls)

	dataOf(t, do(t, e, http.MethodGet, "/api/v1/invoices?refresh=true", nil), &l)
	assert.Len(t, l.Items, 3)
	dataOf(t, do(t, e, http.MethodGet, "/api/v1/invoices", nil), &l)
	assert.Len(t, l.Items, 3)
	assert.Equal(t, 2, backend.calls)
}

func TestSettlementHandler_OpenRefetchesMissingInvoice(t *testing.T) {
	backend := &issuedInvoices{items: sampleInvoices().items}
	mirror := cache.NewInvoiceMirror(backend, nil)
	_, err := mirror.Invoices(context.Background())
	require.NoError(t, err)

	issued := sampleInvoices().items[0]
	issued.ID = 18
	backend.issue(issued)

	docs, err := storage.NewTempStore(t.TempDir(), nil)
	require.NoError(t, err)
	wf := settlement.NewWorkflow(&settleBackend{paid: map[int64]int64{}}, docs)
	e := newEngine(NewSettlementHandler(wf, mirror))

	w := do(t, e, http.MethodPost, "/api/v1/settlement/open", map[string]int64{"invoice_id": 18})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var v settlement.View
	dataOf(t, w, &v)
	require.NotNil(t, v.Invoice)
	assert.Equal(t, int64(18), v.Invoice.ID)
	assert.Equal(t, 2, backend.calls)
}
