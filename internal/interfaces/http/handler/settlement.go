package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DataProRU/Auto-transfers-accounting/internal/application/settlement"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/invoice"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/shared"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/api"
	"github.com/DataProRU/Auto-transfers-accounting/internal/interfaces/http/dto"
)

// SettlementService is the part of settlement.Workflow the handler drives.
type SettlementService interface {
	Open(ctx context.Context, inv invoice.Invoice) error
	View() settlement.View
	ReadDocument() (string, []byte, error)
	BeginPayment(ctx context.Context) error
	RetryWallets(ctx context.Context) error
	SelectWallet(id int64) error
	CancelPayment() error
	Confirm(ctx context.Context) error
	ShareLink(ctx context.Context) (string, error)
	Close()
}

// SettlementHandler serves the invoice preview and payment dialog.
type SettlementHandler struct {
	BaseHandler
	workflow SettlementService
	invoices InvoiceSource
}

// NewSettlementHandler creates a SettlementHandler
func NewSettlementHandler(w SettlementService, invoices InvoiceSource) *SettlementHandler {
	return &SettlementHandler{workflow: w, invoices: invoices}
}

// RegisterRoutes mounts the /settlement routes.
func (h *SettlementHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/settlement")
	g.GET("", h.Get)
	g.POST("/open", h.Open)
	g.GET("/document", h.Document)
	g.POST("/pay", h.Pay)
	g.POST("/wallets/retry", h.RetryWallets)
	g.PUT("/wallet", h.SelectWallet)
	g.POST("/cancel", h.Cancel)
	g.POST("/confirm", h.Confirm)
	g.POST("/share", h.Share)
	g.POST("/close", h.Close)
}

// Get returns the dialog state.
func (h *SettlementHandler) Get(c *gin.Context) {
	h.Success(c, h.workflow.View())
}

// Open looks the invoice up and loads its preview. A failed preview is not an error:
// the view carries the message and the dialog stays open.
func (h *SettlementHandler) Open(c *gin.Context) {
	var req dto.OpenSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "invoice_id is required")
		return
	}

	inv, err := h.findInvoice(c.Request.Context(), req.InvoiceID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if inv == nil {
		h.Error(c, shared.CodeNotFound, fmt.Sprintf("Счет %d не найден", req.InvoiceID))
		return
	}

	err = h.workflow.Open(c.Request.Context(), *inv)
	if err != nil && (api.IsUnauthorized(err) || h.workflow.View().State != settlement.StatePreviewFailed) {
		h.HandleError(c, err)
		return
	}
	h.Success(c, h.workflow.View())
}

// findInvoice looks id up in the listed invoices and refetches once when it is
// missing, since it may have been issued after the list was loaded.
func (h *SettlementHandler) findInvoice(ctx context.Context, id int64) (*invoice.Invoice, error) {
	l, err := h.invoices.Invoices(ctx)
	if err != nil {
		return nil, err
	}
	if inv, ok := l.Find(id); ok {
		return &inv, nil
	}
	if l, err = h.invoices.Refresh(ctx); err != nil {
		return nil, err
	}
	if inv, ok := l.Find(id); ok {
		return &inv, nil
	}
	return nil, nil
}

// Document streams the previewed PDF.
func (h *SettlementHandler) Document(c *gin.Context) {
	name, data, err := h.workflow.ReadDocument()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	c.Data(http.StatusOK, "application/pdf", data)
}

// Pay opens the wallet prompt.
func (h *SettlementHandler) Pay(c *gin.Context) {
	h.respond(c, h.workflow.BeginPayment(c.Request.Context()))
}

// RetryWallets reloads the wallet list after a failure.
func (h *SettlementHandler) RetryWallets(c *gin.Context) {
	h.respond(c, h.workflow.RetryWallets(c.Request.Context()))
}

// SelectWallet picks the wallet to settle from.
func (h *SettlementHandler) SelectWallet(c *gin.Context) {
	var req dto.SelectWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "wallet_id is required")
		return
	}
	h.respond(c, h.workflow.SelectWallet(req.WalletID))
}

// Cancel closes the wallet prompt and keeps the preview.
func (h *SettlementHandler) Cancel(c *gin.Context) {
	h.respond(c, h.workflow.CancelPayment())
}

// Confirm pays the invoice from the selected wallet. A rejected payment returns the
// backend message and leaves the prompt open for another attempt.
func (h *SettlementHandler) Confirm(c *gin.Context) {
	h.respond(c, h.workflow.Confirm(c.Request.Context()))
}

// Share uploads the previewed document and returns a presigned link.
func (h *SettlementHandler) Share(c *gin.Context) {
	link, err := h.workflow.ShareLink(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ShareResponse{URL: link})
}

// Close dismisses the dialog and releases the document.
func (h *SettlementHandler) Close(c *gin.Context) {
	h.workflow.Close()
	h.Success(c, h.workflow.View())
}

func (h *SettlementHandler) respond(c *gin.Context, err error) {
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, h.workflow.View())
}
