package handler

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/invoice"
)

// InvoiceSource lists issued invoices. Invoices may serve a mirrored list; Refresh
// refetches it.
type InvoiceSource interface {
	Invoices(ctx context.Context) (invoice.List, error)
	Refresh(ctx context.Context) (invoice.List, error)
}

// PaidSet reports invoices settled during this session, which the backend list may
// not reflect yet.
type PaidSet interface {
	IsPaid(id int64) bool
}

// InvoiceHandler serves the invoice list and its statement.
type InvoiceHandler struct {
	BaseHandler
	source InvoiceSource
	paid   PaidSet
}

// NewInvoiceHandler creates an InvoiceHandler
func NewInvoiceHandler(source InvoiceSource, paid PaidSet) *InvoiceHandler {
	return &InvoiceHandler{source: source, paid: paid}
}

// RegisterRoutes mounts the /invoices routes.
func (h *InvoiceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/invoices")
	g.GET("", h.List)
	g.GET("/summary", h.Summary)
}

// List returns issued invoices. ?unpaid=true drops settled ones, ?refresh=true
// refetches the list from the backend.
func (h *InvoiceHandler) List(c *gin.Context) {
	l, err := h.load(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, l)
}

// Summary builds the statement for ?ids=1,2,3, or for the whole list without ids.
func (h *InvoiceHandler) Summary(c *gin.Context) {
	ids, err := parseIDs(c.Query("ids"))
	if err != nil {
		h.BadRequest(c, "ids must be a comma separated list of invoice ids")
		return
	}

	l, err := h.load(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := l.Items
	if len(ids) > 0 {
		items = make([]invoice.Invoice, 0, len(ids))
		for _, id := range ids {
			if inv, ok := l.Find(id); ok {
				items = append(items, inv)
			}
		}
	}
	h.Success(c, invoice.Summarize(items))
}

func (h *InvoiceHandler) load(c *gin.Context) (invoice.List, error) {
	fetch := h.source.Invoices
	if refresh, _ := strconv.ParseBool(c.Query("refresh")); refresh {
		fetch = h.source.Refresh
	}
	l, err := fetch(c.Request.Context())
	if err != nil {
		return invoice.List{}, err
	}

	unpaid, _ := strconv.ParseBool(c.Query("unpaid"))
	items := make([]invoice.Invoice, 0, len(l.Items))
	for _, inv := range l.Items {
		if h.paid != nil && h.paid.IsPaid(inv.ID) {
			inv.IsPaid = true
		}
		if unpaid && inv.IsPaid {
			continue
		}
		items = append(items, inv)
	}
	l.Items = items
	if unpaid {
		l.Total = len(items)
	}
	return l, nil
}

func parseIDs(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || id <= 0 {
			return nil, strconv.ErrSyntax
		}
		ids = append(ids, id)
	}
	return ids, nil
}
