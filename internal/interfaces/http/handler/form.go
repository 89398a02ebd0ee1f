package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/DataProRU/Auto-transfers-accounting/internal/application/form"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/entry"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/reference"
	"github.com/DataProRU/Auto-transfers-accounting/internal/interfaces/http/dto"
)

// FormService is the part of form.Store the handler drives.
type FormService interface {
	Reference(ctx context.Context) (*reference.Data, error)
	View() form.View
	UpdateMany(values map[entry.Field]string) []entry.Field
	Reset()
	Submit(ctx context.Context) (*form.Outcome, error)
}

// FormHandler serves the entry form.
type FormHandler struct {
	BaseHandler
	form FormService
}

// NewFormHandler creates a FormHandler
func NewFormHandler(f FormService) *FormHandler {
	return &FormHandler{form: f}
}

// RegisterRoutes mounts the /form routes.
func (h *FormHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/form")
	g.GET("", h.Get)
	g.PATCH("", h.Update)
	g.GET("/reference", h.Reference)
	g.POST("/reset", h.Reset)
	g.POST("/submit", h.Submit)
}

// Get returns the draft, its errors and banners.
func (h *FormHandler) Get(c *gin.Context) {
	h.Success(c, h.form.View())
}

// Reference lists the options for the current draft. Categories depend on the chosen
// company and operation; articles on the chosen category.
func (h *FormHandler) Reference(c *gin.Context) {
	ref, err := h.form.Reference(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	d := h.form.View().Draft
	op := reference.ParseID(d.Operation)
	h.Success(c, dto.ReferenceResponse{
		Options:    ref.Options(),
		Categories: ref.CategoriesFor(d.Company, op),
		Articles:   ref.ArticlesFor(d.Company, op, d.Category),
		Unbound:    ref.Unbound,
	})
}

// Update applies field edits. Unknown field names are rejected before anything changes.
func (h *FormHandler) Update(c *gin.Context) {
	var req dto.FormUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Некорректный запрос")
		return
	}

	values := make(map[entry.Field]string, len(req.Values))
	for name, v := range req.Values {
		f, err := entry.ParseField(name)
		if err != nil {
			h.BadRequest(c, err.Error())
			return
		}
		values[f] = v
	}

	changed := h.form.UpdateMany(values)
	h.Success(c, dto.FormUpdateResponse{Changed: changed, Form: h.form.View()})
}

// Reset restores the default draft.
func (h *FormHandler) Reset(c *gin.Context) {
	h.form.Reset()
	h.Success(c, h.form.View())
}

// Submit validates, resolves and posts the draft.
func (h *FormHandler) Submit(c *gin.Context) {
	out, err := h.form.Submit(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, out)
}
