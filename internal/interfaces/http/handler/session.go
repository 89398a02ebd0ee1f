package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/DataProRU/Auto-transfers-accounting/internal/application/session"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/shared"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/api"
	"github.com/DataProRU/Auto-transfers-accounting/internal/interfaces/http/dto"
)

// SessionService is the part of session.Guard the handler drives.
type SessionService interface {
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context)
	Current() (session.Info, error)
	Check(ctx context.Context) (bool, error)
}

// SessionHandler serves sign-in, sign-out and the session probe.
type SessionHandler struct {
	BaseHandler
	guard SessionService
}

// NewSessionHandler creates a SessionHandler
func NewSessionHandler(guard SessionService) *SessionHandler {
	return &SessionHandler{guard: guard}
}

// RegisterRoutes mounts the /session routes.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/session")
	g.POST("/login", h.Login)
	g.POST("/logout", h.Logout)
	g.GET("", h.Get)
}

// Login godoc
// POST /api/v1/session/login
func (h *SessionHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Введите имя пользователя и пароль")
		return
	}

	if err := h.guard.Login(c.Request.Context(), req.Username, req.Password); err != nil {
		if api.IsUnauthorized(err) {
			h.Error(c, shared.CodeUnauthorized, api.Message(err, api.MsgLoginInvalid))
			return
		}
		h.HandleError(c, err)
		return
	}

	info, err := h.guard.Current()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, info)
}

// Logout godoc
// POST /api/v1/session/logout
func (h *SessionHandler) Logout(c *gin.Context) {
	h.guard.Logout(c.Request.Context())
	h.Success(c, nil)
}

// Get returns the current session. With ?verify=true the token is checked against the
// backend first, which evicts a rejected session.
func (h *SessionHandler) Get(c *gin.Context) {
	if verify, _ := strconv.ParseBool(c.Query("verify")); verify {
		valid, err := h.guard.Check(c.Request.Context())
		if !valid {
			if err == nil {
				err = shared.ErrUnauthorized
			}
			h.HandleError(c, err)
			return
		}
	}

	info, err := h.guard.Current()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, info)
}
