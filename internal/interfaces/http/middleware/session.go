package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/shared"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/logger"
	"github.com/DataProRU/Auto-transfers-accounting/internal/interfaces/http/dto"
)

// Principal reports the signed-in user, empty when signed out.
type Principal interface {
	Username() string
}

// RequireSession rejects requests made without an active session and records the user
// on the request context for logs and spans.
func RequireSession(p Principal) gin.HandlerFunc {
	return func(c *gin.Context) {
		username := p.Username()
		if username == "" {
			c.AbortWithStatusJSON(dto.GetHTTPStatus(shared.CodeNoSession), dto.NewErrorResponse(
				shared.CodeNoSession,
				shared.ErrNoSession.Message,
				GetRequestID(c),
			))
			return
		}

		ctx := logger.WithUsername(c.Request.Context(), username)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
