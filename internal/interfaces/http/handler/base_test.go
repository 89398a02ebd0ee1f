package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataProRU/Auto-transfers-accounting/internal/application/settlement"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/entry"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/shared"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/validation"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/api"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/storage"
	"github.com/DataProRU/Auto-transfers-accounting/internal/interfaces/http/dto"
	"github.com/DataProRU/Auto-transfers-accounting/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestBaseHandlerSuccess(t *testing.T) {
	h := &BaseHandler{}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	h.Success(c, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"key": "value"}, resp.Data)
}

func TestBaseHandlerHandleError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
		fields  map[string]string
	}{
		{
			name:    "validation keeps field messages",
			err:     &validation.Error{Fields: validation.FieldErrors{entry.FieldAmount: validation.MsgAmountRequired}},
			status:  http.StatusBadRequest,
			code:    shared.CodeValidation,
			message: validation.MsgFormInvalid,
			fields:  map[string]string{"amount": validation.MsgAmountRequired},
		},
		{
			name:    "precondition",
			err:     &entry.PreconditionError{Field: "currency_id", Message: entry.MsgCurrencyUnresolved},
			status:  http.StatusBadRequest,
			code:    shared.CodePrecondition,
			message: entry.MsgCurrencyUnresolved,
			fields:  map[string]string{"currency_id": entry.MsgCurrencyUnresolved},
		},
		{
			name:    "backend 401",
			err:     &api.Error{Status: http.StatusUnauthorized, Endpoint: "submit", Message: "Not authenticated"},
			status:  http.StatusUnauthorized,
			code:    shared.CodeUnauthorized,
			message: shared.ErrUnauthorized.Message,
		},
		{
			name:    "backend failure keeps its message",
			err:     fmt.Errorf("submit: %w", &api.Error{Status: http.StatusInternalServerError, Endpoint: "submit", Message: "Сумма слишком велика"}),
			status:  http.StatusBadGateway,
			code:    shared.CodeBackend,
			message: "Сумма слишком велика",
		},
		{
			name:    "already paid",
			err:     settlement.ErrAlreadyPaid,
			status:  http.StatusConflict,
			code:    shared.CodeAlreadyProcessed,
			message: settlement.ErrAlreadyPaid.Message,
		},
		{
			name:    "no session",
			err:     shared.ErrNoSession,
			status:  http.StatusUnauthorized,
			code:    shared.CodeNoSession,
			message: shared.ErrNoSession.Message,
		},
		{
			name:    "sharing disabled",
			err:     storage.ErrSharingDisabled,
			status:  http.StatusNotImplemented,
			code:    shared.CodeFeatureDisabled,
			message: storage.ErrSharingDisabled.Error(),
		},
		{
			name:    "unknown error",
			err:     errors.New("disk on fire"),
			status:  http.StatusInternalServerError,
			code:    dto.ErrCodeInternal,
			message: "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			c.Set(middleware.RequestIDKey, "req-1")

			h.HandleError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, tt.message, resp.Error.Message)
			assert.Equal(t, "req-1", resp.Error.RequestID)
			assert.Equal(t, tt.fields, resp.Error.Fields)
		})
	}
}

func TestBaseHandlerHandleErrorNil(t *testing.T) {
	h := &BaseHandler{}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	h.HandleError(c, nil)

	assert.Empty(t, w.Body.String())
}
