// Package handler implements the entryd HTTP endpoints on top of the application
// services.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/entry"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/shared"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/validation"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/api"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/logger"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/storage"
	"github.com/DataProRU/Auto-transfers-accounting/internal/interfaces/http/dto"
	"github.com/DataProRU/Auto-transfers-accounting/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the status derived from code
func (h *BaseHandler) Error(c *gin.Context, code, message string) {
	c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponse(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 for malformed request bodies
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, dto.ErrCodeBadRequest, message)
}

// HandleError maps application errors onto the envelope. Field-level validation
// failures keep their per-field messages; backend failures keep the backend's
// user-facing message.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	requestID := middleware.GetRequestID(c)

	var valErr *validation.Error
	if errors.As(err, &valErr) {
		fields := make(map[string]string, len(valErr.Fields))
		for f, msg := range valErr.Fields {
			fields[string(f)] = msg
		}
		c.JSON(http.StatusBadRequest, dto.NewFieldErrorResponse(shared.CodeValidation, valErr.Error(), requestID, fields))
		return
	}

	var preErr *entry.PreconditionError
	if errors.As(err, &preErr) {
		c.JSON(http.StatusBadRequest, dto.NewFieldErrorResponse(shared.CodePrecondition, preErr.Message, requestID,
			map[string]string{preErr.Field: preErr.Message}))
		return
	}

	if api.IsUnauthorized(err) {
		h.Error(c, shared.CodeUnauthorized, shared.ErrUnauthorized.Message)
		return
	}

	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		h.Error(c, shared.CodeBackend, apiErr.Message)
		return
	}

	if errors.Is(err, storage.ErrSharingDisabled) {
		h.Error(c, shared.CodeFeatureDisabled, err.Error())
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.Error(c, domainErr.Code, domainErr.Message)
		return
	}

	logger.L(c.Request.Context()).Error("unhandled error", zap.Error(err))
	h.Error(c, dto.ErrCodeInternal, "An unexpected error occurred")
}
