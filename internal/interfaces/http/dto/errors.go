package dto

import (
	"net/http"

	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/shared"
)

// Codes produced by the HTTP layer itself. Domain codes pass through unchanged.
const (
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeBadRequest:           http.StatusBadRequest,
	ErrCodeInternal:             http.StatusInternalServerError,
	ErrCodeRequestTooLarge:      http.StatusRequestEntityTooLarge,
	shared.CodeValidation:       http.StatusBadRequest,
	shared.CodePrecondition:     http.StatusBadRequest,
	shared.CodeWalletRequired:   http.StatusBadRequest,
	shared.CodeUnauthorized:     http.StatusUnauthorized,
	shared.CodeNoSession:        http.StatusUnauthorized,
	shared.CodeNotFound:         http.StatusNotFound,
	shared.CodeDocumentMissing:  http.StatusNotFound,
	shared.CodeInvalidState:     http.StatusConflict,
	shared.CodeInFlight:         http.StatusConflict,
	shared.CodeAlreadyProcessed: http.StatusConflict,
	shared.CodeFeatureDisabled:  http.StatusNotImplemented,
	shared.CodeBackend:          http.StatusBadGateway,
	shared.CodeCatalogMismatch:  http.StatusBadGateway,
}

// GetHTTPStatus returns the HTTP status code for an error code
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
