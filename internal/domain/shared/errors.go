package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches domain errors by code so wrapped copies compare equal.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Error codes shared by the entry client layers.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodePrecondition     = "PRECONDITION_FAILED"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeBackend          = "BACKEND_ERROR"
	CodeInvalidState     = "INVALID_STATE"
	CodeInFlight         = "IN_FLIGHT"
	CodeNotFound         = "NOT_FOUND"
	CodeCatalogMismatch  = "CATALOG_MISMATCH"
	CodeNoSession        = "NO_SESSION"
	CodeFeatureDisabled  = "FEATURE_DISABLED"
	CodeAlreadyProcessed = "ALREADY_PROCESSED"
	CodeWalletRequired   = "WALLET_REQUIRED"
	CodeDocumentMissing  = "DOCUMENT_MISSING"
)

// Common domain errors
var (
	ErrNotFound     = NewDomainError(CodeNotFound, "Resource not found")
	ErrUnauthorized = NewDomainError(CodeUnauthorized, "Сессия недействительна, войдите снова")
	ErrInvalidState = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrNoSession    = NewDomainError(CodeNoSession, "Пользователь не авторизован")
)
