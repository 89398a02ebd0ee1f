package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/shared"
)

// Fallback messages used when the backend sends none.
const (
	MsgLoginInvalid      = "Проверьте имя пользователя и пароль"
	MsgLoginFailed       = "Ошибка авторизации"
	MsgNetwork           = "Ошибка сети. Попробуйте снова."
	MsgVerifyFailed      = "Ошибка проверки токена"
	MsgRefreshFailed     = "Ошибка обновления токена"
	MsgFormDataFailed    = "Ошибка загрузки данных"
	MsgSubmitFailed      = "Ошибка при отправке формы"
	MsgInvoicesFailed    = "Не удалось загрузить счета"
	MsgPDFFailed         = "Не удалось загрузить PDF. Проверьте соединение или сервер."
	MsgPDFWrongFormat    = "Получен неверный формат файла (не PDF)"
	MsgWalletsFailed     = "Не удалось загрузить кошельки"
	MsgPayInvoiceFailed  = "Не удалось обновить статус счета"
	MsgUnexpectedPayload = "Некорректный ответ сервера"
)

// ErrUnauthorized is returned for every 401. It is never retried.
var ErrUnauthorized = shared.ErrUnauthorized

// Error is a normalized backend failure. Message is safe to show to the user.
type Error struct {
	Status   int    // 0 for transport failures
	Endpoint string
	Message  string
	cause    error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return e.cause
}

// Detail describes the failure for logs.
func (e *Error) Detail() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: status %d: %v", e.Endpoint, e.Status, e.cause)
	}
	return fmt.Sprintf("%s: status %d", e.Endpoint, e.Status)
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// Message extracts the user-facing message of err, or fallback when err carries none.
func Message(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// serverMessage pulls a message out of an error body. It understands
// {"message": "..."}, {"detail": "..."} and {"detail": [{"msg": "..."}]}.
func serverMessage(body []byte) string {
	var payload struct {
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if m := strings.TrimSpace(payload.Message); m != "" {
		return m
	}
	if len(payload.Detail) == 0 {
		return ""
	}

	var detail string
	if json.Unmarshal(payload.Detail, &detail) == nil {
		return strings.TrimSpace(detail)
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(payload.Detail, &items) == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, ", ")
	}
	return ""
}
