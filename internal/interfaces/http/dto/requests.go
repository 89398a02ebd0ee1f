package dto

import (
	"github.com/DataProRU/Auto-transfers-accounting/internal/application/form"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/entry"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/reference"
)

// LoginRequest is the body of POST /session/login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// FormUpdateRequest carries field edits keyed by field name.
type FormUpdateRequest struct {
	Values map[string]string `json:"values" binding:"required,min=1"`
}

// FormUpdateResponse reports the cleared dependents and the resulting form.
type FormUpdateResponse struct {
	Changed []entry.Field `json:"changed"`
	Form    form.View     `json:"form"`
}

// ReferenceResponse lists the options the form can offer right now.
type ReferenceResponse struct {
	Options    map[string][]reference.Option `json:"options"`
	Categories []string                      `json:"categories"`
	Articles   []string                      `json:"articles"`
	Unbound    []string                      `json:"unbound,omitempty"`
}

// OpenSettlementRequest is the body of POST /settlement/open.
type OpenSettlementRequest struct {
	InvoiceID int64 `json:"invoice_id" binding:"required,gt=0"`
}

// SelectWalletRequest is the body of PUT /settlement/wallet.
type SelectWalletRequest struct {
	WalletID int64 `json:"wallet_id" binding:"required,gt=0"`
}

// ShareResponse carries a presigned document link.
type ShareResponse struct {
	URL string `json:"url"`
}
