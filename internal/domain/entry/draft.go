// Package entry models the transaction draft being edited and its translation into the
// backend submission payload.
package entry

import (
	"fmt"
	"time"

	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/reference"
)

// Field names a draft field. Values match the form's wire names.
type Field string

const (
	FieldCompany      Field = "company"
	FieldOperation    Field = "operation"
	FieldAmount       Field = "amount"
	FieldCurrency     Field = "currency"
	FieldPaymentType  Field = "payment_type"
	FieldDate         Field = "date"
	FieldDateFinish   Field = "date_finish"
	FieldComment      Field = "comment"
	FieldWallet       Field = "wallet"
	FieldWalletFrom   Field = "wallet_from"
	FieldWalletTo     Field = "wallet_to"
	FieldCategory     Field = "category"
	FieldArticle      Field = "article"
	FieldCounterparty Field = "counterparty"
	FieldStatus       Field = "status"
)

// Fields lists every draft field in form order.
var Fields = []Field{
	FieldCompany, FieldOperation, FieldAmount, FieldCurrency, FieldPaymentType,
	FieldDate, FieldDateFinish, FieldComment, FieldWallet, FieldWalletFrom,
	FieldWalletTo, FieldCategory, FieldArticle, FieldCounterparty, FieldStatus,
}

// ParseField validates a field name coming from outside (HTTP, CLI, YAML).
func ParseField(name string) (Field, error) {
	for _, f := range Fields {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown draft field %q", name)
}

// DateLayout is the wire format of issue and completion dates.
const DateLayout = "2006-01-02"

// StatusPaid is written to the draft status once an invoice is settled.
const StatusPaid = "Оплачен"

// Draft is the in-progress transaction. All values are kept as entered.
type Draft struct {
	Company      string `json:"company" yaml:"company"`
	Operation    string `json:"operation" yaml:"operation"`
	Amount       string `json:"amount" yaml:"amount"`
	Currency     string `json:"currency" yaml:"currency"`
	PaymentType  string `json:"payment_type" yaml:"payment_type"`
	Date         string `json:"date" yaml:"date"`
	DateFinish   string `json:"date_finish" yaml:"date_finish"`
	Comment      string `json:"comment" yaml:"comment"`
	Wallet       string `json:"wallet" yaml:"wallet"`
	WalletFrom   string `json:"wallet_from" yaml:"wallet_from"`
	WalletTo     string `json:"wallet_to" yaml:"wallet_to"`
	Category     string `json:"category" yaml:"category"`
	Article      string `json:"article" yaml:"article"`
	Counterparty string `json:"counterparty" yaml:"counterparty"`
	Status       string `json:"status" yaml:"status"`
}

// NewDraft returns the default draft: every field blank except the issue date.
func NewDraft(now time.Time) Draft {
	return Draft{Date: now.Format(DateLayout)}
}

func (d *Draft) ptr(f Field) *string {
	switch f {
	case FieldCompany:
		return &d.Company
	case FieldOperation:
		return &d.Operation
	case FieldAmount:
		return &d.Amount
	case FieldCurrency:
		return &d.Currency
	case FieldPaymentType:
		return &d.PaymentType
	case FieldDate:
		return &d.Date
	case FieldDateFinish:
		return &d.DateFinish
	case FieldComment:
		return &d.Comment
	case FieldWallet:
		return &d.Wallet
	case FieldWalletFrom:
		return &d.WalletFrom
	case FieldWalletTo:
		return &d.WalletTo
	case FieldCategory:
		return &d.Category
	case FieldArticle:
		return &d.Article
	case FieldCounterparty:
		return &d.Counterparty
	case FieldStatus:
		return &d.Status
	}
	return nil
}

// Get returns the value of f, empty for unknown fields.
func (d Draft) Get(f Field) string {
	if p := d.ptr(f); p != nil {
		return *p
	}
	return ""
}

// KindResolver maps an operation id to its kind. *reference.Data implements it.
type KindResolver interface {
	KindOf(operationID string) reference.OperationKind
}

// Set assigns value to f and applies the dependent-field cascade. The cascade only
// fires when the value actually changes. It returns every field whose value changed,
// f first.
func (d *Draft) Set(f Field, value string, kinds KindResolver) []Field {
	p := d.ptr(f)
	if p == nil || *p == value {
		return nil
	}
	*p = value
	changed := []Field{f}

	clear := func(fields ...Field) {
		for _, c := range fields {
			if cp := d.ptr(c); *cp != "" {
				*cp = ""
				changed = append(changed, c)
			}
		}
	}

	switch f {
	case FieldCompany:
		clear(FieldCategory, FieldArticle)
	case FieldCategory:
		clear(FieldArticle)
	case FieldOperation:
		clear(FieldCategory, FieldArticle)
		kind := reference.KindUnknown
		if kinds != nil {
			kind = kinds.KindOf(value)
		}
		if !kind.UsesWallet() {
			clear(FieldWallet)
		}
		if !kind.UsesWalletPair() {
			clear(FieldWalletFrom, FieldWalletTo)
		}
		if !kind.UsesCounterparty() {
			clear(FieldCounterparty)
		}
	}
	return changed
}

// Values returns the draft as a field map.
func (d Draft) Values() map[Field]string {
	out := make(map[Field]string, len(Fields))
	for _, f := range Fields {
		out[f] = d.Get(f)
	}
	return out
}
