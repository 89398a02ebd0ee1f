package entry

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/reference"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/shared"
)

// Amount is a decimal sent to the backend as a bare JSON number.
type Amount struct {
	decimal.Decimal
}

// ParseAmount parses user input; anything unparseable becomes zero.
func ParseAmount(s string) Amount {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Amount{decimal.Zero}
	}
	return Amount{d}
}

// MarshalJSON implements json.Marshaler
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

// UnmarshalJSON accepts both quoted and bare numbers.
func (a *Amount) UnmarshalJSON(b []byte) error {
	return a.Decimal.UnmarshalJSON(b)
}

// Payload is the body of POST /submit. Ids not applicable to the operation kind are 0,
// category and article are null when unresolved.
type Payload struct {
	Username        string `json:"username"`
	CompanyID       int64  `json:"company_id"`
	OperationTypeID int64  `json:"operation_type_id"`
	Date            string `json:"date"`
	Amount          Amount `json:"amount"`
	CategoryID      *int64 `json:"category_id"`
	ArticleID       *int64 `json:"article_id"`
	FinishDate      string `json:"finish_date"`
	PaymentTypeID   int64  `json:"payment_type_id"`
	Comment         string `json:"comment"`
	WalletID        int64  `json:"wallet_id"`
	WalletFromID    int64  `json:"wallet_from_id"`
	WalletToID      int64  `json:"wallet_to_id"`
	CounterpartyID  int64  `json:"counterparty_id"`
	CurrencyID      int64  `json:"currency_id"`
}

// ErrPrecondition is the sentinel every PreconditionError unwraps to.
var ErrPrecondition = shared.NewDomainError(shared.CodePrecondition, "payload precondition failed")

// PreconditionError blocks transmission of a resolved payload. It is not tied to a
// form field and is shown as a banner.
type PreconditionError struct {
	Field   string
	Message string
}

func (e *PreconditionError) Error() string { return e.Message }

func (e *PreconditionError) Unwrap() error { return ErrPrecondition }

// Precondition messages.
const (
	MsgCurrencyUnresolved     = "currency_id обязателен и должен быть числом"
	MsgCounterpartyUnresolved = "counterparty_id обязателен для операций 'Выставить счёт' и 'Выставить расход'"
)

// Resolution is the outcome of Resolve.
type Resolution struct {
	Payload Payload
	Kind    reference.OperationKind
}

// Resolve turns a validated draft into the submission payload. Selections are mapped
// to backend ids, fields irrelevant to the operation kind are zeroed, and the payload
// preconditions are checked. A failed precondition returns a *PreconditionError.
func Resolve(d Draft, ref *reference.Data, username string) (Resolution, error) {
	p := Payload{
		Username:        username,
		CompanyID:       reference.ParseID(strings.TrimSpace(d.Company)),
		OperationTypeID: reference.ParseID(strings.TrimSpace(d.Operation)),
		Date:            d.Date,
		Amount:          ParseAmount(d.Amount),
		FinishDate:      d.DateFinish,
		PaymentTypeID:   reference.ParseID(strings.TrimSpace(d.PaymentType)),
		Comment:         d.Comment,
		WalletID:        reference.ParseID(strings.TrimSpace(d.Wallet)),
		WalletFromID:    reference.ParseID(strings.TrimSpace(d.WalletFrom)),
		WalletToID:      reference.ParseID(strings.TrimSpace(d.WalletTo)),
		CounterpartyID:  reference.ParseID(strings.TrimSpace(d.Counterparty)),
	}

	kind := reference.KindUnknown
	if ref != nil {
		kind = ref.KindOf(d.Operation)

		if category := strings.TrimSpace(d.Category); category != "" {
			if cat, ok := ref.FindCategory(d.Company, p.OperationTypeID, category); ok {
				p.CategoryID = &cat.ID
				if art, ok := reference.FindArticle(cat, strings.TrimSpace(d.Article)); ok {
					p.ArticleID = &art.ID
				}
			}
		}

		if cur, ok := ref.Currency(strings.TrimSpace(d.Currency)); ok {
			p.CurrencyID = cur.ID
		}
	}

	zeroIrrelevant(&p, kind)

	if p.CurrencyID == 0 {
		return Resolution{}, &PreconditionError{Field: "currency_id", Message: MsgCurrencyUnresolved}
	}
	if kind.IssuesInvoice() && p.CounterpartyID == 0 {
		return Resolution{}, &PreconditionError{Field: "counterparty_id", Message: MsgCounterpartyUnresolved}
	}

	return Resolution{Payload: p, Kind: kind}, nil
}

func zeroIrrelevant(p *Payload, kind reference.OperationKind) {
	switch {
	case kind.UsesWalletPair():
		p.CategoryID = nil
		p.ArticleID = nil
		p.FinishDate = ""
		p.WalletID = 0
		p.CounterpartyID = 0
	case kind.UsesWallet():
		p.WalletFromID = 0
		p.WalletToID = 0
		p.CounterpartyID = 0
	case kind.IssuesInvoice():
		p.WalletID = 0
		p.WalletFromID = 0
		p.WalletToID = 0
	default:
		// no party group is validated for an unbound kind
		p.WalletID = 0
		p.WalletFromID = 0
		p.WalletToID = 0
		p.CounterpartyID = 0
	}
}
