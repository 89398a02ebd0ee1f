// Package invoice holds issued invoices as returned by GET /api/invoices and the
// statement summary built from them.
package invoice

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Ref is an {id,name} pair embedded in an invoice.
type Ref struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CounterpartyRef is the counterparty embedded in an invoice.
type CounterpartyRef struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
}

// CurrencyRef is the currency embedded in an invoice.
type CurrencyRef struct {
	ID     int64  `json:"id"`
	Code   string `json:"code"`
	Symbol string `json:"symbol"`
}

// ArticleRef is the article embedded in an invoice.
type ArticleRef struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// Invoice is an issued invoice.
type Invoice struct {
	ID            int64           `json:"id"`
	Company       Ref             `json:"company"`
	Counterparty  CounterpartyRef `json:"counterparty"`
	Currency      CurrencyRef     `json:"currency"`
	OperationType Ref             `json:"operation_type"`
	Category      Ref             `json:"category"`
	Article       ArticleRef      `json:"article"`
	PaymentType   Ref             `json:"payment_type"`
	Date          string          `json:"date"`
	FinishDate    string          `json:"finish_date"`
	Amount        decimal.Decimal `json:"amount"`
	IsPaid        bool            `json:"is_paid"`
	CreatedAt     string          `json:"created_at"`
	Comment       string          `json:"comment"`
}

// List is the GET /api/invoices response.
type List struct {
	Items []Invoice `json:"items"`
	Total int       `json:"total"`
}

// Latest returns the invoice with the highest id. The backend does not echo the id of
// a created invoice, so the newest one is assumed to carry the largest id.
func (l List) Latest() (Invoice, bool) {
	if len(l.Items) == 0 {
		return Invoice{}, false
	}
	latest := l.Items[0]
	for _, inv := range l.Items[1:] {
		if inv.ID > latest.ID {
			latest = inv
		}
	}
	return latest, true
}

// Find returns the invoice with id.
func (l List) Find(id int64) (Invoice, bool) {
	for _, inv := range l.Items {
		if inv.ID == id {
			return inv, true
		}
	}
	return Invoice{}, false
}

// DefaultCurrencySymbol is used when the first invoice has no currency symbol.
const DefaultCurrencySymbol = "KGS"

// Line is one numbered entry of a Summary.
type Line struct {
	Number      int     `json:"number"`
	Description string  `json:"description"`
	Invoice     Invoice `json:"invoice"`
}

// Summary is the statement shown above an invoice list.
type Summary struct {
	Issuer string `json:"issuer"`
	Amount string `json:"amount"`
	Items  []Line `json:"items"`
}

var printer = message.NewPrinter(language.Russian)

// Summarize builds the statement for items. The issuer and currency come from the
// first invoice.
func Summarize(items []Invoice) Summary {
	if len(items) == 0 {
		return Summary{Issuer: "[Неизвестно]", Amount: "0 " + DefaultCurrencySymbol, Items: []Line{}}
	}

	total := decimal.Zero
	lines := make([]Line, 0, len(items))
	for i, inv := range items {
		total = total.Add(inv.Amount)
		lines = append(lines, Line{
			Number: i + 1,
			Description: fmt.Sprintf("[№ счета %d], [%s] от [%s]",
				inv.ID, inv.Counterparty.FullName, FormatDate(inv.Date)),
			Invoice: inv,
		})
	}

	symbol := items[0].Currency.Symbol
	if symbol == "" {
		symbol = DefaultCurrencySymbol
	}

	return Summary{
		Issuer: items[0].Company.Name,
		Amount: FormatAmount(total) + " " + symbol,
		Items:  lines,
	}
}

// FormatAmount renders an amount with Russian digit grouping and decimal comma.
func FormatAmount(d decimal.Decimal) string {
	return printer.Sprint(number.Decimal(d.InexactFloat64(), number.MaxFractionDigits(2)))
}

// FormatDate renders a backend date as dd.mm.yyyy. Unparseable input is returned as is.
func FormatDate(raw string) string {
	s := strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("02.01.2006")
		}
	}
	if len(s) >= 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t.Format("02.01.2006")
		}
	}
	return raw
}
