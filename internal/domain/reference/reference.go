// Package reference holds the read-only lookup catalogs fetched once per session:
// companies with their category/article hierarchy, operation types, payment types,
// wallets, currencies and counterparties.
package reference

import (
	"strconv"
)

// Article is the second level of the classification hierarchy.
type Article struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// Category belongs to exactly one operation type and owns its articles.
type Category struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	OperationTypeID int64     `json:"operation_type_id"`
	Articles        []Article `json:"articles"`
}

// Company scopes the category hierarchy.
type Company struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Phone      string     `json:"phone"`
	Address    string     `json:"address"`
	Categories []Category `json:"categories"`
}

// Counterparty is the other side of an issued invoice.
type Counterparty struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
}

// Wallet is an account bucket belonging to a user.
type Wallet struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	UserID int64  `json:"user_id"`
}

// OperationType is a backend catalog entry. Kind is bound locally, never sent by the backend.
type OperationType struct {
	ID   int64         `json:"id"`
	Name string        `json:"name"`
	Kind OperationKind `json:"-"`
}

// PaymentType is a payment method (cash, card, bank transfer, ...).
type PaymentType struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Currency is matched by code in drafts and sent by id.
type Currency struct {
	ID     int64  `json:"id"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// Bundle is the wire shape of GET /get_form_data.
type Bundle struct {
	Companies      []Company       `json:"companies"`
	OperationTypes []OperationType `json:"operation_types"`
	PaymentTypes   []PaymentType   `json:"payment_types"`
	Wallets        []Wallet        `json:"wallets"`
	Currencies     []Currency      `json:"currencies"`
	Counterparties []Counterparty  `json:"counterparties"`
}

// Option is a select-list entry derived from a catalog.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FormatID renders a numeric id the way drafts carry it.
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ParseID converts a draft id string to its numeric form. Blank or malformed input yields 0.
func ParseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
