package reference

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/shared"
)

// OperationKind is the closed set of transaction kinds the form knows how to handle.
type OperationKind string

const (
	KindUnknown             OperationKind = ""
	KindIncome              OperationKind = "INCOME"
	KindExpense             OperationKind = "EXPENSE"
	KindTransfer            OperationKind = "TRANSFER"
	KindIssueInvoice        OperationKind = "ISSUE_INVOICE"
	KindIssueExpenseInvoice OperationKind = "ISSUE_EXPENSE_INVOICE"
)

// AllKinds lists every known kind in catalog order.
var AllKinds = []OperationKind{
	KindIncome,
	KindExpense,
	KindTransfer,
	KindIssueInvoice,
	KindIssueExpenseInvoice,
}

// IsValid checks if the kind is one of the known kinds
func (k OperationKind) IsValid() bool {
	switch k {
	case KindIncome, KindExpense, KindTransfer, KindIssueInvoice, KindIssueExpenseInvoice:
		return true
	}
	return false
}

// String returns the string representation of OperationKind
func (k OperationKind) String() string {
	if k == KindUnknown {
		return "UNKNOWN"
	}
	return string(k)
}

// IssuesInvoice reports whether a successful submission creates an invoice.
func (k OperationKind) IssuesInvoice() bool {
	return k == KindIssueInvoice || k == KindIssueExpenseInvoice
}

// UsesWallet reports whether the kind books against a single wallet.
func (k OperationKind) UsesWallet() bool {
	return k == KindIncome || k == KindExpense
}

// UsesWalletPair reports whether the kind moves money between two wallets.
func (k OperationKind) UsesWalletPair() bool {
	return k == KindTransfer
}

// UsesCounterparty reports whether the kind is addressed to a counterparty.
func (k OperationKind) UsesCounterparty() bool {
	return k.IssuesInvoice()
}

// Catalog maps backend business names to kinds.
type Catalog struct {
	names map[OperationKind]string
}

var defaultNames = map[OperationKind]string{
	KindIncome:              "Приход",
	KindExpense:             "Расход",
	KindTransfer:            "Перемещение",
	KindIssueInvoice:        "Выставить счёт",
	KindIssueExpenseInvoice: "Выставить расход",
}

// DefaultCatalog returns the production operation names.
func DefaultCatalog() Catalog {
	return NewCatalog(nil)
}

// NewCatalog builds a catalog from explicit names. Kinds missing from names keep their default.
func NewCatalog(names map[OperationKind]string) Catalog {
	c := Catalog{names: make(map[OperationKind]string, len(AllKinds))}
	for _, k := range AllKinds {
		c.names[k] = defaultNames[k]
		if n := strings.TrimSpace(names[k]); n != "" {
			c.names[k] = n
		}
	}
	return c
}

// Name returns the business name bound to kind.
func (c Catalog) Name(kind OperationKind) string {
	return c.names[kind]
}

// KindOf resolves a backend name by exact string equality. Kinds are tried in
// AllKinds order.
func (c Catalog) KindOf(name string) OperationKind {
	for _, k := range AllKinds {
		if c.names[k] == name {
			return k
		}
	}
	return KindUnknown
}

// Validate rejects a catalog that binds one name to several kinds.
func (c Catalog) Validate() error {
	owner := make(map[string]OperationKind, len(AllKinds))
	for _, k := range AllKinds {
		n := c.names[k]
		if prev, ok := owner[n]; ok {
			return fmt.Errorf("%w: %q is configured for both %s and %s", ErrDuplicateName, n, prev, k)
		}
		owner[n] = k
	}
	return nil
}

// Bind assigns a kind to every operation type. It fails when a known kind has no
// matching backend entry, so a renamed backend string surfaces at load time.
// Entries matching no kind are returned as unbound.
func (c Catalog) Bind(types []OperationType) (bound []OperationType, unbound []string, err error) {
	bound = make([]OperationType, len(types))
	seen := make(map[OperationKind]bool, len(AllKinds))
	for i, t := range types {
		t.Kind = c.KindOf(t.Name)
		if t.Kind == KindUnknown {
			unbound = append(unbound, t.Name)
		} else {
			seen[t.Kind] = true
		}
		bound[i] = t
	}

	var missing []string
	for _, k := range AllKinds {
		if !seen[k] {
			missing = append(missing, fmt.Sprintf("%s=%q", k, c.names[k]))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, unbound, fmt.Errorf("%w: no backend operation type for %s",
			ErrCatalogMismatch, strings.Join(missing, ", "))
	}
	return bound, unbound, nil
}

// ErrDuplicateName means two kinds are configured with the same business name.
var ErrDuplicateName = errors.New("duplicate operation name in catalog")

// ErrCatalogMismatch means the backend operation types no longer match the configured names.
var ErrCatalogMismatch = shared.NewDomainError(shared.CodeCatalogMismatch, "operation catalog does not match backend operation types")
