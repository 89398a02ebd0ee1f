package reference

import (
	"strings"
)

// Data is the loaded, read-only reference set. Build it with Load; after that it is
// never mutated and can be shared by every consumer without locking.
type Data struct {
	Companies      []Company
	OperationTypes []OperationType
	PaymentTypes   []PaymentType
	Wallets        []Wallet
	Currencies     []Currency
	Counterparties []Counterparty

	// Unbound holds backend operation names that matched no kind.
	Unbound []string

	operationCategories map[int64][]string
	categoryArticles    map[string][]string
}

// Load binds the catalog to the bundle and derives the lookup indices.
func Load(b Bundle, catalog Catalog) (*Data, error) {
	ops, unbound, err := catalog.Bind(b.OperationTypes)
	if err != nil {
		return nil, err
	}

	d := &Data{
		Companies:           b.Companies,
		OperationTypes:      ops,
		PaymentTypes:        b.PaymentTypes,
		Wallets:             b.Wallets,
		Currencies:          b.Currencies,
		Counterparties:      b.Counterparties,
		Unbound:             unbound,
		operationCategories: make(map[int64][]string),
		categoryArticles:    make(map[string][]string),
	}

	for _, company := range b.Companies {
		for _, cat := range company.Categories {
			names := d.operationCategories[cat.OperationTypeID]
			if !contains(names, cat.Name) {
				d.operationCategories[cat.OperationTypeID] = append(names, cat.Name)
			}
			titles := make([]string, 0, len(cat.Articles))
			for _, a := range cat.Articles {
				titles = append(titles, a.Title)
			}
			d.categoryArticles[cat.Name] = titles
		}
	}

	return d, nil
}

// Operation finds an operation type by its draft id string.
func (d *Data) Operation(id string) (OperationType, bool) {
	n := ParseID(strings.TrimSpace(id))
	if n == 0 {
		return OperationType{}, false
	}
	for _, op := range d.OperationTypes {
		if op.ID == n {
			return op, true
		}
	}
	return OperationType{}, false
}

// KindOf returns the kind of the operation selected by id, KindUnknown when absent.
func (d *Data) KindOf(operationID string) OperationKind {
	if d == nil {
		return KindUnknown
	}
	op, ok := d.Operation(operationID)
	if !ok {
		return KindUnknown
	}
	return op.Kind
}

// Company finds a company by its draft id string.
func (d *Data) Company(id string) (Company, bool) {
	n := ParseID(strings.TrimSpace(id))
	for _, c := range d.Companies {
		if n != 0 && c.ID == n {
			return c, true
		}
	}
	return Company{}, false
}

// HasWallet reports whether id names a wallet of the current set.
func (d *Data) HasWallet(id string) bool {
	for _, w := range d.Wallets {
		if FormatID(w.ID) == id {
			return true
		}
	}
	return false
}

// HasCounterparty reports whether id names a counterparty of the current set.
func (d *Data) HasCounterparty(id string) bool {
	for _, c := range d.Counterparties {
		if FormatID(c.ID) == id {
			return true
		}
	}
	return false
}

// Currency finds a currency by code.
func (d *Data) Currency(code string) (Currency, bool) {
	for _, c := range d.Currencies {
		if c.Code == code {
			return c, true
		}
	}
	return Currency{}, false
}

// CategoriesFor returns the categories usable with an operation type. When the company
// resolves, only its own categories are returned; otherwise the union over all companies.
func (d *Data) CategoriesFor(companyID string, operationID int64) []string {
	if company, ok := d.Company(companyID); ok {
		var names []string
		for _, cat := range company.Categories {
			if cat.OperationTypeID == operationID && !contains(names, cat.Name) {
				names = append(names, cat.Name)
			}
		}
		return names
	}
	return d.operationCategories[operationID]
}

// ArticleTitles returns the article titles of a category.
func (d *Data) ArticleTitles(category string) []string {
	return d.categoryArticles[category]
}

// ArticlesFor returns the article titles of the category that FindCategory resolves
// for the company and operation, so offered articles match what gets submitted.
func (d *Data) ArticlesFor(companyID string, operationID int64, category string) []string {
	cat, ok := d.FindCategory(companyID, operationID, category)
	if !ok {
		return nil
	}
	titles := make([]string, 0, len(cat.Articles))
	for _, a := range cat.Articles {
		titles = append(titles, a.Title)
	}
	return titles
}

// FindCategory walks Company→Category matching by name within an operation type.
// The selected company is searched first, then the remaining companies; first match wins.
func (d *Data) FindCategory(companyID string, operationID int64, name string) (Category, bool) {
	preferred := ParseID(strings.TrimSpace(companyID))
	ordered := make([]Company, 0, len(d.Companies))
	for _, c := range d.Companies {
		if c.ID == preferred {
			ordered = append([]Company{c}, ordered...)
		} else {
			ordered = append(ordered, c)
		}
	}
	for _, c := range ordered {
		for _, cat := range c.Categories {
			if cat.OperationTypeID == operationID && cat.Name == name {
				return cat, true
			}
		}
	}
	return Category{}, false
}

// FindArticle matches an article of cat by title.
func FindArticle(cat Category, title string) (Article, bool) {
	for _, a := range cat.Articles {
		if a.Title == title {
			return a, true
		}
	}
	return Article{}, false
}

// Options renders the select lists of the form.
func (d *Data) Options() map[string][]Option {
	opts := map[string][]Option{
		"company":      make([]Option, 0, len(d.Companies)),
		"operation":    make([]Option, 0, len(d.OperationTypes)),
		"payment_type": make([]Option, 0, len(d.PaymentTypes)),
		"wallet":       make([]Option, 0, len(d.Wallets)),
		"currency":     make([]Option, 0, len(d.Currencies)),
		"counterparty": make([]Option, 0, len(d.Counterparties)),
	}
	for _, c := range d.Companies {
		opts["company"] = append(opts["company"], Option{Value: FormatID(c.ID), Label: c.Name})
	}
	for _, op := range d.OperationTypes {
		opts["operation"] = append(opts["operation"], Option{Value: FormatID(op.ID), Label: op.Name})
	}
	for _, pt := range d.PaymentTypes {
		opts["payment_type"] = append(opts["payment_type"], Option{Value: FormatID(pt.ID), Label: pt.Name})
	}
	for _, w := range d.Wallets {
		opts["wallet"] = append(opts["wallet"], Option{Value: FormatID(w.ID), Label: w.Name})
	}
	for _, c := range d.Currencies {
		opts["currency"] = append(opts["currency"], Option{Value: c.Code, Label: c.Name})
	}
	for _, c := range d.Counterparties {
		opts["counterparty"] = append(opts["counterparty"], Option{Value: FormatID(c.ID), Label: c.FullName})
	}
	return opts
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
