// Package validation selects and runs the rule set matching a draft's operation kind.
package validation

import (
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/entry"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/reference"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/shared"
)

// Field messages.
const (
	MsgCompanyRequired      = "Компания обязательна"
	MsgOperationRequired    = "Вид операции обязателен"
	MsgAmountRequired       = "Сумма обязательна"
	MsgAmountPositive       = "Сумма должна быть положительным числом"
	MsgCurrencyRequired     = "Валюта обязательна"
	MsgPaymentTypeRequired  = "Способ оплаты обязателен"
	MsgDateFinishRequired   = "Дата обязательна"
	MsgWalletFromRequired   = "Кошелёк отправителя обязателен"
	MsgWalletToRequired     = "Кошелёк получателя обязателен"
	MsgCounterpartyRequired = "Контрагент обязателен"
	MsgCounterpartyInvalid  = "Выберите действительного контрагента"
	MsgWalletRequired       = "Кошелёк обязателен"
	MsgWalletInvalid        = "Выберите действительный кошелёк"
	MsgCategoryRequired     = "Категория обязательна"
	MsgCategoryInvalid      = "Выберите действительную категорию"
	MsgArticleRequired      = "Статья обязательна"
	MsgArticleInvalid       = "Выберите действительную статью"

	// MsgFormInvalid is the banner shown when any field fails.
	MsgFormInvalid = "Заполните все обязательные поля корректно"
)

// TagPositiveAmount is the validator tag for strictly positive decimal strings.
const TagPositiveAmount = "positive_amount"

var (
	engineOnce sync.Once
	engine     *validator.Validate
)

// Engine returns the shared validator with the custom tags registered.
func Engine() *validator.Validate {
	engineOnce.Do(func() {
		engine = validator.New(validator.WithRequiredStructEnabled())
		_ = engine.RegisterValidation(TagPositiveAmount, func(fl validator.FieldLevel) bool {
			d, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
			return err == nil && d.IsPositive()
		})
	})
	return engine
}

// Rule checks one field. Checks run in order: required, tag, membership; the first
// failure wins.
type Rule struct {
	Field       entry.Field
	RequiredMsg string
	Tag         string
	TagMsg      string
	Member      func(value string) bool
	MemberMsg   string
}

// Schema is the rule set selected for a draft.
type Schema struct {
	Kind  reference.OperationKind
	Rules []Rule
}

// FieldErrors maps a field to its first failing message.
type FieldErrors map[entry.Field]string

// Error carries the field errors of a rejected draft.
type Error struct {
	Fields FieldErrors
}

func (e *Error) Error() string { return MsgFormInvalid }

func (e *Error) Unwrap() error { return ErrInvalid }

// ErrInvalid is the sentinel every *Error unwraps to.
var ErrInvalid = shared.NewDomainError(shared.CodeValidation, MsgFormInvalid)

func base() []Rule {
	return []Rule{
		{Field: entry.FieldCompany, RequiredMsg: MsgCompanyRequired},
		{Field: entry.FieldOperation, RequiredMsg: MsgOperationRequired},
		{Field: entry.FieldAmount, RequiredMsg: MsgAmountRequired, Tag: TagPositiveAmount, TagMsg: MsgAmountPositive},
		{Field: entry.FieldCurrency, RequiredMsg: MsgCurrencyRequired},
		{Field: entry.FieldPaymentType, RequiredMsg: MsgPaymentTypeRequired},
		{Field: entry.FieldDateFinish, RequiredMsg: MsgDateFinishRequired},
	}
}

// Select returns the schema for the draft's current operation kind. Category and
// article rules are added only once the user has entered a value for them.
func Select(d entry.Draft, ref *reference.Data) Schema {
	kind := ref.KindOf(d.Operation)
	rules := base()

	switch {
	case kind.UsesWalletPair():
		rules = append(rules,
			Rule{Field: entry.FieldWalletFrom, RequiredMsg: MsgWalletFromRequired},
			Rule{Field: entry.FieldWalletTo, RequiredMsg: MsgWalletToRequired},
		)

	case kind.UsesCounterparty():
		rules = append(rules, Rule{
			Field:       entry.FieldCounterparty,
			RequiredMsg: MsgCounterpartyRequired,
			Member:      ref.HasCounterparty,
			MemberMsg:   MsgCounterpartyInvalid,
		})

	case kind.UsesWallet():
		rules = append(rules, Rule{
			Field:       entry.FieldWallet,
			RequiredMsg: MsgWalletRequired,
			Member:      ref.HasWallet,
			MemberMsg:   MsgWalletInvalid,
		})

		category := strings.TrimSpace(d.Category)
		if category == "" {
			break
		}
		op, _ := ref.Operation(d.Operation)
		categories := ref.CategoriesFor(d.Company, op.ID)
		rules = append(rules, Rule{
			Field:       entry.FieldCategory,
			RequiredMsg: MsgCategoryRequired,
			Member:      func(v string) bool { return containsString(categories, v) },
			MemberMsg:   MsgCategoryInvalid,
		})

		if strings.TrimSpace(d.Article) == "" {
			break
		}
		articles := ref.ArticlesFor(d.Company, op.ID, category)
		rules = append(rules, Rule{
			Field:       entry.FieldArticle,
			RequiredMsg: MsgArticleRequired,
			Member:      func(v string) bool { return containsString(articles, v) },
			MemberMsg:   MsgArticleInvalid,
		})
	}

	return Schema{Kind: kind, Rules: rules}
}

// Validate runs every rule and never fails itself; an empty map means the draft passes.
func (s Schema) Validate(d entry.Draft) FieldErrors {
	v := Engine()
	errs := FieldErrors{}
	for _, r := range s.Rules {
		value := strings.TrimSpace(d.Get(r.Field))
		if v.Var(value, "required") != nil {
			errs[r.Field] = r.RequiredMsg
			continue
		}
		if r.Tag != "" && v.Var(value, r.Tag) != nil {
			errs[r.Field] = r.TagMsg
			continue
		}
		if r.Member != nil && !r.Member(value) {
			errs[r.Field] = r.MemberMsg
		}
	}
	return errs
}

// Check validates d and wraps any failures in *Error.
func (s Schema) Check(d entry.Draft) error {
	if errs := s.Validate(d); len(errs) > 0 {
		return &Error{Fields: errs}
	}
	return nil
}

// RequiredFields lists the fields the schema requires, in rule order.
func (s Schema) RequiredFields() []entry.Field {
	out := make([]entry.Field, 0, len(s.Rules))
	for _, r := range s.Rules {
		out = append(out, r.Field)
	}
	return out
}

// Filled is the cheap gate used to enable submission: every required field is non-blank.
// It does not run tag or membership checks.
func (s Schema) Filled(d entry.Draft) bool {
	for _, f := range s.RequiredFields() {
		if strings.TrimSpace(d.Get(f)) == "" {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
