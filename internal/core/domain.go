package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	Mandatory ExpenseType = "mandatory"
	Leisure   ExpenseType = "leisure"
)

// Income categories.
const (
	CategorySalary    Category = "salary"
	CategoryFreelance Category = "freelance"
	CategoryBonus     Category = "bonus"
)

// Expense categories.
const (
	CategoryHousing        Category = "housing"
	CategoryFood           Category = "food"
	CategoryBusiness       Category = "business"
	CategoryTransportation Category = "transportation"
	CategoryUtilities      Category = "utilities"
)

// CategoryOther is valid for both transaction types.
const CategoryOther Category = "other"

type (
	TransactionType string
	ExpenseType     string
	Category        string

	// Date is a calendar day without a time component, serialized as YYYY-MM-DD.
	Date struct {
		time.Time
	}

	Transaction struct {
		ID          string          `json:"id"`
		Type        TransactionType `json:"type"`
		Category    Category        `json:"category"`
		Amount      float64         `json:"amount"`
		Date        Date            `json:"date"`
		Currency    Currency        `json:"currency,omitempty"`
		Notes       string          `json:"notes,omitempty"`
		ExpenseType ExpenseType     `json:"expenseType,omitempty"`
		IsRecurring *bool           `json:"isRecurring,omitempty"`
	}
)

var (
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidType        = errors.New("invalid transaction type")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrInvalidExpenseType = errors.New("invalid expense type")
	ErrInvalidCurrency    = errors.New("invalid currency")
	ErrNotesTooLong       = errors.New("notes too long (max 500 characters)")
)

var categoriesByType = map[TransactionType][]Category{
	Income:  {CategorySalary, CategoryFreelance, CategoryBonus, CategoryOther},
	Expense: {CategoryHousing, CategoryFood, CategoryBusiness, CategoryTransportation, CategoryUtilities, CategoryOther},
}

// Categories returns the categories allowed for the given transaction type.
func Categories(t TransactionType) []Category {
	return append([]Category(nil), categoriesByType[t]...)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MonthKey returns the yyyy-MM prefix used to bucket transactions by month.
func (d Date) MonthKey() string {
	return d.Format("2006-01")
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, string(b))
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (e ExpenseType) Valid() bool {
	return e == Mandatory || e == Leisure
}

// EffectiveCurrency returns the transaction currency, treating records
// written before multi-currency support as USD.
func (t Transaction) EffectiveCurrency() Currency {
	if t.Currency == "" {
		return DefaultCurrency
	}
	return t.Currency
}

// IsMandatory reports whether the transaction is an expense flagged mandatory.
func (t Transaction) IsMandatory() bool {
	return t.Type == Expense && t.ExpenseType == Mandatory
}

// IsLeisure reports whether the transaction is an expense flagged leisure.
func (t Transaction) IsLeisure() bool {
	return t.Type == Expense && t.ExpenseType == Leisure
}

func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, t.Type)
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if t.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !categoryAllowed(t.Type, t.Category) {
		return fmt.Errorf("%w: %q for %s", ErrInvalidCategory, t.Category, t.Type)
	}
	if t.Currency != "" && !t.Currency.Supported() {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, t.Currency)
	}
	if len(t.Notes) > 500 {
		return ErrNotesTooLong
	}
	switch t.Type {
	case Expense:
		if t.ExpenseType != "" && !t.ExpenseType.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidExpenseType, t.ExpenseType)
		}
	case Income:
		if t.ExpenseType != "" || t.IsRecurring != nil {
			return fmt.Errorf("%w: income cannot carry expense attributes", ErrInvalidExpenseType)
		}
	}
	return nil
}

func categoryAllowed(t TransactionType, c Category) bool {
	for _, allowed := range categoriesByType[t] {
		if allowed == c {
			return true
		}
	}
	return false
}
