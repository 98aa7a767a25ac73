package core

import "strings"

const (
	USD Currency = "USD"
	CAD Currency = "CAD"
	EUR Currency = "EUR"
	TRY Currency = "TRY"
)

// DefaultCurrency applies to transactions without an explicit currency.
const DefaultCurrency = USD

type (
	Currency string

	CurrencyInfo struct {
		Code   Currency `json:"code"`
		Name   string   `json:"name"`
		Symbol string   `json:"symbol"`
		Locale string   `json:"locale"`
	}

	// Rates maps a currency to its value relative to USD (USD itself is 1).
	// A missing or non-positive entry means the rate is unknown.
	Rates map[Currency]float64
)

var currencies = []CurrencyInfo{
	{Code: USD, Name: "US Dollar", Symbol: "$", Locale: "en-US"},
	{Code: CAD, Name: "Canadian Dollar", Symbol: "C$", Locale: "en-CA"},
	{Code: EUR, Name: "Euro", Symbol: "€", Locale: "de-DE"},
	{Code: TRY, Name: "Turkish Lira", Symbol: "₺", Locale: "tr-TR"},
}

// SupportedCurrencies lists the currencies the tracker can convert between.
func SupportedCurrencies() []CurrencyInfo {
	return append([]CurrencyInfo(nil), currencies...)
}

// ParseCurrency normalizes a currency code. Empty input yields DefaultCurrency.
func ParseCurrency(s string) (Currency, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return DefaultCurrency, nil
	}
	c := Currency(s)
	if !c.Supported() {
		return "", ErrInvalidCurrency
	}
	return c, nil
}

func (c Currency) Supported() bool {
	_, ok := c.Info()
	return ok
}

func (c Currency) Info() (CurrencyInfo, bool) {
	for _, info := range currencies {
		if info.Code == c {
			return info, true
		}
	}
	return CurrencyInfo{}, false
}

// Known reports whether r holds a usable rate for c.
func (r Rates) Known(c Currency) bool {
	v, ok := r[c]
	return ok && v > 0
}

// Clone returns a copy that can be handed out without sharing the map.
func (r Rates) Clone() Rates {
	if r == nil {
		return nil
	}
	out := make(Rates, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// DefaultRates is the hardcoded table used when no live or cached rates exist.
func DefaultRates() Rates {
	return Rates{USD: 1, CAD: 1.36, EUR: 0.92, TRY: 32.5}
}
