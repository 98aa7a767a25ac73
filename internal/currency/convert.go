// Package currency converts amounts between the supported currencies using a
// USD-relative rate table.
//
// Conversion goes through USD: amount / rates[from] * rates[to], rounded to two
// decimals half away from zero. When a rate is unknown the default Lenient
// policy passes the amount through unconverted and reports it as degraded;
// the Strict policy returns ErrUnknownRate instead.
package currency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"budgettracker/internal/core"
)

type Policy int

const (
	Lenient Policy = iota
	Strict
)

var ErrUnknownRate = errors.New("unknown exchange rate")

// ParsePolicy maps a configuration value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "lenient":
		return Lenient, nil
	case "strict":
		return Strict, nil
	}
	return Lenient, fmt.Errorf("unknown conversion policy %q", s)
}

func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "lenient"
}

// Conversion is the outcome of a single conversion.
type Conversion struct {
	Amount float64
	// Degraded is set when the amount was passed through unconverted.
	Degraded bool
}

// Item is anything carrying an amount in a currency.
type Item struct {
	Amount   float64
	Currency core.Currency
}

type Converter struct {
	Policy Policy
	Logger *slog.Logger
}

// NewConverter returns a converter with the given policy logging through the
// default slog logger.
func NewConverter(p Policy) Converter {
	return Converter{Policy: p}
}

func (c Converter) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Convert converts amount from one currency to another.
func (c Converter) Convert(amount float64, from, to core.Currency, rates core.Rates) (Conversion, error) {
	return c.ConvertContext(context.Background(), amount, from, to, rates)
}

func (c Converter) ConvertContext(ctx context.Context, amount float64, from, to core.Currency, rates core.Rates) (Conversion, error) {
	if from == to {
		return Conversion{Amount: core.Round2(amount)}, nil
	}
	if !rates.Known(from) || !rates.Known(to) {
		if c.Policy == Strict {
			return Conversion{}, fmt.Errorf("%w: %s->%s", ErrUnknownRate, from, to)
		}
		c.logger().WarnContext(ctx, "Exchange rate not found, amount left unconverted",
			"from", from, "to", to, "amount", amount)
		return Conversion{Amount: core.Round2(amount), Degraded: true}, nil
	}
	v := decimal.NewFromFloat(amount).
		Div(decimal.NewFromFloat(rates[from])).
		Mul(decimal.NewFromFloat(rates[to]))
	return Conversion{Amount: v.Round(2).InexactFloat64()}, nil
}

// Convert is the lenient conversion used by display code.
func Convert(amount float64, from, to core.Currency, rates core.Rates) float64 {
	conv, _ := Converter{}.Convert(amount, from, to, rates)
	return conv.Amount
}

// ConvertAll converts every item to the target currency. Under the Strict
// policy the first unknown rate aborts the batch.
func (c Converter) ConvertAll(items []Item, to core.Currency, rates core.Rates) ([]float64, error) {
	out := make([]float64, 0, len(items))
	for _, it := range items {
		conv, err := c.Convert(it.Amount, it.Currency, to, rates)
		if err != nil {
			return nil, err
		}
		out = append(out, conv.Amount)
	}
	return out, nil
}

// Total converts each item, rounds it, sums the results and rounds the sum.
func (c Converter) Total(items []Item, to core.Currency, rates core.Rates) (float64, error) {
	converted, err := c.ConvertAll(items, to, rates)
	if err != nil {
		return 0, err
	}
	return core.Sum(converted...), nil
}

// Total is the lenient form of Converter.Total.
func Total(items []Item, to core.Currency, rates core.Rates) float64 {
	total, _ := Converter{}.Total(items, to, rates)
	return total
}

// CrossRate returns the factor converting one unit of from into to, or 0 when
// either rate is unknown.
func CrossRate(from, to core.Currency, rates core.Rates) float64 {
	if from == to {
		return 1
	}
	if !rates.Known(from) || !rates.Known(to) {
		return 0
	}
	return decimal.NewFromFloat(rates[to]).
		Div(decimal.NewFromFloat(rates[from])).
		InexactFloat64()
}

// InverseRate returns 1/rate rounded to four decimals, and 0 for a zero rate.
func InverseRate(rate float64) float64 {
	if rate == 0 {
		return 0
	}
	return decimal.NewFromInt(1).Div(decimal.NewFromFloat(rate)).Round(4).InexactFloat64()
}

// FormatRate renders a rate as "1 USD = 1.3600 CAD".
func FormatRate(rate float64, base, target core.Currency) string {
	return fmt.Sprintf("1 %s = %s %s", base, decimal.NewFromFloat(rate).StringFixed(4), target)
}
