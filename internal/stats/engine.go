// Package stats derives dashboard, daily, calendar and category figures from
// a list of transactions, converting every amount into one target currency.
//
// Nothing here is persisted; results are recomputed from the transactions and
// the rate table each time. Amounts are converted and rounded per
// transaction, then summed, then rounded again.
package stats

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"budgettracker/internal/core"
	"budgettracker/internal/currency"
	"budgettracker/internal/cycle"
)

type (
	// Totals are the converted sums over a set of transactions.
	Totals struct {
		Income    float64 `json:"income"`
		Expense   float64 `json:"expense"`
		Mandatory float64 `json:"mandatoryExpense"`
		Leisure   float64 `json:"leisureExpense"`
		// Degraded counts amounts passed through without conversion.
		Degraded int `json:"degraded,omitempty"`
		// Skipped counts transactions left out because they could not be
		// dated or converted.
		Skipped int `json:"skipped,omitempty"`
		Count   int `json:"transactionCount"`
	}

	DashboardStats struct {
		Month    string        `json:"month"`
		Currency core.Currency `json:"currency"`
		Totals
		MoneySaved   float64 `json:"moneySaved"`
		DailyBudget  float64 `json:"dailyBudget"`
		DaysInPeriod int     `json:"daysInPeriod"`
		CycleName    string  `json:"cycleName,omitempty"`
		// PlannedDailyBudget is the active cycle's monthly budget spread over
		// the cycle, reported alongside the computed DailyBudget.
		PlannedDailyBudget float64 `json:"plannedDailyBudget,omitempty"`
	}

	DailyStats struct {
		Date     string        `json:"date"`
		Currency core.Currency `json:"currency"`
		Totals
		Transactions []core.Transaction `json:"transactions"`
	}

	CalendarDay struct {
		Day int `json:"day"`
		DailyStats
		OverBudget bool `json:"overBudget"`
	}

	CategorySlice struct {
		Category   core.Category `json:"category"`
		Amount     float64       `json:"amount"`
		Percentage float64       `json:"percentage"`
		Count      int           `json:"count"`
	}

	// Period is an inclusive date range. A zero bound is open.
	Period struct {
		From core.Date
		To   core.Date
	}
)

// MonthPeriod covers the calendar month containing t.
func MonthPeriod(t time.Time) Period {
	first := core.NewDate(t.Year(), int(t.Month()), 1)
	return Period{From: first, To: core.NewDate(t.Year(), int(t.Month()), cycle.DaysInMonth(t))}
}

// DayPeriod covers a single date.
func DayPeriod(d core.Date) Period {
	return Period{From: d, To: d}
}

func (p Period) Contains(d core.Date) bool {
	if d.IsZero() {
		return false
	}
	if !p.From.IsZero() && d.Before(p.From.Time) {
		return false
	}
	if !p.To.IsZero() && d.After(p.To.Time) {
		return false
	}
	return true
}

// Engine computes statistics with the given conversion policy.
type Engine struct {
	Converter currency.Converter
}

func NewEngine(conv currency.Converter) *Engine {
	return &Engine{Converter: conv}
}

// accumulator sums converted amounts exactly before the final rounding.
type accumulator struct {
	income, expense, mandatory, leisure decimal.Decimal
	totals                              Totals
}

func (e *Engine) add(ctx context.Context, acc *accumulator, tx core.Transaction, target core.Currency, rates core.Rates) {
	if tx.Date.IsZero() {
		acc.totals.Skipped++
		return
	}
	conv, err := e.Converter.ConvertContext(ctx, tx.Amount, tx.EffectiveCurrency(), target, rates)
	if err != nil {
		acc.totals.Skipped++
		return
	}
	if conv.Degraded {
		acc.totals.Degraded++
	}
	amt := decimal.NewFromFloat(conv.Amount)
	acc.totals.Count++
	switch tx.Type {
	case core.Income:
		acc.income = acc.income.Add(amt)
	case core.Expense:
		acc.expense = acc.expense.Add(amt)
		switch tx.ExpenseType {
		case core.Mandatory:
			acc.mandatory = acc.mandatory.Add(amt)
		case core.Leisure:
			acc.leisure = acc.leisure.Add(amt)
		}
	default:
		acc.totals.Count--
		acc.totals.Skipped++
	}
}

func (acc *accumulator) result() Totals {
	t := acc.totals
	t.Income = acc.income.Round(2).InexactFloat64()
	t.Expense = acc.expense.Round(2).InexactFloat64()
	t.Mandatory = acc.mandatory.Round(2).InexactFloat64()
	t.Leisure = acc.leisure.Round(2).InexactFloat64()
	return t
}

// Totals sums every transaction inside the period.
func (e *Engine) Totals(ctx context.Context, txs []core.Transaction, target core.Currency, rates core.Rates, p Period) Totals {
	var acc accumulator
	for _, tx := range txs {
		if !tx.Date.IsZero() && !p.Contains(tx.Date) {
			continue
		}
		e.add(ctx, &acc, tx, target, rates)
	}
	return acc.result()
}

// Dashboard computes the monthly overview for the month containing month.
// The daily budget is max(0, (income - mandatory) / days) where days comes
// from the active cycle when there is one, else from the calendar month.
func (e *Engine) Dashboard(ctx context.Context, txs []core.Transaction, target core.Currency, rates core.Rates, month time.Time, active *cycle.Cycle) DashboardStats {
	totals := e.Totals(ctx, txs, target, rates, MonthPeriod(month))
	days := cycle.DaysInPeriod(active, month)

	income := decimal.NewFromFloat(totals.Income)
	mandatory := decimal.NewFromFloat(totals.Mandatory)
	daily := income.Sub(mandatory).Div(decimal.NewFromInt(int64(days))).Round(2)
	if daily.IsNegative() {
		daily = decimal.Zero
	}

	stats := DashboardStats{
		Month:        month.Format("2006-01"),
		Currency:     target,
		Totals:       totals,
		MoneySaved:   income.Sub(decimal.NewFromFloat(totals.Expense)).Round(2).InexactFloat64(),
		DailyBudget:  daily.InexactFloat64(),
		DaysInPeriod: days,
	}
	if active != nil {
		stats.CycleName = active.Name
		if active.MonthlyBudget > 0 {
			stats.PlannedDailyBudget = decimal.NewFromFloat(active.MonthlyBudget).
				Div(decimal.NewFromInt(int64(days))).Round(2).InexactFloat64()
		}
	}
	return stats
}

// Daily computes the figures for a single date.
func (e *Engine) Daily(ctx context.Context, txs []core.Transaction, target core.Currency, rates core.Rates, day core.Date) DailyStats {
	var (
		acc     accumulator
		matched = []core.Transaction{}
	)
	for _, tx := range txs {
		if tx.Date.IsZero() || !tx.Date.Equal(day.Time) {
			continue
		}
		e.add(ctx, &acc, tx, target, rates)
		matched = append(matched, tx)
	}
	return DailyStats{
		Date:         day.String(),
		Currency:     target,
		Totals:       acc.result(),
		Transactions: matched,
	}
}

// Calendar returns one entry per day of the month containing month. A day is
// over budget when its expenses exceed dailyBudget.
func (e *Engine) Calendar(ctx context.Context, txs []core.Transaction, target core.Currency, rates core.Rates, month time.Time, dailyBudget float64) []CalendarDay {
	byDay := make(map[string][]core.Transaction)
	period := MonthPeriod(month)
	for _, tx := range txs {
		if period.Contains(tx.Date) {
			byDay[tx.Date.String()] = append(byDay[tx.Date.String()], tx)
		}
	}

	n := cycle.DaysInMonth(month)
	days := make([]CalendarDay, 0, n)
	for d := 1; d <= n; d++ {
		date := core.NewDate(month.Year(), int(month.Month()), d)
		ds := e.Daily(ctx, byDay[date.String()], target, rates, date)
		days = append(days, CalendarDay{
			Day:        d,
			DailyStats: ds,
			OverBudget: ds.Expense > dailyBudget,
		})
	}
	return days
}

// Categories breaks expenses in the period down by category, largest first.
func (e *Engine) Categories(ctx context.Context, txs []core.Transaction, target core.Currency, rates core.Rates, p Period) []CategorySlice {
	sums := make(map[core.Category]decimal.Decimal)
	counts := make(map[core.Category]int)
	total := decimal.Zero
	for _, tx := range txs {
		if tx.Type != core.Expense || !p.Contains(tx.Date) {
			continue
		}
		conv, err := e.Converter.ConvertContext(ctx, tx.Amount, tx.EffectiveCurrency(), target, rates)
		if err != nil {
			continue
		}
		amt := decimal.NewFromFloat(conv.Amount)
		sums[tx.Category] = sums[tx.Category].Add(amt)
		counts[tx.Category]++
		total = total.Add(amt)
	}

	out := make([]CategorySlice, 0, len(sums))
	for cat, sum := range sums {
		slice := CategorySlice{
			Category: cat,
			Amount:   sum.Round(2).InexactFloat64(),
			Count:    counts[cat],
		}
		if total.IsPositive() {
			slice.Percentage = sum.Div(total).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
		}
		out = append(out, slice)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Category < out[j].Category
	})
	return out
}
