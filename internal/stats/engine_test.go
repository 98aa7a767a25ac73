package stats

import (
	"context"
	"testing"
	"time"

	"budgettracker/internal/core"
	"budgettracker/internal/currency"
	"budgettracker/internal/cycle"
)

var rates = core.Rates{core.USD: 1, core.CAD: 1.36, core.EUR: 0.92, core.TRY: 32.5}

func tx(id string, typ core.TransactionType, cat core.Category, amount float64, date string, cur core.Currency, et core.ExpenseType) core.Transaction {
	d, err := core.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return core.Transaction{ID: id, Type: typ, Category: cat, Amount: amount, Date: d, Currency: cur, ExpenseType: et}
}

func june() time.Time { return time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC) }

func TestDashboardScenario(t *testing.T) {
	txs := []core.Transaction{
		tx("1", core.Income, core.CategorySalary, 100, "2024-06-01", core.USD, ""),
		tx("2", core.Expense, core.CategoryHousing, 40, "2024-06-03", core.EUR, core.Mandatory),
		tx("3", core.Expense, core.CategoryFood, 500, "2024-05-31", core.USD, core.Leisure),
	}
	e := NewEngine(currency.Converter{})

	got := e.Dashboard(context.Background(), txs, core.USD, rates, june(), nil)

	if got.Income != 100 || got.Expense != 43.48 || got.Mandatory != 43.48 {
		t.Fatalf("unexpected totals %+v", got.Totals)
	}
	if got.MoneySaved != 56.52 {
		t.Fatalf("money saved = %v, want 56.52", got.MoneySaved)
	}
	if got.DaysInPeriod != 30 || got.DailyBudget != 1.88 {
		t.Fatalf("daily budget = %v over %d days, want 1.88 over 30", got.DailyBudget, got.DaysInPeriod)
	}
	if got.Count != 2 || got.Month != "2024-06" {
		t.Fatalf("unexpected count/month %d %s", got.Count, got.Month)
	}
}

func TestDashboardUsesActiveCycle(t *testing.T) {
	txs := []core.Transaction{
		tx("1", core.Income, core.CategorySalary, 3100, "2024-06-01", "", ""),
	}
	active := &cycle.Cycle{Name: "Card", Type: cycle.CreditCard, StartDay: 25, EndDay: 24, MonthlyBudget: 1550}
	got := NewEngine(currency.Converter{}).Dashboard(context.Background(), txs, core.USD, rates, june(), active)

	if got.DaysInPeriod != 31 || got.DailyBudget != 100 {
		t.Fatalf("expected 100/day over 31 days, got %v over %d", got.DailyBudget, got.DaysInPeriod)
	}
	if got.CycleName != "Card" || got.PlannedDailyBudget != 50 {
		t.Fatalf("unexpected cycle reporting %+v", got)
	}
}

func TestDailyBudgetNeverNegative(t *testing.T) {
	txs := []core.Transaction{
		tx("1", core.Income, core.CategorySalary, 10, "2024-06-01", core.USD, ""),
		tx("2", core.Expense, core.CategoryHousing, 900, "2024-06-02", core.USD, core.Mandatory),
	}
	got := NewEngine(currency.Converter{}).Dashboard(context.Background(), txs, core.USD, rates, june(), nil)
	if got.DailyBudget != 0 {
		t.Fatalf("daily budget = %v, want 0", got.DailyBudget)
	}
	if got.MoneySaved != -890 {
		t.Fatalf("money saved = %v, want -890", got.MoneySaved)
	}
}

func TestTotalsAdditivity(t *testing.T) {
	txs := []core.Transaction{
		tx("1", core.Income, core.CategorySalary, 1234.56, "2024-06-01", core.TRY, ""),
		tx("2", core.Income, core.CategoryBonus, 77.77, "2024-06-02", core.CAD, ""),
		tx("3", core.Income, core.CategoryFreelance, 10.01, "2024-06-03", core.EUR, ""),
		tx("4", core.Income, core.CategoryOther, 3.33, "2024-06-04", "", ""),
	}
	e := NewEngine(currency.Converter{})
	for _, target := range []core.Currency{core.USD, core.CAD, core.EUR, core.TRY} {
		var parts []float64
		for _, x := range txs {
			parts = append(parts, currency.Convert(x.Amount, x.EffectiveCurrency(), target, rates))
		}
		want := core.Sum(parts...)
		got := e.Totals(context.Background(), txs, target, rates, Period{})
		if got.Income != want {
			t.Fatalf("%s: income total %v != sum of parts %v", target, got.Income, want)
		}
	}
}

func TestUnknownRatePolicies(t *testing.T) {
	txs := []core.Transaction{
		tx("1", core.Expense, core.CategoryFood, 10, "2024-06-01", core.TRY, core.Leisure),
		tx("2", core.Expense, core.CategoryFood, 5, "2024-06-01", core.USD, core.Leisure),
		{ID: "3", Type: core.Expense, Category: core.CategoryFood, Amount: 99},
	}
	partial := core.Rates{core.USD: 1, core.EUR: 0.92}

	lenient := NewEngine(currency.Converter{}).Totals(context.Background(), txs, core.USD, partial, Period{})
	if lenient.Expense != 15 || lenient.Degraded != 1 || lenient.Skipped != 1 {
		t.Fatalf("lenient totals %+v", lenient)
	}

	strict := NewEngine(currency.Converter{Policy: currency.Strict}).Totals(context.Background(), txs, core.USD, partial, Period{})
	if strict.Expense != 5 || strict.Skipped != 2 || strict.Degraded != 0 {
		t.Fatalf("strict totals %+v", strict)
	}
}

func TestDaily(t *testing.T) {
	txs := []core.Transaction{
		tx("1", core.Expense, core.CategoryFood, 10, "2024-06-05", core.USD, core.Leisure),
		tx("2", core.Expense, core.CategoryUtilities, 40, "2024-06-05", core.EUR, core.Mandatory),
		tx("3", core.Income, core.CategoryFreelance, 25, "2024-06-05", core.USD, ""),
		tx("4", core.Expense, core.CategoryFood, 99, "2024-06-06", core.USD, core.Leisure),
	}
	day, _ := core.ParseDate("2024-06-05")
	got := NewEngine(currency.Converter{}).Daily(context.Background(), txs, core.USD, rates, day)

	if got.Income != 25 || got.Expense != 53.48 || got.Mandatory != 43.48 || got.Leisure != 10 {
		t.Fatalf("unexpected daily totals %+v", got.Totals)
	}
	if len(got.Transactions) != 3 || got.Date != "2024-06-05" {
		t.Fatalf("unexpected daily transactions %d on %s", len(got.Transactions), got.Date)
	}
}

func TestCalendar(t *testing.T) {
	txs := []core.Transaction{
		tx("1", core.Expense, core.CategoryFood, 30, "2024-02-10", core.USD, core.Leisure),
		tx("2", core.Expense, core.CategoryFood, 5, "2024-02-29", core.USD, core.Leisure),
		tx("3", core.Expense, core.CategoryFood, 50, "2024-03-01", core.USD, core.Leisure),
	}
	feb := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	days := NewEngine(currency.Converter{}).Calendar(context.Background(), txs, core.USD, rates, feb, 20)

	if len(days) != 29 {
		t.Fatalf("expected 29 days, got %d", len(days))
	}
	if !days[9].OverBudget || days[9].Expense != 30 || days[9].Day != 10 {
		t.Fatalf("day 10 should be over budget: %+v", days[9])
	}
	if days[28].OverBudget || days[28].Expense != 5 {
		t.Fatalf("day 29 should be within budget: %+v", days[28])
	}
	if days[0].Transactions == nil || len(days[0].Transactions) != 0 {
		t.Fatalf("empty day should carry an empty list")
	}
}

func TestCategories(t *testing.T) {
	txs := []core.Transaction{
		tx("1", core.Expense, core.CategoryFood, 30, "2024-06-01", core.USD, core.Leisure),
		tx("2", core.Expense, core.CategoryHousing, 60, "2024-06-01", core.USD, core.Mandatory),
		tx("3", core.Expense, core.CategoryFood, 10, "2024-06-02", core.USD, core.Leisure),
		tx("4", core.Expense, core.CategoryBusiness, 40, "2024-06-02", core.USD, ""),
		tx("5", core.Income, core.CategorySalary, 1000, "2024-06-02", core.USD, ""),
		tx("6", core.Expense, core.CategoryUtilities, 500, "2024-07-01", core.USD, core.Mandatory),
	}
	got := NewEngine(currency.Converter{}).Categories(context.Background(), txs, core.USD, rates, MonthPeriod(june()))

	want := []CategorySlice{
		{Category: core.CategoryHousing, Amount: 60, Percentage: 42.86, Count: 1},
		{Category: core.CategoryBusiness, Amount: 40, Percentage: 28.57, Count: 1},
		{Category: core.CategoryFood, Amount: 40, Percentage: 28.57, Count: 2},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d slices, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slice %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestPeriodContains(t *testing.T) {
	p := MonthPeriod(june())
	in, _ := core.ParseDate("2024-06-30")
	out, _ := core.ParseDate("2024-07-01")
	if !p.Contains(in) || p.Contains(out) || p.Contains(core.Date{}) {
		t.Fatalf("unexpected Contains results for %+v", p)
	}
	if !(Period{}).Contains(out) {
		t.Fatalf("open period should contain every dated transaction")
	}
}
