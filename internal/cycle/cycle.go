// Package cycle resolves the number of days a budget covers and manages the
// per-user set of budget cycles.
package cycle

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Salary     Type = "salary"
	CreditCard Type = "credit-card"
	Custom     Type = "custom"
)

// monthLength is the fixed month length used for cycles that wrap around the
// end of a month, regardless of the real length of that month.
const monthLength = 31

type (
	Type string

	Cycle struct {
		ID            string  `json:"id"`
		Name          string  `json:"name"`
		Type          Type    `json:"type"`
		StartDay      int     `json:"startDay"`
		EndDay        int     `json:"endDay"`
		MonthlyBudget float64 `json:"monthlyBudget,omitempty"`
		IsActive      bool    `json:"isActive"`
	}
)

var (
	ErrInvalidDay    = errors.New("cycle day must be between 1 and 31")
	ErrInvalidType   = errors.New("invalid cycle type")
	ErrEmptyName     = errors.New("empty cycle name")
	ErrInvalidBudget = errors.New("monthly budget cannot be negative")
)

func (c Cycle) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	switch c.Type {
	case Salary, CreditCard, Custom:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidType, c.Type)
	}
	if c.StartDay < 1 || c.StartDay > monthLength || c.EndDay < 1 || c.EndDay > monthLength {
		return ErrInvalidDay
	}
	if c.MonthlyBudget < 0 {
		return ErrInvalidBudget
	}
	return nil
}

// Days returns the number of days the cycle spans. A cycle whose end day is
// before its start day wraps into the next month, counted as if every month
// had 31 days: 25..24 is 31 days, 1..31 is 31 days, 10..20 is 11 days.
func (c Cycle) Days() int {
	return DaysInCycle(c.StartDay, c.EndDay)
}

func DaysInCycle(startDay, endDay int) int {
	if startDay <= endDay {
		return endDay - startDay + 1
	}
	return (monthLength - startDay + 1) + endDay
}

// DaysInMonth returns the real number of days in the month containing t.
func DaysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DaysInPeriod is the divisor used for the daily budget: the active cycle's
// length when there is one, otherwise the days in the given calendar month.
func DaysInPeriod(active *Cycle, month time.Time) int {
	if active != nil {
		return active.Days()
	}
	return DaysInMonth(month)
}
