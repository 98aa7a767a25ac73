package sheets

import (
	"context"
	"strconv"

	"budgettracker/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionMirror keeps a copy of every user's transactions outside the
	// primary store, one row per transaction keyed by transaction ID.
	TransactionMirror interface {
		Upsert(ctx context.Context, userID string, tx core.Transaction) error
		Delete(ctx context.Context, userID, id string) error
		// DeleteUser removes every row belonging to userID.
		DeleteUser(ctx context.Context, userID string) error
	}
)

// Header is the column layout shared by mirror adapters.
var Header = []string{"ID", "User", "Date", "Type", "Category", "Amount", "Currency", "Expense Type", "Recurring", "Notes"}

// Row renders a transaction in Header order.
func Row(userID string, tx core.Transaction) []string {
	recurring := ""
	if tx.IsRecurring != nil {
		recurring = strconv.FormatBool(*tx.IsRecurring)
	}
	return []string{
		tx.ID,
		userID,
		tx.Date.String(),
		string(tx.Type),
		string(tx.Category),
		strconv.FormatFloat(core.Round2(tx.Amount), 'f', 2, 64),
		string(tx.EffectiveCurrency()),
		string(tx.ExpenseType),
		recurring,
		tx.Notes,
	}
}
