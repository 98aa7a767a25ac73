// Package repotest holds behaviour checks shared by every repository.Store
// implementation.
package repotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"budgettracker/internal/core"
	"budgettracker/internal/cycle"
	"budgettracker/internal/rates"
	"budgettracker/internal/repository"
)

// Run exercises store through every port. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) repository.Store) {
	t.Run("transactions", func(t *testing.T) { testTransactions(t, newStore(t)) })
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("sessions", func(t *testing.T) { testSessions(t, newStore(t)) })
	t.Run("settings", func(t *testing.T) { testSettings(t, newStore(t)) })
	t.Run("snapshot", func(t *testing.T) { testSnapshot(t, newStore(t)) })
}

func sampleTx(id string, amount float64) core.Transaction {
	recurring := true
	return core.Transaction{
		ID:          id,
		Type:        core.Expense,
		Category:    core.CategoryFood,
		Amount:      amount,
		Date:        core.NewDate(2024, 6, 1),
		Currency:    core.EUR,
		Notes:       "groceries",
		ExpenseType: core.Mandatory,
		IsRecurring: &recurring,
	}
}

func testTransactions(t *testing.T, s repository.Store) {
	ctx := context.Background()

	list, err := s.ListTransactions(ctx, "u1")
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %v %v", list, err)
	}
	if err := s.DeleteAllTransactions(ctx, "u1"); !errors.Is(err, repository.ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}

	for i, id := range []string{"a", "b", "c"} {
		if err := s.CreateTransaction(ctx, "u1", sampleTx(id, float64(i+1)*10)); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if err := s.CreateTransaction(ctx, "u2", sampleTx("z", 1)); err != nil {
		t.Fatalf("create other user: %v", err)
	}

	list, err = s.ListTransactions(ctx, "u1")
	if err != nil || len(list) != 3 {
		t.Fatalf("expected 3 transactions, got %d %v", len(list), err)
	}
	got := list[0]
	if got.ID != "a" || got.Amount != 10 || got.Currency != core.EUR || got.Date.String() != "2024-06-01" ||
		got.ExpenseType != core.Mandatory || got.IsRecurring == nil || !*got.IsRecurring || got.Notes != "groceries" {
		t.Fatalf("transaction did not round-trip: %+v", got)
	}

	updated := sampleTx("b", 99.99)
	updated.Currency = ""
	updated.IsRecurring = nil
	if err := s.UpdateTransaction(ctx, "u1", updated); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.UpdateTransaction(ctx, "u1", sampleTx("missing", 1)); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
	if err := s.UpdateTransaction(ctx, "u2", sampleTx("a", 1)); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("update must be scoped to the user, got %v", err)
	}

	list, _ = s.ListTransactions(ctx, "u1")
	var b core.Transaction
	for _, x := range list {
		if x.ID == "b" {
			b = x
		}
	}
	if b.Amount != 99.99 || b.Currency != "" || b.IsRecurring != nil {
		t.Fatalf("update not applied: %+v", b)
	}

	if err := s.DeleteTransaction(ctx, "u1", "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteTransaction(ctx, "u1", "a"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	if err := s.DeleteAllTransactions(ctx, "u1"); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if list, _ := s.ListTransactions(ctx, "u1"); len(list) != 0 {
		t.Fatalf("expected no transactions after delete all, got %d", len(list))
	}
	if list, _ := s.ListTransactions(ctx, "u2"); len(list) != 1 {
		t.Fatalf("other user's data must survive, got %d", len(list))
	}
}

func testUsers(t *testing.T, s repository.Store) {
	ctx := context.Background()
	u := core.User{
		ID:           "user-1",
		Email:        "ada@example.com",
		Name:         "Ada",
		PasswordHash: "hash",
		AuthProvider: "email",
		CreatedAt:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	dup := u
	dup.ID = "user-2"
	dup.Email = "ADA@example.com"
	if err := s.CreateUser(ctx, dup); !errors.Is(err, repository.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	byEmail, err := s.FindUserByEmail(ctx, "Ada@Example.com")
	if err != nil || byEmail.ID != u.ID || byEmail.PasswordHash != "hash" || !byEmail.CreatedAt.Equal(u.CreatedAt) {
		t.Fatalf("find by email: %+v %v", byEmail, err)
	}
	if _, err := s.FindUserByID(ctx, "user-1"); err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if _, err := s.FindUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.FindUserByID(ctx, "nope"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testSessions(t *testing.T, s repository.Store) {
	ctx := context.Background()
	sess := core.Session{
		Token:     "tok",
		UserID:    "user-1",
		Email:     "ada@example.com",
		ExpiresAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatalf("save session: %v", err)
	}
	got, err := s.FindSession(ctx, "tok")
	if err != nil || got.UserID != "user-1" || !got.ExpiresAt.Equal(sess.ExpiresAt) {
		t.Fatalf("find session: %+v %v", got, err)
	}
	if err := s.DeleteSession(ctx, "tok"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := s.FindSession(ctx, "tok"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testSettings(t *testing.T, s repository.Store) {
	ctx := context.Background()
	if _, err := s.LoadSettings(ctx, "u1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	st := cycle.DefaultSettings()
	if _, err := st.AddCycle(cycle.Cycle{ID: "card", Name: "Card", Type: cycle.CreditCard, StartDay: 25, EndDay: 24, MonthlyBudget: 800}); err != nil {
		t.Fatal(err)
	}
	st.Theme = "dark"
	if err := s.SaveSettings(ctx, "u1", st); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	got, err := s.LoadSettings(ctx, "u1")
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if len(got.Cycles) != 2 || got.ActiveCycleID != cycle.DefaultCycleID || got.Theme != "dark" || got.Cycles[1].MonthlyBudget != 800 {
		t.Fatalf("settings did not round-trip: %+v", got)
	}
}

func testSnapshot(t *testing.T, s repository.Store) {
	ctx := context.Background()
	if _, ok, err := s.LoadSnapshot(ctx); err != nil || ok {
		t.Fatalf("expected no snapshot, got ok=%v err=%v", ok, err)
	}
	snap := rates.Snapshot{
		Rates:        core.Rates{core.USD: 1, core.EUR: 0.93},
		BaseCurrency: core.USD,
		Timestamp:    time.UnixMilli(1717000000000).UTC(),
	}
	if err := s.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	snap.Rates[core.EUR] = 0.94
	snap.Timestamp = snap.Timestamp.Add(time.Minute)
	if err := s.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("overwrite snapshot: %v", err)
	}
	got, ok, err := s.LoadSnapshot(ctx)
	if err != nil || !ok || got.Rates[core.EUR] != 0.94 || !got.Timestamp.Equal(snap.Timestamp) {
		t.Fatalf("snapshot did not round-trip: %+v ok=%v err=%v", got, ok, err)
	}
	if err := s.ClearSnapshot(ctx); err != nil {
		t.Fatalf("clear snapshot: %v", err)
	}
	if _, ok, _ := s.LoadSnapshot(ctx); ok {
		t.Fatalf("snapshot should be gone")
	}
}
