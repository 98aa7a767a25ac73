package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"budgettracker/internal/amqp"
	"budgettracker/internal/core"
	applog "budgettracker/internal/log"
	"budgettracker/internal/repository"
)

var ErrDuplicateID = errors.New("transaction id already exists")

type currencyDefaulter interface {
	DefaultCurrency(ctx context.Context, userID string) core.Currency
}

// TransactionService validates and stores transactions, then announces each
// change. Publishing is best effort: a failed publish never fails the call.
type TransactionService struct {
	repo       repository.TransactionRepository
	events     EventPublisher
	currencies currencyDefaulter
	logger     *applog.Logger
	sl         *applog.StructuredLogger
	listeners  []func(userID string)
}

func NewTransactionService(repo repository.TransactionRepository, events EventPublisher, currencies currencyDefaulter, logger *applog.Logger) *TransactionService {
	if events == nil {
		events = NopPublisher{}
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentTx)
	return &TransactionService{
		repo:       repo,
		events:     events,
		currencies: currencies,
		logger:     logger,
		sl:         applog.NewStructuredLogger(logger),
	}
}

// OnChange registers a callback run after every successful mutation.
func (s *TransactionService) OnChange(fn func(userID string)) {
	s.listeners = append(s.listeners, fn)
}

// List returns the user's transactions, newest first. Ties keep insertion
// order.
func (s *TransactionService) List(ctx context.Context, userID string) ([]core.Transaction, error) {
	txs, err := s.repo.ListTransactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date.After(txs[j].Date.Time)
	})
	return txs, nil
}

// Create stores a new transaction. A missing ID is generated and a missing
// currency is set to the user's default.
func (s *TransactionService) Create(ctx context.Context, userID string, tx core.Transaction) (core.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Currency == "" {
		tx.Currency = s.defaultCurrency(ctx, userID)
	}
	tx.Amount = core.Round2(tx.Amount)
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	if err := s.repo.CreateTransaction(ctx, userID, tx); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return core.Transaction{}, fmt.Errorf("%w: %s", ErrDuplicateID, tx.ID)
		}
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	s.changed(ctx, amqp.OpCreated, userID, &tx, tx.ID)
	return tx, nil
}

// Update replaces the transaction identified by id.
func (s *TransactionService) Update(ctx context.Context, userID, id string, tx core.Transaction) (core.Transaction, error) {
	tx.ID = id
	tx.Amount = core.Round2(tx.Amount)
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.repo.UpdateTransaction(ctx, userID, tx); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	s.changed(ctx, amqp.OpUpdated, userID, &tx, tx.ID)
	return tx, nil
}

func (s *TransactionService) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteTransaction(ctx, userID, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.changed(ctx, amqp.OpDeleted, userID, nil, id)
	return nil
}

// Clear removes every transaction of the user. It reports false, with no
// error, when there was nothing to remove.
func (s *TransactionService) Clear(ctx context.Context, userID string) (bool, error) {
	err := s.repo.DeleteAllTransactions(ctx, userID)
	if errors.Is(err, repository.ErrEmpty) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("clear transactions: %w", err)
	}
	s.changed(ctx, amqp.OpCleared, userID, nil, "")
	return true, nil
}

func (s *TransactionService) defaultCurrency(ctx context.Context, userID string) core.Currency {
	if s.currencies == nil {
		return core.DefaultCurrency
	}
	return s.currencies.DefaultCurrency(ctx, userID)
}

func (s *TransactionService) changed(ctx context.Context, op, userID string, tx *core.Transaction, id string) {
	for _, fn := range s.listeners {
		fn(userID)
	}

	if tx != nil {
		s.sl.LogTransactionChanged(ctx, op, userID, tx.ID, string(tx.Type), string(tx.Category), tx.Amount, string(tx.EffectiveCurrency()))
	} else {
		s.logger.InfoContext(ctx, "Transaction changed",
			applog.FieldOperation, op,
			applog.FieldUserID, userID,
			applog.FieldTransactionID, id)
	}

	ev := amqp.TransactionChanged{Op: op, UserID: userID, TransactionID: id, Transaction: tx}
	if err := s.events.PublishTransactionChanged(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish transaction event",
			applog.FieldOperation, op,
			applog.FieldTransactionID, id,
			applog.FieldError, err)
	}
}
