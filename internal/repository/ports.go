// Package repository defines the storage ports shared by every backend.
package repository

import (
	"context"
	"errors"

	"budgettracker/internal/core"
	"budgettracker/internal/cycle"
	"budgettracker/internal/rates"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrEmpty         = errors.New("no transactions to clear")
)

type (
	// TransactionRepository stores each user's transactions. Update replaces
	// the record with the same ID; Update and Delete return ErrNotFound for an
	// unknown ID.
	TransactionRepository interface {
		ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error)
		CreateTransaction(ctx context.Context, userID string, tx core.Transaction) error
		UpdateTransaction(ctx context.Context, userID string, tx core.Transaction) error
		DeleteTransaction(ctx context.Context, userID, id string) error
		// DeleteAllTransactions returns ErrEmpty when the user has none.
		DeleteAllTransactions(ctx context.Context, userID string) error
	}

	UserRepository interface {
		// CreateUser returns ErrAlreadyExists when the email is taken.
		CreateUser(ctx context.Context, u core.User) error
		FindUserByEmail(ctx context.Context, email string) (core.User, error)
		FindUserByID(ctx context.Context, id string) (core.User, error)
	}

	SessionRepository interface {
		SaveSession(ctx context.Context, s core.Session) error
		FindSession(ctx context.Context, token string) (core.Session, error)
		DeleteSession(ctx context.Context, token string) error
	}

	// SettingsRepository returns ErrNotFound for users who never saved
	// settings.
	SettingsRepository interface {
		LoadSettings(ctx context.Context, userID string) (cycle.Settings, error)
		SaveSettings(ctx context.Context, userID string, s cycle.Settings) error
	}

	// Store is everything a backend provides.
	Store interface {
		TransactionRepository
		UserRepository
		SessionRepository
		SettingsRepository
		rates.SnapshotStore
		Ping(ctx context.Context) error
		Close() error
	}
)
