// Package postgres is the PostgreSQL backend built on a pgx connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"budgettracker/internal/core"
	"budgettracker/internal/cycle"
	"budgettracker/internal/rates"
	"budgettracker/internal/repository"
)

const uniqueViolation = "23505"

type Repository struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and applies pending migrations.
func New(ctx context.Context, databaseURL string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	r := &Repository{pool: pool}
	if err := r.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (r *Repository) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, type, category, amount, date, currency, notes, expense_type, is_recurring
		 FROM transactions WHERE user_id = $1 ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		var (
			tx                                core.Transaction
			typ, cat, cur, notes, expenseType string
			date                              time.Time
		)
		if err := rows.Scan(&tx.ID, &typ, &cat, &tx.Amount, &date, &cur, &notes, &expenseType, &tx.IsRecurring); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Type = core.TransactionType(typ)
		tx.Category = core.Category(cat)
		tx.Date = core.DateOf(date)
		tx.Currency = core.Currency(cur)
		tx.Notes = notes
		tx.ExpenseType = core.ExpenseType(expenseType)
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *Repository) CreateTransaction(ctx context.Context, userID string, tx core.Transaction) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO transactions (user_id, id, type, category, amount, date, currency, notes, expense_type, is_recurring)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		userID, tx.ID, string(tx.Type), string(tx.Category), tx.Amount, tx.Date.Time,
		string(tx.Currency), tx.Notes, string(tx.ExpenseType), tx.IsRecurring)
	if isUniqueViolation(err) {
		return fmt.Errorf("transaction %s: %w", tx.ID, repository.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (r *Repository) UpdateTransaction(ctx context.Context, userID string, tx core.Transaction) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE transactions SET type = $3, category = $4, amount = $5, date = $6, currency = $7,
			notes = $8, expense_type = $9, is_recurring = $10
		 WHERE user_id = $1 AND id = $2`,
		userID, tx.ID, string(tx.Type), string(tx.Category), tx.Amount, tx.Date.Time,
		string(tx.Currency), tx.Notes, string(tx.ExpenseType), tx.IsRecurring)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s: %w", tx.ID, repository.ErrNotFound)
	}
	return nil
}

func (r *Repository) DeleteTransaction(ctx context.Context, userID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM transactions WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s: %w", id, repository.ErrNotFound)
	}
	return nil
}

func (r *Repository) DeleteAllTransactions(ctx context.Context, userID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM transactions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete transactions: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrEmpty
	}
	return nil
}

func (r *Repository) CreateUser(ctx context.Context, u core.User) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, name, password_hash, auth_provider, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.AuthProvider, u.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.Email, repository.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *Repository) findUser(ctx context.Context, where string, arg any) (core.User, error) {
	var u core.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, name, password_hash, auth_provider, created_at FROM users WHERE `+where, arg).
		Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.AuthProvider, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, repository.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("find user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (r *Repository) FindUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.findUser(ctx, "LOWER(email) = LOWER($1)", email)
}

func (r *Repository) FindUserByID(ctx context.Context, id string) (core.User, error) {
	return r.findUser(ctx, "id = $1", id)
}

func (r *Repository) SaveSession(ctx context.Context, s core.Session) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (token, user_id, email, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id, email = EXCLUDED.email, expires_at = EXCLUDED.expires_at`,
		s.Token, s.UserID, s.Email, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *Repository) FindSession(ctx context.Context, token string) (core.Session, error) {
	s := core.Session{Token: token}
	err := r.pool.QueryRow(ctx, `SELECT user_id, email, expires_at FROM sessions WHERE token = $1`, token).
		Scan(&s.UserID, &s.Email, &s.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Session{}, repository.ErrNotFound
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("find session: %w", err)
	}
	s.ExpiresAt = s.ExpiresAt.UTC()
	return s, nil
}

func (r *Repository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *Repository) LoadSettings(ctx context.Context, userID string) (cycle.Settings, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx, `SELECT document FROM user_settings WHERE user_id = $1`, userID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return cycle.Settings{}, repository.ErrNotFound
	}
	if err != nil {
		return cycle.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	var st cycle.Settings
	if err := json.Unmarshal(doc, &st); err != nil {
		return cycle.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return st, nil
}

func (r *Repository) SaveSettings(ctx context.Context, userID string, st cycle.Settings) error {
	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO user_settings (user_id, document, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET document = EXCLUDED.document, updated_at = NOW()`,
		userID, doc)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (r *Repository) LoadSnapshot(ctx context.Context) (rates.Snapshot, bool, error) {
	var (
		base string
		doc  []byte
		snap rates.Snapshot
	)
	err := r.pool.QueryRow(ctx,
		`SELECT base_currency, rates, fetched_at FROM rate_snapshots WHERE cache_key = $1`, rates.CacheKey).
		Scan(&base, &doc, &snap.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return rates.Snapshot{}, false, nil
	}
	if err != nil {
		return rates.Snapshot{}, false, fmt.Errorf("load rate snapshot: %w", err)
	}
	if err := json.Unmarshal(doc, &snap.Rates); err != nil {
		return rates.Snapshot{}, false, fmt.Errorf("decode rate snapshot: %w", err)
	}
	snap.BaseCurrency = core.Currency(base)
	snap.Timestamp = snap.Timestamp.UTC()
	return snap, true, nil
}

func (r *Repository) SaveSnapshot(ctx context.Context, snap rates.Snapshot) error {
	doc, err := json.Marshal(snap.Rates)
	if err != nil {
		return fmt.Errorf("encode rate snapshot: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO rate_snapshots (cache_key, base_currency, rates, fetched_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (cache_key) DO UPDATE SET base_currency = EXCLUDED.base_currency,
			rates = EXCLUDED.rates, fetched_at = EXCLUDED.fetched_at`,
		rates.CacheKey, string(snap.BaseCurrency), doc, snap.Timestamp)
	if err != nil {
		return fmt.Errorf("save rate snapshot: %w", err)
	}
	return nil
}

func (r *Repository) ClearSnapshot(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM rate_snapshots WHERE cache_key = $1`, rates.CacheKey); err != nil {
		return fmt.Errorf("clear rate snapshot: %w", err)
	}
	return nil
}

var _ repository.Store = (*Repository)(nil)
