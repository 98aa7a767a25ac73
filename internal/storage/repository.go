// Package storage is the SQLite backend. The schema is managed by embedded
// golang-migrate migrations applied on open.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"budgettracker/internal/core"
	"budgettracker/internal/cycle"
	"budgettracker/internal/rates"
	"budgettracker/internal/repository"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

const transactionColumns = `id, type, category, amount, date, currency, notes, expense_type, is_recurring`

func transactionArgs(tx core.Transaction) []any {
	var recurring sql.NullBool
	if tx.IsRecurring != nil {
		recurring = sql.NullBool{Bool: *tx.IsRecurring, Valid: true}
	}
	return []any{
		tx.ID, string(tx.Type), string(tx.Category), tx.Amount, tx.Date.String(),
		string(tx.Currency), tx.Notes, string(tx.ExpenseType), recurring,
	}
}

// ListTransactions implements repository.TransactionRepository
func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = ? ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		var (
			tx                                      core.Transaction
			typ, cat, date, cur, notes, expenseType string
			recurring                               sql.NullBool
		)
		if err := rows.Scan(&tx.ID, &typ, &cat, &tx.Amount, &date, &cur, &notes, &expenseType, &recurring); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		d, err := core.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
		tx.Type = core.TransactionType(typ)
		tx.Category = core.Category(cat)
		tx.Date = d
		tx.Currency = core.Currency(cur)
		tx.Notes = notes
		tx.ExpenseType = core.ExpenseType(expenseType)
		if recurring.Valid {
			v := recurring.Bool
			tx.IsRecurring = &v
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, userID string, tx core.Transaction) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (user_id, `+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append([]any{userID}, transactionArgs(tx)...)...)
	if isUniqueViolation(err) {
		return fmt.Errorf("transaction %s: %w", tx.ID, repository.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, userID string, tx core.Transaction) error {
	args := transactionArgs(tx)
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET type = ?, category = ?, amount = ?, date = ?, currency = ?,
			notes = ?, expense_type = ?, is_recurring = ?
		 WHERE user_id = ? AND id = ?`,
		append(args[1:], userID, tx.ID)...)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return expectOne(res, "transaction "+tx.ID)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return expectOne(res, "transaction "+id)
}

func (r *SQLiteRepository) DeleteAllTransactions(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete transactions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrEmpty
	}
	return nil
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, repository.ErrNotFound)
	}
	return nil
}

// CreateUser implements repository.UserRepository
func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, auth_provider, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.AuthProvider, u.CreatedAt.UnixMilli())
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.Email, repository.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) findUser(ctx context.Context, where string, arg any) (core.User, error) {
	var (
		u       core.User
		created int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, auth_provider, created_at FROM users WHERE `+where, arg).
		Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.AuthProvider, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, repository.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("find user: %w", err)
	}
	u.CreatedAt = time.UnixMilli(created).UTC()
	return u, nil
}

func (r *SQLiteRepository) FindUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.findUser(ctx, "email = ?", email)
}

func (r *SQLiteRepository) FindUserByID(ctx context.Context, id string) (core.User, error) {
	return r.findUser(ctx, "id = ?", id)
}

// SaveSession implements repository.SessionRepository
func (r *SQLiteRepository) SaveSession(ctx context.Context, s core.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, email, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(token) DO UPDATE SET user_id = excluded.user_id, email = excluded.email, expires_at = excluded.expires_at`,
		s.Token, s.UserID, s.Email, s.ExpiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) FindSession(ctx context.Context, token string) (core.Session, error) {
	s := core.Session{Token: token}
	var expires int64
	err := r.db.QueryRowContext(ctx, `SELECT user_id, email, expires_at FROM sessions WHERE token = ?`, token).
		Scan(&s.UserID, &s.Email, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Session{}, repository.ErrNotFound
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("find session: %w", err)
	}
	s.ExpiresAt = time.UnixMilli(expires).UTC()
	return s, nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions that expired before now.
func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

// LoadSettings implements repository.SettingsRepository
func (r *SQLiteRepository) LoadSettings(ctx context.Context, userID string) (cycle.Settings, error) {
	var doc string
	err := r.db.QueryRowContext(ctx, `SELECT document FROM user_settings WHERE user_id = ?`, userID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return cycle.Settings{}, repository.ErrNotFound
	}
	if err != nil {
		return cycle.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	var st cycle.Settings
	if err := json.Unmarshal([]byte(doc), &st); err != nil {
		return cycle.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return st, nil
}

func (r *SQLiteRepository) SaveSettings(ctx context.Context, userID string, st cycle.Settings) error {
	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO user_settings (user_id, document, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		userID, string(doc), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// LoadSnapshot implements rates.SnapshotStore
func (r *SQLiteRepository) LoadSnapshot(ctx context.Context) (rates.Snapshot, bool, error) {
	var (
		base, doc string
		fetched   int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT base_currency, rates, fetched_at FROM rate_snapshots WHERE cache_key = ?`, rates.CacheKey).
		Scan(&base, &doc, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return rates.Snapshot{}, false, nil
	}
	if err != nil {
		return rates.Snapshot{}, false, fmt.Errorf("load rate snapshot: %w", err)
	}
	snap := rates.Snapshot{BaseCurrency: core.Currency(base), Timestamp: time.UnixMilli(fetched).UTC()}
	if err := json.Unmarshal([]byte(doc), &snap.Rates); err != nil {
		return rates.Snapshot{}, false, fmt.Errorf("decode rate snapshot: %w", err)
	}
	return snap, true, nil
}

func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, snap rates.Snapshot) error {
	doc, err := json.Marshal(snap.Rates)
	if err != nil {
		return fmt.Errorf("encode rate snapshot: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO rate_snapshots (cache_key, base_currency, rates, fetched_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET base_currency = excluded.base_currency,
			rates = excluded.rates, fetched_at = excluded.fetched_at`,
		rates.CacheKey, string(snap.BaseCurrency), string(doc), snap.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("save rate snapshot: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ClearSnapshot(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM rate_snapshots WHERE cache_key = ?`, rates.CacheKey); err != nil {
		return fmt.Errorf("clear rate snapshot: %w", err)
	}
	return nil
}

var _ repository.Store = (*SQLiteRepository)(nil)
