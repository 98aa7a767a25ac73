// Package jsonfile stores users, sessions, transactions and settings as JSON
// documents in a data directory. It reads and rewrites whole documents on
// every call, which suits a single-user or small deployment.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"budgettracker/internal/core"
	"budgettracker/internal/cycle"
	"budgettracker/internal/rates"
	"budgettracker/internal/repository"
)

const (
	usersFile        = "users.json"
	transactionsFile = "transactions.json"
	settingsFile     = "settings.json"
)

type (
	userRecord struct {
		User         core.User `json:"user"`
		PasswordHash string    `json:"passwordHash"`
	}

	sessionRecord struct {
		UserID    string `json:"userId"`
		Email     string `json:"email"`
		ExpiresAt int64  `json:"expiresAt"`
	}

	usersDoc struct {
		Users    map[string]userRecord    `json:"users"`
		Sessions map[string]sessionRecord `json:"sessions"`
	}

	transactionsDoc struct {
		Transactions map[string][]json.RawMessage `json:"transactions"`
	}

	settingsDoc struct {
		Settings map[string]cycle.Settings `json:"settings"`
	}
)

type Store struct {
	*rates.FileStore

	dir string
	mu  sync.Mutex
}

// New creates the data directory and seeds empty documents where missing.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &Store{FileStore: rates.NewFileStore(dir), dir: dir}
	seeds := map[string]any{
		usersFile:        usersDoc{Users: map[string]userRecord{}, Sessions: map[string]sessionRecord{}},
		transactionsFile: transactionsDoc{Transactions: map[string][]json.RawMessage{}},
		settingsFile:     settingsDoc{Settings: map[string]cycle.Settings{}},
	}
	for name, doc := range seeds {
		if _, err := os.Stat(filepath.Join(dir, name)); errors.Is(err, os.ErrNotExist) {
			if err := s.write(name, doc); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func (s *Store) read(name string, v any) error {
	b, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (s *Store) write(name string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path+".tmp", b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(path+".tmp", path); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func (s *Store) readTransactions() (transactionsDoc, error) {
	doc := transactionsDoc{}
	if err := s.read(transactionsFile, &doc); err != nil {
		return doc, err
	}
	if doc.Transactions == nil {
		doc.Transactions = map[string][]json.RawMessage{}
	}
	return doc, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readTransactions()
	if err != nil {
		return nil, err
	}
	out := make([]core.Transaction, 0, len(doc.Transactions[userID]))
	for _, raw := range doc.Transactions[userID] {
		var tx core.Transaction
		if err := json.Unmarshal(raw, &tx); err != nil {
			slog.WarnContext(ctx, "Skipping malformed transaction record", "user_id", userID, "error", err)
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func transactionID(raw json.RawMessage) string {
	var head struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(raw, &head)
	return head.ID
}

func (s *Store) CreateTransaction(_ context.Context, userID string, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readTransactions()
	if err != nil {
		return err
	}
	for _, raw := range doc.Transactions[userID] {
		if transactionID(raw) == tx.ID {
			return fmt.Errorf("transaction %s: %w", tx.ID, repository.ErrAlreadyExists)
		}
	}
	b, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("encode transaction: %w", err)
	}
	doc.Transactions[userID] = append(doc.Transactions[userID], b)
	return s.write(transactionsFile, doc)
}

func (s *Store) UpdateTransaction(_ context.Context, userID string, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readTransactions()
	if err != nil {
		return err
	}
	list := doc.Transactions[userID]
	for i, raw := range list {
		if transactionID(raw) != tx.ID {
			continue
		}
		b, err := json.Marshal(tx)
		if err != nil {
			return fmt.Errorf("encode transaction: %w", err)
		}
		list[i] = b
		return s.write(transactionsFile, doc)
	}
	return fmt.Errorf("transaction %s: %w", tx.ID, repository.ErrNotFound)
}

func (s *Store) DeleteTransaction(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readTransactions()
	if err != nil {
		return err
	}
	list := doc.Transactions[userID]
	for i, raw := range list {
		if transactionID(raw) == id {
			doc.Transactions[userID] = append(list[:i:i], list[i+1:]...)
			return s.write(transactionsFile, doc)
		}
	}
	return fmt.Errorf("transaction %s: %w", id, repository.ErrNotFound)
}

func (s *Store) DeleteAllTransactions(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readTransactions()
	if err != nil {
		return err
	}
	if len(doc.Transactions[userID]) == 0 {
		return repository.ErrEmpty
	}
	delete(doc.Transactions, userID)
	return s.write(transactionsFile, doc)
}

func (s *Store) readUsers() (usersDoc, error) {
	doc := usersDoc{}
	if err := s.read(usersFile, &doc); err != nil {
		return doc, err
	}
	if doc.Users == nil {
		doc.Users = map[string]userRecord{}
	}
	if doc.Sessions == nil {
		doc.Sessions = map[string]sessionRecord{}
	}
	return doc, nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readUsers()
	if err != nil {
		return err
	}
	for _, rec := range doc.Users {
		if strings.EqualFold(rec.User.Email, u.Email) {
			return fmt.Errorf("user %s: %w", u.Email, repository.ErrAlreadyExists)
		}
	}
	doc.Users[u.ID] = userRecord{User: u.Public(), PasswordHash: u.PasswordHash}
	return s.write(usersFile, doc)
}

func (r userRecord) toUser() core.User {
	u := r.User
	u.PasswordHash = r.PasswordHash
	return u
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readUsers()
	if err != nil {
		return core.User{}, err
	}
	for _, rec := range doc.Users {
		if strings.EqualFold(rec.User.Email, email) {
			return rec.toUser(), nil
		}
	}
	return core.User{}, repository.ErrNotFound
}

func (s *Store) FindUserByID(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readUsers()
	if err != nil {
		return core.User{}, err
	}
	rec, ok := doc.Users[id]
	if !ok {
		return core.User{}, repository.ErrNotFound
	}
	return rec.toUser(), nil
}

func (s *Store) SaveSession(_ context.Context, sess core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readUsers()
	if err != nil {
		return err
	}
	doc.Sessions[sess.Token] = sessionRecord{UserID: sess.UserID, Email: sess.Email, ExpiresAt: sess.ExpiresAt.UnixMilli()}
	return s.write(usersFile, doc)
}

func (s *Store) FindSession(_ context.Context, token string) (core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readUsers()
	if err != nil {
		return core.Session{}, err
	}
	rec, ok := doc.Sessions[token]
	if !ok {
		return core.Session{}, repository.ErrNotFound
	}
	return core.Session{
		Token:     token,
		UserID:    rec.UserID,
		Email:     rec.Email,
		ExpiresAt: time.UnixMilli(rec.ExpiresAt).UTC(),
	}, nil
}

func (s *Store) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readUsers()
	if err != nil {
		return err
	}
	if _, ok := doc.Sessions[token]; !ok {
		return nil
	}
	delete(doc.Sessions, token)
	return s.write(usersFile, doc)
}

func (s *Store) readSettings() (settingsDoc, error) {
	doc := settingsDoc{}
	if err := s.read(settingsFile, &doc); err != nil {
		return doc, err
	}
	if doc.Settings == nil {
		doc.Settings = map[string]cycle.Settings{}
	}
	return doc, nil
}

func (s *Store) LoadSettings(_ context.Context, userID string) (cycle.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readSettings()
	if err != nil {
		return cycle.Settings{}, err
	}
	st, ok := doc.Settings[userID]
	if !ok {
		return cycle.Settings{}, repository.ErrNotFound
	}
	return st, nil
}

func (s *Store) SaveSettings(_ context.Context, userID string, st cycle.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readSettings()
	if err != nil {
		return err
	}
	doc.Settings[userID] = st
	return s.write(settingsFile, doc)
}

// Ping checks that the data directory is still reachable.
func (s *Store) Ping(context.Context) error {
	if _, err := os.Stat(s.dir); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return nil }

var _ repository.Store = (*Store)(nil)
