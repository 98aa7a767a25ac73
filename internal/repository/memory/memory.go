// Package memory is an in-process Store used for development and tests.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"budgettracker/internal/core"
	"budgettracker/internal/cycle"
	"budgettracker/internal/rates"
	"budgettracker/internal/repository"
)

type Store struct {
	rates.MemoryStore

	mu           sync.Mutex
	users        map[string]core.User // by id
	emails       map[string]string    // email -> id
	sessions     map[string]core.Session
	transactions map[string][]core.Transaction
	settings     map[string]cycle.Settings
}

func New() *Store {
	return &Store{
		users:        make(map[string]core.User),
		emails:       make(map[string]string),
		sessions:     make(map[string]core.Session),
		transactions: make(map[string][]core.Transaction),
		settings:     make(map[string]cycle.Settings),
	}
}

func (s *Store) ListTransactions(_ context.Context, userID string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction{}, s.transactions[userID]...), nil
}

func (s *Store) CreateTransaction(_ context.Context, userID string, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.transactions[userID] {
		if existing.ID == tx.ID {
			return fmt.Errorf("transaction %s: %w", tx.ID, repository.ErrAlreadyExists)
		}
	}
	s.transactions[userID] = append(s.transactions[userID], tx)
	return nil
}

func (s *Store) UpdateTransaction(_ context.Context, userID string, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.transactions[userID]
	for i := range list {
		if list[i].ID == tx.ID {
			list[i] = tx
			return nil
		}
	}
	return fmt.Errorf("transaction %s: %w", tx.ID, repository.ErrNotFound)
}

func (s *Store) DeleteTransaction(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.transactions[userID]
	for i := range list {
		if list[i].ID == id {
			s.transactions[userID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("transaction %s: %w", id, repository.ErrNotFound)
}

func (s *Store) DeleteAllTransactions(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.transactions[userID]) == 0 {
		return repository.ErrEmpty
	}
	delete(s.transactions, userID)
	return nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(u.Email)
	if _, taken := s.emails[email]; taken {
		return fmt.Errorf("user %s: %w", email, repository.ErrAlreadyExists)
	}
	s.users[u.ID] = u
	s.emails[email] = u.ID
	return nil
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return core.User{}, repository.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) FindUserByID(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (s *Store) SaveSession(_ context.Context, sess core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Token] = sess
	return nil
}

func (s *Store) FindSession(_ context.Context, token string) (core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return core.Session{}, repository.ErrNotFound
	}
	return sess, nil
}

func (s *Store) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *Store) LoadSettings(_ context.Context, userID string) (cycle.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settings[userID]
	if !ok {
		return cycle.Settings{}, repository.ErrNotFound
	}
	st.Cycles = append([]cycle.Cycle(nil), st.Cycles...)
	return st, nil
}

func (s *Store) SaveSettings(_ context.Context, userID string, st cycle.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.Cycles = append([]cycle.Cycle(nil), st.Cycles...)
	s.settings[userID] = st
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

var _ repository.Store = (*Store)(nil)
