// Package memory is an in-process TransactionMirror used by the worker when
// no spreadsheet is configured, and by tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"budgettracker/internal/core"
	ports "budgettracker/internal/sheets"
)

var _ ports.TransactionMirror = (*Mirror)(nil)

type Mirror struct {
	mu   sync.Mutex
	rows map[string]map[string][]string
}

func New() *Mirror {
	return &Mirror{rows: map[string]map[string][]string{}}
}

func (m *Mirror) Upsert(_ context.Context, userID string, tx core.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.rows[userID]
	if !ok {
		user = map[string][]string{}
		m.rows[userID] = user
	}
	user[tx.ID] = ports.Row(userID, tx)
	return nil
}

// Delete is a no-op when the row does not exist.
func (m *Mirror) Delete(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows[userID], id)
	return nil
}

func (m *Mirror) DeleteUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, userID)
	return nil
}

// Rows returns a user's rows ordered by transaction ID.
func (m *Mirror) Rows(userID string) [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.rows[userID]))
	for id := range m.rows[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([][]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, append([]string(nil), m.rows[userID][id]...))
	}
	return out
}
