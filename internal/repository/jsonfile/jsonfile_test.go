package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"budgettracker/internal/repository"
	"budgettracker/internal/repository/repotest"
)

func TestStore(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repository.Store {
		s, err := New(t.TempDir())
		if err != nil {
			t.Fatalf("new store: %v", err)
		}
		return s
	})
}

func TestSeedsDocuments(t *testing.T) {
	dir := t.TempDir()
	if _, err := New(dir); err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, name := range []string{usersFile, transactionsFile, settingsFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s to be created: %v", name, err)
		}
	}
}

func TestSkipsMalformedTransactions(t *testing.T) {
	dir := t.TempDir()
	doc := `{"transactions":{"u1":[
		{"id":"ok","type":"expense","category":"food","amount":5,"date":"2024-06-01"},
		{"id":"bad","type":"expense","category":"food","amount":5,"date":"June 1st"}
	]}}`
	if err := os.WriteFile(filepath.Join(dir, transactionsFile), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := New(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	list, err := s.ListTransactions(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != "ok" || list[0].EffectiveCurrency() != "USD" {
		t.Fatalf("expected only the well-formed legacy record, got %+v", list)
	}
}
