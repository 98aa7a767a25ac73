package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"budgettracker/internal/core"
	"budgettracker/internal/rates"
)

func TestSnapshotRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	ctx := context.Background()
	s, err := New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.ClearSnapshot(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	if _, ok, err := s.LoadSnapshot(ctx); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	ts := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	want := rates.Snapshot{
		Rates:        core.Rates{core.USD: 1, core.EUR: 0.92, core.CAD: 1.36, core.TRY: 32.5},
		BaseCurrency: core.USD,
		Timestamp:    ts,
	}
	if err := s.SaveSnapshot(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := s.LoadSnapshot(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if !got.Timestamp.Equal(ts) || got.Rates[core.EUR] != 0.92 || got.BaseCurrency != core.USD {
		t.Fatalf("got %+v", got)
	}

	if err := s.ClearSnapshot(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := s.LoadSnapshot(ctx); ok {
		t.Fatal("snapshot survived clear")
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New(context.Background(), "http://localhost:6379"); err == nil {
		t.Fatal("expected error for non-redis scheme")
	}
}
