package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"budgettracker/internal/config"
	"budgettracker/internal/core"
	"budgettracker/internal/rates"
)

func TestFromAppConfig(t *testing.T) {
	cfg := &config.Config{
		DataBackend:   "sqlite",
		DataDir:       "/tmp/data",
		SQLiteDBPath:  "/tmp/data/budget.db",
		RatesCacheDir: "/tmp/rates",
	}
	got, err := FromAppConfig(cfg)
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if got.Type != SQLiteBackend || got.SQLiteDBPath != cfg.SQLiteDBPath || got.RatesCacheDir != "/tmp/rates" {
		t.Errorf("unexpected config %+v", got)
	}

	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory needs nothing", Config{Type: MemoryBackend}, false},
		{"jsonfile needs dir", Config{Type: JSONFileBackend}, true},
		{"sqlite needs path", Config{Type: SQLiteBackend}, true},
		{"postgres needs url", Config{Type: PostgresBackend}, true},
		{"postgres ok", Config{Type: PostgresBackend, PostgresURL: "postgres://localhost/budget"}, false},
		{"unknown", Config{Type: "redis"}, true},
		{"redis snapshots need redis scheme", Config{Type: MemoryBackend, RatesRedisURL: "http://localhost:6379"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	got := GetBackendTypeStrings()
	want := []string{"memory", "jsonfile", "sqlite", "postgres"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCreateFileBackends(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	tests := []Config{
		{Type: MemoryBackend, RatesCacheDir: t.TempDir()},
		{Type: MemoryBackend},
		{Type: JSONFileBackend, DataDirectory: t.TempDir()},
		{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "budget.db")},
	}

	for _, cfg := range tests {
		t.Run(cfg.Type.String(), func(t *testing.T) {
			res, err := f.CreateBackend(ctx, cfg)
			if err != nil {
				t.Fatalf("CreateBackend: %v", err)
			}
			defer res.Cleanup()

			if err := res.Store.Ping(ctx); err != nil {
				t.Fatalf("Ping: %v", err)
			}

			snap := rates.Snapshot{
				Rates:        core.Rates{core.USD: 1, core.EUR: 0.9, core.CAD: 1.3, core.TRY: 30},
				BaseCurrency: core.USD,
				Timestamp:    time.UnixMilli(1717200000000),
			}
			if err := res.Snapshots.SaveSnapshot(ctx, snap); err != nil {
				t.Fatalf("SaveSnapshot: %v", err)
			}
			got, ok, err := res.Snapshots.LoadSnapshot(ctx)
			if err != nil || !ok {
				t.Fatalf("LoadSnapshot: ok=%v err=%v", ok, err)
			}
			if got.Rates[core.EUR] != 0.9 {
				t.Errorf("EUR = %v", got.Rates[core.EUR])
			}
		})
	}
}

func TestCreateBackendRejectsInvalid(t *testing.T) {
	if _, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: SQLiteBackend}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestCreateBackendRejectsBadRedisURL(t *testing.T) {
	cfg := Config{Type: MemoryBackend, RatesRedisURL: "http://localhost:6379"}
	if _, err := NewFactory(nil).CreateBackend(context.Background(), cfg); err == nil {
		t.Fatal("expected redis url error")
	}
}
