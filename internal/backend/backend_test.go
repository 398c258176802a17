package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"billbuddy/internal/config"
	"billbuddy/internal/core"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:     "postgres",
		PostgresDSN:     "postgres://u:p@localhost/db",
		SQLiteDBPath:    "./data/x.db",
		MemoryStateFile: "state.json",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Type != PostgresBackend || cfg.PostgresDSN == "" || cfg.MemoryStateFile != "state.json" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"postgres without dsn", Config{Type: PostgresBackend}, true},
		{"unknown", Config{Type: "redis"}, true},
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
	if len(got) != len(config.Backends) {
		t.Fatalf("got %v, config accepts %v", got, config.Backends)
	}
	for i := range got {
		if got[i] != config.Backends[i] {
			t.Errorf("backend %d = %q, config has %q", i, got[i], config.Backends[i])
		}
	}
}

func TestCreateMemoryBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	f := NewFactory(nil)

	res, err := f.CreateBackend(ctx, Config{Type: MemoryBackend, MemoryStateFile: path})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	if _, err := res.Store.AddEqual(ctx, core.EqualSplitEntry{ID: "e1", Label: "Taxi", Amount: 20, Payer: "Ann"}); err != nil {
		t.Fatalf("AddEqual: %v", err)
	}
	if err := res.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("state file not written: %v", err)
	}

	res, err = f.CreateBackend(ctx, Config{Type: MemoryBackend, MemoryStateFile: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	st, err := res.Store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(st.Equal) != 1 || st.Equal[0].ID != "e1" {
		t.Errorf("state not restored: %+v", st)
	}
}

func TestCreateMemoryBackendBadStateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend, MemoryStateFile: path}); err == nil {
		t.Fatal("expected error for corrupt state file")
	}
}

func TestCreateSQLiteBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "billbuddy.db")

	res, err := NewFactory(nil).CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: path})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer res.Cleanup()

	rev, err := res.Store.AddItemized(ctx, core.ItemizedSplitEntry{
		ID: "i1", Label: "Lunch", Amount: 30, Payer: "Ann",
		Costs: []core.ItemizedCost{{Person: "Bo", Label: "Soup", Cost: 12}},
	})
	if err != nil {
		t.Fatalf("AddItemized: %v", err)
	}
	if rev != 1 {
		t.Errorf("revision = %d, want 1", rev)
	}
}
