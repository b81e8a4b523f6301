package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// openTestDB opens a fresh database in a temp directory.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}

func TestOpen(t *testing.T) {
	t.Run("creates nested directory and file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "data", "nested", "wormbot.db")

		db, err := Open(context.Background(), Config{Path: dbPath, BusyTimeout: 1})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if _, err := os.Stat(filepath.Dir(dbPath)); err != nil {
			t.Errorf("database directory was not created: %v", err)
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
		}
	})

	t.Run("health check", func(t *testing.T) {
		db := openTestDB(t)
		if err := db.HealthCheck(context.Background()); err != nil {
			t.Errorf("HealthCheck() error = %v", err)
		}
	})

	t.Run("close is idempotent on nil", func(t *testing.T) {
		var db *DB
		if err := db.Close(); err != nil {
			t.Errorf("Close() on nil = %v", err)
		}
	})
}

func TestConfigDSN(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		contains []string
		excludes []string
	}{
		{
			name:     "wal enabled",
			cfg:      Config{Path: "/tmp/x.db", WALMode: true, BusyTimeout: 5},
			contains: []string{"file:/tmp/x.db", "_busy_timeout=5000", "_journal_mode=WAL"},
		},
		{
			name:     "wal disabled",
			cfg:      Config{Path: "/tmp/x.db", BusyTimeout: 2},
			contains: []string{"_busy_timeout=2000", "_foreign_keys=on"},
			excludes: []string{"_journal_mode"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := tt.cfg.dsn()
			for _, s := range tt.contains {
				if !strings.Contains(dsn, s) {
					t.Errorf("dsn %q missing %q", dsn, s)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(dsn, s) {
					t.Errorf("dsn %q should not contain %q", dsn, s)
				}
			}
		})
	}
}
