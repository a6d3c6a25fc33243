package database

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gray-logic-minisplit/internal/infrastructure/config"
)

func TestOpen(t *testing.T) {
	t.Run("creates database file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		db, err := Open(Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // test cleanup

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %v, want %v", db.Path(), dbPath)
		}
	})

	t.Run("creates directory if not exists", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

		db, err := Open(Config{Path: dbPath, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // test cleanup

		if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
			t.Error("database directory was not created")
		}
	})

	t.Run("in memory", func(t *testing.T) {
		db, err := Open(Config{Path: MemoryPath})
		if err != nil {
			t.Fatalf("Open(:memory:) error = %v", err)
		}
		defer db.Close() //nolint:errcheck // test cleanup

		ctx := context.Background()
		if _, err := db.ExecContext(ctx, "CREATE TABLE t (v INTEGER)"); err != nil {
			t.Fatalf("ExecContext() error = %v", err)
		}
		// The single pooled connection keeps the table visible.
		if _, err := db.ExecContext(ctx, "INSERT INTO t (v) VALUES (1)"); err != nil {
			t.Fatalf("insert error = %v", err)
		}
	})

	t.Run("empty path", func(t *testing.T) {
		if _, err := Open(Config{}); err == nil {
			t.Error("Open() with empty path should fail")
		}
	})
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.DatabaseConfig{Path: "/x/y.db", WALMode: true, BusyTimeout: 3}, nil)
	if cfg.Path != "/x/y.db" || !cfg.WALMode || cfg.BusyTimeout != 3 || cfg.Migrations != nil {
		t.Errorf("ConfigFrom() = %+v", cfg)
	}
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t, nil)

	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	db.Close() //nolint:errcheck // closing to force failure
	if err := db.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() after Close should fail")
	}
}

func TestClose(t *testing.T) {
	db := openTestDB(t, nil)
	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	var empty DB
	if err := empty.Close(); err != nil {
		t.Errorf("Close() on zero DB error = %v", err)
	}
}

func TestBeginTx(t *testing.T) {
	db := openTestDB(t, nil)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE t (v INTEGER)"); err != nil {
		t.Fatalf("ExecContext() error = %v", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO t (v) VALUES (1)"); err != nil {
		t.Fatalf("insert error = %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	tx, err = db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO t (v) VALUES (2)"); err != nil {
		t.Fatalf("insert error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM t").Scan(&count); err != nil {
		t.Fatalf("count error = %v", err)
	}
	if count != 1 {
		t.Errorf("rows = %d, want 1 (rolled back insert discarded)", count)
	}
}

func TestExecContext_Error(t *testing.T) {
	db := openTestDB(t, nil)
	if _, err := db.ExecContext(context.Background(), "NOT SQL"); err == nil {
		t.Error("ExecContext() with invalid SQL should fail")
	}
}

// openTestDB opens a temporary on-disk database.
func openTestDB(t *testing.T, migrations fs.FS) *DB {
	t.Helper()

	db, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
		Migrations:  migrations,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	return db
}
