package db

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		wantDriver string
		wantSource string
		wantErr    bool
	}{
		{
			name:       "sqlite relative",
			url:        "sqlite://rules.db",
			wantDriver: DriverSQLite,
			wantSource: "file:rules.db?_busy_timeout=5000&_foreign_keys=on",
		},
		{
			name:       "sqlite absolute",
			url:        "sqlite:///var/lib/rulematch/rules.db",
			wantDriver: DriverSQLite,
			wantSource: "file:/var/lib/rulematch/rules.db?_busy_timeout=5000&_foreign_keys=on",
		},
		{
			name:       "sqlite memory",
			url:        "sqlite://:memory:",
			wantDriver: DriverSQLite,
			wantSource: "file::memory:?_foreign_keys=on",
		},
		{
			name:       "postgres",
			url:        "postgres://rm:secret@db:5432/rulematch?sslmode=disable",
			wantDriver: DriverPostgres,
			wantSource: "postgres://rm:secret@db:5432/rulematch?sslmode=disable",
		},
		{name: "unsupported scheme", url: "mysql://localhost/rules", wantErr: true},
		{name: "sqlite without path", url: "sqlite://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, source, err := parseURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseURL(%q) error = nil, want error", tt.url)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseURL(%q) error = %v, want nil", tt.url, err)
			}
			if driver != tt.wantDriver || source != tt.wantSource {
				t.Errorf("parseURL(%q) = %s %s, want %s %s", tt.url, driver, source, tt.wantDriver, tt.wantSource)
			}
		})
	}
}

func TestSplitStatements(t *testing.T) {
	sql := `-- leading comment
CREATE TABLE a (id TEXT);
  -- indented comment
CREATE INDEX idx_a ON a (id);

`
	want := []string{"CREATE TABLE a (id TEXT)", "CREATE INDEX idx_a ON a (id)"}
	if diff := cmp.Diff(want, splitStatements(sql)); diff != "" {
		t.Errorf("splitStatements() mismatch (-want +got):\n%s", diff)
	}
}

func TestMigrateUp_SQLite(t *testing.T) {
	ctx := context.Background()
	dbURL := "sqlite://" + filepath.Join(t.TempDir(), "rules.db")

	db, err := Open(ctx, dbURL)
	if err != nil {
		t.Fatalf("Open() error = %v, want nil", err)
	}
	defer db.Close()

	if err := MigrateUp(ctx, db, testLogger()); err != nil {
		t.Fatalf("MigrateUp() error = %v, want nil", err)
	}
	// Second run is a no-op
	if err := MigrateUp(ctx, db, testLogger()); err != nil {
		t.Fatalf("MigrateUp() second run error = %v, want nil", err)
	}

	statuses, err := MigrateStatus(ctx, db)
	if err != nil {
		t.Fatalf("MigrateStatus() error = %v, want nil", err)
	}
	if len(statuses) == 0 {
		t.Fatalf("MigrateStatus() returned no migrations")
	}
	for _, s := range statuses {
		if !s.Applied {
			t.Errorf("migration %s Applied = false, want true", s.ID)
		}
		if s.AppliedAt == nil {
			t.Errorf("migration %s AppliedAt = nil, want timestamp", s.ID)
		}
	}

	var count int
	if err := db.GetContext(ctx, &count, "SELECT COUNT(*) FROM rules"); err != nil {
		t.Fatalf("rules table query error = %v, want nil", err)
	}
}

func TestMigrateUp_ChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, "sqlite://:memory:")
	if err != nil {
		t.Fatalf("Open() error = %v, want nil", err)
	}
	defer db.Close()

	if err := MigrateUp(ctx, db, testLogger()); err != nil {
		t.Fatalf("MigrateUp() error = %v, want nil", err)
	}
	if _, err := db.ExecContext(ctx, "UPDATE migrations SET checksum = 'tampered'"); err != nil {
		t.Fatalf("tamper error = %v, want nil", err)
	}
	if err := MigrateUp(ctx, db, testLogger()); err == nil {
		t.Errorf("MigrateUp() error = nil, want checksum mismatch")
	}
}

func TestMigrateStatus_Pending(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, "sqlite://:memory:")
	if err != nil {
		t.Fatalf("Open() error = %v, want nil", err)
	}
	defer db.Close()

	statuses, err := MigrateStatus(ctx, db)
	if err != nil {
		t.Fatalf("MigrateStatus() error = %v, want nil", err)
	}
	for _, s := range statuses {
		if s.Applied {
			t.Errorf("migration %s Applied = true, want false", s.ID)
		}
		if s.Checksum == "" {
			t.Errorf("migration %s Checksum empty", s.ID)
		}
	}
}

func TestLoadQueries(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, "sqlite://:memory:")
	if err != nil {
		t.Fatalf("Open() error = %v, want nil", err)
	}
	defer db.Close()

	q, err := LoadQueries(db)
	if err != nil {
		t.Fatalf("LoadQueries() error = %v, want nil", err)
	}
	for _, name := range []string{"create-rule", "update-rule", "upsert-rule", "get-rule", "list-rules", "list-rules-by-status", "delete-rule"} {
		if _, err := q.raw(name); err != nil {
			t.Errorf("query %s: %v", name, err)
		}
	}
	if _, err := q.ExecContext(ctx, "no-such-query"); err == nil {
		t.Errorf("ExecContext(no-such-query) error = nil, want error")
	}
}
