package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		wantDriver string
		wantDSN    string
		wantErr    bool
	}{
		{
			name:       "relative sqlite",
			url:        "sqlite://data.db",
			wantDriver: DriverSQLite,
			wantDSN:    "file:data.db?" + defaultSQLiteParams,
		},
		{
			name:       "absolute sqlite",
			url:        "sqlite:///var/lib/sk/data.db",
			wantDriver: DriverSQLite,
			wantDSN:    "file:/var/lib/sk/data.db?" + defaultSQLiteParams,
		},
		{
			name:       "sqlite keeps explicit params",
			url:        "sqlite:///tmp/x.db?_journal_mode=WAL",
			wantDriver: DriverSQLite,
			wantDSN:    "file:/tmp/x.db?_journal_mode=WAL",
		},
		{
			name:       "postgres passthrough",
			url:        "postgres://u:p@localhost:5432/sk?sslmode=disable",
			wantDriver: DriverPostgres,
			wantDSN:    "postgres://u:p@localhost:5432/sk?sslmode=disable",
		},
		{
			name:    "unsupported scheme",
			url:     "mysql://localhost/sk",
			wantErr: true,
		},
		{
			name:    "sqlite without path",
			url:     "sqlite://",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, dsn, err := parseURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseURL(%q) error = nil, want error", tt.url)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseURL(%q) error = %v, want nil", tt.url, err)
			}
			if driver != tt.wantDriver {
				t.Errorf("driver = %q, want %q", driver, tt.wantDriver)
			}
			if dsn != tt.wantDSN {
				t.Errorf("dsn = %q, want %q", dsn, tt.wantDSN)
			}
		})
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	ctx := context.Background()
	database, err := Open("sqlite://" + filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("Open() error = %v, want nil", err)
	}
	defer database.Close()

	if err := RequireMigrated(ctx, database); err == nil {
		t.Fatal("RequireMigrated() error = nil before migrating, want error")
	}

	if err := MigrateUp(ctx, database); err != nil {
		t.Fatalf("MigrateUp() error = %v, want nil", err)
	}
	if err := MigrateUp(ctx, database); err != nil {
		t.Fatalf("second MigrateUp() error = %v, want nil", err)
	}

	statuses, err := MigrateStatus(ctx, database)
	if err != nil {
		t.Fatalf("MigrateStatus() error = %v, want nil", err)
	}
	if len(statuses) == 0 {
		t.Fatal("MigrateStatus() returned no migrations")
	}
	for _, s := range statuses {
		if !s.Applied {
			t.Errorf("migration %s not applied", s.ID)
		}
		if s.AppliedAt == "" {
			t.Errorf("migration %s has empty applied_at", s.ID)
		}
	}

	if err := RequireMigrated(ctx, database); err != nil {
		t.Fatalf("RequireMigrated() error = %v, want nil", err)
	}
}

func TestMigrateUp_ChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	database, err := Open("sqlite://" + filepath.Join(t.TempDir(), "tamper.db"))
	if err != nil {
		t.Fatalf("Open() error = %v, want nil", err)
	}
	defer database.Close()

	if err := MigrateUp(ctx, database); err != nil {
		t.Fatalf("MigrateUp() error = %v, want nil", err)
	}
	if _, err := database.Exec("UPDATE migrations SET checksum = 'tampered'"); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if err := MigrateUp(ctx, database); err == nil {
		t.Fatal("MigrateUp() error = nil after tampering, want checksum error")
	}
}

func TestQueries_Transaction(t *testing.T) {
	ctx := context.Background()
	database, err := Open("sqlite://" + filepath.Join(t.TempDir(), "tx.db"))
	if err != nil {
		t.Fatalf("Open() error = %v, want nil", err)
	}
	defer database.Close()
	if err := MigrateUp(ctx, database); err != nil {
		t.Fatalf("MigrateUp() error = %v, want nil", err)
	}

	q, err := LoadQueries(database)
	if err != nil {
		t.Fatalf("LoadQueries() error = %v, want nil", err)
	}

	tx, err := q.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v, want nil", err)
	}
	if _, err := tx.Exec(ctx, "add-analytics-event", 1, 7, "layout", 42, "view", "2024-01-01T00:00:00Z"); err != nil {
		t.Fatalf("tx.Exec() error = %v, want nil", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v, want nil", err)
	}

	var count int
	if err := q.Get(ctx, "count-analytics-events", &count, 7, "layout", 42, "view"); err != nil {
		t.Fatalf("Get() error = %v, want nil", err)
	}
	if count != 0 {
		t.Errorf("count after rollback = %d, want 0", count)
	}

	if _, err := q.Exec(ctx, "no-such-query"); err == nil {
		t.Error("Exec(unknown) error = nil, want error")
	}
}
