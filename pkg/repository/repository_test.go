package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-access/pkg/domain"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, dialect, err := NewDB(ctx, Config{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if dialect != DialectSQLite {
		t.Fatalf("dialect = %q, want sqlite", dialect)
	}
	if err := Migrate(ctx, db, dialect); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

var testNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newAccount(email string, org *uuid.UUID) *domain.Account {
	return &domain.Account{
		ID:             uuid.New(),
		Email:          email,
		PasswordHash:   "$2a$04$hash",
		FirstName:      "Ada",
		LastName:       "Lovelace",
		Role:           domain.RoleStaff,
		OrganizationID: org,
		Active:         true,
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}
}

func stringPtr(s string) *string { return &s }

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"", DialectPostgres, false},
		{"postgres", DialectPostgres, false},
		{"PostgreSQL", DialectPostgres, false},
		{"sqlite", DialectSQLite, false},
		{"sqlite3", DialectSQLite, false},
		{"mysql", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDialect(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDialect(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDialect(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPostgresDSN(t *testing.T) {
	got := postgresDSN(Config{Host: "db", Port: 5432, User: "idm", Password: "p@ss", DBName: "access"})
	want := "postgres://idm:p%40ss@db:5432/access?sslmode=disable"
	if got != want {
		t.Errorf("postgresDSN() = %q, want %q", got, want)
	}
}

func TestDialectTimestamp(t *testing.T) {
	if got := DialectPostgres.timestamp("$4"); got != "$4::timestamptz" {
		t.Errorf("postgres timestamp = %q", got)
	}
	if got := DialectSQLite.timestamp("$4"); got != "$4" {
		t.Errorf("sqlite timestamp = %q", got)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)
	if err := Migrate(context.Background(), db, DialectSQLite); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}
