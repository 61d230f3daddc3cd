package db

import (
	"context"
	"io/fs"
	"strings"
	"testing"
)

func TestMigrationsAreEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("expected at least one migration")
	}
	body, err := fs.ReadFile(migrationFiles, "migrations/"+entries[0].Name())
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	for _, want := range []string{"-- +goose Up", "gen_random_uuid()", "'processing'"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("migration missing %q", want)
		}
	}
}

func TestCreatedAtDefaultIsPerStatement(t *testing.T) {
	body, err := fs.ReadFile(migrationFiles, "migrations/00002_documents_clock_created_at.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	up := strings.SplitN(string(body), "-- +goose Down", 2)[0]
	if !strings.Contains(up, "SET DEFAULT clock_timestamp()") {
		t.Fatalf("created_at default should use clock_timestamp(): %s", up)
	}
}

func TestRunMigrationsNilDatabase(t *testing.T) {
	if err := RunMigrations(context.Background(), nil); err != nil {
		t.Fatalf("expected nil database to be a no-op, got %v", err)
	}
}
