package migrations

import (
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// TestEmbeddedSourceIsWellFormed exercises the embedded migration source the
// same way golang-migrate's iofs driver does, without a live Postgres
// connection: it is the part of Apply that can be checked without a
// database/sql driver behind it.
func TestEmbeddedSourceIsWellFormed(t *testing.T) {
	src, err := iofs.New(files, ".")
	if err != nil {
		t.Fatalf("open embedded migration source: %v", err)
	}
	defer src.Close()

	first, err := src.First()
	if err != nil {
		t.Fatalf("first migration version: %v", err)
	}
	if first != 1 {
		t.Fatalf("expected first migration version 1, got %d", first)
	}

	up, identifier, err := src.ReadUp(first)
	if err != nil {
		t.Fatalf("read up migration: %v", err)
	}
	up.Close()
	if identifier == "" {
		t.Fatal("expected non-empty migration identifier")
	}

	down, _, err := src.ReadDown(first)
	if err != nil {
		t.Fatalf("read down migration: %v", err)
	}
	down.Close()

	if _, err := src.Next(first); err == nil {
		t.Fatal("expected no migration after the only seeded version")
	}
}
