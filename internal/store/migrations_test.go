//go:build integration

package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestRunMigrations_FreshDatabase(t *testing.T) {
	// Given: A fresh database with no tables
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	// When: RunMigrations is called
	if err := RunMigrations(db, "sqlite"); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}

	// Then: Both tables exist with all required columns
	_, err = db.Exec(`
		SELECT id, contract_id, extraction_run_id, source_key, rule_type, rule_name, description,
		       formula_definition, applicability_filters, confidence, linked_node_id, inferred,
		       validation_status, is_active, created_at, updated_at
		FROM rule_definitions LIMIT 0
	`)
	if err != nil {
		t.Fatalf("rule_definitions missing required columns: %v", err)
	}

	_, err = db.Exec(`
		SELECT id, contract_id, contract_term, erp_field_name, erp_entity_name,
		       confidence, status, created_at, updated_at
		FROM pending_term_mappings LIMIT 0
	`)
	if err != nil {
		t.Fatalf("pending_term_mappings missing required columns: %v", err)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	// Given: A database that has already been migrated
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := RunMigrations(db, "sqlite"); err != nil {
		t.Fatalf("first migration failed: %v", err)
	}

	// When: RunMigrations is called again
	// Then: No error occurs
	if err := RunMigrations(db, "sqlite"); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}
}

func TestRunMigrations_UniqueSourceKey(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := RunMigrations(db, "sqlite"); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}

	insert := `INSERT INTO rule_definitions (id, contract_id, extraction_run_id, source_key, formula_definition, created_at, updated_at)
		VALUES (?, 'c', 'r', 'entity:a', '{}', 'now', 'now')`
	if _, err := db.Exec(insert, "1"); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	_, err = db.Exec(insert, "2")
	if !isUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
}
