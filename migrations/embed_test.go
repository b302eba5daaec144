package migrations

import (
	"strings"
	"testing"
)

func TestEmbeddedFS_ContainsMigrationFiles(t *testing.T) {
	// Given: The embedded filesystem
	// When: We read the directory
	entries, err := FS.ReadDir(".")
	if err != nil {
		t.Fatalf("failed to read embedded FS: %v", err)
	}

	// Then: It contains every schema migration
	want := map[string]bool{
		"001_initial_schema.sql":        false,
		"002_pending_term_mappings.sql": false,
	}
	for _, entry := range entries {
		if _, ok := want[entry.Name()]; ok {
			want[entry.Name()] = true
		}
	}

	for name, found := range want {
		if !found {
			t.Errorf("%s not found in embedded FS", name)
		}
	}
}

func TestEmbeddedFS_MigrationFilesReadable(t *testing.T) {
	tests := []struct {
		file  string
		table string
	}{
		{"001_initial_schema.sql", "CREATE TABLE rule_definitions"},
		{"002_pending_term_mappings.sql", "CREATE TABLE pending_term_mappings"},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			content, err := FS.ReadFile(tt.file)
			if err != nil {
				t.Fatalf("failed to read migration file: %v", err)
			}

			s := string(content)
			if !strings.Contains(s, "-- +goose Up") {
				t.Error("migration missing '-- +goose Up' directive")
			}
			if !strings.Contains(s, "-- +goose Down") {
				t.Error("migration missing '-- +goose Down' directive")
			}
			if !strings.Contains(s, tt.table) {
				t.Errorf("migration missing %q", tt.table)
			}
		})
	}
}
