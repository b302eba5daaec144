// Package migrations embeds the goose SQL migrations for the rule store.
// The SQL is written to run unchanged on SQLite and PostgreSQL.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
