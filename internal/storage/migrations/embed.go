// Package migrations holds embedded, idempotent schema migrations.
package migrations

import "embed"

// PostgresFS embeds the Postgres migration files.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS
