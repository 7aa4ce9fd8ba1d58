// Package migrations embeds the goose SQL migrations, one directory per
// dialect.
package migrations

import "embed"

// FS holds sqlite/*.sql and postgres/*.sql.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS

const (
	DirSQLite   = "sqlite"
	DirPostgres = "postgres"
)
