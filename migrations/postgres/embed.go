// Package migrations embeds SQL migration files.
package migrations

import "embed"

// PostgresFS contiene las migraciones, ordenadas por prefijo numérico.
//
//go:embed *.sql
var PostgresFS embed.FS
