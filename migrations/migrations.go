// Package migrations embeds the goose SQL migrations applied by
// pkg/database.RunMigrations before the Postgres recorder sink writes its
// first row.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
