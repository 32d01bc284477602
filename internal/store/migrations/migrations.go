// Package migrations embeds the SQL migration files for the schedule journal.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
