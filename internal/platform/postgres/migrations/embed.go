// Package migrations holds the goose SQL migrations for the tasks and
// points_history tables.
package migrations

import "embed"

// FS contains every *.sql migration in this directory.
//
//go:embed *.sql
var FS embed.FS
