// Package migrations embeds the goose SQL migration files so they ship inside
// the compiled binary and run automatically at startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
