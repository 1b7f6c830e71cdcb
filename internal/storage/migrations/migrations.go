// Package migrations embeds the store's SQL schema files.
package migrations

import "embed"

// FS holds the ordered *.sql migration files
//
//go:embed *.sql
var FS embed.FS
