// Package migrations embeds the SQL schema applied by core/database at startup.
package migrations

import "embed"

// FS holds the *.up.sql / *.down.sql files.
//
//go:embed *.sql
var FS embed.FS
