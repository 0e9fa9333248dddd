// Package migrations embeds the SQL schema. Files are applied in name order;
// each version has an .up.sql and a .down.sql.
package migrations

import "embed"

// FS holds every migration file.
//
//go:embed *.sql
var FS embed.FS
