// Package migrations embeds the schema files for each supported dialect.
package migrations

import "embed"

// Files are bundled at compile time so the binary carries its own schema.
//
//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

//go:embed postgres/*.sql
var PostgresMigrations embed.FS
