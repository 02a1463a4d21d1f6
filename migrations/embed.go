// Package migrations embeds the schema for both supported store drivers.
package migrations

import "embed"

// FS holds postgres/*.sql and sqlite/*.sql goose migrations.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
