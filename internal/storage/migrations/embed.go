package migrations

import "embed"

// PostgresFS embeds the transfer receipt journal schema.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS embeds the earnings snapshot schema.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
