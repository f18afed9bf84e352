package migrations

import "embed"

// Schema files, one directory per database.
var (
	//go:embed postgres/*.sql
	PostgresFS embed.FS

	//go:embed clickhouse/*.sql
	ClickhouseFS embed.FS
)
