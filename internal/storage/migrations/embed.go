// Package migrations applies the embedded schema files for the ledger
// database (PostgreSQL) and the audit mirror (ClickHouse).
package migrations

import "embed"

// PostgresFS holds the ledger and swap queue schema.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the ledger audit schema.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
