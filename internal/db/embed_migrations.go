package db

import "embed"

// MigrationFS holds the SQL migrations that provision the backend schema:
// tables, row-level security policies and the stored procedures the
// server calls.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
