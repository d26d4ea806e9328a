// Package adapter defines the database adapter contract the pipeline runs
// against, plus a base implementation shared by the concrete adapters in
// pkg/adapters/.
package adapter

import (
	"context"
	"database/sql"
)

// Config holds connection settings for an adapter.
type Config struct {
	// Type selects the adapter ("duckdb", "postgres").
	Type string

	// Path is the database file path for file-based engines. Empty means
	// in-memory for DuckDB.
	Path string

	// Network settings for server-based engines.
	Host     string
	Port     int
	Username string
	Password string
	Database string

	// Schema is the default schema for qualified table names.
	Schema string

	// Options holds driver-specific settings (e.g. sslmode).
	Options map[string]string
}

// Column describes one column of a table.
type Column struct {
	Name     string
	Type     string
	Nullable bool
	Position int
}

// Metadata describes a table.
type Metadata struct {
	Schema   string
	Name     string
	Columns  []Column
	RowCount int64
}

// HasColumn reports whether the table has a column with the given name.
func (m *Metadata) HasColumn(name string) bool {
	for _, c := range m.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Rows wraps sql.Rows so callers do not import database/sql directly.
type Rows struct {
	*sql.Rows
}

// Adapter is the narrow relational interface the pipeline consumes: query
// execution, bulk row append, table metadata, and CSV bulk load.
type Adapter interface {
	// Connect establishes a connection using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the connection and releases resources.
	Close() error

	// Exec executes a statement that returns no rows (DDL, DELETE, ...).
	Exec(ctx context.Context, sql string) error

	// Query executes a statement that returns rows.
	Query(ctx context.Context, sql string) (*Rows, error)

	// InsertRows bulk-appends rows into a table. All rows must match the
	// column list. The whole call executes inside one transaction.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) error

	// GetTableMetadata retrieves column metadata and row count for a table.
	GetTableMetadata(ctx context.Context, table string) (*Metadata, error)

	// LoadCSV bulk-loads a delimited file with a header row into a table,
	// replacing the table if it exists.
	LoadCSV(ctx context.Context, table string, path string) error

	// Placeholder returns the 1-based statement placeholder for the
	// engine's SQL flavor ("?" or "$n").
	Placeholder(n int) string
}
