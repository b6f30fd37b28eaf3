// Package db opens the DuckDB database that holds the territory hierarchy.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Config holds database configuration.
type Config struct {
	DataDir string // empty for an in-memory database
	DBName  string
}

// schema is applied in order on every Open. Geometry columns hold GeoJSON
// text so the spatial extension is not required. nodes carries no secondary
// indexes: DuckDB rewrites updates of indexed columns as delete+insert,
// which trips the primary key inside a transaction.
var schema = []string{
	`CREATE SEQUENCE IF NOT EXISTS layers_id_seq START 1`,
	`CREATE TABLE IF NOT EXISTS layers (
		id   INTEGER PRIMARY KEY DEFAULT nextval('layers_id_seq'),
		name VARCHAR NOT NULL UNIQUE,
		ord  INTEGER NOT NULL UNIQUE
	)`,
	`CREATE SEQUENCE IF NOT EXISTS nodes_id_seq START 1`,
	`CREATE TABLE IF NOT EXISTS nodes (
		id             INTEGER PRIMARY KEY DEFAULT nextval('nodes_id_seq'),
		layer_id       INTEGER NOT NULL,
		name           VARCHAR NOT NULL,
		color          VARCHAR NOT NULL DEFAULT '#ffffff',
		parent_node_id INTEGER,
		geom           VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS geography_zip_codes (
		zip_code VARCHAR PRIMARY KEY,
		geom     VARCHAR NOT NULL
	)`,
}

// Open opens (creating if needed) the database and applies the schema.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	dsn := ""
	if cfg.DataDir != "" {
		duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(duckdbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
		dsn = filepath.Join(duckdbDir, cfg.DBName+".duckdb")
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}
	if err := Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Migrate applies the schema. It is safe to run repeatedly.
func Migrate(ctx context.Context, conn *sql.DB) error {
	for _, stmt := range schema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrating schema: %w", err)
		}
	}
	return nil
}
