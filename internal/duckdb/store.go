// Package duckdb caches Ensembl responses between runs: raw VEP results per
// input identifier, the consequence severity ranking and the SO term catalog.
package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"

	goduckdb "github.com/marcboeker/go-duckdb"
)

// cacheSchema lists the tables created on first use.
var cacheSchema = []string{
	`CREATE TABLE IF NOT EXISTS vep_results (
		input VARCHAR,
		distance INTEGER,
		response VARCHAR,
		PRIMARY KEY (input, distance)
	)`,
	`CREATE TABLE IF NOT EXISTS severity_ranking (
		so_term VARCHAR PRIMARY KEY,
		rank INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS so_terms (
		label VARCHAR PRIMARY KEY,
		accession VARCHAR
	)`,
}

var cacheTables = []string{"vep_results", "severity_ranking", "so_terms"}

// Store is a DuckDB-backed cache of Ensembl responses.
type Store struct {
	db   *sql.DB
	path string
}

// Open returns a Store backed by the database file at path, creating the
// file, its parent directories and the cache tables as needed. An empty
// path keeps the cache in memory for the lifetime of the Store.
func Open(path string) (*Store, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("cache dir for %s: %w", path, err)
		}
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("duckdb %q: %w", path, err)
	}
	for _, ddl := range cacheSchema {
		if _, err := db.Exec(ddl); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init cache schema: %w", err)
		}
	}
	return &Store{db: db, path: path}, nil
}

// Path is the database file, or "" for an in-memory cache.
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error { return s.db.Close() }

// Clear removes every cached row.
func (s *Store) Clear() error {
	for _, table := range cacheTables {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// appendRows streams rows into table through a DuckDB appender on a
// dedicated connection.
func (s *Store) appendRows(ctx context.Context, table string, rows [][]driver.Value) error {
	if len(rows) == 0 {
		return nil
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("%s: acquire connection: %w", table, err)
	}
	defer conn.Close()

	return conn.Raw(func(raw any) error {
		app, err := goduckdb.NewAppenderFromConn(raw.(driver.Conn), "", table)
		if err != nil {
			return fmt.Errorf("%s: new appender: %w", table, err)
		}
		for i, row := range rows {
			if err := app.AppendRow(row...); err != nil {
				_ = app.Close()
				return fmt.Errorf("%s: row %d: %w", table, i, err)
			}
		}
		// Close flushes pending rows.
		return app.Close()
	})
}
