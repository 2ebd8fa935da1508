// Shared helpers for relmap CLI commands.
package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/relmap/pkg/sqlite"
)

// openDatabase resolves the data directory, creates it if needed, and
// opens the mapping database inside it. The caller must close the
// returned handle. The CLI works on whatever tables the database holds;
// it does not need the application's table descriptors.
func openDatabase() (*sql.DB, string, error) {
	dataDir, err := resolveDataDir()
	if err != nil {
		return nil, "", fmt.Errorf("resolve data dir: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create data dir: %w", err)
	}

	dsn := "file:" + filepath.Join(dataDir, sqlite.DBFileName) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open database: %w", err)
	}
	return db, dataDir, nil
}

// userTables lists the database's table names, excluding SQLite
// internals.
func userTables(db *sql.DB) ([]string, error) {
	rows, err := db.Query(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
