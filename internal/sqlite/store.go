// Package sqlite implements the relmap mapping engine on SQLite.
// The Store interprets the binding lists of registered entity tables to
// perform inserts, updates, deletes, single-row fetches, and paginated
// listings, cascading related writes across child and variant tables.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/relmap/pkg/schema"
	"github.com/mesh-intelligence/relmap/pkg/types"
)

// DBFileName is the SQLite database file created inside the data
// directory.
const DBFileName = "relmap.db"

// Store executes storage operations for every table in one registry.
// The registry and its descriptors are immutable, so a Store may be
// shared across any number of units of work; per-unit-of-work state
// lives in the types.Session passed to read operations.
type Store struct {
	db  *sql.DB
	cfg types.Config
	reg *schema.Registry
}

// dbx is satisfied by *sql.DB and *sql.Tx, so cascade steps run
// against whichever transaction phase owns them.
type dbx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// idSet tracks identifiers in flight within one recursive operation,
// so a cyclic reference graph fails with ErrReferenceCycle instead of
// recursing without bound.
type idSet map[types.ID]struct{}

// Open validates the configuration, creates the data directory if
// needed, and opens the SQLite database with foreign-key enforcement
// on. Call InitSchema on a fresh database before using it.
func Open(cfg types.Config, reg *schema.Registry) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	dsn := "file:" + filepath.Join(dataDir, DBFileName) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return &Store{db: db, cfg: cfg, reg: reg}, nil
}

// Close releases the database handle. Idempotent.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// InitSchema creates every registered table from the generated DDL.
// Cross-table binding references are validated here, before any DDL
// runs.
func (s *Store) InitSchema(ctx context.Context) error {
	if s.db == nil {
		return types.ErrStoreClosed
	}
	stmts, err := schema.DDL(s.reg, s.cfg)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// Registry returns the schema registry this store serves.
func (s *Store) Registry() *schema.Registry {
	return s.reg
}

// table resolves an entity type to its descriptor.
func (s *Store) table(typeName string) (*schema.EntityTable, error) {
	t, ok := s.reg.Table(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrTableNotFound, typeName)
	}
	return t, nil
}

// rowExists reports whether a row with the given identifier exists.
func (s *Store) rowExists(ctx context.Context, q dbx, t *schema.EntityTable, id types.ID) (bool, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT 1 FROM "+t.Name+" WHERE "+t.IDColumn+" = ?", id.String())
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", t.Name, err)
	}
	defer rows.Close()
	return rows.Next(), rows.Err()
}

// selectByID fetches the single row matching the identifier. found is
// false when no row matched.
func (s *Store) selectByID(ctx context.Context, t *schema.EntityTable, id types.ID) (types.Row, bool, error) {
	cols := t.Columns()
	query := "SELECT " + strings.Join(cols, ", ") + " FROM " + t.Name +
		" WHERE " + t.IDColumn + " = ?"
	rows, err := s.queryRows(ctx, query, cols, id.String())
	if err != nil {
		return nil, false, fmt.Errorf("selecting from %s: %w", t.Name, err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

// queryRows runs a query and materializes every result row under the
// given column labels. Results are fully drained before returning so
// converting them may issue further queries.
func (s *Store) queryRows(ctx context.Context, query string, labels []string, args ...any) ([]types.Row, error) {
	if s.db == nil {
		return nil, types.ErrStoreClosed
	}
	return queryRowsOn(ctx, s.db, query, labels, args...)
}

func queryRowsOn(ctx context.Context, q dbx, query string, labels []string, args ...any) ([]types.Row, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Row
	for rows.Next() {
		vals := make([]any, len(labels))
		ptrs := make([]any, len(labels))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(types.Row, len(labels))
		for i, label := range labels {
			row[label] = normalize(vals[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// normalize maps driver byte slices to strings; other values pass
// through as stored.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
