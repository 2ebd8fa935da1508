// Package sqlite is the public surface of the SQLite mapping backend.
// It re-exports the engine's store and repository handles while keeping
// the row plumbing internal.
package sqlite

import (
	"github.com/mesh-intelligence/relmap/internal/sqlite"
	"github.com/mesh-intelligence/relmap/pkg/schema"
	"github.com/mesh-intelligence/relmap/pkg/types"
)

// DBFileName is the database file created under Config.DataDir.
const DBFileName = sqlite.DBFileName

// Store is the SQLite mapping engine over one registry of table
// descriptors.
type Store = sqlite.Store

// Repository is the per-unit-of-work caching facade over one entity
// table.
type Repository = sqlite.Repository

// PolyRepository is the per-unit-of-work caching facade over one
// polymorphic family.
type PolyRepository = sqlite.PolyRepository

// VariantStore is an engine handle scoped to one variant of a
// polymorphic family.
type VariantStore = sqlite.VariantStore

// Open creates or opens the database under cfg.DataDir and binds it to
// the given registry. Call InitSchema on the returned store to create
// missing tables.
//
// Example:
//
//	store, err := sqlite.Open(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".relmap",
//	}, reg)
//	defer store.Close()
func Open(cfg types.Config, reg *schema.Registry) (*Store, error) {
	return sqlite.Open(cfg, reg)
}
