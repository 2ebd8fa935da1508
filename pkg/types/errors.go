package types

import "errors"

// Operation errors. Every public engine operation reports expected
// failures through these sentinels so callers can tell "the data is
// missing" (ErrNotFound) from "the data is wrong" (ErrShapeMismatch)
// from "the row is taken" (ErrConflict). Storage failures are wrapped
// with the table name and operation and propagated unchanged otherwise.
var (
	// ErrNotFound reports that no row matched the requested identifier
	// or predicate.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict reports an insert targeting an identifier that
	// already exists. Inserts are never upserts.
	ErrConflict = errors.New("entity already exists")

	// ErrShapeMismatch reports that an entity could not be built from
	// the columns the storage supplied.
	ErrShapeMismatch = errors.New("entity shape mismatch")

	// ErrInvalidID reports an operation on an entity with a nil ID.
	ErrInvalidID = errors.New("invalid entity id")

	// ErrReferenceCycle reports a single-reference graph that loops
	// back on itself. Reference graphs must be acyclic, on write and
	// in storage.
	ErrReferenceCycle = errors.New("reference cycle")

	// ErrTableNotFound reports a reference to an entity type with no
	// registered table.
	ErrTableNotFound = errors.New("table not registered")

	// ErrStoreClosed reports an operation against a closed store.
	ErrStoreClosed = errors.New("store is closed")
)
