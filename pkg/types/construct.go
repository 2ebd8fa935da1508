package types

import (
	"context"
	"fmt"
	"strings"
)

// IDProperty is the reserved property name under which the engine
// passes the row identifier (as an ID) to Construct. Bindings cannot
// use it.
const IDProperty = "id"

// FetchFunc loads the entity of the given type with the given ID,
// consulting the unit of work's identity map first.
type FetchFunc func(ctx context.Context, typeName string, id ID) (any, error)

// Constructor is the construction-service contract: given a
// property-to-value map and a fetch callback, produce an entity
// instance of the named type, or report which required properties were
// missing via *MissingPropertiesError.
//
// The engine resolves reference properties before calling Construct, so
// props carries materialized entities for SingleRef properties, []any
// for collections, and the row identifier under IDProperty; fetch
// remains available for constructors that need ad-hoc loads.
type Constructor interface {
	Construct(ctx context.Context, typeName string, props Props, fetch FetchFunc) (any, error)
}

// MissingPropertiesError reports the required properties a constructor
// could not find in the supplied map. The engine rewraps it as an
// ErrShapeMismatch so callers can distinguish malformed rows from
// missing rows.
type MissingPropertiesError struct {
	TypeName string
	Missing  []string
}

func (e *MissingPropertiesError) Error() string {
	return fmt.Sprintf("constructing %s: missing properties: %s",
		e.TypeName, strings.Join(e.Missing, ", "))
}
