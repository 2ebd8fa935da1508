// Package construct provides a function-registry construction service:
// one constructor function per entity type name, collected into a
// types.Constructor the engine calls when materializing rows.
package construct

import (
	"context"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/relmap/pkg/types"
)

// ErrNoConstructor reports a Construct call for a type name no
// function was registered for.
var ErrNoConstructor = errors.New("no constructor registered")

// Func builds one entity instance from its property map. fetch loads
// related entities through the calling unit of work.
type Func func(ctx context.Context, props types.Props, fetch types.FetchFunc) (any, error)

// Registry maps entity type names to constructor functions. The zero
// value is not usable; create one with NewRegistry. Register all
// functions before handing the registry to a store; Registry is not
// safe for concurrent mutation.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry creates an empty construction registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register binds fn as the constructor for typeName, replacing any
// earlier binding.
func (r *Registry) Register(typeName string, fn Func) *Registry {
	r.funcs[typeName] = fn
	return r
}

// Construct dispatches to the registered function for typeName.
func (r *Registry) Construct(ctx context.Context, typeName string, props types.Props, fetch types.FetchFunc) (any, error) {
	fn, ok := r.funcs[typeName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoConstructor, typeName)
	}
	return fn(ctx, props, fetch)
}

// Require extracts the named properties from props, reporting every
// absent one at once through *types.MissingPropertiesError. Constructor
// functions use it to validate row shape before building the entity.
func Require(typeName string, props types.Props, names ...string) ([]any, error) {
	var missing []string
	values := make([]any, 0, len(names))
	for _, name := range names {
		v, ok := props[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		values = append(values, v)
	}
	if len(missing) > 0 {
		return nil, &types.MissingPropertiesError{TypeName: typeName, Missing: missing}
	}
	return values, nil
}
