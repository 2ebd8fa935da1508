package schema

import "github.com/mesh-intelligence/relmap/pkg/types"

// Kind enumerates the closed set of binding kinds.
type Kind int

const (
	// KindValue maps a scalar property to one column. No cascading.
	KindValue Kind = iota

	// KindSingleRef maps a required entity reference to one ID column.
	// The referenced entity must pre-exist or is cascade-inserted
	// before the owner row is written.
	KindSingleRef

	// KindSingleRefOptional is KindSingleRef with a nullable column.
	KindSingleRefOptional

	// KindManyRef maps an entity collection to a child table carrying a
	// foreign key to the owner's identifier. True ownership: a child
	// belongs to at most one owner.
	KindManyRef

	// KindManyValue maps a collection of plain values to a child table,
	// with caller-supplied row-to-value and value-to-row conversions.
	KindManyValue
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindSingleRef:
		return "single-ref"
	case KindSingleRefOptional:
		return "single-ref-optional"
	case KindManyRef:
		return "many-ref"
	case KindManyValue:
		return "many-value"
	default:
		return "unknown"
	}
}

// Binding is the declared correspondence between one property of an
// entity type and a storage location. Which fields are set depends on
// Kind; the Builder enforces the per-kind shape.
type Binding struct {
	Kind     Kind
	Property string

	// Column is the owner-table column for Value and SingleRef kinds.
	Column string

	// RefType is the referenced (SingleRef) or child (ManyRef) entity
	// type.
	RefType string

	// ChildTable is the value-collection child table for ManyValue.
	ChildTable string

	// ForeignKey is the child-table column holding the owner's
	// identifier, for ManyRef and ManyValue.
	ForeignKey string

	// ValueColumns are the non-key child-table columns for ManyValue,
	// used for schema generation.
	ValueColumns []string

	// Get reads the property from an entity. For SingleRef kinds it
	// returns the referenced entity, or nil when absent.
	Get func(entity any) any

	// Items reads a collection property from an entity.
	Items func(entity any) []any

	// RowToValue converts one child-table row to a collection value.
	RowToValue func(row types.Row) (any, error)

	// ValueToRow converts one collection value to a child-table row.
	// The engine adds the owner's identifier under ForeignKey.
	ValueToRow func(value any, owner types.ID) (types.Row, error)
}

// owning reports whether the binding owns child-table rows.
func (b Binding) owning() bool {
	return b.Kind == KindManyRef || b.Kind == KindManyValue
}

// singleRef reports whether the binding is a single reference.
func (b Binding) singleRef() bool {
	return b.Kind == KindSingleRef || b.Kind == KindSingleRefOptional
}
