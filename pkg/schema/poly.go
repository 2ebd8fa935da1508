package schema

import (
	"errors"
	"fmt"

	"github.com/mesh-intelligence/relmap/pkg/types"
)

// Polymorphic configuration errors.
var (
	ErrNoTagAccessor    = errors.New("polymorphic table has no tag accessor")
	ErrNoVariants       = errors.New("polymorphic table has no variants")
	ErrDuplicateVariant = errors.New("variant already declared")
	ErrUnknownVariant   = errors.New("unknown variant")
)

// Variant is one case of a tagged-union family: the variant type name
// and the table holding its variant-specific bindings.
type Variant struct {
	Name  string
	Table *EntityTable
}

// PolyTable is the descriptor for a tagged-union entity family: a base
// table for the shared bindings plus one variant table per case. A base
// row and its variant row always share the same identifier; the variant
// table's identifier column doubles as a foreign key to the base.
type PolyTable struct {
	Type string
	Base *EntityTable

	// Tag returns the variant name of a concrete entity.
	Tag func(entity any) string

	// Variants in declaration order. Obtain probes them in this order.
	Variants []Variant
}

// Variant returns the named variant's descriptor.
func (p *PolyTable) Variant(name string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}

// VariantOf reports whether typeName is a variant of a registered
// polymorphic family, returning the family and variant name.
func (r *Registry) VariantOf(typeName string) (*PolyTable, string, bool) {
	for _, p := range r.polys {
		for _, v := range p.Variants {
			if v.Table.Type == typeName {
				return p, v.Name, true
			}
		}
	}
	return nil, "", false
}

// PolyBuilder accumulates a polymorphic descriptor: base bindings plus
// per-variant builders.
type PolyBuilder struct {
	base     *Builder
	tag      func(entity any) string
	variants []Variant
	errs     []error
}

// NewPolyTable starts a polymorphic descriptor for the given
// tagged-union type. The base table name is the snake-cased type name.
func NewPolyTable(typeName string) *PolyBuilder {
	return &PolyBuilder{base: NewTable(typeName, SnakeCase(typeName))}
}

// ID declares the identifier column and accessor, shared by the base
// and every variant table.
func (b *PolyBuilder) ID(column string, get func(entity any) types.ID) *PolyBuilder {
	b.base.ID(column, get)
	return b
}

// Tag declares the discriminator accessor mapping a concrete entity to
// its variant name.
func (b *PolyBuilder) Tag(tag func(entity any) string) *PolyBuilder {
	b.tag = tag
	return b
}

// BindValue binds a shared scalar property on the base table.
func (b *PolyBuilder) BindValue(property, column string, get func(entity any) any) *PolyBuilder {
	b.base.BindValue(property, column, get)
	return b
}

// BindSingleRef binds a shared required reference on the base table.
func (b *PolyBuilder) BindSingleRef(property, column, refType string, get func(entity any) any) *PolyBuilder {
	b.base.BindSingleRef(property, column, refType, get)
	return b
}

// BindSingleRefOptional binds a shared optional reference on the base
// table.
func (b *PolyBuilder) BindSingleRefOptional(property, column, refType string, get func(entity any) any) *PolyBuilder {
	b.base.BindSingleRefOptional(property, column, refType, get)
	return b
}

// BindManyRef binds a shared entity collection on the base table.
func (b *PolyBuilder) BindManyRef(property, childType, foreignKey string, items func(entity any) []any) *PolyBuilder {
	b.base.BindManyRef(property, childType, foreignKey, items)
	return b
}

// BindManyValue binds a shared value collection on the base table.
func (b *PolyBuilder) BindManyValue(property, childTable, foreignKey string, valueColumns []string,
	rowToValue func(row types.Row) (any, error),
	valueToRow func(value any, owner types.ID) (types.Row, error)) *PolyBuilder {
	b.base.BindManyValue(property, childTable, foreignKey, valueColumns, rowToValue, valueToRow)
	return b
}

// Variant declares one case of the family. name is the variant type
// name (it fixes the variant table's storage name); bind declares the
// variant-specific bindings on the supplied builder. The variant table
// inherits the base identifier column and accessor.
func (b *PolyBuilder) Variant(name string, bind func(v *Builder)) *PolyBuilder {
	for _, v := range b.variants {
		if v.Name == name {
			b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrDuplicateVariant, name))
			return b
		}
	}
	vb := NewTable(name, VariantTableName(b.base.t.Type, name))
	vb.t.family = b.base.t.Type
	bind(vb)
	b.variants = append(b.variants, Variant{Name: name, Table: vb.t})
	b.errs = append(b.errs, vb.errs...)
	return b
}

// Build validates the family and registers the base table, every
// variant table, and the polymorphic descriptor.
func (b *PolyBuilder) Build(reg *Registry) (*PolyTable, error) {
	if b.tag == nil {
		b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrNoTagAccessor, b.base.t.Type))
	}
	if len(b.variants) == 0 {
		b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrNoVariants, b.base.t.Type))
	}
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	base, err := b.base.Build(reg)
	if err != nil {
		return nil, err
	}
	for _, v := range b.variants {
		v.Table.EntityID = base.EntityID
		v.Table.IDColumn = base.IDColumn
		if err := reg.register(v.Table); err != nil {
			return nil, err
		}
	}
	p := &PolyTable{Type: base.Type, Base: base, Tag: b.tag, Variants: b.variants}
	reg.polys[base.Type] = p
	return p, nil
}

// MustBuild is Build, panicking on configuration errors.
func (b *PolyBuilder) MustBuild(reg *Registry) *PolyTable {
	p, err := b.Build(reg)
	if err != nil {
		panic(err)
	}
	return p
}
