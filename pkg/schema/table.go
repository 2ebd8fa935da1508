package schema

import (
	"errors"
	"fmt"

	"github.com/mesh-intelligence/relmap/pkg/types"
)

// Configuration errors are detected while descriptors are built, before
// any storage operation runs. They are never recovered; MustBuild turns
// them into panics at process start.
var (
	ErrTypeEmpty         = errors.New("entity type must not be empty")
	ErrTableNameEmpty    = errors.New("table name must not be empty")
	ErrNoIDAccessor      = errors.New("table has no identifier accessor")
	ErrDuplicateProperty = errors.New("property already bound")
	ErrDuplicateColumn   = errors.New("column already bound")
	ErrDuplicateType     = errors.New("entity type already registered")
	ErrDuplicateTable    = errors.New("table name already registered")
	ErrAmbiguousOwner    = errors.New("child table already owned")
	ErrUnknownRefType    = errors.New("referenced entity type not registered")
	ErrReservedProperty  = errors.New("property name is reserved")
)

// EntityTable is the persistence descriptor for one entity type: its
// type tag, storage name, identifier column and accessor, and the
// ordered list of property bindings. Built once at process start and
// immutable afterwards, so it is safe to share across units of work.
type EntityTable struct {
	Type     string
	Name     string
	IDColumn string

	// EntityID reads the identifier from an entity of this type.
	EntityID func(entity any) types.ID

	Bindings []Binding

	// family groups base and variant tables of one tagged-union type
	// for ownership-ambiguity checks. Equal to Type for plain tables.
	family string
}

// Columns returns the owner-row column list in declaration order: the
// identifier column followed by every Value and SingleRef column.
func (t *EntityTable) Columns() []string {
	cols := []string{t.IDColumn}
	for _, b := range t.Bindings {
		if b.Kind == KindValue || b.singleRef() {
			cols = append(cols, b.Column)
		}
	}
	return cols
}

// Binding returns the binding for the named property.
func (t *EntityTable) Binding(property string) (Binding, bool) {
	for _, b := range t.Bindings {
		if b.Property == property {
			return b, true
		}
	}
	return Binding{}, false
}

// Registry holds every built descriptor, keyed by entity type. The
// engine resolves reference bindings and the construction service's
// fetch callback through it.
type Registry struct {
	tables map[string]*EntityTable
	order  []string
	polys  map[string]*PolyTable
	// owners tracks which family owns each child, keyed by
	// "type:<childType>" for ManyRef and "table:<childTable>" for
	// ManyValue bindings.
	owners map[string][]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tables: make(map[string]*EntityTable),
		polys:  make(map[string]*PolyTable),
		owners: make(map[string][]string),
	}
}

// Table returns the descriptor registered for the given entity type.
func (r *Registry) Table(typeName string) (*EntityTable, bool) {
	t, ok := r.tables[typeName]
	return t, ok
}

// Tables returns all registered descriptors in registration order.
// Variant tables of polymorphic families are included.
func (r *Registry) Tables() []*EntityTable {
	out := make([]*EntityTable, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tables[name])
	}
	return out
}

// Poly returns the polymorphic descriptor for the given base type.
func (r *Registry) Poly(typeName string) (*PolyTable, bool) {
	p, ok := r.polys[typeName]
	return p, ok
}

// register validates a built table against the registry and records it.
func (r *Registry) register(t *EntityTable) error {
	if _, ok := r.tables[t.Type]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, t.Type)
	}
	for _, existing := range r.tables {
		if existing.Name == t.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateTable, t.Name)
		}
	}
	for _, b := range t.Bindings {
		if !b.owning() {
			continue
		}
		key := "type:" + b.RefType
		if b.Kind == KindManyValue {
			key = "table:" + b.ChildTable
		}
		// Variant tables of one family may declare the same child;
		// a second unrelated family makes ownership ambiguous.
		for _, owner := range r.owners[key] {
			if owner != t.family {
				return fmt.Errorf("%w: %s (binding %q on %s)",
					ErrAmbiguousOwner, key, b.Property, t.Name)
			}
		}
		r.owners[key] = append(r.owners[key], t.family)
	}
	r.tables[t.Type] = t
	r.order = append(r.order, t.Type)
	return nil
}

// Check validates cross-table references: every SingleRef and ManyRef
// binding must target a registered type, and ManyRef foreign-key
// columns must not collide with the child's own columns. Called by the
// engine before schema initialization.
func (r *Registry) Check() error {
	for _, name := range r.order {
		t := r.tables[name]
		for _, b := range t.Bindings {
			if b.Kind == KindManyValue || b.Kind == KindValue {
				continue
			}
			child, ok := r.tables[b.RefType]
			if !ok {
				return fmt.Errorf("%w: %q (binding %q on %s)",
					ErrUnknownRefType, b.RefType, b.Property, t.Name)
			}
			if b.Kind != KindManyRef {
				continue
			}
			for _, col := range child.Columns() {
				if col == b.ForeignKey {
					return fmt.Errorf("%w: foreign key %q collides with column on %s",
						ErrDuplicateColumn, b.ForeignKey, child.Name)
				}
			}
		}
	}
	return nil
}

// Builder accumulates bindings for one EntityTable. Registration calls
// fail fast: errors are collected and reported by Build, so a
// misdeclared table never reaches the engine.
type Builder struct {
	t    *EntityTable
	errs []error
}

// NewTable starts a descriptor for the given entity type and storage
// name. The identifier column defaults to "id".
func NewTable(typeName, tableName string) *Builder {
	return &Builder{t: &EntityTable{
		Type:     typeName,
		Name:     tableName,
		IDColumn: "id",
		family:   typeName,
	}}
}

// ID declares the identifier column and accessor. Every table has
// exactly one identifier column, which is its primary key.
func (b *Builder) ID(column string, get func(entity any) types.ID) *Builder {
	if column != "" {
		b.t.IDColumn = column
	}
	b.t.EntityID = get
	return b
}

// BindValue binds a scalar property to one column.
func (b *Builder) BindValue(property, column string, get func(entity any) any) *Builder {
	b.add(Binding{Kind: KindValue, Property: property, Column: column, Get: get})
	return b
}

// BindSingleRef binds a required entity reference to one ID column.
func (b *Builder) BindSingleRef(property, column, refType string, get func(entity any) any) *Builder {
	b.add(Binding{Kind: KindSingleRef, Property: property, Column: column, RefType: refType, Get: get})
	return b
}

// BindSingleRefOptional binds an optional entity reference to one
// nullable ID column. Get returns nil when the reference is absent.
func (b *Builder) BindSingleRefOptional(property, column, refType string, get func(entity any) any) *Builder {
	b.add(Binding{Kind: KindSingleRefOptional, Property: property, Column: column, RefType: refType, Get: get})
	return b
}

// BindManyRef binds an owned entity collection. childType's table must
// carry foreignKey as a column holding the owner's identifier; the
// engine writes it on insert and filters by it on read.
func (b *Builder) BindManyRef(property, childType, foreignKey string, items func(entity any) []any) *Builder {
	b.add(Binding{Kind: KindManyRef, Property: property, RefType: childType, ForeignKey: foreignKey, Items: items})
	return b
}

// BindManyValue binds a collection of plain values to a child table.
// valueColumns are the child table's non-key columns; rowToValue and
// valueToRow convert between child rows and collection values.
func (b *Builder) BindManyValue(property, childTable, foreignKey string, valueColumns []string,
	rowToValue func(row types.Row) (any, error),
	valueToRow func(value any, owner types.ID) (types.Row, error)) *Builder {
	b.add(Binding{
		Kind: KindManyValue, Property: property, ChildTable: childTable,
		ForeignKey: foreignKey, ValueColumns: valueColumns,
		RowToValue: rowToValue, ValueToRow: valueToRow,
	})
	return b
}

func (b *Builder) add(nb Binding) {
	// The identifier is delivered to constructors under this name.
	if nb.Property == types.IDProperty {
		b.errs = append(b.errs, fmt.Errorf("%w: %q on %s", ErrReservedProperty, nb.Property, b.t.Name))
		return
	}
	for _, existing := range b.t.Bindings {
		if existing.Property == nb.Property {
			b.errs = append(b.errs, fmt.Errorf("%w: %q on %s", ErrDuplicateProperty, nb.Property, b.t.Name))
			return
		}
		if nb.Column != "" && existing.Column == nb.Column {
			b.errs = append(b.errs, fmt.Errorf("%w: %q on %s", ErrDuplicateColumn, nb.Column, b.t.Name))
			return
		}
	}
	if err := b.checkShape(nb); err != nil {
		b.errs = append(b.errs, err)
		return
	}
	b.t.Bindings = append(b.t.Bindings, nb)
}

// checkShape rejects a binding whose owner is not eligible for the
// requested shape.
func (b *Builder) checkShape(nb Binding) error {
	bad := func(what string) error {
		return fmt.Errorf("%s binding %q on %s: %s", nb.Kind, nb.Property, b.t.Name, what)
	}
	switch nb.Kind {
	case KindValue:
		if nb.Column == "" || nb.Get == nil {
			return bad("needs a column and an accessor")
		}
	case KindSingleRef, KindSingleRefOptional:
		if nb.Column == "" || nb.RefType == "" || nb.Get == nil {
			return bad("needs a column, a referenced type, and an accessor")
		}
	case KindManyRef:
		if nb.RefType == "" || nb.ForeignKey == "" || nb.Items == nil {
			return bad("needs a child type, a foreign-key column, and an accessor")
		}
	case KindManyValue:
		if nb.ChildTable == "" || nb.ForeignKey == "" || len(nb.ValueColumns) == 0 ||
			nb.RowToValue == nil || nb.ValueToRow == nil {
			return bad("needs a child table, a foreign-key column, value columns, and both conversions")
		}
	}
	return nil
}

// Build validates the descriptor and registers it. Any registration
// failure collected along the way is fatal here.
func (b *Builder) Build(reg *Registry) (*EntityTable, error) {
	if b.t.Type == "" {
		b.errs = append(b.errs, ErrTypeEmpty)
	}
	if b.t.Name == "" {
		b.errs = append(b.errs, ErrTableNameEmpty)
	}
	if b.t.EntityID == nil {
		b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrNoIDAccessor, b.t.Name))
	}
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	if err := reg.register(b.t); err != nil {
		return nil, err
	}
	return b.t, nil
}

// MustBuild is Build, panicking on configuration errors. Descriptors
// are static declarations at process start, so a misdeclared table
// aborts the process.
func (b *Builder) MustBuild(reg *Registry) *EntityTable {
	t, err := b.Build(reg)
	if err != nil {
		panic(err)
	}
	return t
}
