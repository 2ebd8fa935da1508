package schema

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/relmap/pkg/types"
)

// DDL generates CREATE TABLE statements for every registered table, in
// registration order, honouring the configured cascade policy. Value
// columns are emitted without a declared type so the backend stores
// collection and scalar values exactly as written; identifier and
// foreign-key columns are TEXT.
//
// Each variant table's identifier column is both its primary key and a
// foreign key to the base table's identifier; the identifier never
// changes, so the update-cascade clause is inert in practice but
// documents intent.
func DDL(reg *Registry, cfg types.Config) ([]string, error) {
	if err := reg.Check(); err != nil {
		return nil, err
	}

	onDelete := "CASCADE"
	if cfg.EffectiveCascadePolicy() == types.CascadeRestrict {
		onDelete = "RESTRICT"
	}

	// Variant tables point their identifier at the base table.
	variantBase := make(map[string]*EntityTable)
	for _, p := range reg.polys {
		for _, v := range p.Variants {
			variantBase[v.Table.Type] = p.Base
		}
	}

	// Foreign keys declared by ManyRef bindings live on the child's
	// table; collect them per child type.
	type fkDecl struct {
		column string
		owner  *EntityTable
	}
	childFKs := make(map[string][]fkDecl)
	for _, t := range reg.Tables() {
		for _, b := range t.Bindings {
			if b.Kind == KindManyRef {
				childFKs[b.RefType] = append(childFKs[b.RefType], fkDecl{b.ForeignKey, t})
			}
		}
	}

	var stmts []string
	for _, t := range reg.Tables() {
		var cols []string
		if base, ok := variantBase[t.Type]; ok {
			cols = append(cols, fmt.Sprintf(
				"%s TEXT PRIMARY KEY REFERENCES %s(%s) ON DELETE %s ON UPDATE CASCADE",
				t.IDColumn, base.Name, base.IDColumn, onDelete))
		} else {
			cols = append(cols, t.IDColumn+" TEXT PRIMARY KEY")
		}
		for _, b := range t.Bindings {
			switch b.Kind {
			case KindValue:
				cols = append(cols, b.Column)
			case KindSingleRef:
				ref := reg.tables[b.RefType]
				cols = append(cols, fmt.Sprintf("%s TEXT NOT NULL REFERENCES %s(%s)",
					b.Column, ref.Name, ref.IDColumn))
			case KindSingleRefOptional:
				ref := reg.tables[b.RefType]
				cols = append(cols, fmt.Sprintf("%s TEXT REFERENCES %s(%s)",
					b.Column, ref.Name, ref.IDColumn))
			}
		}
		for _, fk := range childFKs[t.Type] {
			cols = append(cols, fmt.Sprintf("%s TEXT REFERENCES %s(%s) ON DELETE %s",
				fk.column, fk.owner.Name, fk.owner.IDColumn, onDelete))
		}
		stmts = append(stmts, createTable(t.Name, cols))

		// Value-collection child tables follow their owner.
		for _, b := range t.Bindings {
			if b.Kind != KindManyValue {
				continue
			}
			childCols := []string{fmt.Sprintf("%s TEXT NOT NULL REFERENCES %s(%s) ON DELETE %s",
				b.ForeignKey, t.Name, t.IDColumn, onDelete)}
			childCols = append(childCols, b.ValueColumns...)
			stmts = append(stmts, createTable(b.ChildTable, childCols))
		}
	}
	return stmts, nil
}

func createTable(name string, cols []string) string {
	return fmt.Sprintf("CREATE TABLE %s (\n    %s\n);", name, strings.Join(cols, ",\n    "))
}
