package sqlite

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/relmap/pkg/schema"
	"github.com/mesh-intelligence/relmap/pkg/types"
)

// The query optimizer collapses per-row single-reference fetches into
// one joined read: for a given entity type it builds a column set
// spanning the type's own table and, for every SingleRef binding (one
// level, not transitively), an aliased copy of the referenced table
// joined on the reference column. Listings then run one query per page
// instead of one query per row per reference property.

// refJoin is one aliased referenced table in the join plan.
type refJoin struct {
	binding schema.Binding
	table   *schema.EntityTable
	prefix  string
}

// joinPlan is the joined column set for one entity table.
type joinPlan struct {
	owner      *schema.EntityTable
	selectList []string
	labels     []string
	from       string
	refs       []refJoin
}

// planJoins builds the joined column set. Owner columns keep their
// bare names, so caller predicates and order columns address them
// directly; each referenced table's columns are prefixed with its
// alias.
func (s *Store) planJoins(t *schema.EntityTable) (*joinPlan, error) {
	plan := &joinPlan{owner: t, from: t.Name}
	for _, col := range t.Columns() {
		plan.selectList = append(plan.selectList, t.Name+"."+col+" AS "+col)
		plan.labels = append(plan.labels, col)
	}
	n := 0
	for _, b := range t.Bindings {
		if b.Kind != schema.KindSingleRef && b.Kind != schema.KindSingleRefOptional {
			continue
		}
		refTable, err := s.table(b.RefType)
		if err != nil {
			return nil, err
		}
		alias := fmt.Sprintf("r%d", n)
		n++
		prefix := alias + "__"
		plan.from += fmt.Sprintf(" LEFT JOIN %s %s ON %s.%s = %s.%s",
			refTable.Name, alias, t.Name, b.Column, alias, refTable.IDColumn)
		for _, col := range refTable.Columns() {
			plan.selectList = append(plan.selectList, alias+"."+col+" AS "+prefix+col)
			plan.labels = append(plan.labels, prefix+col)
		}
		plan.refs = append(plan.refs, refJoin{binding: b, table: refTable, prefix: prefix})
	}
	return plan, nil
}

// convertJoined materializes every referenced entity present in the
// joined row into the identity map, then converts the owner row; the
// owner's reference resolution finds them cached instead of issuing
// lookups.
func (s *Store) convertJoined(ctx context.Context, sess *types.Session, plan *joinPlan, row types.Row, visiting idSet) (any, error) {
	for _, r := range plan.refs {
		idv := row[r.prefix+r.table.IDColumn]
		if idv == nil {
			continue
		}
		refID, err := parseID(idv)
		if err != nil {
			return nil, fmt.Errorf("converting %s row: %w: %v", r.table.Name, types.ErrShapeMismatch, err)
		}
		if _, ok := sess.Cached(refID); ok {
			continue
		}
		refRow := make(types.Row, len(r.table.Columns()))
		for _, col := range r.table.Columns() {
			refRow[col] = row[r.prefix+col]
		}
		if _, err := s.convert(ctx, sess, r.table, refRow, visiting); err != nil {
			return nil, err
		}
	}
	ownerRow := make(types.Row, len(plan.owner.Columns()))
	for _, col := range plan.owner.Columns() {
		ownerRow[col] = row[col]
	}
	return s.convert(ctx, sess, plan.owner, ownerRow, visiting)
}
