package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/relmap/pkg/schema"
	"github.com/mesh-intelligence/relmap/pkg/types"
)

// Obtain selects the single row matching the identifier and converts
// it to an entity. The session's identity map is consulted first, so
// within one unit of work the same identifier always yields the same
// instance. The map is keyed by identifier alone: an identifier already
// materialized through another table is returned as-is, which is safe
// while identifiers stay globally unique.
func (s *Store) Obtain(ctx context.Context, sess *types.Session, t *schema.EntityTable, id types.ID) (any, error) {
	return s.obtain(ctx, sess, t, id, make(idSet))
}

func (s *Store) obtain(ctx context.Context, sess *types.Session, t *schema.EntityTable, id types.ID, visiting idSet) (any, error) {
	if id == types.NilID {
		return nil, fmt.Errorf("obtain %s: %w", t.Name, types.ErrInvalidID)
	}
	if e, ok := sess.Cached(id); ok {
		return e, nil
	}
	row, found, err := s.selectByID(ctx, t, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("obtain %s %s: %w", t.Name, id, types.ErrNotFound)
	}
	return s.convert(ctx, sess, t, row, visiting)
}

// ObtainAll fetches up to limit rows, unordered, each converted
// independently.
func (s *Store) ObtainAll(ctx context.Context, sess *types.Session, t *schema.EntityTable, limit int) ([]any, error) {
	cols := t.Columns()
	query := "SELECT " + strings.Join(cols, ", ") + " FROM " + t.Name
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.queryRows(ctx, query, cols, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", t.Name, err)
	}
	visiting := make(idSet)
	entities := make([]any, 0, len(rows))
	for _, row := range rows {
		e, err := s.convert(ctx, sess, t, row, visiting)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// load resolves a type name and identifier to an entity, consulting
// the identity map first and dispatching polymorphic types to the
// base/variant combining logic. It backs the construction service's
// fetch callback.
func (s *Store) load(ctx context.Context, sess *types.Session, typeName string, id types.ID, visiting idSet) (any, error) {
	if e, ok := sess.Cached(id); ok {
		return e, nil
	}
	if p, ok := s.reg.Poly(typeName); ok {
		return s.polyObtain(ctx, sess, p, id, visiting)
	}
	if p, name, ok := s.reg.VariantOf(typeName); ok {
		return s.polyObtainVariant(ctx, sess, p, name, id, visiting)
	}
	t, err := s.table(typeName)
	if err != nil {
		return nil, err
	}
	return s.obtain(ctx, sess, t, id, visiting)
}

func (s *Store) fetcher(sess *types.Session, visiting idSet) types.FetchFunc {
	return func(ctx context.Context, typeName string, id types.ID) (any, error) {
		return s.load(ctx, sess, typeName, id, visiting)
	}
}

// convert turns one owner row into an entity: assemble the
// property-to-value map from the bindings, hand it to the construction
// service, and record the result in the identity map. A row whose
// identifier is already being converted up the recursion is a stored
// reference cycle and fails rather than looping.
func (s *Store) convert(ctx context.Context, sess *types.Session, t *schema.EntityTable, row types.Row, visiting idSet) (any, error) {
	id, err := rowID(t, row)
	if err != nil {
		return nil, err
	}
	if e, ok := sess.Cached(id); ok {
		return e, nil
	}
	if _, ok := visiting[id]; ok {
		return nil, fmt.Errorf("converting %s row %s: %w", t.Name, id, types.ErrReferenceCycle)
	}
	visiting[id] = struct{}{}
	props, err := s.buildProps(ctx, sess, t, row, id, visiting)
	if err != nil {
		return nil, err
	}
	return s.construct(ctx, sess, t.Type, t.Name, id, props, visiting)
}

// construct invokes the construction service and interns the entity.
// Missing-property reports become shape-mismatch errors, distinguishable
// from storage errors.
func (s *Store) construct(ctx context.Context, sess *types.Session, typeName, tableName string, id types.ID, props types.Props, visiting idSet) (any, error) {
	entity, err := sess.Constructor().Construct(ctx, typeName, props, s.fetcher(sess, visiting))
	if err != nil {
		var missing *types.MissingPropertiesError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("converting %s row: %w: %v", tableName, types.ErrShapeMismatch, missing)
		}
		return nil, fmt.Errorf("converting %s row: %w", tableName, err)
	}
	sess.Remember(id, entity)
	return entity, nil
}

// buildProps extracts each binding's property value from the row,
// running secondary selects for collections and resolving single
// references through the identity-mapped load.
func (s *Store) buildProps(ctx context.Context, sess *types.Session, t *schema.EntityTable, row types.Row, id types.ID, visiting idSet) (types.Props, error) {
	props := make(types.Props, len(t.Bindings)+1)
	props[types.IDProperty] = id
	for _, b := range t.Bindings {
		switch b.Kind {
		case schema.KindValue:
			props[b.Property] = row[b.Column]

		case schema.KindSingleRef, schema.KindSingleRefOptional:
			v := row[b.Column]
			if v == nil {
				if b.Kind == schema.KindSingleRef {
					return nil, fmt.Errorf("converting %s row: column %s: %w: required reference is null",
						t.Name, b.Column, types.ErrShapeMismatch)
				}
				props[b.Property] = nil
				continue
			}
			refID, err := parseID(v)
			if err != nil {
				return nil, fmt.Errorf("converting %s row: column %s: %w: %v",
					t.Name, b.Column, types.ErrShapeMismatch, err)
			}
			ref, err := s.load(ctx, sess, b.RefType, refID, visiting)
			if err != nil {
				return nil, err
			}
			props[b.Property] = ref

		case schema.KindManyRef:
			childTable, err := s.table(b.RefType)
			if err != nil {
				return nil, err
			}
			items, err := s.loadEntityCollection(ctx, sess, childTable, b.ForeignKey, id, visiting)
			if err != nil {
				return nil, err
			}
			props[b.Property] = items

		case schema.KindManyValue:
			items, err := s.loadValueCollection(ctx, b, id)
			if err != nil {
				return nil, err
			}
			props[b.Property] = items
		}
	}
	return props, nil
}

// loadEntityCollection selects and converts every child row tagged
// with the owner's identifier, in insertion order.
func (s *Store) loadEntityCollection(ctx context.Context, sess *types.Session, childTable *schema.EntityTable, foreignKey string, owner types.ID, visiting idSet) ([]any, error) {
	cols := childTable.Columns()
	query := "SELECT " + strings.Join(cols, ", ") + " FROM " + childTable.Name +
		" WHERE " + foreignKey + " = ? ORDER BY rowid"
	rows, err := s.queryRows(ctx, query, cols, owner.String())
	if err != nil {
		return nil, fmt.Errorf("fetching %s children: %w", childTable.Name, err)
	}
	items := make([]any, 0, len(rows))
	for _, row := range rows {
		e, err := s.convert(ctx, sess, childTable, row, visiting)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, nil
}

// loadValueCollection selects a ManyValue binding's child rows and runs
// the caller's row-to-value conversion, in insertion order.
func (s *Store) loadValueCollection(ctx context.Context, b schema.Binding, owner types.ID) ([]any, error) {
	cols := append([]string{b.ForeignKey}, b.ValueColumns...)
	query := "SELECT " + strings.Join(cols, ", ") + " FROM " + b.ChildTable +
		" WHERE " + b.ForeignKey + " = ? ORDER BY rowid"
	rows, err := s.queryRows(ctx, query, cols, owner.String())
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", b.ChildTable, err)
	}
	items := make([]any, 0, len(rows))
	for _, row := range rows {
		v, err := b.RowToValue(row)
		if err != nil {
			return nil, fmt.Errorf("reading %s row: %w", b.ChildTable, err)
		}
		items = append(items, v)
	}
	return items, nil
}

// rowID parses the identifier column of a row.
func rowID(t *schema.EntityTable, row types.Row) (types.ID, error) {
	id, err := parseID(row[t.IDColumn])
	if err != nil {
		return types.NilID, fmt.Errorf("converting %s row: %w: %v", t.Name, types.ErrShapeMismatch, err)
	}
	return id, nil
}

func parseID(v any) (types.ID, error) {
	str, ok := v.(string)
	if !ok {
		return types.NilID, fmt.Errorf("identifier is %T, not string", v)
	}
	return types.ParseID(str)
}
