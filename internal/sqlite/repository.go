package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/relmap/pkg/schema"
	"github.com/mesh-intelligence/relmap/pkg/types"
)

// Repository is the caching facade over one entity table, bound to a
// unit of work. Reads go through the session's identity map; writes
// keep the map coherent, so callers never touch both layers.
type Repository struct {
	store *Store
	sess  *types.Session
	t     *schema.EntityTable
}

// Repository returns the session's memoized repository for the given
// table, creating it on first use.
func (s *Store) Repository(sess *types.Session, t *schema.EntityTable) *Repository {
	r := sess.Repository(t.Type, func() any {
		return &Repository{store: s, sess: sess, t: t}
	})
	return r.(*Repository)
}

// Get reads one entity by identifier.
func (r *Repository) Get(ctx context.Context, id types.ID) (any, error) {
	return r.store.Obtain(ctx, r.sess, r.t, id)
}

// GetAll reads up to limit entities; limit <= 0 means no limit.
func (r *Repository) GetAll(ctx context.Context, limit int) ([]any, error) {
	return r.store.ObtainAll(ctx, r.sess, r.t, limit)
}

// QueryListing pages over entities matching pred, ordered by the given
// column.
func (r *Repository) QueryListing(ctx context.Context, pred *types.Predicate,
	pageSize, pageIndex int, orderColumn string, order types.SortOrder) (types.Listing, error) {
	return r.store.ObtainListing(ctx, r.sess, r.t, pred, pageSize, pageIndex, orderColumn, order)
}

// GetOneMatching reads the single entity matching pred, or ErrNotFound.
func (r *Repository) GetOneMatching(ctx context.Context, pred *types.Predicate) (any, error) {
	return r.store.ObtainOneMatching(ctx, r.sess, r.t, pred)
}

// Add inserts the entity and records it in the unit of work.
func (r *Repository) Add(ctx context.Context, entity any) error {
	if err := r.store.Insert(ctx, r.t, entity); err != nil {
		return err
	}
	r.sess.Remember(r.t.EntityID(entity), entity)
	return nil
}

// Update writes changes back to storage. With partial nil the entity's
// full current state is written and the entity becomes the cached
// instance. With partial non-nil only the named properties are written,
// from the supplied values, and the cached instance is dropped: the
// in-memory entity no longer matches storage, so the next read
// re-materializes it.
func (r *Repository) Update(ctx context.Context, entity any, partial types.Props) error {
	if partial == nil {
		if err := r.store.Update(ctx, r.t, entity); err != nil {
			return err
		}
		r.sess.Remember(r.t.EntityID(entity), entity)
		return nil
	}
	id := r.t.EntityID(entity)
	if err := r.store.UpdatePartial(ctx, r.t, id, partial); err != nil {
		return err
	}
	r.sess.Forget(id)
	return nil
}

// Delete removes the entity from storage and from the unit of work.
func (r *Repository) Delete(ctx context.Context, entity any) error {
	if err := r.store.Delete(ctx, r.t, entity); err != nil {
		return err
	}
	r.sess.Forget(r.t.EntityID(entity))
	return nil
}

// PolyRepository is the caching facade over a polymorphic family.
type PolyRepository struct {
	store *Store
	sess  *types.Session
	p     *schema.PolyTable
}

// PolyRepository returns the session's memoized repository for the
// given family.
func (s *Store) PolyRepository(sess *types.Session, p *schema.PolyTable) *PolyRepository {
	// Keyed apart from the base table's plain repository.
	r := sess.Repository("poly:"+p.Type, func() any {
		return &PolyRepository{store: s, sess: sess, p: p}
	})
	return r.(*PolyRepository)
}

// Get reads one entity of any variant by identifier.
func (r *PolyRepository) Get(ctx context.Context, id types.ID) (any, error) {
	return r.store.PolyObtain(ctx, r.sess, r.p, id)
}

// QueryListing pages over entities of every variant.
func (r *PolyRepository) QueryListing(ctx context.Context, pred *types.Predicate,
	pageSize, pageIndex int, orderColumn string, order types.SortOrder) (types.Listing, error) {
	return r.store.PolyObtainListing(ctx, r.sess, r.p, pred, pageSize, pageIndex, orderColumn, order)
}

// Add inserts the entity under its declared variant and records it in
// the unit of work.
func (r *PolyRepository) Add(ctx context.Context, entity any) error {
	if err := r.store.PolyInsert(ctx, r.p, entity); err != nil {
		return err
	}
	r.sess.Remember(r.p.Base.EntityID(entity), entity)
	return nil
}

// Update rewrites the entity's base and variant rows and makes it the
// cached instance.
func (r *PolyRepository) Update(ctx context.Context, entity any) error {
	if err := r.store.PolyUpdate(ctx, r.p, entity); err != nil {
		return err
	}
	r.sess.Remember(r.p.Base.EntityID(entity), entity)
	return nil
}

// Delete removes the entity's base and variant rows and drops it from
// the unit of work.
func (r *PolyRepository) Delete(ctx context.Context, entity any) error {
	if err := r.store.PolyDelete(ctx, r.p, entity); err != nil {
		return err
	}
	r.sess.Forget(r.p.Base.EntityID(entity))
	return nil
}

// UpdatePartial writes only the named properties of the identified row.
// Scalar and reference properties update their columns in place;
// collection properties are replaced wholesale from the supplied
// values. Reference values may be a materialized entity, a types.ID, or
// nil for an optional reference.
func (s *Store) UpdatePartial(ctx context.Context, t *schema.EntityTable, id types.ID, partial types.Props) error {
	if id == types.NilID {
		return fmt.Errorf("update %s: %w", t.Name, types.ErrInvalidID)
	}
	if len(partial) == 0 {
		return fmt.Errorf("update %s %s: no properties given", t.Name, id)
	}
	for prop := range partial {
		if _, ok := t.Binding(prop); !ok {
			return fmt.Errorf("update %s: unknown property %q: %w", t.Name, prop, types.ErrShapeMismatch)
		}
	}
	return s.twoPhase(ctx, func(q dbx, queue *[]cascade) error {
		return s.updatePartial(ctx, q, t, id, partial, queue)
	})
}

func (s *Store) updatePartial(ctx context.Context, q dbx, t *schema.EntityTable, id types.ID, partial types.Props, queue *[]cascade) error {
	var sets []string
	var args []any
	for _, b := range t.Bindings {
		val, ok := partial[b.Property]
		if !ok {
			continue
		}
		switch b.Kind {
		case schema.KindValue:
			sets = append(sets, b.Column+" = ?")
			args = append(args, val)
		case schema.KindSingleRef, schema.KindSingleRefOptional:
			refID, err := s.refValueID(b, val)
			if err != nil {
				return fmt.Errorf("update %s: property %q: %w", t.Name, b.Property, err)
			}
			sets = append(sets, b.Column+" = ?")
			args = append(args, refID)
		}
	}
	if len(sets) > 0 {
		args = append(args, id.String())
		res, err := q.ExecContext(ctx,
			"UPDATE "+t.Name+" SET "+strings.Join(sets, ", ")+" WHERE "+t.IDColumn+" = ?",
			args...)
		if err != nil {
			return fmt.Errorf("updating %s: %w", t.Name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("updating %s: %w", t.Name, err)
		}
		if n == 0 {
			return fmt.Errorf("update %s %s: %w", t.Name, id, types.ErrNotFound)
		}
	} else {
		exists, err := s.rowExists(ctx, q, t, id)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("update %s %s: %w", t.Name, id, types.ErrNotFound)
		}
	}

	for _, b := range t.Bindings {
		val, ok := partial[b.Property]
		if !ok {
			continue
		}
		switch b.Kind {
		case schema.KindManyValue:
			items, err := collectionItems(t, b, val)
			if err != nil {
				return err
			}
			_, err = q.ExecContext(ctx,
				"DELETE FROM "+b.ChildTable+" WHERE "+b.ForeignKey+" = ?", id.String())
			if err != nil {
				return fmt.Errorf("clearing %s: %w", b.ChildTable, err)
			}
			for _, item := range items {
				row, err := b.ValueToRow(item, id)
				if err != nil {
					return fmt.Errorf("writing %s rows for %s: %w", b.ChildTable, t.Name, err)
				}
				cols := []string{b.ForeignKey}
				rowArgs := []any{id.String()}
				for _, col := range b.ValueColumns {
					cols = append(cols, col)
					rowArgs = append(rowArgs, row[col])
				}
				_, err = q.ExecContext(ctx,
					"INSERT INTO "+b.ChildTable+" ("+strings.Join(cols, ", ")+") VALUES ("+placeholders(len(cols))+")",
					rowArgs...)
				if err != nil {
					return fmt.Errorf("inserting into %s: %w", b.ChildTable, err)
				}
			}
		case schema.KindManyRef:
			items, err := collectionItems(t, b, val)
			if err != nil {
				return err
			}
			childTable, err := s.table(b.RefType)
			if err != nil {
				return err
			}
			_, err = q.ExecContext(ctx,
				"DELETE FROM "+childTable.Name+" WHERE "+b.ForeignKey+" = ?", id.String())
			if err != nil {
				return fmt.Errorf("clearing %s: %w", childTable.Name, err)
			}
			for _, child := range items {
				*queue = append(*queue, cascade{
					table:  childTable,
					entity: child,
					extra:  types.Row{b.ForeignKey: id.String()},
				})
			}
		}
	}
	return nil
}

// refValueID maps a partial-update reference value to the identifier
// stored in the column.
func (s *Store) refValueID(b schema.Binding, val any) (any, error) {
	switch v := val.(type) {
	case nil:
		if b.Kind == schema.KindSingleRef {
			return nil, fmt.Errorf("%w: required reference is nil", types.ErrShapeMismatch)
		}
		return nil, nil
	case types.ID:
		if v == types.NilID {
			return nil, types.ErrInvalidID
		}
		return v.String(), nil
	case string:
		id, err := types.ParseID(v)
		if err != nil {
			return nil, err
		}
		return id.String(), nil
	default:
		refTable, err := s.table(b.RefType)
		if err != nil {
			return nil, err
		}
		return refTable.EntityID(v).String(), nil
	}
}

func collectionItems(t *schema.EntityTable, b schema.Binding, val any) ([]any, error) {
	items, ok := val.([]any)
	if !ok {
		return nil, fmt.Errorf("update %s: property %q: %w: expected []any",
			t.Name, b.Property, types.ErrShapeMismatch)
	}
	return items, nil
}
