package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/relmap/pkg/schema"
	"github.com/mesh-intelligence/relmap/pkg/types"
)

// cascade is one queued entity-collection write: a child entity to
// insert into its own table, tagged with the owner's identifier in the
// foreign-key column.
type cascade struct {
	table  *schema.EntityTable
	entity any
	extra  types.Row
}

// Insert writes the entity and everything it owns. The owner row, its
// single-reference targets, and its value collections commit first;
// entity-collection (ManyRef) cascades commit in a following
// transaction, because backends without deferrable foreign-key checks
// reject children written before their parent row is visible. With
// Config.DeferredConstraints both phases share one transaction.
//
// Inserts are never upserts: an existing row with the same identifier,
// on the owner or on any cascaded entity, fails with ErrConflict. A
// cycle among not-yet-present references fails with ErrReferenceCycle;
// references into already-stored entities are fine. If
// the second phase fails after the first committed, the owner exists
// without its declared children; no automatic compensation runs.
func (s *Store) Insert(ctx context.Context, t *schema.EntityTable, entity any) error {
	return s.twoPhase(ctx, func(q dbx, queue *[]cascade) error {
		return s.insertEntity(ctx, q, t, entity, nil, queue, make(idSet))
	})
}

// Update rewrites every Value and SingleRef column of the matching row
// and replaces collections wholesale: existing child rows tied to the
// owner are deleted, then the current collections are fully re-written
// through the insert logic. Callers pass the complete desired
// collections; this is replacement, not a merge.
func (s *Store) Update(ctx context.Context, t *schema.EntityTable, entity any) error {
	return s.twoPhase(ctx, func(q dbx, queue *[]cascade) error {
		return s.updateEntity(ctx, q, t, entity, queue)
	})
}

// Delete removes the owner's row by identifier. Child rows follow the
// storage's own foreign-key configuration: under the cascade policy
// they are removed by the store, under restrict the delete is rejected
// while children remain.
func (s *Store) Delete(ctx context.Context, t *schema.EntityTable, entity any) error {
	if s.db == nil {
		return types.ErrStoreClosed
	}
	id := t.EntityID(entity)
	if id == types.NilID {
		return fmt.Errorf("delete %s: %w", t.Name, types.ErrInvalidID)
	}
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM "+t.Name+" WHERE "+t.IDColumn+" = ?", id.String())
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", t.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", t.Name, err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s %s: %w", t.Name, id, types.ErrNotFound)
	}
	return nil
}

// twoPhase runs phase1 in one transaction and drains the cascade queue
// in a second, or in the same transaction when deferred constraints are
// configured. A failure in the second phase does not roll back the
// first; the partial write surfaces to the caller.
func (s *Store) twoPhase(ctx context.Context, phase1 func(q dbx, queue *[]cascade) error) error {
	if s.db == nil {
		return types.ErrStoreClosed
	}
	var queue []cascade

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := phase1(tx, &queue); err != nil {
		tx.Rollback()
		return err
	}
	if s.cfg.DeferredConstraints {
		if err := s.drain(ctx, tx, &queue); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing: %w", err)
		}
		return nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	if len(queue) == 0 {
		return nil
	}

	tx2, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning cascade transaction: %w", err)
	}
	if err := s.drain(ctx, tx2, &queue); err != nil {
		tx2.Rollback()
		return err
	}
	if err := tx2.Commit(); err != nil {
		return fmt.Errorf("committing cascade: %w", err)
	}
	return nil
}

// drain inserts queued children until the queue is empty. Children may
// queue further cascades of their own.
func (s *Store) drain(ctx context.Context, q dbx, queue *[]cascade) error {
	for len(*queue) > 0 {
		c := (*queue)[0]
		*queue = (*queue)[1:]
		if err := s.insertEntity(ctx, q, c.table, c.entity, c.extra, queue, make(idSet)); err != nil {
			return err
		}
	}
	return nil
}

// insertEntity writes one entity's row and value collections, after
// recursively inserting any present single-reference targets, and
// queues its entity collections for the cascade phase. extra carries
// foreign-key columns a cascading owner tags the row with. visiting
// holds the identifiers already being inserted up the recursion, so a
// cycle of not-yet-present references fails instead of recursing
// forever.
func (s *Store) insertEntity(ctx context.Context, q dbx, t *schema.EntityTable, entity any, extra types.Row, queue *[]cascade, visiting idSet) error {
	id := t.EntityID(entity)
	if id == types.NilID {
		return fmt.Errorf("insert %s: %w", t.Name, types.ErrInvalidID)
	}
	if _, ok := visiting[id]; ok {
		return fmt.Errorf("insert %s %s: %w", t.Name, id, types.ErrReferenceCycle)
	}
	visiting[id] = struct{}{}
	exists, err := s.rowExists(ctx, q, t, id)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("insert %s %s: %w", t.Name, id, types.ErrConflict)
	}

	// Referenced entities must exist before the owner row is written.
	for _, b := range t.Bindings {
		if b.Kind != schema.KindSingleRef && b.Kind != schema.KindSingleRefOptional {
			continue
		}
		ref := b.Get(entity)
		if ref == nil {
			if b.Kind == schema.KindSingleRef {
				return fmt.Errorf("insert %s: property %q: %w: required reference is nil",
					t.Name, b.Property, types.ErrShapeMismatch)
			}
			continue
		}
		refTable, err := s.table(b.RefType)
		if err != nil {
			return err
		}
		// References are shared, not owned: an already-present target
		// is used as-is rather than raising a conflict.
		refExists, err := s.rowExists(ctx, q, refTable, refTable.EntityID(ref))
		if err != nil {
			return err
		}
		if refExists {
			continue
		}
		if err := s.insertEntity(ctx, q, refTable, ref, nil, queue, visiting); err != nil {
			return err
		}
	}

	cols := []string{t.IDColumn}
	args := []any{id.String()}
	for _, b := range t.Bindings {
		switch b.Kind {
		case schema.KindValue:
			cols = append(cols, b.Column)
			args = append(args, b.Get(entity))
		case schema.KindSingleRef, schema.KindSingleRefOptional:
			cols = append(cols, b.Column)
			if ref := b.Get(entity); ref != nil {
				refTable, err := s.table(b.RefType)
				if err != nil {
					return err
				}
				args = append(args, refTable.EntityID(ref).String())
			} else {
				args = append(args, nil)
			}
		}
	}
	for col, val := range extra {
		cols = append(cols, col)
		args = append(args, val)
	}
	_, err = q.ExecContext(ctx,
		"INSERT INTO "+t.Name+" ("+strings.Join(cols, ", ")+") VALUES ("+placeholders(len(cols))+")",
		args...)
	if err != nil {
		return fmt.Errorf("inserting into %s: %w", t.Name, err)
	}

	if err := s.writeValueCollections(ctx, q, t, entity, id); err != nil {
		return err
	}
	return s.queueEntityCollections(t, entity, id, queue)
}

// writeValueCollections bulk-writes every ManyValue binding's rows into
// its child table, tagging each row with the owner's identifier.
func (s *Store) writeValueCollections(ctx context.Context, q dbx, t *schema.EntityTable, entity any, id types.ID) error {
	for _, b := range t.Bindings {
		if b.Kind != schema.KindManyValue {
			continue
		}
		for _, item := range b.Items(entity) {
			row, err := b.ValueToRow(item, id)
			if err != nil {
				return fmt.Errorf("writing %s rows for %s: %w", b.ChildTable, t.Name, err)
			}
			cols := []string{b.ForeignKey}
			args := []any{id.String()}
			for _, col := range b.ValueColumns {
				cols = append(cols, col)
				args = append(args, row[col])
			}
			_, err = q.ExecContext(ctx,
				"INSERT INTO "+b.ChildTable+" ("+strings.Join(cols, ", ")+") VALUES ("+placeholders(len(cols))+")",
				args...)
			if err != nil {
				return fmt.Errorf("inserting into %s: %w", b.ChildTable, err)
			}
		}
	}
	return nil
}

// queueEntityCollections queues every ManyRef child for the cascade
// phase.
func (s *Store) queueEntityCollections(t *schema.EntityTable, entity any, id types.ID, queue *[]cascade) error {
	for _, b := range t.Bindings {
		if b.Kind != schema.KindManyRef {
			continue
		}
		childTable, err := s.table(b.RefType)
		if err != nil {
			return err
		}
		for _, child := range b.Items(entity) {
			*queue = append(*queue, cascade{
				table:  childTable,
				entity: child,
				extra:  types.Row{b.ForeignKey: id.String()},
			})
		}
	}
	return nil
}

// updateEntity rewrites the owner's columns in place and replaces its
// collections.
func (s *Store) updateEntity(ctx context.Context, q dbx, t *schema.EntityTable, entity any, queue *[]cascade) error {
	id := t.EntityID(entity)
	if id == types.NilID {
		return fmt.Errorf("update %s: %w", t.Name, types.ErrInvalidID)
	}

	var sets []string
	var args []any
	for _, b := range t.Bindings {
		switch b.Kind {
		case schema.KindValue:
			sets = append(sets, b.Column+" = ?")
			args = append(args, b.Get(entity))
		case schema.KindSingleRef, schema.KindSingleRefOptional:
			sets = append(sets, b.Column+" = ?")
			if ref := b.Get(entity); ref != nil {
				refTable, err := s.table(b.RefType)
				if err != nil {
					return err
				}
				args = append(args, refTable.EntityID(ref).String())
			} else {
				if b.Kind == schema.KindSingleRef {
					return fmt.Errorf("update %s: property %q: %w: required reference is nil",
						t.Name, b.Property, types.ErrShapeMismatch)
				}
				args = append(args, nil)
			}
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

	return s.replaceCollections(ctx, q, t, entity, id, queue)
}

// replaceCollections deletes every child row tied to the owner and
// re-writes the current collections.
func (s *Store) replaceCollections(ctx context.Context, q dbx, t *schema.EntityTable, entity any, id types.ID, queue *[]cascade) error {
	for _, b := range t.Bindings {
		switch b.Kind {
		case schema.KindManyValue:
			_, err := q.ExecContext(ctx,
				"DELETE FROM "+b.ChildTable+" WHERE "+b.ForeignKey+" = ?", id.String())
			if err != nil {
				return fmt.Errorf("clearing %s: %w", b.ChildTable, err)
			}
		case schema.KindManyRef:
			childTable, err := s.table(b.RefType)
			if err != nil {
				return err
			}
			_, err = q.ExecContext(ctx,
				"DELETE FROM "+childTable.Name+" WHERE "+b.ForeignKey+" = ?", id.String())
			if err != nil {
				return fmt.Errorf("clearing %s: %w", childTable.Name, err)
			}
		}
	}
	if err := s.writeValueCollections(ctx, q, t, entity, id); err != nil {
		return err
	}
	return s.queueEntityCollections(t, entity, id, queue)
}
