package sqlite

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/relmap/pkg/schema"
	"github.com/mesh-intelligence/relmap/pkg/types"
)

// PolyInsert writes the base row using the base bindings, then a
// variant row with the same identifier using the concrete variant's
// bindings. Collection cascades from both run in the same two-phase
// pattern as Insert.
func (s *Store) PolyInsert(ctx context.Context, p *schema.PolyTable, entity any) error {
	v, err := s.variantFor(p, entity)
	if err != nil {
		return err
	}
	return s.twoPhase(ctx, func(q dbx, queue *[]cascade) error {
		// Base and variant rows share the identifier, so each insert
		// gets its own visiting set.
		if err := s.insertEntity(ctx, q, p.Base, entity, nil, queue, make(idSet)); err != nil {
			return err
		}
		return s.insertEntity(ctx, q, v.Table, entity, nil, queue, make(idSet))
	})
}

// PolyUpdate updates the base row and the concrete variant's row
// independently, each through its own bindings, with the same
// full-replacement collection semantics as Update.
func (s *Store) PolyUpdate(ctx context.Context, p *schema.PolyTable, entity any) error {
	v, err := s.variantFor(p, entity)
	if err != nil {
		return err
	}
	return s.twoPhase(ctx, func(q dbx, queue *[]cascade) error {
		if err := s.updateEntity(ctx, q, p.Base, entity, queue); err != nil {
			return err
		}
		return s.updateEntity(ctx, q, v.Table, entity, queue)
	})
}

// PolyDelete removes a base/variant pair. Under the cascade policy the
// variant row follows the base row through the storage's foreign key;
// under restrict the engine removes the variant row first, then the
// base row, in one transaction, since the storage rejects deleting a
// base row while its variant row remains.
func (s *Store) PolyDelete(ctx context.Context, p *schema.PolyTable, entity any) error {
	if s.cfg.EffectiveCascadePolicy() == types.CascadeDelete {
		return s.Delete(ctx, p.Base, entity)
	}
	if s.db == nil {
		return types.ErrStoreClosed
	}
	v, err := s.variantFor(p, entity)
	if err != nil {
		return err
	}
	id := p.Base.EntityID(entity)
	if id == types.NilID {
		return fmt.Errorf("delete %s: %w", p.Base.Name, types.ErrInvalidID)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM "+v.Table.Name+" WHERE "+v.Table.IDColumn+" = ?", id.String()); err != nil {
		tx.Rollback()
		return fmt.Errorf("deleting from %s: %w", v.Table.Name, err)
	}
	res, err := tx.ExecContext(ctx,
		"DELETE FROM "+p.Base.Name+" WHERE "+p.Base.IDColumn+" = ?", id.String())
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("deleting from %s: %w", p.Base.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("deleting from %s: %w", p.Base.Name, err)
	}
	if n == 0 {
		tx.Rollback()
		return fmt.Errorf("delete %s %s: %w", p.Base.Name, id, types.ErrNotFound)
	}
	return tx.Commit()
}

// PolyObtain reads the base row by identifier, then probes each
// variant table in registry order until one yields a row with the same
// identifier, and converts the merged row image through the union of
// base and variant bindings. Cost is proportional to the variant
// count; production schemas wanting better should add a discriminator
// column or index.
func (s *Store) PolyObtain(ctx context.Context, sess *types.Session, p *schema.PolyTable, id types.ID) (any, error) {
	return s.polyObtain(ctx, sess, p, id, make(idSet))
}

func (s *Store) polyObtain(ctx context.Context, sess *types.Session, p *schema.PolyTable, id types.ID, visiting idSet) (any, error) {
	if id == types.NilID {
		return nil, fmt.Errorf("obtain %s: %w", p.Base.Name, types.ErrInvalidID)
	}
	if e, ok := sess.Cached(id); ok {
		return e, nil
	}
	baseRow, found, err := s.selectByID(ctx, p.Base, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("obtain %s %s: %w", p.Base.Name, id, types.ErrNotFound)
	}
	for _, v := range p.Variants {
		vRow, found, err := s.selectByID(ctx, v.Table, id)
		if err != nil {
			return nil, err
		}
		if found {
			return s.convertMerged(ctx, sess, p.Base, v, baseRow, vRow, id, visiting)
		}
	}
	return nil, fmt.Errorf("obtain %s %s: %w: no variant row", p.Base.Name, id, types.ErrNotFound)
}

// PolyObtainVariant reads a base/variant pair for a known concrete
// variant, skipping the probe.
func (s *Store) PolyObtainVariant(ctx context.Context, sess *types.Session, p *schema.PolyTable, variantName string, id types.ID) (any, error) {
	return s.polyObtainVariant(ctx, sess, p, variantName, id, make(idSet))
}

func (s *Store) polyObtainVariant(ctx context.Context, sess *types.Session, p *schema.PolyTable, variantName string, id types.ID, visiting idSet) (any, error) {
	v, ok := p.Variant(variantName)
	if !ok {
		return nil, fmt.Errorf("obtain %s: %w: %q", p.Base.Name, schema.ErrUnknownVariant, variantName)
	}
	if id == types.NilID {
		return nil, fmt.Errorf("obtain %s: %w", v.Table.Name, types.ErrInvalidID)
	}
	if e, ok := sess.Cached(id); ok {
		return e, nil
	}
	baseRow, found, err := s.selectByID(ctx, p.Base, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("obtain %s %s: %w", p.Base.Name, id, types.ErrNotFound)
	}
	vRow, found, err := s.selectByID(ctx, v.Table, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("obtain %s %s: %w", v.Table.Name, id, types.ErrNotFound)
	}
	return s.convertMerged(ctx, sess, p.Base, v, baseRow, vRow, id, visiting)
}

// PolyObtainListing left-joins every variant table onto the base
// table, selects one page, and for each row picks whichever variant
// contributed non-null columns. Not performance-optimized: listing
// cost scales with the variant count per page.
func (s *Store) PolyObtainListing(ctx context.Context, sess *types.Session, p *schema.PolyTable,
	pred *types.Predicate, pageSize, pageIndex int, orderColumn string, order types.SortOrder) (types.Listing, error) {

	if err := checkPaging(p.Base.Name, pageSize, pageIndex); err != nil {
		return types.Listing{}, err
	}
	selectList, labels, from := variantJoin(p, p.Variants, "LEFT JOIN")
	query, args, err := listingQuery(selectList, from, p.Base, pred, orderColumn, order)
	if err != nil {
		return types.Listing{}, err
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, pageSize+1, pageIndex*pageSize)

	rows, err := s.queryRows(ctx, query, labels, args...)
	if err != nil {
		return types.Listing{}, fmt.Errorf("listing %s: %w", p.Base.Name, err)
	}
	hasMore := len(rows) > pageSize
	if hasMore {
		rows = rows[:pageSize]
	}
	visiting := make(idSet)
	entities := make([]any, 0, len(rows))
	for _, row := range rows {
		e, err := s.convertJoinedVariant(ctx, sess, p, p.Variants, row, visiting)
		if err != nil {
			return types.Listing{}, err
		}
		entities = append(entities, e)
	}
	return types.Listing{Entities: entities, HasMore: hasMore}, nil
}

// variantJoin assembles the select list, scan labels, and FROM clause
// joining the given variant tables onto the base. Base columns keep
// their bare names; each variant's columns are labeled v<N>__<column>.
func variantJoin(p *schema.PolyTable, variants []schema.Variant, joinKind string) (selectList, labels []string, from string) {
	for _, col := range p.Base.Columns() {
		selectList = append(selectList, fmt.Sprintf("%s.%s AS %s", p.Base.Name, col, col))
		labels = append(labels, col)
	}
	from = p.Base.Name
	for i, v := range variants {
		alias := fmt.Sprintf("v%d", i)
		for _, col := range v.Table.Columns() {
			label := fmt.Sprintf("%s__%s", alias, col)
			selectList = append(selectList, fmt.Sprintf("%s.%s AS %s", alias, col, label))
			labels = append(labels, label)
		}
		from += fmt.Sprintf(" %s %s AS %s ON %s.%s = %s.%s",
			joinKind, v.Table.Name, alias, p.Base.Name, p.Base.IDColumn, alias, v.Table.IDColumn)
	}
	return selectList, labels, from
}

// variantFor maps a concrete entity to its declared variant.
func (s *Store) variantFor(p *schema.PolyTable, entity any) (schema.Variant, error) {
	tag := p.Tag(entity)
	v, ok := p.Variant(tag)
	if !ok {
		return schema.Variant{}, fmt.Errorf("%s: %w: %q", p.Base.Name, schema.ErrUnknownVariant, tag)
	}
	return v, nil
}

// convertMerged converts a base row plus a variant row through the
// union of their bindings, constructing the concrete variant type.
func (s *Store) convertMerged(ctx context.Context, sess *types.Session, base *schema.EntityTable, v schema.Variant, baseRow, vRow types.Row, id types.ID, visiting idSet) (any, error) {
	if _, ok := visiting[id]; ok {
		return nil, fmt.Errorf("converting %s row %s: %w", base.Name, id, types.ErrReferenceCycle)
	}
	visiting[id] = struct{}{}
	props, err := s.buildProps(ctx, sess, base, baseRow, id, visiting)
	if err != nil {
		return nil, err
	}
	vProps, err := s.buildProps(ctx, sess, v.Table, vRow, id, visiting)
	if err != nil {
		return nil, err
	}
	for k, val := range vProps {
		props[k] = val
	}
	return s.construct(ctx, sess, v.Table.Type, v.Table.Name, id, props, visiting)
}

// convertJoinedVariant picks the variant whose identifier column is
// non-null in a joined listing row and converts the merged image.
func (s *Store) convertJoinedVariant(ctx context.Context, sess *types.Session, p *schema.PolyTable, variants []schema.Variant, row types.Row, visiting idSet) (any, error) {
	baseRow := make(types.Row, len(p.Base.Columns()))
	for _, col := range p.Base.Columns() {
		baseRow[col] = row[col]
	}
	id, err := rowID(p.Base, baseRow)
	if err != nil {
		return nil, err
	}
	for i, v := range variants {
		prefix := fmt.Sprintf("v%d__", i)
		if row[prefix+v.Table.IDColumn] == nil {
			continue
		}
		if e, ok := sess.Cached(id); ok {
			return e, nil
		}
		vRow := make(types.Row, len(v.Table.Columns()))
		for _, col := range v.Table.Columns() {
			vRow[col] = row[prefix+col]
		}
		return s.convertMerged(ctx, sess, p.Base, v, baseRow, vRow, id, visiting)
	}
	return nil, fmt.Errorf("listing %s: row %s: %w: no variant row", p.Base.Name, id, types.ErrNotFound)
}
