package sqlite

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/relmap/pkg/schema"
	"github.com/mesh-intelligence/relmap/pkg/types"
)

// VariantStore is a handle scoped to one concrete variant of a
// polymorphic family. Writes reject entities tagged as a different
// variant, and listings see only rows of this variant.
type VariantStore struct {
	store *Store
	poly  *schema.PolyTable
	v     schema.Variant
}

// VariantStore returns a handle scoped to the named variant.
func (s *Store) VariantStore(p *schema.PolyTable, variantName string) (*VariantStore, error) {
	v, ok := p.Variant(variantName)
	if !ok {
		return nil, fmt.Errorf("%s: %w: %q", p.Base.Name, schema.ErrUnknownVariant, variantName)
	}
	return &VariantStore{store: s, poly: p, v: v}, nil
}

func (vs *VariantStore) checkTag(entity any) error {
	if tag := vs.poly.Tag(entity); tag != vs.v.Name {
		return fmt.Errorf("%s: entity is variant %q, handle is scoped to %q: %w",
			vs.poly.Base.Name, tag, vs.v.Name, types.ErrShapeMismatch)
	}
	return nil
}

// Insert writes the base and variant rows for an entity of this
// handle's variant.
func (vs *VariantStore) Insert(ctx context.Context, entity any) error {
	if err := vs.checkTag(entity); err != nil {
		return err
	}
	return vs.store.PolyInsert(ctx, vs.poly, entity)
}

// Update rewrites the base and variant rows for an entity of this
// handle's variant.
func (vs *VariantStore) Update(ctx context.Context, entity any) error {
	if err := vs.checkTag(entity); err != nil {
		return err
	}
	return vs.store.PolyUpdate(ctx, vs.poly, entity)
}

// Delete removes an entity of this handle's variant.
func (vs *VariantStore) Delete(ctx context.Context, entity any) error {
	if err := vs.checkTag(entity); err != nil {
		return err
	}
	return vs.store.PolyDelete(ctx, vs.poly, entity)
}

// Obtain reads one entity of this handle's variant by identifier.
func (vs *VariantStore) Obtain(ctx context.Context, sess *types.Session, id types.ID) (any, error) {
	return vs.store.PolyObtainVariant(ctx, sess, vs.poly, vs.v.Name, id)
}

// ObtainListing pages over entities of this variant only, by inner
// joining the variant table onto the base.
func (vs *VariantStore) ObtainListing(ctx context.Context, sess *types.Session,
	pred *types.Predicate, pageSize, pageIndex int, orderColumn string, order types.SortOrder) (types.Listing, error) {

	if err := checkPaging(vs.v.Table.Name, pageSize, pageIndex); err != nil {
		return types.Listing{}, err
	}
	variants := []schema.Variant{vs.v}
	selectList, labels, from := variantJoin(vs.poly, variants, "INNER JOIN")
	query, args, err := listingQuery(selectList, from, vs.poly.Base, pred, orderColumn, order)
	if err != nil {
		return types.Listing{}, err
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, pageSize+1, pageIndex*pageSize)

	rows, err := vs.store.queryRows(ctx, query, labels, args...)
	if err != nil {
		return types.Listing{}, fmt.Errorf("listing %s: %w", vs.v.Table.Name, err)
	}
	hasMore := len(rows) > pageSize
	if hasMore {
		rows = rows[:pageSize]
	}
	visiting := make(idSet)
	entities := make([]any, 0, len(rows))
	for _, row := range rows {
		e, err := vs.store.convertJoinedVariant(ctx, sess, vs.poly, variants, row, visiting)
		if err != nil {
			return types.Listing{}, err
		}
		entities = append(entities, e)
	}
	return types.Listing{Entities: entities, HasMore: hasMore}, nil
}
