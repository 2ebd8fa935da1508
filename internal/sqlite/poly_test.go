package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/relmap/pkg/schema"
	"github.com/mesh-intelligence/relmap/pkg/types"
)

func TestPolyRoundTrip(t *testing.T) {
	s, fx := setupStore(t, types.Config{})
	ctx := context.Background()

	c := &Circle{ID: types.NewID(), Label: "wheel", Radius: 3.5}
	r := &Rect{ID: types.NewID(), Label: "door", W: 80, H: 200}
	require.NoError(t, s.PolyInsert(ctx, fx.shapes, c))
	require.NoError(t, s.PolyInsert(ctx, fx.shapes, r))

	got, err := s.PolyObtain(ctx, newSession(), fx.shapes, c.ID)
	require.NoError(t, err)
	loaded, ok := got.(*Circle)
	require.True(t, ok, "expected a *Circle, got %T", got)
	assert.Equal(t, "wheel", loaded.Label)
	assert.Equal(t, 3.5, loaded.Radius)

	got, err = s.PolyObtain(ctx, newSession(), fx.shapes, r.ID)
	require.NoError(t, err)
	rect, ok := got.(*Rect)
	require.True(t, ok, "expected a *Rect, got %T", got)
	assert.Equal(t, int64(80), rect.W)
	assert.Equal(t, int64(200), rect.H)
}

func TestPolyInsertRejectsUnknownVariant(t *testing.T) {
	s, fx := setupStore(t, types.Config{})

	err := s.PolyInsert(context.Background(), fx.shapes, &Person{ID: types.NewID()})
	assert.ErrorIs(t, err, schema.ErrUnknownVariant)
}

func TestPolyInsertConflict(t *testing.T) {
	s, fx := setupStore(t, types.Config{})
	ctx := context.Background()

	c := &Circle{ID: types.NewID(), Label: "one", Radius: 1}
	require.NoError(t, s.PolyInsert(ctx, fx.shapes, c))

	err := s.PolyInsert(ctx, fx.shapes, &Circle{ID: c.ID, Label: "two", Radius: 2})
	assert.ErrorIs(t, err, types.ErrConflict)
}

func TestPolyUpdate(t *testing.T) {
	s, fx := setupStore(t, types.Config{})
	ctx := context.Background()

	c := &Circle{ID: types.NewID(), Label: "before", Radius: 1}
	require.NoError(t, s.PolyInsert(ctx, fx.shapes, c))

	c.Label = "after"
	c.Radius = 2.5
	require.NoError(t, s.PolyUpdate(ctx, fx.shapes, c))

	got, err := s.PolyObtain(ctx, newSession(), fx.shapes, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.(*Circle).Label)
	assert.Equal(t, 2.5, got.(*Circle).Radius)
}

func TestPolyDelete(t *testing.T) {
	for _, policy := range []string{types.CascadeDelete, types.CascadeRestrict} {
		t.Run(policy, func(t *testing.T) {
			s, fx := setupStore(t, types.Config{CascadePolicy: policy})
			ctx := context.Background()

			c := &Circle{ID: types.NewID(), Label: "gone", Radius: 1}
			require.NoError(t, s.PolyInsert(ctx, fx.shapes, c))
			require.NoError(t, s.PolyDelete(ctx, fx.shapes, c))

			_, err := s.PolyObtain(ctx, newSession(), fx.shapes, c.ID)
			assert.ErrorIs(t, err, types.ErrNotFound)

			// The variant row went with the base row.
			variant, _ := fx.shapes.Variant("Circle")
			row, found, err := s.selectByID(ctx, variant.Table, c.ID)
			require.NoError(t, err)
			assert.False(t, found, "variant row should be gone, got %v", row)
		})
	}
}

func TestPolyObtainVariant(t *testing.T) {
	s, fx := setupStore(t, types.Config{})
	ctx := context.Background()

	c := &Circle{ID: types.NewID(), Label: "direct", Radius: 1}
	require.NoError(t, s.PolyInsert(ctx, fx.shapes, c))

	got, err := s.PolyObtainVariant(ctx, newSession(), fx.shapes, "Circle", c.ID)
	require.NoError(t, err)
	assert.Equal(t, "direct", got.(*Circle).Label)

	// Asking for the wrong variant is a miss, not a conversion error.
	_, err = s.PolyObtainVariant(ctx, newSession(), fx.shapes, "Rect", c.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = s.PolyObtainVariant(ctx, newSession(), fx.shapes, "Triangle", c.ID)
	assert.ErrorIs(t, err, schema.ErrUnknownVariant)
}

func TestPolyObtainListingMixesVariants(t *testing.T) {
	s, fx := setupStore(t, types.Config{})
	ctx := context.Background()

	require.NoError(t, s.PolyInsert(ctx, fx.shapes, &Circle{ID: types.NewID(), Label: "a", Radius: 1}))
	require.NoError(t, s.PolyInsert(ctx, fx.shapes, &Rect{ID: types.NewID(), Label: "b", W: 1, H: 2}))
	require.NoError(t, s.PolyInsert(ctx, fx.shapes, &Circle{ID: types.NewID(), Label: "c", Radius: 2}))

	page, err := s.PolyObtainListing(ctx, newSession(), fx.shapes, nil, 10, 0, "label", types.SortAsc)
	require.NoError(t, err)
	require.Len(t, page.Entities, 3)

	assert.IsType(t, &Circle{}, page.Entities[0])
	assert.IsType(t, &Rect{}, page.Entities[1])
	assert.IsType(t, &Circle{}, page.Entities[2])
}

func TestVariantStoreScopesListing(t *testing.T) {
	s, fx := setupStore(t, types.Config{})
	ctx := context.Background()

	require.NoError(t, s.PolyInsert(ctx, fx.shapes, &Circle{ID: types.NewID(), Label: "a", Radius: 1}))
	require.NoError(t, s.PolyInsert(ctx, fx.shapes, &Rect{ID: types.NewID(), Label: "b", W: 1, H: 2}))

	vs, err := s.VariantStore(fx.shapes, "Circle")
	require.NoError(t, err)

	page, err := vs.ObtainListing(ctx, newSession(), nil, 10, 0, "label", types.SortAsc)
	require.NoError(t, err)
	require.Len(t, page.Entities, 1)
	assert.IsType(t, &Circle{}, page.Entities[0])
}

func TestVariantStoreRejectsForeignVariant(t *testing.T) {
	s, fx := setupStore(t, types.Config{})

	vs, err := s.VariantStore(fx.shapes, "Circle")
	require.NoError(t, err)

	err = vs.Insert(context.Background(), &Rect{ID: types.NewID(), Label: "x", W: 1, H: 1})
	assert.ErrorIs(t, err, types.ErrShapeMismatch)

	_, err = s.VariantStore(fx.shapes, "Pentagon")
	assert.ErrorIs(t, err, schema.ErrUnknownVariant)
}

func TestDualHandleEquivalence(t *testing.T) {
	s, fx := setupStore(t, types.Config{})
	ctx := context.Background()

	vs, err := s.VariantStore(fx.shapes, "Circle")
	require.NoError(t, err)

	// Written through the variant handle, read through the family.
	c := &Circle{ID: types.NewID(), Label: "both ways", Radius: 7}
	require.NoError(t, vs.Insert(ctx, c))

	sess := newSession()
	viaPoly, err := s.PolyObtain(ctx, sess, fx.shapes, c.ID)
	require.NoError(t, err)
	viaVariant, err := vs.Obtain(ctx, sess, c.ID)
	require.NoError(t, err)
	assert.Same(t, viaPoly, viaVariant)

	// Fresh sessions agree on the data either way.
	one, err := s.PolyObtain(ctx, newSession(), fx.shapes, c.ID)
	require.NoError(t, err)
	two, err := vs.Obtain(ctx, newSession(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, one, two)
}
