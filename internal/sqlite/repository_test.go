package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/relmap/pkg/types"
)

func TestRepositoryIsMemoizedPerSession(t *testing.T) {
	s, fx := setupStore(t, types.Config{})

	sess := newSession()
	assert.Same(t, s.Repository(sess, fx.houses), s.Repository(sess, fx.houses))
	assert.NotSame(t,
		any(s.Repository(sess, fx.houses)),
		any(s.Repository(newSession(), fx.houses)))
}

func TestRepositoryAddAndGet(t *testing.T) {
	s, fx := setupStore(t, types.Config{})
	ctx := context.Background()
	sess := newSession()
	repo := s.Repository(sess, fx.houses)

	h := sampleHouse()
	require.NoError(t, repo.Add(ctx, h))

	// Within the same unit of work the added instance comes back.
	got, err := repo.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Same(t, h, got)

	// A new unit of work reads from storage.
	fresh, err := s.Repository(newSession(), fx.houses).Get(ctx, h.ID)
	require.NoError(t, err)
	assert.NotSame(t, h, fresh)
	assert.Equal(t, h.ID, fresh.(*House).ID)
}

func TestRepositoryGetAllAndListing(t *testing.T) {
	s, fx := setupStore(t, types.Config{})
	ctx := context.Background()
	insertPeople(t, s, fx, 4)

	repo := s.Repository(newSession(), fx.people)

	all, err := repo.GetAll(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	page, err := repo.QueryListing(ctx, nil, 3, 0, "name", types.SortAsc)
	require.NoError(t, err)
	assert.Len(t, page.Entities, 3)
	assert.True(t, page.HasMore)

	one, err := repo.GetOneMatching(ctx, &types.Predicate{Expr: "name = ?", Args: []any{"person-02"}})
	require.NoError(t, err)
	assert.Equal(t, "person-02", one.(*Person).Name)
}

func TestRepositoryFullUpdateKeepsInstanceCached(t *testing.T) {
	s, fx := setupStore(t, types.Config{})
	ctx := context.Background()
	sess := newSession()
	repo := s.Repository(sess, fx.houses)

	h := sampleHouse()
	require.NoError(t, repo.Add(ctx, h))

	h.Length = 300
	require.NoError(t, repo.Update(ctx, h, nil))

	got, err := repo.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Same(t, h, got)

	fresh, err := s.Repository(newSession(), fx.houses).Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), fresh.(*House).Length)
}

func TestRepositoryPartialUpdate(t *testing.T) {
	s, fx := setupStore(t, types.Config{})
	ctx := context.Background()
	sess := newSession()
	repo := s.Repository(sess, fx.houses)

	h := sampleHouse()
	require.NoError(t, repo.Add(ctx, h))

	require.NoError(t, repo.Update(ctx, h, types.Props{
		"length":    int64(500),
		"occupants": []any{"Kira", "James"},
	}))

	// The stale in-memory instance is out of the unit of work now.
	got, err := repo.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.NotSame(t, h, got)

	loaded := got.(*House)
	assert.Equal(t, int64(500), loaded.Length)
	assert.Equal(t, int64(175), loaded.Width)
	assert.Equal(t, []string{"Kira", "James"}, loaded.Occupants)
	assert.Len(t, loaded.Rooms, 2)
}

func TestRepositoryPartialUpdateReferences(t *testing.T) {
	s, fx := setupStore(t, types.Config{})
	ctx := context.Background()
	repo := s.Repository(newSession(), fx.houses)

	h := sampleHouse()
	require.NoError(t, repo.Add(ctx, h))

	agent := &Person{ID: types.NewID(), Name: "partial agent"}
	require.NoError(t, s.Insert(ctx, fx.people, agent))

	// A materialized entity, then an identifier, then clearing.
	require.NoError(t, repo.Update(ctx, h, types.Props{"agent": agent}))
	got, err := s.Repository(newSession(), fx.houses).Get(ctx, h.ID)
	require.NoError(t, err)
	require.NotNil(t, got.(*House).Agent)
	assert.Equal(t, "partial agent", got.(*House).Agent.Name)

	require.NoError(t, repo.Update(ctx, h, types.Props{"agent": nil}))
	got, err = s.Repository(newSession(), fx.houses).Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Nil(t, got.(*House).Agent)

	err = repo.Update(ctx, h, types.Props{"owner": nil})
	assert.ErrorIs(t, err, types.ErrShapeMismatch)
}

func TestRepositoryPartialUpdateRejectsUnknownProperty(t *testing.T) {
	s, fx := setupStore(t, types.Config{})
	ctx := context.Background()
	repo := s.Repository(newSession(), fx.houses)

	h := sampleHouse()
	require.NoError(t, repo.Add(ctx, h))

	err := repo.Update(ctx, h, types.Props{"paint_color": "red"})
	assert.ErrorIs(t, err, types.ErrShapeMismatch)
}

func TestRepositoryDeleteForgetsInstance(t *testing.T) {
	s, fx := setupStore(t, types.Config{})
	ctx := context.Background()
	sess := newSession()
	repo := s.Repository(sess, fx.houses)

	h := sampleHouse()
	require.NoError(t, repo.Add(ctx, h))
	require.NoError(t, repo.Delete(ctx, h))

	_, cached := sess.Cached(h.ID)
	assert.False(t, cached)
	_, err := repo.Get(ctx, h.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestPolyRepository(t *testing.T) {
	s, fx := setupStore(t, types.Config{})
	ctx := context.Background()
	sess := newSession()
	repo := s.PolyRepository(sess, fx.shapes)

	c := &Circle{ID: types.NewID(), Label: "repo", Radius: 4}
	require.NoError(t, repo.Add(ctx, c))

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Same(t, any(c), got)

	c.Radius = 5
	require.NoError(t, repo.Update(ctx, c))
	fresh, err := s.PolyRepository(newSession(), fx.shapes).Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, fresh.(*Circle).Radius)

	page, err := repo.QueryListing(ctx, nil, 10, 0, "label", types.SortAsc)
	require.NoError(t, err)
	assert.Len(t, page.Entities, 1)

	require.NoError(t, repo.Delete(ctx, c))
	_, err = repo.Get(ctx, c.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}
