package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/relmap/pkg/types"
)

type fakeEntity struct {
	ID types.ID
}

func idOf(e any) types.ID { return e.(*fakeEntity).ID }

func valueOf(e any) any { return nil }

func itemsOf(e any) []any { return nil }

func toValue(row types.Row) (any, error) { return row["v"], nil }

func toRow(v any, owner types.ID) (types.Row, error) { return types.Row{"v": v}, nil }

func TestBuilderValidation(t *testing.T) {
	tests := []struct {
		name  string
		build func(reg *Registry) error
		want  error
	}{
		{
			name: "empty type name",
			build: func(reg *Registry) error {
				_, err := NewTable("", "thing").ID("id", idOf).Build(reg)
				return err
			},
			want: ErrTypeEmpty,
		},
		{
			name: "empty table name",
			build: func(reg *Registry) error {
				_, err := NewTable("Thing", "").ID("id", idOf).Build(reg)
				return err
			},
			want: ErrTableNameEmpty,
		},
		{
			name: "missing identifier accessor",
			build: func(reg *Registry) error {
				_, err := NewTable("Thing", "thing").Build(reg)
				return err
			},
			want: ErrNoIDAccessor,
		},
		{
			name: "duplicate property",
			build: func(reg *Registry) error {
				_, err := NewTable("Thing", "thing").ID("id", idOf).
					BindValue("p", "a", valueOf).
					BindValue("p", "b", valueOf).
					Build(reg)
				return err
			},
			want: ErrDuplicateProperty,
		},
		{
			name: "duplicate column",
			build: func(reg *Registry) error {
				_, err := NewTable("Thing", "thing").ID("id", idOf).
					BindValue("p", "a", valueOf).
					BindValue("q", "a", valueOf).
					Build(reg)
				return err
			},
			want: ErrDuplicateColumn,
		},
		{
			name: "reserved identifier property",
			build: func(reg *Registry) error {
				_, err := NewTable("Thing", "thing").ID("id", idOf).
					BindValue(types.IDProperty, "a", valueOf).
					Build(reg)
				return err
			},
			want: ErrReservedProperty,
		},
		{
			name: "duplicate type across tables",
			build: func(reg *Registry) error {
				_, err := NewTable("Thing", "thing").ID("id", idOf).Build(reg)
				require.NoError(t, err)
				_, err = NewTable("Thing", "thing2").ID("id", idOf).Build(reg)
				return err
			},
			want: ErrDuplicateType,
		},
		{
			name: "duplicate table name across types",
			build: func(reg *Registry) error {
				_, err := NewTable("Thing", "thing").ID("id", idOf).Build(reg)
				require.NoError(t, err)
				_, err = NewTable("Other", "thing").ID("id", idOf).Build(reg)
				return err
			},
			want: ErrDuplicateTable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build(NewRegistry())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBuilderRejectsIncompleteBindings(t *testing.T) {
	reg := NewRegistry()

	_, err := NewTable("Thing", "thing").ID("id", idOf).
		BindValue("p", "", valueOf).
		Build(reg)
	assert.Error(t, err)

	_, err = NewTable("Thing2", "thing2").ID("id", idOf).
		BindSingleRef("r", "r_id", "", valueOf).
		Build(reg)
	assert.Error(t, err)

	_, err = NewTable("Thing3", "thing3").ID("id", idOf).
		BindManyRef("c", "Child", "", itemsOf).
		Build(reg)
	assert.Error(t, err)

	_, err = NewTable("Thing4", "thing4").ID("id", idOf).
		BindManyValue("v", "thing4_v", "owner_id", nil, toValue, toRow).
		Build(reg)
	assert.Error(t, err)
}

func TestColumnsOrder(t *testing.T) {
	reg := NewRegistry()
	_, err := NewTable("Child", "child").ID("id", idOf).Build(reg)
	require.NoError(t, err)

	tbl, err := NewTable("Thing", "thing").ID("id", idOf).
		BindValue("a", "a", valueOf).
		BindSingleRef("r", "r_id", "Child", valueOf).
		BindManyRef("kids", "Child", "thing_id", itemsOf).
		BindValue("b", "b", valueOf).
		Build(reg)
	require.NoError(t, err)

	// Collections contribute no owner-row columns.
	assert.Equal(t, []string{"id", "a", "r_id", "b"}, tbl.Columns())
}

func TestRegistryCheck(t *testing.T) {
	t.Run("unknown referenced type", func(t *testing.T) {
		reg := NewRegistry()
		_, err := NewTable("Thing", "thing").ID("id", idOf).
			BindSingleRef("r", "r_id", "Ghost", valueOf).
			Build(reg)
		require.NoError(t, err)
		assert.ErrorIs(t, reg.Check(), ErrUnknownRefType)
	})

	t.Run("foreign key collides with child column", func(t *testing.T) {
		reg := NewRegistry()
		_, err := NewTable("Child", "child").ID("id", idOf).
			BindValue("owner", "thing_id", valueOf).
			Build(reg)
		require.NoError(t, err)
		_, err = NewTable("Thing", "thing").ID("id", idOf).
			BindManyRef("kids", "Child", "thing_id", itemsOf).
			Build(reg)
		require.NoError(t, err)
		assert.Error(t, reg.Check())
	})

	t.Run("well formed schema passes", func(t *testing.T) {
		reg := NewRegistry()
		_, err := NewTable("Child", "child").ID("id", idOf).Build(reg)
		require.NoError(t, err)
		_, err = NewTable("Thing", "thing").ID("id", idOf).
			BindSingleRef("r", "r_id", "Child", valueOf).
			BindManyRef("kids", "Child", "thing_id", itemsOf).
			Build(reg)
		require.NoError(t, err)
		assert.NoError(t, reg.Check())
	})
}

func TestRegistryRejectsSecondOwner(t *testing.T) {
	t.Run("entity collection child", func(t *testing.T) {
		reg := NewRegistry()
		_, err := NewTable("Child", "child").ID("id", idOf).Build(reg)
		require.NoError(t, err)
		_, err = NewTable("A", "a").ID("id", idOf).
			BindManyRef("kids", "Child", "a_id", itemsOf).
			Build(reg)
		require.NoError(t, err)
		_, err = NewTable("B", "b").ID("id", idOf).
			BindManyRef("kids", "Child", "b_id", itemsOf).
			Build(reg)
		assert.ErrorIs(t, err, ErrAmbiguousOwner)
	})

	t.Run("value collection child table", func(t *testing.T) {
		reg := NewRegistry()
		_, err := NewTable("A", "a").ID("id", idOf).
			BindManyValue("vals", "shared_vals", "a_id", []string{"v"}, toValue, toRow).
			Build(reg)
		require.NoError(t, err)
		_, err = NewTable("B", "b").ID("id", idOf).
			BindManyValue("vals", "shared_vals", "b_id", []string{"v"}, toValue, toRow).
			Build(reg)
		assert.ErrorIs(t, err, ErrAmbiguousOwner)
	})
}
