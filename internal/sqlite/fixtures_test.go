// Shared test model: a house aggregate exercising every binding kind,
// and a shape family exercising the polymorphic tables.
package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/relmap/pkg/construct"
	"github.com/mesh-intelligence/relmap/pkg/schema"
	"github.com/mesh-intelligence/relmap/pkg/types"
)

type Person struct {
	ID   types.ID
	Name string
}

type Room struct {
	ID    types.ID
	Label string
}

type House struct {
	ID        types.ID
	Length    int64
	Width     int64
	Owner     *Person
	Agent     *Person
	Occupants []string
	Rooms     []*Room
}

type Circle struct {
	ID     types.ID
	Label  string
	Radius float64
}

type Rect struct {
	ID     types.ID
	Label  string
	W, H   int64
}

type fixture struct {
	reg    *schema.Registry
	people *schema.EntityTable
	rooms  *schema.EntityTable
	houses *schema.EntityTable
	shapes *schema.PolyTable
}

func buildFixture(t *testing.T) *fixture {
	t.Helper()
	reg := schema.NewRegistry()

	people := schema.NewTable("Person", "person").
		ID("id", func(e any) types.ID { return e.(*Person).ID }).
		BindValue("name", "name", func(e any) any { return e.(*Person).Name }).
		MustBuild(reg)

	rooms := schema.NewTable("Room", "room").
		ID("id", func(e any) types.ID { return e.(*Room).ID }).
		BindValue("label", "label", func(e any) any { return e.(*Room).Label }).
		MustBuild(reg)

	houses := schema.NewTable("House", "house").
		ID("id", func(e any) types.ID { return e.(*House).ID }).
		BindValue("length", "length", func(e any) any { return e.(*House).Length }).
		BindValue("width", "width", func(e any) any { return e.(*House).Width }).
		BindSingleRef("owner", "owner_id", "Person", func(e any) any {
			if h := e.(*House); h.Owner != nil {
				return h.Owner
			}
			return nil
		}).
		BindSingleRefOptional("agent", "agent_id", "Person", func(e any) any {
			if h := e.(*House); h.Agent != nil {
				return h.Agent
			}
			return nil
		}).
		BindManyValue("occupants", "house_occupant", "house_id", []string{"name"},
			func(row types.Row) (any, error) { return row["name"], nil },
			func(v any, owner types.ID) (types.Row, error) { return types.Row{"name": v}, nil }).
		BindManyRef("rooms", "Room", "house_id", func(e any) []any {
			h := e.(*House)
			items := make([]any, len(h.Rooms))
			for i, r := range h.Rooms {
				items[i] = r
			}
			return items
		}).
		MustBuild(reg)

	shapes := schema.NewPolyTable("Shape").
		ID("id", func(e any) types.ID {
			switch s := e.(type) {
			case *Circle:
				return s.ID
			case *Rect:
				return s.ID
			}
			return types.NilID
		}).
		Tag(func(e any) string {
			switch e.(type) {
			case *Circle:
				return "Circle"
			case *Rect:
				return "Rect"
			}
			return ""
		}).
		BindValue("label", "label", func(e any) any {
			switch s := e.(type) {
			case *Circle:
				return s.Label
			case *Rect:
				return s.Label
			}
			return nil
		}).
		Variant("Circle", func(v *schema.Builder) {
			v.BindValue("radius", "radius", func(e any) any { return e.(*Circle).Radius })
		}).
		Variant("Rect", func(v *schema.Builder) {
			v.BindValue("w", "w", func(e any) any { return e.(*Rect).W }).
				BindValue("h", "h", func(e any) any { return e.(*Rect).H })
		}).
		MustBuild(reg)

	return &fixture{reg: reg, people: people, rooms: rooms, houses: houses, shapes: shapes}
}

func newConstructor() *construct.Registry {
	c := construct.NewRegistry()
	c.Register("Person", func(ctx context.Context, props types.Props, fetch types.FetchFunc) (any, error) {
		vals, err := construct.Require("Person", props, "id", "name")
		if err != nil {
			return nil, err
		}
		return &Person{ID: vals[0].(types.ID), Name: vals[1].(string)}, nil
	})
	c.Register("Room", func(ctx context.Context, props types.Props, fetch types.FetchFunc) (any, error) {
		vals, err := construct.Require("Room", props, "id", "label")
		if err != nil {
			return nil, err
		}
		return &Room{ID: vals[0].(types.ID), Label: vals[1].(string)}, nil
	})
	c.Register("House", func(ctx context.Context, props types.Props, fetch types.FetchFunc) (any, error) {
		vals, err := construct.Require("House", props, "id", "length", "width", "owner", "occupants", "rooms")
		if err != nil {
			return nil, err
		}
		h := &House{
			ID:     vals[0].(types.ID),
			Length: vals[1].(int64),
			Width:  vals[2].(int64),
			Owner:  vals[3].(*Person),
		}
		if a, ok := props["agent"]; ok && a != nil {
			h.Agent = a.(*Person)
		}
		for _, o := range vals[4].([]any) {
			h.Occupants = append(h.Occupants, o.(string))
		}
		for _, r := range vals[5].([]any) {
			h.Rooms = append(h.Rooms, r.(*Room))
		}
		return h, nil
	})
	c.Register("Circle", func(ctx context.Context, props types.Props, fetch types.FetchFunc) (any, error) {
		vals, err := construct.Require("Circle", props, "id", "label", "radius")
		if err != nil {
			return nil, err
		}
		return &Circle{ID: vals[0].(types.ID), Label: vals[1].(string), Radius: vals[2].(float64)}, nil
	})
	c.Register("Rect", func(ctx context.Context, props types.Props, fetch types.FetchFunc) (any, error) {
		vals, err := construct.Require("Rect", props, "id", "label", "w", "h")
		if err != nil {
			return nil, err
		}
		return &Rect{ID: vals[0].(types.ID), Label: vals[1].(string), W: vals[2].(int64), H: vals[3].(int64)}, nil
	})
	return c
}

// setupStore opens a store over a fresh temp-dir database with the
// fixture schema created.
func setupStore(t *testing.T, cfg types.Config) (*Store, *fixture) {
	t.Helper()
	fx := buildFixture(t)
	if cfg.Backend == "" {
		cfg.Backend = types.BackendSQLite
	}
	if cfg.DataDir == "" {
		cfg.DataDir = t.TempDir()
	}
	s, err := Open(cfg, fx.reg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.InitSchema(context.Background()))
	return s, fx
}

func newSession() *types.Session {
	return types.NewSession(newConstructor())
}

func sampleHouse() *House {
	return &House{
		ID:     types.NewID(),
		Length: 150,
		Width:  175,
		Owner:  &Person{ID: types.NewID(), Name: "Avery"},
		Occupants: []string{"Rose", "Ben"},
		Rooms: []*Room{
			{ID: types.NewID(), Label: "kitchen"},
			{ID: types.NewID(), Label: "study"},
		},
	}
}
