package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/relmap/pkg/schema"
	"github.com/mesh-intelligence/relmap/pkg/types"
)

// ObtainListing returns one page of entities matching the predicate,
// ordered by orderColumn. It runs through the optimizer's joined
// column set rather than the bare table, fetching pageSize+1 rows at
// the page offset; the extra row only reports whether a further page
// exists and is trimmed before returning.
func (s *Store) ObtainListing(ctx context.Context, sess *types.Session, t *schema.EntityTable,
	pred *types.Predicate, pageSize, pageIndex int, orderColumn string, order types.SortOrder) (types.Listing, error) {

	if err := checkPaging(t.Name, pageSize, pageIndex); err != nil {
		return types.Listing{}, err
	}
	plan, err := s.planJoins(t)
	if err != nil {
		return types.Listing{}, err
	}
	query, args, err := listingQuery(plan.selectList, plan.from, t, pred, orderColumn, order)
	if err != nil {
		return types.Listing{}, err
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, pageSize+1, pageIndex*pageSize)

	rows, err := s.queryRows(ctx, query, plan.labels, args...)
	if err != nil {
		return types.Listing{}, fmt.Errorf("listing %s: %w", t.Name, err)
	}
	hasMore := len(rows) > pageSize
	if hasMore {
		rows = rows[:pageSize]
	}
	visiting := make(idSet)
	entities := make([]any, 0, len(rows))
	for _, row := range rows {
		e, err := s.convertJoined(ctx, sess, plan, row, visiting)
		if err != nil {
			return types.Listing{}, err
		}
		entities = append(entities, e)
	}
	return types.Listing{Entities: entities, HasMore: hasMore}, nil
}

// ObtainOneMatching returns the first entity matching the predicate,
// or ErrNotFound when no row matches.
func (s *Store) ObtainOneMatching(ctx context.Context, sess *types.Session, t *schema.EntityTable, pred *types.Predicate) (any, error) {
	plan, err := s.planJoins(t)
	if err != nil {
		return nil, err
	}
	query, args, err := listingQuery(plan.selectList, plan.from, t, pred, "", "")
	if err != nil {
		return nil, err
	}
	query += " LIMIT 1"
	rows, err := s.queryRows(ctx, query, plan.labels, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", t.Name, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("querying %s: %w", t.Name, types.ErrNotFound)
	}
	return s.convertJoined(ctx, sess, plan, rows[0], make(idSet))
}

// listingQuery assembles SELECT ... FROM ... [WHERE] [ORDER BY] for a
// listing over the given column set.
func listingQuery(selectList []string, from string, t *schema.EntityTable,
	pred *types.Predicate, orderColumn string, order types.SortOrder) (string, []any, error) {

	query := "SELECT " + strings.Join(selectList, ", ") + " FROM " + from
	var args []any
	if pred != nil && pred.Expr != "" {
		query += " WHERE " + pred.Expr
		args = append(args, pred.Args...)
	}
	if orderColumn != "" {
		if !knownColumn(t, orderColumn) {
			return "", nil, fmt.Errorf("listing %s: unknown order column %q", t.Name, orderColumn)
		}
		switch order {
		case "", types.SortAsc:
			order = types.SortAsc
		case types.SortDesc:
		default:
			return "", nil, fmt.Errorf("listing %s: unknown sort order %q", t.Name, order)
		}
		query += fmt.Sprintf(" ORDER BY %s.%s %s", t.Name, orderColumn, order)
	}
	return query, args, nil
}

func checkPaging(table string, pageSize, pageIndex int) error {
	if pageSize <= 0 {
		return fmt.Errorf("listing %s: page size must be positive", table)
	}
	if pageIndex < 0 {
		return fmt.Errorf("listing %s: page index must not be negative", table)
	}
	return nil
}

func knownColumn(t *schema.EntityTable, col string) bool {
	for _, c := range t.Columns() {
		if c == col {
			return true
		}
	}
	return false
}
