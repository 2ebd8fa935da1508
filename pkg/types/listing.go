package types

// SortOrder selects the direction of a listing's ORDER BY clause.
type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// Predicate is a caller-supplied filter condition: a SQL expression over
// the listed table's columns with ? placeholders bound to Args. Column
// names may be qualified with the table name to disambiguate against
// joined reference tables.
type Predicate struct {
	Expr string
	Args []any
}

// Listing is one page of entities plus a flag reporting whether a
// further page exists.
type Listing struct {
	Entities []any
	HasMore  bool
}
