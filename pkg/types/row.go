package types

// Row is one storage row as a column-name-to-value map. IDs appear in
// their canonical string form; other values carry whatever the driver
// returned (int64, float64, string, []byte, nil).
type Row map[string]any

// Props is a property-name-to-value map handed to the construction
// service. Reference properties carry materialized entities, collection
// properties carry []any.
type Props map[string]any
