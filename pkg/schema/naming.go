package schema

import (
	"strings"
	"unicode"
)

// SnakeCase converts a type name like "FloorPlan" to "floor_plan".
func SnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// VariantTableName computes the storage name of a variant table. The
// format is fixed for schema compatibility: the snake-cased base type
// name, the literal "_variant_", then the variant type name verbatim.
func VariantTableName(baseType, variantName string) string {
	return SnakeCase(baseType) + "_variant_" + variantName
}
