// Package schema declares how entity types map to relational tables.
//
// A caller builds one EntityTable descriptor per entity type at process
// start, registering a binding for each property through the Builder.
// Descriptors are validated when built, registered in a Registry, and
// immutable afterwards, so they are safe to share across units of work.
// Tagged-union families are declared through NewPolyTable, which builds
// a base table for the shared properties plus one variant table per
// case.
package schema
