// Package types defines the identifiers, configuration, sentinel errors,
// unit-of-work session, and construction-service contract shared by the
// relmap mapping engine and its callers.
package types
