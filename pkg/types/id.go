package types

import "github.com/google/uuid"

// ID identifies an entity. Identity is immutable after creation; two
// entities are the same record iff their IDs are equal, regardless of
// other field values.
type ID = uuid.UUID

// NilID is the zero ID. Entities passed to the engine must carry a
// non-nil ID.
var NilID = uuid.Nil

// NewID generates a UUID v7 for entity IDs, falling back to v4 if v7
// generation fails.
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// ParseID parses the canonical string form of an entity ID.
func ParseID(s string) (ID, error) {
	return uuid.Parse(s)
}
