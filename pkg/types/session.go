package types

// Session is the unit-of-work context passed to read operations. It
// memoizes materialized entities by identifier, so within one unit of
// work the same identifier never produces two distinct in-memory
// instances, and memoizes per-type repository wrappers.
//
// A Session is scoped to one logical unit of work and must not be
// shared across concurrent callers. Memoization records at most one
// load per identifier, but two first-time loads racing on the same
// identifier from separate goroutines are not deduplicated.
type Session struct {
	constructor Constructor
	entities    map[ID]any
	repos       map[string]any
}

// NewSession creates an empty Session around the given construction
// service.
func NewSession(c Constructor) *Session {
	return &Session{
		constructor: c,
		entities:    make(map[ID]any),
		repos:       make(map[string]any),
	}
}

// Constructor returns the construction service this unit of work uses.
func (s *Session) Constructor() Constructor {
	return s.constructor
}

// Cached returns the entity previously materialized for id, if any.
func (s *Session) Cached(id ID) (any, bool) {
	e, ok := s.entities[id]
	return e, ok
}

// Remember records entity as the instance for id.
func (s *Session) Remember(id ID, entity any) {
	s.entities[id] = entity
}

// Forget drops the cached instance for id, if any. Called after deletes
// so a later load does not resurrect a stale instance.
func (s *Session) Forget(id ID) {
	delete(s.entities, id)
}

// Repository returns the memoized repository for the given entity type,
// creating it with build on first use.
func (s *Session) Repository(typeName string, build func() any) any {
	if r, ok := s.repos[typeName]; ok {
		return r
	}
	r := build()
	s.repos[typeName] = r
	return r
}
