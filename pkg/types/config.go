package types

import "errors"

// Config holds backend selection and parameters for opening a Store.
type Config struct {
	Backend string `json:"backend" yaml:"backend"`
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// CascadePolicy selects how child and variant rows behave when
	// their owner or base row is deleted. "cascade" generates
	// ON DELETE CASCADE foreign keys and deletes touch only the owner
	// row; "restrict" generates ON DELETE RESTRICT and dependent rows
	// must be removed first.
	CascadePolicy string `json:"cascade_policy" yaml:"cascade_policy"`

	// DeferredConstraints collapses the two-phase entity-collection
	// cascade into a single transaction. Leave false for backends that
	// cannot defer foreign-key checks to the end of a batch.
	DeferredConstraints bool `json:"deferred_constraints" yaml:"deferred_constraints"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
)

// Cascade policies.
const (
	CascadeDelete   = "cascade"
	CascadeRestrict = "restrict"
)

// Config validation errors.
var (
	ErrBackendEmpty         = errors.New("backend must not be empty")
	ErrBackendUnknown       = errors.New("unknown backend")
	ErrCascadePolicyUnknown = errors.New("unknown cascade policy")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel
// error from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	switch c.CascadePolicy {
	case "", CascadeDelete, CascadeRestrict:
	default:
		return ErrCascadePolicyUnknown
	}
	return nil
}

// EffectiveCascadePolicy returns CascadePolicy with the default applied.
func (c Config) EffectiveCascadePolicy() string {
	if c.CascadePolicy == "" {
		return CascadeDelete
	}
	return c.CascadePolicy
}
