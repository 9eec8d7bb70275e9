// Package engine defines the seam between the decider client and the
// external bucketing engine. The engine is a black box: it owns hashing,
// range assignment, and config-blob evaluation. This package only fixes
// the types and error taxonomy that cross the boundary.
package engine

// Decision is the raw result of bucketing one experiment for one context.
type Decision struct {
	// Variant is the chosen variant name. Empty means no variant was
	// assigned (the experiment excluded the context, or a holdout ate it).
	Variant string

	// FeatureID, FeatureVersion and FeatureName identify the experiment
	// the decision belongs to, as the engine saw it.
	FeatureID      int64
	FeatureVersion string
	FeatureName    string

	// Events are the raw exposure event strings this decision produced,
	// in the engine's delimiter-separated wire encoding. A child
	// experiment nested under a holdout may yield an event for the
	// holdout itself in addition to, or instead of, its own.
	Events []string

	// Err is set on entries of a ChooseAll batch whose evaluation failed.
	// A batch never aborts because of one bad experiment; the failure
	// travels inline so the caller can log which experiment broke.
	Err error
}

// Experiment is the immutable metadata of one experiment, resolved from
// the config blob. It is read-only; it changes only when the backing
// config snapshot is swapped.
type Experiment struct {
	ID      int64
	Name    string
	Version string

	// BucketVal is the canonical name of the context attribute this
	// experiment hashes on (e.g. "user_id").
	BucketVal string

	StartTs int64
	StopTs  int64
	Owner   string

	// EmitEvent reports whether exposure emission is enabled. Rollout-only
	// features set this false and must never emit analytic exposures.
	EmitEvent bool
}

// Dynamic config type tags as they appear in the config blob.
const (
	TypeBoolean = "boolean"
	TypeInteger = "integer"
	TypeFloat   = "float"
	TypeString  = "string"
	TypeMap     = "map"
)

// DynamicValue is one entry of a bulk dynamic-config enumeration.
type DynamicValue struct {
	// Type is the declared type tag: one of "boolean", "integer",
	// "float", "string", "map", or "" when the tag itself is missing.
	Type string

	// Value holds the evaluated value. Nil means evaluation failed or the
	// value is absent; callers substitute the type's zero value.
	Value any
}

// Engine is the decision-engine boundary.
//
// Context maps are flat string-keyed maps of scalars (plus the
// "other_fields" bag). Implementations must not retain or mutate them.
// Every method may return the typed errors declared in this package.
type Engine interface {
	// Choose buckets one experiment. A nil-variant outcome is a Decision
	// with an empty Variant, not an error.
	Choose(name string, ctx map[string]any) (Decision, error)

	// ChooseAll buckets every known experiment. When bucketingFieldFilter
	// is non-empty, only experiments whose bucket_val matches it are
	// evaluated. Per-experiment failures are reported inline via
	// Decision.Err; the returned error covers whole-batch failures only.
	ChooseAll(ctx map[string]any, bucketingFieldFilter string) (map[string]Decision, error)

	// Typed dynamic-config accessors. ErrTypeMismatch when the stored
	// value disagrees with the requested type.
	GetBool(name string, ctx map[string]any) (bool, error)
	GetInt(name string, ctx map[string]any) (int64, error)
	GetFloat(name string, ctx map[string]any) (float64, error)
	GetString(name string, ctx map[string]any) (string, error)
	GetMap(name string, ctx map[string]any) (map[string]any, error)

	// AllValues enumerates every active dynamic config. Entries that fail
	// evaluation are still present with a nil Value, never omitted.
	AllValues(ctx map[string]any) (map[string]DynamicValue, error)

	// GetExperiment resolves experiment metadata without bucketing.
	GetExperiment(name string) (Experiment, error)
}
