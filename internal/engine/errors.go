package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors returned across the engine boundary. Callers branch with
// errors.Is / errors.As to pick log severity: not-found is expected and
// benign, everything else is anomalous to some degree.
var (
	// ErrNotFound means the experiment or dynamic config name is unknown
	// to the engine's current snapshot.
	ErrNotFound = errors.New("engine: feature not found")

	// ErrTypeMismatch means a dynamic config's stored value type disagrees
	// with the requested accessor type.
	ErrTypeMismatch = errors.New("engine: value type mismatch")

	// ErrUnavailable means there is no usable engine handle (config blob
	// never loaded, or the remote engine is unreachable).
	ErrUnavailable = errors.New("engine: unavailable")
)

// BucketMismatchError reports that the identifier type supplied by the
// caller does not match the experiment's configured bucketing field. The
// call must not silently bucket on the wrong field, so the engine refuses
// with this error and the client returns no variant.
type BucketMismatchError struct {
	// Requested is the identifier type the caller supplied.
	Requested string
	// Configured is the experiment's bucket_val.
	Configured string
}

func (e *BucketMismatchError) Error() string {
	return fmt.Sprintf("engine: bucketing field mismatch: requested %q, experiment buckets on %q",
		e.Requested, e.Configured)
}

// IsNotFound reports whether err is the benign unknown-name case.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
