package rudo

import "github.com/pkg/errors"

// Sentinel errors for the recoverable failure paths. Allocation failure,
// invalid alignment, and zero-sized cyclic construction are not here:
// those are aborts (panics), not results, because there is no sensible
// recovery path once the type system has let them through.
var (
	// ErrWrongWorker is returned by (GcHandle[T]).Resolve/TryResolve and
	// (WeakCrossThreadHandle[T]).Resolve/TryResolve when called from a
	// worker other than the handle's origin.
	ErrWrongWorker = errors.New("rudo: cross-thread handle resolved from non-origin worker")

	// ErrDead is returned by (GcHandle[T]).Resolve and
	// (WeakCrossThreadHandle[T]).Resolve once the handle itself has been
	// dropped. Weak.Upgrade reports a dead target with a false result
	// instead.
	ErrDead = errors.New("rudo: weak reference target is dead")
)

// wrapf wraps err with a formatted message using pkg/errors, preserving a
// stack trace for the recoverable-error paths that propagate to callers
// instead of aborting.
func wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}
