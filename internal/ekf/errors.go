package ekf

import "errors"

// Sentinel errors for the filter core. Callers match with errors.Is; every
// return site wraps these with call context via fmt.Errorf and %w.
var (
	// ErrInvalidRotation indicates a degenerate rotation construction, such
	// as a zero-length axis or a matrix that is not a proper rotation.
	ErrInvalidRotation = errors.New("ekf: invalid rotation input")

	// ErrNonMonotonicTime indicates a sample whose timestamp does not
	// advance the filter clock. This is a caller sequencing bug: sensor
	// streams must be merged in time order before reaching the filter.
	ErrNonMonotonicTime = errors.New("ekf: non-monotonic sample time")

	// ErrSingularInnovation indicates the innovation covariance S could not
	// be inverted. The update is skipped and the previous state and
	// covariance are preserved.
	ErrSingularInnovation = errors.New("ekf: singular innovation covariance")

	// ErrNotInitialized indicates Predict or Update was called before
	// Initialize.
	ErrNotInitialized = errors.New("ekf: filter not initialized")

	// ErrAlreadyInitialized indicates a second call to Initialize.
	ErrAlreadyInitialized = errors.New("ekf: filter already initialized")

	// ErrUnknownSensor indicates a position measurement with a sensor kind
	// the filter has no noise or calibration parameters for.
	ErrUnknownSensor = errors.New("ekf: unknown sensor kind")
)
