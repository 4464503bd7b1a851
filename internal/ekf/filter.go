package ekf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/trajectory.report/internal/monitoring"
)

// Config holds the fixed filter parameters: process noise spectral
// densities, per-sensor measurement variances, gravity, and the lidar
// extrinsic calibration. Values are resolved once at construction and never
// change over the filter's lifetime.
type Config struct {
	AccelNoiseDensity float64 // accelerometer process noise (σ², (m/s²)²)
	GyroNoiseDensity  float64 // gyroscope process noise (σ², (rad/s)²)
	GNSSVariance      float64 // GNSS position measurement noise (σ², m²)
	LidarVariance     float64 // lidar position measurement noise (σ², m²)
	Gravity           r3.Vec  // reference-frame gravity (m/s²)

	// LidarExtrinsics reconciles the lidar frame with the reference frame.
	// nil means the lidar already reports in the reference frame.
	LidarExtrinsics *Extrinsics
}

// DefaultConfig returns the reference tuning for the filter.
func DefaultConfig() Config {
	return Config{
		AccelNoiseDensity: 0.01,
		GyroNoiseDensity:  0.01,
		GNSSVariance:      10.0,
		LidarVariance:     1.0,
		Gravity:           r3.Vec{Z: -9.81},
	}
}

// Filter is a 9-DOF error-state EKF over position, velocity, and
// orientation. It owns its state and covariance exclusively; samples are
// transient inputs consumed exactly once. Calls must be strictly ordered by
// increasing timestamp and must not run concurrently — merging and
// serializing multi-sensor streams is the caller's responsibility.
type Filter struct {
	cfg Config

	state       State
	cov         *mat.Dense // 9x9 error-state covariance
	clock       float64    // time of the last propagation, seconds
	initialized bool
}

// New creates an uninitialized filter with the given parameters.
func New(cfg Config) *Filter {
	return &Filter{cfg: cfg}
}

// Initialize sets the starting state, covariance, and filter clock. It must
// be called exactly once before any Predict or Update.
func (f *Filter) Initialize(state0 State, cov0 mat.Matrix, startTime float64) error {
	if f.initialized {
		return ErrAlreadyInitialized
	}
	r, c := cov0.Dims()
	if r != StateDim || c != StateDim {
		return fmt.Errorf("initial covariance must be %dx%d, got %dx%d", StateDim, StateDim, r, c)
	}
	if quatNorm := quat.Abs(state0.Quat); math.Abs(quatNorm-1) > 1e-6 {
		return fmt.Errorf("%w: initial orientation norm %.9f, want 1", ErrInvalidRotation, quatNorm)
	}
	f.state = state0
	f.state.Quat = NormalizeQuat(state0.Quat)
	f.cov = cloneDense(cov0)
	symmetrize(f.cov)
	f.clock = startTime
	f.initialized = true
	return nil
}

// Predict consumes one IMU sample and propagates the state and covariance
// to the sample's timestamp. Samples whose timestamp does not advance the
// filter clock fail with ErrNonMonotonicTime and are not consumed.
func (f *Filter) Predict(sample IMUSample) error {
	if !f.initialized {
		return ErrNotInitialized
	}
	dt := sample.Time - f.clock
	if dt <= 0 {
		return fmt.Errorf("%w: sample at t=%.6f does not advance clock t=%.6f", ErrNonMonotonicTime, sample.Time, f.clock)
	}
	if err := propagate(&f.state, f.cov, sample, dt, f.cfg.Gravity, f.cfg.AccelNoiseDensity, f.cfg.GyroNoiseDensity); err != nil {
		return err
	}
	f.clock = sample.Time
	return nil
}

// Update corrects the state with one absolute-position measurement. The
// measurement noise and frame calibration are selected by sensor kind;
// lidar positions are transformed into the reference frame first.
//
// A singular innovation covariance is reported as ErrSingularInnovation with
// the previous state and covariance preserved: the correct caller response
// is to skip the measurement and continue. Sensor dropout needs no handling
// at all — prediction alone keeps the estimate evolving across gaps.
func (f *Filter) Update(m PositionMeasurement) error {
	if !f.initialized {
		return ErrNotInitialized
	}
	if m.Time < f.clock {
		return fmt.Errorf("%w: measurement at t=%.6f behind clock t=%.6f", ErrNonMonotonicTime, m.Time, f.clock)
	}

	y := m.Position
	var noiseVar float64
	switch m.Sensor {
	case SensorGNSS:
		noiseVar = f.cfg.GNSSVariance
	case SensorLidar:
		noiseVar = f.cfg.LidarVariance
		if f.cfg.LidarExtrinsics != nil {
			y = f.cfg.LidarExtrinsics.Apply(y)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSensor, m.Sensor)
	}

	if err := correct(&f.state, f.cov, y, noiseVar); err != nil {
		monitoring.Logf("[Filter] Skipping %s update at t=%.6f: %v", m.Sensor, m.Time, err)
		return err
	}
	return nil
}

// Estimate returns a snapshot of the current state and covariance. The
// returned covariance is a copy; callers cannot alias filter-owned memory.
func (f *Filter) Estimate() (State, *mat.Dense) {
	return f.state, cloneDense(f.cov)
}

// Time returns the filter clock: the timestamp of the last propagation.
func (f *Filter) Time() float64 { return f.clock }

// Initialized reports whether Initialize has been called.
func (f *Filter) Initialized() bool { return f.initialized }
