package ekf

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/trajectory.report/internal/monitoring"
)

func init() {
	// Keep filter diagnostics out of test output.
	monitoring.SetLogger(nil)
}

// horizontalTestConfig disables gravity so planar scenarios integrate
// cleanly.
func horizontalTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Gravity = r3.Vec{}
	return cfg
}

func initializedFilter(t *testing.T, cfg Config) *Filter {
	t.Helper()
	f := New(cfg)
	state0 := State{Quat: quat.Number{Real: 1}}
	if err := f.Initialize(state0, diagCov(1e-4), 0); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return f
}

func TestFilter_UseBeforeInitialize(t *testing.T) {
	f := New(DefaultConfig())

	if err := f.Predict(IMUSample{Time: 1}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Predict: expected ErrNotInitialized, got %v", err)
	}
	if err := f.Update(PositionMeasurement{Time: 1, Sensor: SensorGNSS}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Update: expected ErrNotInitialized, got %v", err)
	}
	if f.Initialized() {
		t.Error("Initialized() should be false before Initialize")
	}
}

func TestFilter_DoubleInitialize(t *testing.T) {
	f := initializedFilter(t, DefaultConfig())
	err := f.Initialize(State{Quat: quat.Number{Real: 1}}, diagCov(1), 0)
	if !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestFilter_InitializeValidation(t *testing.T) {
	f := New(DefaultConfig())

	// Wrong covariance dimensions
	if err := f.Initialize(State{Quat: quat.Number{Real: 1}}, mat.NewDense(3, 3, nil), 0); err == nil {
		t.Error("expected dimension error, got nil")
	}

	// Non-unit orientation
	err := f.Initialize(State{Quat: quat.Number{Real: 2}}, diagCov(1), 0)
	if !errors.Is(err, ErrInvalidRotation) {
		t.Errorf("expected ErrInvalidRotation, got %v", err)
	}

	// Valid after the failed attempts
	if err := f.Initialize(State{Quat: quat.Number{Real: 1}}, diagCov(1), 0); err != nil {
		t.Errorf("valid Initialize failed: %v", err)
	}
}

func TestFilter_NonMonotonicTime(t *testing.T) {
	f := initializedFilter(t, horizontalTestConfig())

	if err := f.Predict(IMUSample{Time: 0.1}); err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	// Same timestamp again: clock must advance strictly for predictions.
	if err := f.Predict(IMUSample{Time: 0.1}); !errors.Is(err, ErrNonMonotonicTime) {
		t.Errorf("expected ErrNonMonotonicTime, got %v", err)
	}
	// Older measurement rejected; equal timestamp accepted.
	if err := f.Update(PositionMeasurement{Time: 0.05, Sensor: SensorGNSS}); !errors.Is(err, ErrNonMonotonicTime) {
		t.Errorf("expected ErrNonMonotonicTime, got %v", err)
	}
	if err := f.Update(PositionMeasurement{Time: 0.1, Sensor: SensorGNSS}); err != nil {
		t.Errorf("equal-timestamp update should succeed, got %v", err)
	}
}

func TestFilter_UnknownSensor(t *testing.T) {
	f := initializedFilter(t, DefaultConfig())
	err := f.Update(PositionMeasurement{Time: 0, Sensor: Sensor("sonar")})
	if !errors.Is(err, ErrUnknownSensor) {
		t.Errorf("expected ErrUnknownSensor, got %v", err)
	}
}

func TestFilter_StraightLineClosedForm(t *testing.T) {
	// Pure forward acceleration from rest: f=(1,0,0), ω=0, g=0, ten steps
	// of dt=0.1. The first-order scheme with the ½·a·dt² position term
	// gives exactly v = 1.0 and p = 0.45 + 0.05 = 0.5.
	f := initializedFilter(t, horizontalTestConfig())

	for k := 1; k <= 10; k++ {
		sample := IMUSample{Time: 0.1 * float64(k), SpecificForce: r3.Vec{X: 1}}
		if err := f.Predict(sample); err != nil {
			t.Fatalf("Predict %d failed: %v", k, err)
		}
	}

	state, _ := f.Estimate()
	if math.Abs(state.Vel.X-1.0) > 1e-12 || math.Abs(state.Vel.Y) > 1e-12 || math.Abs(state.Vel.Z) > 1e-12 {
		t.Errorf("vel = %v, want (1,0,0)", state.Vel)
	}
	if math.Abs(state.Pos.X-0.5) > 1e-12 || math.Abs(state.Pos.Y) > 1e-12 || math.Abs(state.Pos.Z) > 1e-12 {
		t.Errorf("pos = %v, want (0.5,0,0)", state.Pos)
	}
}

func TestFilter_UpdateMovesTowardMeasurement(t *testing.T) {
	// After the straight-line prediction run, a tight position fix behind
	// the estimate must pull the position strictly between prior and fix.
	cfg := horizontalTestConfig()
	cfg.GNSSVariance = 0.01
	f := initializedFilter(t, cfg)

	for k := 1; k <= 10; k++ {
		if err := f.Predict(IMUSample{Time: 0.1 * float64(k), SpecificForce: r3.Vec{X: 1}}); err != nil {
			t.Fatalf("Predict failed: %v", err)
		}
	}
	prior, _ := f.Estimate()

	fix := PositionMeasurement{Time: 1.0, Position: r3.Vec{X: 0.3}, Sensor: SensorGNSS}
	if err := f.Update(fix); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	state, _ := f.Estimate()
	if state.Pos.X <= fix.Position.X || state.Pos.X >= prior.Pos.X {
		t.Errorf("corrected p=%v not strictly between fix %v and prior %v",
			state.Pos.X, fix.Position.X, prior.Pos.X)
	}
}

func TestFilter_LidarExtrinsicsApplied(t *testing.T) {
	// The vehicle sits at a known reference position; the lidar reports it
	// in the lidar frame. The filter must calibrate the measurement before
	// using it, so the estimate converges to the reference position, not
	// the raw lidar coordinates.
	ext := NewExtrinsicsRPY(0.05, 0.05, 0.1, r3.Vec{X: 0.5, Y: 0.1, Z: 0.5})
	cfg := horizontalTestConfig()
	cfg.LidarVariance = 0.01
	cfg.LidarExtrinsics = ext

	f := New(cfg)
	if err := f.Initialize(State{Quat: quat.Number{Real: 1}}, diagCov(100), 0); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	truth := r3.Vec{X: 12, Y: -3, Z: 1.5}
	inv := ext.Invert()
	for k := 1; k <= 20; k++ {
		ts := 0.1 * float64(k)
		if err := f.Predict(IMUSample{Time: ts}); err != nil {
			t.Fatalf("Predict failed: %v", err)
		}
		m := PositionMeasurement{Time: ts, Position: inv.Apply(truth), Sensor: SensorLidar}
		if err := f.Update(m); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	state, _ := f.Estimate()
	if !vecApproxEqual(state.Pos, truth, 0.05) {
		t.Errorf("estimate %v did not converge to %v", state.Pos, truth)
	}
}

func TestFilter_DropoutRobustness(t *testing.T) {
	// A long predict-only run must stay finite: error growth is bounded by
	// the accumulated process noise, never NaN/Inf.
	f := initializedFilter(t, horizontalTestConfig())

	sample := IMUSample{SpecificForce: r3.Vec{X: 0.1, Y: -0.05}, AngularRate: r3.Vec{Z: 0.01}}
	var prevPosVar float64
	for k := 1; k <= 1000; k++ {
		sample.Time = 0.01 * float64(k)
		if err := f.Predict(sample); err != nil {
			t.Fatalf("Predict %d failed: %v", k, err)
		}

		state, cov := f.Estimate()
		for _, v := range []float64{state.Pos.X, state.Pos.Y, state.Pos.Z, state.Vel.X, state.Vel.Y, state.Vel.Z} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("state diverged at step %d: %+v", k, state)
			}
		}
		posVar := cov.At(0, 0) + cov.At(1, 1) + cov.At(2, 2)
		if posVar < prevPosVar {
			t.Fatalf("position uncertainty shrank without a measurement at step %d", k)
		}
		prevPosVar = posVar
	}

	state, _ := f.Estimate()
	if math.Abs(quat.Abs(state.Quat)-1) > 1e-9 {
		t.Error("quaternion norm drifted during dropout")
	}
}

func TestFilter_MixedSequenceInvariants(t *testing.T) {
	// Interleaved predictions and updates from both sensors: the unit-norm
	// and covariance invariants must hold throughout.
	ext := NewExtrinsicsRPY(0.05, 0.05, 0.1, r3.Vec{X: 0.5, Y: 0.1, Z: 0.5})
	cfg := DefaultConfig()
	cfg.LidarExtrinsics = ext

	f := New(cfg)
	if err := f.Initialize(State{Quat: QuatFromEuler(0.02, -0.01, 0.3)}, diagCov(1), 0); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	sample := IMUSample{
		SpecificForce: r3.Vec{X: 0.5, Y: 0.2, Z: 9.8},
		AngularRate:   r3.Vec{X: 0.01, Y: 0.02, Z: 0.1},
	}
	for k := 1; k <= 200; k++ {
		ts := 0.01 * float64(k)
		sample.Time = ts
		if err := f.Predict(sample); err != nil {
			t.Fatalf("Predict failed: %v", err)
		}
		if k%10 == 0 {
			m := PositionMeasurement{Time: ts, Position: r3.Vec{X: float64(k) * 0.01}, Sensor: SensorGNSS}
			if err := f.Update(m); err != nil {
				t.Fatalf("GNSS update failed: %v", err)
			}
		}
		if k%25 == 0 {
			m := PositionMeasurement{Time: ts, Position: r3.Vec{Y: 0.5}, Sensor: SensorLidar}
			if err := f.Update(m); err != nil {
				t.Fatalf("lidar update failed: %v", err)
			}
		}

		state, cov := f.Estimate()
		if math.Abs(quat.Abs(state.Quat)-1) > 1e-9 {
			t.Fatalf("quaternion norm %v at step %d", quat.Abs(state.Quat), k)
		}
		for i := 0; i < StateDim; i++ {
			for j := 0; j < StateDim; j++ {
				if cov.At(i, j) != cov.At(j, i) {
					t.Fatalf("covariance asymmetric at step %d (%d,%d)", k, i, j)
				}
			}
		}
	}
}

func TestFilter_EstimateSnapshotIsolation(t *testing.T) {
	f := initializedFilter(t, DefaultConfig())

	_, cov := f.Estimate()
	cov.Set(0, 0, 1e12)

	_, cov2 := f.Estimate()
	if cov2.At(0, 0) == 1e12 {
		t.Error("Estimate returned aliased covariance memory")
	}
}

func TestFilter_SkippedUpdatePreservesState(t *testing.T) {
	// A degenerate measurement noise must surface as a typed error and
	// leave the last good state intact.
	cfg := horizontalTestConfig()
	cfg.GNSSVariance = 0 // degenerate by construction
	f := initializedFilter(t, cfg)

	if err := f.Predict(IMUSample{Time: 0.1, SpecificForce: r3.Vec{X: 1}}); err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	before, covBefore := f.Estimate()

	err := f.Update(PositionMeasurement{Time: 0.1, Position: r3.Vec{X: 99}, Sensor: SensorGNSS})
	if !errors.Is(err, ErrSingularInnovation) {
		t.Fatalf("expected ErrSingularInnovation, got %v", err)
	}

	after, covAfter := f.Estimate()
	if after != before {
		t.Errorf("state changed by skipped update: %+v -> %+v", before, after)
	}
	if !mat.EqualApprox(covBefore, covAfter, 0) {
		t.Error("covariance changed by skipped update")
	}

	// The filter keeps working after the skip.
	if err := f.Predict(IMUSample{Time: 0.2, SpecificForce: r3.Vec{X: 1}}); err != nil {
		t.Errorf("Predict after skipped update failed: %v", err)
	}
}
