package ekf

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// StateDim is the dimension of the error state (δp, δv, δθ). The nominal
// state carries a 4-component quaternion, so it has one more component than
// the error state the covariance is expressed over.
const StateDim = 9

// State is the nominal filter state: position and velocity in the reference
// frame, orientation as a unit quaternion rotating body-frame vectors into
// the reference frame.
type State struct {
	Pos  r3.Vec
	Vel  r3.Vec
	Quat quat.Number
}

// Euler returns the orientation as intrinsic roll-pitch-yaw angles in
// radians.
func (s State) Euler() (roll, pitch, yaw float64) {
	return EulerFromQuat(s.Quat)
}

// Sensor identifies the source of a position measurement.
type Sensor string

const (
	// SensorGNSS is the global-position receiver. Fixes are already
	// expressed in the reference frame.
	SensorGNSS Sensor = "gnss"
	// SensorLidar is the scan-matching position output of the lidar
	// pipeline, expressed in the lidar frame until extrinsics are applied.
	SensorLidar Sensor = "lidar"
)

// IMUSample is one inertial reading: specific force and angular rate in the
// body frame, timestamped in seconds.
type IMUSample struct {
	Time          float64 // seconds
	SpecificForce r3.Vec  // m/s², body frame
	AngularRate   r3.Vec  // rad/s, body frame
}

// PositionMeasurement is one absolute-position observation from either
// sensor, timestamped in seconds.
type PositionMeasurement struct {
	Time     float64 // seconds
	Position r3.Vec
	Sensor   Sensor
}

// symmetrize replaces P with (P+Pᵀ)/2 in place, discarding the asymmetric
// float rounding that accumulates through the update products.
func symmetrize(p *mat.Dense) {
	r, _ := p.Dims()
	for i := 0; i < r; i++ {
		for j := i + 1; j < r; j++ {
			m := (p.At(i, j) + p.At(j, i)) / 2
			p.Set(i, j, m)
			p.Set(j, i, m)
		}
	}
}

// cloneDense returns an independent copy of m as a Dense matrix.
func cloneDense(m mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.CloneFrom(m)
	return &out
}
