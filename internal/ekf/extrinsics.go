package ekf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// extrinsicsValidationTolerance bounds how far the rotation part of an
// extrinsic calibration may deviate from a proper rotation (orthonormal,
// determinant +1).
const extrinsicsValidationTolerance = 0.01

// Extrinsics is a fixed rigid transform reconciling a sensor's native frame
// with the reference frame shared by the IMU and GNSS: y' = R·y + t. The
// calibration is supplied once at configuration time and never estimated
// online.
type Extrinsics struct {
	rotation    *mat.Dense // 3x3 proper rotation
	translation r3.Vec
}

// NewExtrinsics builds an extrinsic calibration from a 3x3 rotation matrix
// and a translation. The matrix must be a proper rigid rotation: orthonormal
// with determinant +1 within tolerance. Anything else fails with
// ErrInvalidRotation.
func NewExtrinsics(rotation mat.Matrix, translation r3.Vec) (*Extrinsics, error) {
	r, c := rotation.Dims()
	if r != 3 || c != 3 {
		return nil, fmt.Errorf("%w: extrinsic rotation must be 3x3, got %dx%d", ErrInvalidRotation, r, c)
	}
	if det := mat.Det(rotation); math.Abs(det-1) > extrinsicsValidationTolerance {
		return nil, fmt.Errorf("%w: extrinsic rotation determinant %.4f, want 1", ErrInvalidRotation, det)
	}
	// RᵀR must be identity for a rigid transform (no scale or shear).
	var rtr mat.Dense
	rtr.Mul(rotation.T(), rotation)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(rtr.At(i, j)-want) > extrinsicsValidationTolerance {
				return nil, fmt.Errorf("%w: extrinsic rotation is not orthonormal", ErrInvalidRotation)
			}
		}
	}
	return &Extrinsics{rotation: cloneDense(rotation), translation: translation}, nil
}

// NewExtrinsicsRPY builds an extrinsic calibration from intrinsic
// roll-pitch-yaw angles in radians and a translation.
func NewExtrinsicsRPY(roll, pitch, yaw float64, translation r3.Vec) *Extrinsics {
	return &Extrinsics{
		rotation:    RotationMatrixFromQuat(QuatFromEuler(roll, pitch, yaw)),
		translation: translation,
	}
}

// IdentityExtrinsics returns the identity calibration, for sensors already
// expressed in the reference frame.
func IdentityExtrinsics() *Extrinsics {
	return &Extrinsics{rotation: mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})}
}

// Apply transforms a sensor-frame position into the reference frame:
// y' = R·y + t.
func (e *Extrinsics) Apply(y r3.Vec) r3.Vec {
	m := e.rotation
	return r3.Vec{
		X: m.At(0, 0)*y.X + m.At(0, 1)*y.Y + m.At(0, 2)*y.Z + e.translation.X,
		Y: m.At(1, 0)*y.X + m.At(1, 1)*y.Y + m.At(1, 2)*y.Z + e.translation.Y,
		Z: m.At(2, 0)*y.X + m.At(2, 1)*y.Y + m.At(2, 2)*y.Z + e.translation.Z,
	}
}

// Invert returns the inverse calibration, mapping reference-frame positions
// back into the sensor frame: y = Rᵀ·(y' − t). The simulator uses this to
// emit sensor-frame measurements from reference-frame ground truth.
func (e *Extrinsics) Invert() *Extrinsics {
	rt := cloneDense(e.rotation.T())
	// −Rᵀ·t
	t := r3.Vec{
		X: -(rt.At(0, 0)*e.translation.X + rt.At(0, 1)*e.translation.Y + rt.At(0, 2)*e.translation.Z),
		Y: -(rt.At(1, 0)*e.translation.X + rt.At(1, 1)*e.translation.Y + rt.At(1, 2)*e.translation.Z),
		Z: -(rt.At(2, 0)*e.translation.X + rt.At(2, 1)*e.translation.Y + rt.At(2, 2)*e.translation.Z),
	}
	return &Extrinsics{rotation: rt, translation: t}
}

// Rotation returns a copy of the calibration rotation matrix.
func (e *Extrinsics) Rotation() *mat.Dense { return cloneDense(e.rotation) }

// Translation returns the calibration translation.
func (e *Extrinsics) Translation() r3.Vec { return e.translation }
