package ekf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Quaternion convention used throughout the filter: Hamilton, scalar-first
// (quat.Number.Real is the scalar part), right-handed. quat.Mul(a, b)
// composes rotations so that R(Mul(a, b)) = R(a)·R(b): b is applied to a
// vector first, then a. The motion model applies body-rate increments on the
// right (q ⊗ Δq), the measurement model applies error corrections on the
// left (Δq ⊗ q).

// minRotationNorm is the axis norm below which a rotation construction is
// considered degenerate.
const minRotationNorm = 1e-12

// QuatFromAngleAxis builds the unit quaternion rotating by angle radians
// about axis. The axis need not be normalized. A zero-length axis fails with
// ErrInvalidRotation.
func QuatFromAngleAxis(axis r3.Vec, angle float64) (quat.Number, error) {
	n := r3.Norm(axis)
	if n < minRotationNorm {
		return quat.Number{}, fmt.Errorf("%w: zero-length axis", ErrInvalidRotation)
	}
	s := math.Sin(angle/2) / n
	return quat.Number{
		Real: math.Cos(angle / 2),
		Imag: axis.X * s,
		Jmag: axis.Y * s,
		Kmag: axis.Z * s,
	}, nil
}

// QuatFromRotationVector builds the unit quaternion for a rotation vector
// whose direction is the axis and whose norm is the angle in radians. The
// zero vector maps to the identity rotation, so small-angle increments
// (gyro rates scaled by dt, error-state corrections) are always valid input.
func QuatFromRotationVector(v r3.Vec) quat.Number {
	angle := r3.Norm(v)
	if angle < minRotationNorm {
		// First-order expansion keeps the increment exact to within
		// float rounding for vanishing angles.
		return NormalizeQuat(quat.Number{Real: 1, Imag: v.X / 2, Jmag: v.Y / 2, Kmag: v.Z / 2})
	}
	s := math.Sin(angle/2) / angle
	return quat.Number{
		Real: math.Cos(angle / 2),
		Imag: v.X * s,
		Jmag: v.Y * s,
		Kmag: v.Z * s,
	}
}

// NormalizeQuat scales q to unit norm. The identity quaternion is returned
// for inputs with vanishing norm.
func NormalizeQuat(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n < minRotationNorm {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// RotateVec rotates v by the unit quaternion q, computing R(q)·v via the
// quaternion sandwich q v q*.
func RotateVec(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vec{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// RotationMatrixFromQuat returns the 3x3 rotation matrix for the unit
// quaternion q.
func RotationMatrixFromQuat(q quat.Number) *mat.Dense {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// QuatFromRotationMatrix recovers a unit quaternion from a 3x3 rotation
// matrix, branching on the largest diagonal term for numerical stability.
// The result is defined up to sign. Matrices that are not proper rotations
// (determinant far from +1, or wrong shape) fail with ErrInvalidRotation.
func QuatFromRotationMatrix(m mat.Matrix) (quat.Number, error) {
	r, c := m.Dims()
	if r != 3 || c != 3 {
		return quat.Number{}, fmt.Errorf("%w: rotation matrix must be 3x3, got %dx%d", ErrInvalidRotation, r, c)
	}
	if det := mat.Det(m); math.Abs(det-1) > 1e-6 {
		return quat.Number{}, fmt.Errorf("%w: determinant %.6f, want 1", ErrInvalidRotation, det)
	}

	m00, m01, m02 := m.At(0, 0), m.At(0, 1), m.At(0, 2)
	m10, m11, m12 := m.At(1, 0), m.At(1, 1), m.At(1, 2)
	m20, m21, m22 := m.At(2, 0), m.At(2, 1), m.At(2, 2)

	trace := m00 + m11 + m22
	var q quat.Number
	switch {
	case trace > 0:
		s := 2 * math.Sqrt(trace+1)
		q = quat.Number{
			Real: s / 4,
			Imag: (m21 - m12) / s,
			Jmag: (m02 - m20) / s,
			Kmag: (m10 - m01) / s,
		}
	case m00 > m11 && m00 > m22:
		s := 2 * math.Sqrt(1+m00-m11-m22)
		q = quat.Number{
			Real: (m21 - m12) / s,
			Imag: s / 4,
			Jmag: (m01 + m10) / s,
			Kmag: (m02 + m20) / s,
		}
	case m11 > m22:
		s := 2 * math.Sqrt(1+m11-m00-m22)
		q = quat.Number{
			Real: (m02 - m20) / s,
			Imag: (m01 + m10) / s,
			Jmag: s / 4,
			Kmag: (m12 + m21) / s,
		}
	default:
		s := 2 * math.Sqrt(1+m22-m00-m11)
		q = quat.Number{
			Real: (m10 - m01) / s,
			Imag: (m02 + m20) / s,
			Jmag: (m12 + m21) / s,
			Kmag: s / 4,
		}
	}
	return NormalizeQuat(q), nil
}

// QuatFromEuler builds the unit quaternion for intrinsic roll-pitch-yaw
// (XYZ) Euler angles in radians: R = Rz(yaw)·Ry(pitch)·Rx(roll).
func QuatFromEuler(roll, pitch, yaw float64) quat.Number {
	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
	cy, sy := math.Cos(yaw/2), math.Sin(yaw/2)
	return quat.Number{
		Real: cr*cp*cy + sr*sp*sy,
		Imag: sr*cp*cy - cr*sp*sy,
		Jmag: cr*sp*cy + sr*cp*sy,
		Kmag: cr*cp*sy - sr*sp*cy,
	}
}

// EulerFromQuat extracts intrinsic roll-pitch-yaw (XYZ) Euler angles in
// radians from a unit quaternion. Pitch is clamped to ±π/2 at the gimbal
// singularity.
func EulerFromQuat(q quat.Number) (roll, pitch, yaw float64) {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag

	roll = math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))

	sinPitch := 2 * (w*y - z*x)
	if math.Abs(sinPitch) >= 1 {
		pitch = math.Copysign(math.Pi/2, sinPitch)
	} else {
		pitch = math.Asin(sinPitch)
	}

	yaw = math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
	return roll, pitch, yaw
}

// Skew returns the 3x3 skew-symmetric cross-product matrix [v]× such that
// [v]×·u = v × u. Used to build the motion-model Jacobian.
func Skew(v r3.Vec) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	})
}
