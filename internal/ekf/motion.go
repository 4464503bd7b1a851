package ekf

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// propagate advances the nominal state and error-state covariance by one IMU
// interval. The specific force is rotated into the reference frame with the
// current orientation estimate, gravity is added, and the nominal state is
// integrated first order:
//
//	p ← p + v·dt + ½·a·dt²
//	v ← v + a·dt
//	q ← q ⊗ Δq(ω·dt)
//
// The covariance follows P ← F·P·Fᵀ + L·Q·Lᵀ with
//
//	F = I + [ 0  I·dt      0        ]
//	        [ 0  0   −skew(R·f)·dt  ]
//	        [ 0  0         0        ]
//
// and L·Q·Lᵀ injecting accelerometer noise into δv and gyro noise into δθ,
// each scaled by dt². No measurement is consulted here: prediction only
// propagates drift, which is why position updates are required to bound
// long-run error growth.
func propagate(s *State, p *mat.Dense, sample IMUSample, dt float64, gravity r3.Vec, accelVar, gyroVar float64) error {
	if dt <= 0 {
		return fmt.Errorf("%w: dt=%.9f", ErrNonMonotonicTime, dt)
	}

	// Specific force in the reference frame, before gravity.
	fRef := RotateVec(s.Quat, sample.SpecificForce)
	accel := r3.Add(fRef, gravity)

	s.Pos = r3.Add(s.Pos, r3.Add(r3.Scale(dt, s.Vel), r3.Scale(dt*dt/2, accel)))
	s.Vel = r3.Add(s.Vel, r3.Scale(dt, accel))
	s.Quat = NormalizeQuat(quatMulRight(s.Quat, r3.Scale(dt, sample.AngularRate)))

	// State-transition Jacobian F.
	f := identity(StateDim)
	for i := 0; i < 3; i++ {
		f.Set(i, 3+i, dt)
	}
	fSkew := Skew(fRef)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			f.Set(3+i, 6+j, -fSkew.At(i, j)*dt)
		}
	}

	// P ← F·P·Fᵀ
	var fp, fpf mat.Dense
	fp.Mul(f, p)
	fpf.Mul(&fp, f.T())
	p.CloneFrom(&fpf)

	// L·Q·Lᵀ is zero except on the δv and δθ diagonals: the 9x6 noise-input
	// Jacobian L maps the 6 IMU noise channels straight onto rows 3..8.
	qa := accelVar * dt * dt
	qw := gyroVar * dt * dt
	for i := 3; i < 6; i++ {
		p.Set(i, i, p.At(i, i)+qa)
	}
	for i := 6; i < 9; i++ {
		p.Set(i, i, p.At(i, i)+qw)
	}

	symmetrize(p)
	return nil
}

// quatMulRight applies a body-frame rotation increment on the right of q.
func quatMulRight(q quat.Number, rotVec r3.Vec) quat.Number {
	return quat.Mul(q, QuatFromRotationVector(rotVec))
}

// identity returns the n x n identity matrix.
func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
