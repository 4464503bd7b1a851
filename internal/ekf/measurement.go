package ekf

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// correct applies one position update to the state and covariance. The
// observation is linear in the error state with constant Jacobian
// H = [I₃ 0₃ 0₃], so H·P·Hᵀ is just the position block of P:
//
//	r  = y − p
//	S  = P[0:3,0:3] + R,  R = noiseVar·I₃
//	K  = P·Hᵀ·S⁻¹
//	δx = K·r
//	p ← p+δp,  v ← v+δv,  q ← Δq(δθ) ⊗ q
//	P ← (I−KH)·P·(I−KH)ᵀ + K·R·Kᵀ   (Joseph form)
//
// A degenerate R or singular S fails with ErrSingularInnovation before any
// state is touched, so the caller can skip the update and keep the last good
// estimate.
func correct(s *State, p *mat.Dense, y r3.Vec, noiseVar float64) error {
	if noiseVar <= 0 {
		return fmt.Errorf("%w: measurement variance %.6g", ErrSingularInnovation, noiseVar)
	}

	// S = H·P·Hᵀ + R, 3x3.
	sMat := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			sMat.Set(i, j, p.At(i, j))
		}
		sMat.Set(i, i, sMat.At(i, i)+noiseVar)
	}

	var sInv mat.Dense
	if err := sInv.Inverse(sMat); err != nil {
		return fmt.Errorf("%w: %v", ErrSingularInnovation, err)
	}

	// K = P·Hᵀ·S⁻¹, 9x3. P·Hᵀ is the first three columns of P.
	pht := mat.NewDense(StateDim, 3, nil)
	for i := 0; i < StateDim; i++ {
		for j := 0; j < 3; j++ {
			pht.Set(i, j, p.At(i, j))
		}
	}
	var k mat.Dense
	k.Mul(pht, &sInv)

	// δx = K·r.
	res := mat.NewVecDense(3, []float64{y.X - s.Pos.X, y.Y - s.Pos.Y, y.Z - s.Pos.Z})
	var dx mat.VecDense
	dx.MulVec(&k, res)

	s.Pos = r3.Add(s.Pos, r3.Vec{X: dx.AtVec(0), Y: dx.AtVec(1), Z: dx.AtVec(2)})
	s.Vel = r3.Add(s.Vel, r3.Vec{X: dx.AtVec(3), Y: dx.AtVec(4), Z: dx.AtVec(5)})
	dq := QuatFromRotationVector(r3.Vec{X: dx.AtVec(6), Y: dx.AtVec(7), Z: dx.AtVec(8)})
	s.Quat = NormalizeQuat(quat.Mul(dq, s.Quat))

	// I − K·H: K·H has K in its first three columns and zeros elsewhere.
	ikh := identity(StateDim)
	for i := 0; i < StateDim; i++ {
		for j := 0; j < 3; j++ {
			ikh.Set(i, j, ikh.At(i, j)-k.At(i, j))
		}
	}

	// Joseph form keeps the result symmetric positive semi-definite even
	// when K is slightly off from the optimal gain.
	var ikhp, joseph, krk mat.Dense
	ikhp.Mul(ikh, p)
	joseph.Mul(&ikhp, ikh.T())
	krk.Mul(&k, k.T())
	krk.Scale(noiseVar, &krk)
	joseph.Add(&joseph, &krk)
	p.CloneFrom(&joseph)
	symmetrize(p)

	return nil
}
