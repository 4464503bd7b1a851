package ekf

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/trajectory.report/internal/config"
)

// ConfigFromTuning resolves a tuning file into concrete filter parameters.
// An explicit lidar rotation matrix takes precedence over RPY angles; the
// matrix is validated as a proper rotation.
func ConfigFromTuning(tc *config.FilterConfig) (Config, error) {
	g := tc.GetGravity()
	tr := tc.GetLidarTranslation()
	translation := r3.Vec{X: tr[0], Y: tr[1], Z: tr[2]}

	var ext *Extrinsics
	if m, ok := tc.GetLidarRotationMatrix(); ok {
		e, err := NewExtrinsics(mat.NewDense(3, 3, m[:]), translation)
		if err != nil {
			return Config{}, fmt.Errorf("lidar_rotation_matrix: %w", err)
		}
		ext = e
	} else {
		rpy := tc.GetLidarRotationRPY()
		ext = NewExtrinsicsRPY(rpy[0], rpy[1], rpy[2], translation)
	}

	return Config{
		AccelNoiseDensity: tc.GetAccelNoiseDensity(),
		GyroNoiseDensity:  tc.GetGyroNoiseDensity(),
		GNSSVariance:      tc.GetGNSSVariance(),
		LidarVariance:     tc.GetLidarVariance(),
		Gravity:           r3.Vec{X: g[0], Y: g[1], Z: g[2]},
		LidarExtrinsics:   ext,
	}, nil
}
