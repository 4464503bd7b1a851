package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical filter tuning defaults
// file. This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/filter.defaults.json"

// FilterConfig represents the tuning parameters for the trajectory filter:
// process noise densities, per-sensor measurement variances, gravity, and
// the lidar extrinsic calibration. Fields are pointers so partial JSON
// configs are safe; the Get* methods supply defaults for anything unset.
type FilterConfig struct {
	// Process noise (σ²) injected per prediction step
	AccelNoiseDensity *float64 `json:"accel_noise_density,omitempty"`
	GyroNoiseDensity  *float64 `json:"gyro_noise_density,omitempty"`

	// Measurement noise (σ², m²) per sensor kind
	GNSSVariance  *float64 `json:"gnss_variance,omitempty"`
	LidarVariance *float64 `json:"lidar_variance,omitempty"`

	// Reference-frame gravity vector (m/s²)
	Gravity *[3]float64 `json:"gravity,omitempty"`

	// Lidar extrinsics: rotation as roll/pitch/yaw radians or a full 3x3
	// row-major matrix (the matrix wins when both are set), plus a
	// translation in the reference frame.
	LidarRotationRPY    *[3]float64 `json:"lidar_rotation_rpy,omitempty"`
	LidarRotationMatrix *[9]float64 `json:"lidar_rotation_matrix,omitempty"`
	LidarTranslation    *[3]float64 `json:"lidar_translation,omitempty"`
}

// EmptyFilterConfig returns a FilterConfig with all fields set to nil.
// Use LoadFilterConfig to load actual values from the defaults file.
func EmptyFilterConfig() *FilterConfig {
	return &FilterConfig{}
}

// LoadFilterConfig loads a FilterConfig from a JSON file. The file is
// validated to ensure it has a .json extension and is under the max file
// size. Fields omitted from the JSON retain their default values, so partial
// configs are safe.
func LoadFilterConfig(path string) (*FilterConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyFilterConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical filter defaults from
// DefaultConfigPath. It searches for the file in the current directory and
// common parent directories. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *FilterConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/ekf/ or internal/simulate/
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadFilterConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *FilterConfig) Validate() error {
	if c.AccelNoiseDensity != nil && *c.AccelNoiseDensity < 0 {
		return fmt.Errorf("accel_noise_density must be non-negative, got %f", *c.AccelNoiseDensity)
	}
	if c.GyroNoiseDensity != nil && *c.GyroNoiseDensity < 0 {
		return fmt.Errorf("gyro_noise_density must be non-negative, got %f", *c.GyroNoiseDensity)
	}
	if c.GNSSVariance != nil && *c.GNSSVariance <= 0 {
		return fmt.Errorf("gnss_variance must be positive, got %f", *c.GNSSVariance)
	}
	if c.LidarVariance != nil && *c.LidarVariance <= 0 {
		return fmt.Errorf("lidar_variance must be positive, got %f", *c.LidarVariance)
	}
	return nil
}

// GetAccelNoiseDensity returns the accel_noise_density value or the default.
func (c *FilterConfig) GetAccelNoiseDensity() float64 {
	if c.AccelNoiseDensity == nil {
		return 0.01 // default: reference tuning
	}
	return *c.AccelNoiseDensity
}

// GetGyroNoiseDensity returns the gyro_noise_density value or the default.
func (c *FilterConfig) GetGyroNoiseDensity() float64 {
	if c.GyroNoiseDensity == nil {
		return 0.01 // default: reference tuning
	}
	return *c.GyroNoiseDensity
}

// GetGNSSVariance returns the gnss_variance value or the default.
func (c *FilterConfig) GetGNSSVariance() float64 {
	if c.GNSSVariance == nil {
		return 10.0
	}
	return *c.GNSSVariance
}

// GetLidarVariance returns the lidar_variance value or the default.
func (c *FilterConfig) GetLidarVariance() float64 {
	if c.LidarVariance == nil {
		return 1.0
	}
	return *c.LidarVariance
}

// GetGravity returns the gravity vector or the default (0, 0, -9.81).
func (c *FilterConfig) GetGravity() [3]float64 {
	if c.Gravity == nil {
		return [3]float64{0, 0, -9.81}
	}
	return *c.Gravity
}

// GetLidarRotationRPY returns the lidar rotation as roll/pitch/yaw radians
// or the default survey calibration.
func (c *FilterConfig) GetLidarRotationRPY() [3]float64 {
	if c.LidarRotationRPY == nil {
		return [3]float64{0.05, 0.05, 0.1}
	}
	return *c.LidarRotationRPY
}

// GetLidarRotationMatrix returns the explicit 3x3 row-major lidar rotation
// matrix and whether one was configured. When absent, callers fall back to
// GetLidarRotationRPY.
func (c *FilterConfig) GetLidarRotationMatrix() ([9]float64, bool) {
	if c.LidarRotationMatrix == nil {
		return [9]float64{}, false
	}
	return *c.LidarRotationMatrix, true
}

// GetLidarTranslation returns the lidar translation or the default survey
// calibration.
func (c *FilterConfig) GetLidarTranslation() [3]float64 {
	if c.LidarTranslation == nil {
		return [3]float64{0.5, 0.1, 0.5}
	}
	return *c.LidarTranslation
}
