package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEmptyFilterConfig_Defaults(t *testing.T) {
	cfg := EmptyFilterConfig()

	// All fields nil; getters supply the reference tuning.
	if cfg.GetAccelNoiseDensity() != 0.01 {
		t.Errorf("GetAccelNoiseDensity() = %f, want 0.01", cfg.GetAccelNoiseDensity())
	}
	if cfg.GetGyroNoiseDensity() != 0.01 {
		t.Errorf("GetGyroNoiseDensity() = %f, want 0.01", cfg.GetGyroNoiseDensity())
	}
	if cfg.GetGNSSVariance() != 10.0 {
		t.Errorf("GetGNSSVariance() = %f, want 10.0", cfg.GetGNSSVariance())
	}
	if cfg.GetLidarVariance() != 1.0 {
		t.Errorf("GetLidarVariance() = %f, want 1.0", cfg.GetLidarVariance())
	}
	if g := cfg.GetGravity(); g != [3]float64{0, 0, -9.81} {
		t.Errorf("GetGravity() = %v, want [0 0 -9.81]", g)
	}
	if rpy := cfg.GetLidarRotationRPY(); rpy != [3]float64{0.05, 0.05, 0.1} {
		t.Errorf("GetLidarRotationRPY() = %v, want [0.05 0.05 0.1]", rpy)
	}
	if tr := cfg.GetLidarTranslation(); tr != [3]float64{0.5, 0.1, 0.5} {
		t.Errorf("GetLidarTranslation() = %v, want [0.5 0.1 0.5]", tr)
	}
	if _, ok := cfg.GetLidarRotationMatrix(); ok {
		t.Error("GetLidarRotationMatrix() should report absent on empty config")
	}
}

func TestLoadFilterConfig_Partial(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partial.json")
	content := `{"gnss_variance": 2.5, "lidar_translation": [1.0, 0.0, 0.25]}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := LoadFilterConfig(path)
	if err != nil {
		t.Fatalf("LoadFilterConfig failed: %v", err)
	}

	// Overridden fields
	if cfg.GetGNSSVariance() != 2.5 {
		t.Errorf("GetGNSSVariance() = %f, want 2.5", cfg.GetGNSSVariance())
	}
	if tr := cfg.GetLidarTranslation(); tr != [3]float64{1.0, 0.0, 0.25} {
		t.Errorf("GetLidarTranslation() = %v, want [1 0 0.25]", tr)
	}

	// Untouched fields keep defaults
	if cfg.GetLidarVariance() != 1.0 {
		t.Errorf("GetLidarVariance() = %f, want default 1.0", cfg.GetLidarVariance())
	}
}

func TestLoadFilterConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "full.json")
	content := `{
		"accel_noise_density": 0.02,
		"gyro_noise_density": 0.005,
		"gnss_variance": 4.0,
		"lidar_variance": 0.5,
		"gravity": [0.0, 0.0, -9.80665],
		"lidar_rotation_rpy": [0.01, -0.02, 0.03],
		"lidar_translation": [0.4, 0.1, 0.3]
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	got, err := LoadFilterConfig(path)
	if err != nil {
		t.Fatalf("LoadFilterConfig failed: %v", err)
	}

	want := &FilterConfig{
		AccelNoiseDensity: ptrFloat64(0.02),
		GyroNoiseDensity:  ptrFloat64(0.005),
		GNSSVariance:      ptrFloat64(4.0),
		LidarVariance:     ptrFloat64(0.5),
		Gravity:           &[3]float64{0, 0, -9.80665},
		LidarRotationRPY:  &[3]float64{0.01, -0.02, 0.03},
		LidarTranslation:  &[3]float64{0.4, 0.1, 0.3},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFilterConfig_Invalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"negative accel noise", "a.json", `{"accel_noise_density": -0.1}`},
		{"negative gyro noise", "b.json", `{"gyro_noise_density": -1}`},
		{"zero gnss variance", "c.json", `{"gnss_variance": 0}`},
		{"negative lidar variance", "d.json", `{"lidar_variance": -2}`},
		{"malformed json", "e.json", `{"gnss_variance": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("write temp config: %v", err)
			}
			if _, err := LoadFilterConfig(path); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoadFilterConfig_RejectsNonJSONExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	if _, err := LoadFilterConfig(path); err == nil {
		t.Error("expected extension error, got nil")
	}
}

func TestMustLoadDefaultConfig_MatchesReferenceTuning(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	// The checked-in defaults file must agree with the getter fallbacks, so
	// a missing file and the canonical file behave identically.
	if cfg.GetAccelNoiseDensity() != 0.01 || cfg.GetGyroNoiseDensity() != 0.01 {
		t.Errorf("process noise = %f/%f, want 0.01/0.01",
			cfg.GetAccelNoiseDensity(), cfg.GetGyroNoiseDensity())
	}
	if cfg.GetGNSSVariance() != 10.0 || cfg.GetLidarVariance() != 1.0 {
		t.Errorf("measurement noise = %f/%f, want 10/1",
			cfg.GetGNSSVariance(), cfg.GetLidarVariance())
	}
	if g := cfg.GetGravity(); g != [3]float64{0, 0, -9.81} {
		t.Errorf("gravity = %v, want [0 0 -9.81]", g)
	}
	if rpy := cfg.GetLidarRotationRPY(); rpy != [3]float64{0.05, 0.05, 0.1} {
		t.Errorf("lidar RPY = %v, want [0.05 0.05 0.1]", rpy)
	}
	if tr := cfg.GetLidarTranslation(); tr != [3]float64{0.5, 0.1, 0.5} {
		t.Errorf("lidar translation = %v, want [0.5 0.1 0.5]", tr)
	}
}

func TestLoadFilterConfig_MissingFile(t *testing.T) {
	if _, err := LoadFilterConfig("does/not/exist.json"); err == nil {
		t.Error("expected stat error, got nil")
	}
}

func ptrFloat64(v float64) *float64 { return &v }
