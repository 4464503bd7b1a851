// Package main provides an offline evaluation tool for the trajectory
// filter. It synthesizes a ground-truth scenario with noisy IMU, GNSS, and
// lidar streams, drives the filter over the merged stream, and reports
// accuracy statistics.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/google/uuid"

	"github.com/banshee-data/trajectory.report/internal/config"
	"github.com/banshee-data/trajectory.report/internal/ekf"
	"github.com/banshee-data/trajectory.report/internal/monitoring"
	"github.com/banshee-data/trajectory.report/internal/simulate"
	"github.com/banshee-data/trajectory.report/internal/version"
)

// Config holds the tool configuration.
type Config struct {
	TuningFile string
	Duration   float64
	IMURate    float64
	GNSSRate   float64
	LidarRate  float64
	Seed        int64
	OutputJSON  string
	Verbose     bool
	ShowVersion bool
}

// Report is the JSON output of one simulation run.
type Report struct {
	RunID     string           `json:"run_id"`
	Duration  float64          `json:"duration_secs"`
	IMURate   float64          `json:"imu_rate_hz"`
	GNSSRate  float64          `json:"gnss_rate_hz"`
	LidarRate float64          `json:"lidar_rate_hz"`
	Seed      int64            `json:"seed"`
	Summary   simulate.Summary `json:"summary"`
}

func main() {
	cfg := parseFlags()

	if cfg.ShowVersion {
		fmt.Printf("fusion-sim %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if !cfg.Verbose {
		monitoring.SetLogger(nil)
	}

	report, err := runSimulation(cfg)
	if err != nil {
		log.Fatalf("Simulation failed: %v", err)
	}

	printSummary(report)

	if cfg.OutputJSON != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal report: %v", err)
		}
		if err := os.WriteFile(cfg.OutputJSON, data, 0644); err != nil {
			log.Fatalf("Failed to write report: %v", err)
		}
		fmt.Printf("Report written to %s\n", cfg.OutputJSON)
	}
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.TuningFile, "config", "", "Filter tuning JSON (defaults to built-in tuning)")
	flag.Float64Var(&cfg.Duration, "duration", 60, "Scenario duration in seconds")
	flag.Float64Var(&cfg.IMURate, "imu-rate", 100, "IMU sample rate in Hz")
	flag.Float64Var(&cfg.GNSSRate, "gnss-rate", 1, "GNSS fix rate in Hz (0 disables)")
	flag.Float64Var(&cfg.LidarRate, "lidar-rate", 5, "Lidar fix rate in Hz (0 disables)")
	flag.Int64Var(&cfg.Seed, "seed", 1, "Noise seed for reproducible runs")
	flag.StringVar(&cfg.OutputJSON, "output", "", "Write the JSON report to this path")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Enable diagnostic logging")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Print version information and exit")
	flag.Parse()
	return cfg
}

func runSimulation(cfg Config) (*Report, error) {
	tuning := config.EmptyFilterConfig()
	if cfg.TuningFile != "" {
		loaded, err := config.LoadFilterConfig(cfg.TuningFile)
		if err != nil {
			return nil, fmt.Errorf("load tuning: %w", err)
		}
		tuning = loaded
	}

	filterCfg, err := ekf.ConfigFromTuning(tuning)
	if err != nil {
		return nil, fmt.Errorf("resolve tuning: %w", err)
	}

	scenarioCfg := simulate.DefaultScenarioConfig()
	scenarioCfg.Duration = cfg.Duration
	scenarioCfg.IMURate = cfg.IMURate
	scenarioCfg.GNSSRate = cfg.GNSSRate
	scenarioCfg.LidarRate = cfg.LidarRate
	scenarioCfg.Seed = cfg.Seed
	scenarioCfg.Gravity = filterCfg.Gravity
	scenarioCfg.LidarExtrinsics = filterCfg.LidarExtrinsics
	scenarioCfg.GNSSNoiseStd = sqrtOr(filterCfg.GNSSVariance, scenarioCfg.GNSSNoiseStd)
	scenarioCfg.LidarNoiseStd = sqrtOr(filterCfg.LidarVariance, scenarioCfg.LidarNoiseStd)

	sc := simulate.NewScenario(scenarioCfg)
	monitoring.Logf("[fusion-sim] Running scenario: %.0fs at %g Hz IMU, %g Hz GNSS, %g Hz lidar",
		cfg.Duration, cfg.IMURate, cfg.GNSSRate, cfg.LidarRate)

	_, summary, err := simulate.RunScenario(sc, filterCfg)
	if err != nil {
		return nil, err
	}

	return &Report{
		RunID:     fmt.Sprintf("run_%s", uuid.NewString()),
		Duration:  cfg.Duration,
		IMURate:   cfg.IMURate,
		GNSSRate:  cfg.GNSSRate,
		LidarRate: cfg.LidarRate,
		Seed:      cfg.Seed,
		Summary:   summary,
	}, nil
}

func printSummary(r *Report) {
	fmt.Printf("Run %s: %d steps over %.1fs\n", r.RunID, r.Summary.Steps, r.Summary.DurationSecs)
	fmt.Printf("  Position RMSE: %.3f m (p50 %.3f, p95 %.3f, max %.3f)\n",
		r.Summary.PositionRMSE, r.Summary.PositionErrP50, r.Summary.PositionErrP95, r.Summary.PositionErrMax)
	fmt.Printf("  Velocity RMSE: %.3f m/s\n", r.Summary.VelocityRMSE)
	fmt.Printf("  Final 3-sigma bounds: [%.3f %.3f %.3f] m\n",
		r.Summary.Final3Sigma[0], r.Summary.Final3Sigma[1], r.Summary.Final3Sigma[2])
	if r.Summary.SkippedUpdates > 0 {
		fmt.Printf("  Skipped updates: %d\n", r.Summary.SkippedUpdates)
	}
}

func sqrtOr(variance, fallback float64) float64 {
	if variance > 0 {
		return math.Sqrt(variance)
	}
	return fallback
}
