package simulate

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/trajectory.report/internal/ekf"
	"github.com/banshee-data/trajectory.report/internal/monitoring"
)

// StepEstimate is the filter output captured after one prediction step.
type StepEstimate struct {
	Time   float64
	State  ekf.State
	PosStd [3]float64 // 1σ position uncertainty per axis
}

// RunResult is the outcome of driving a filter over an event stream.
type RunResult struct {
	Estimates []StepEstimate
	FinalCov  *mat.Dense

	// SkippedUpdates counts measurements dropped because their innovation
	// covariance was singular. The filter preserves its last good state
	// across each skip.
	SkippedUpdates int
}

// Run drives the filter over a merged, time-ordered event stream. Every IMU
// event triggers a prediction and records an estimate; every position event
// triggers a correction. Ill-conditioned updates are skipped and counted
// rather than aborting the run; any other filter error stops it.
func Run(f *ekf.Filter, events []Event) (*RunResult, error) {
	result := &RunResult{Estimates: make([]StepEstimate, 0, len(events))}

	for _, ev := range events {
		switch ev.Kind {
		case EventIMU:
			if err := f.Predict(ev.IMU); err != nil {
				return nil, fmt.Errorf("predict at t=%.6f: %w", ev.Time, err)
			}
			state, cov := f.Estimate()
			result.Estimates = append(result.Estimates, StepEstimate{
				Time:  ev.Time,
				State: state,
				PosStd: [3]float64{
					math.Sqrt(cov.At(0, 0)),
					math.Sqrt(cov.At(1, 1)),
					math.Sqrt(cov.At(2, 2)),
				},
			})
		case EventGNSS, EventLidar:
			err := f.Update(ev.Meas)
			if errors.Is(err, ekf.ErrSingularInnovation) {
				result.SkippedUpdates++
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("%s update at t=%.6f: %w", ev.Kind, ev.Time, err)
			}
		default:
			return nil, fmt.Errorf("unhandled event kind %d at t=%.6f", ev.Kind, ev.Time)
		}
	}

	_, result.FinalCov = f.Estimate()
	if result.SkippedUpdates > 0 {
		monitoring.Logf("[Run] %d updates skipped on singular innovation covariance", result.SkippedUpdates)
	}
	return result, nil
}
