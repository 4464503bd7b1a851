package simulate

import (
	"sort"

	"github.com/banshee-data/trajectory.report/internal/ekf"
)

// EventKind identifies the sensor stream an event came from. The numeric
// order is the tie-break order at equal timestamps: the IMU prediction
// consumes the interval up to t before any same-timestamp correction, and
// GNSS corrections are processed before lidar corrections.
type EventKind int

const (
	EventIMU EventKind = iota
	EventGNSS
	EventLidar
)

// String returns the stream name for reports and logs.
func (k EventKind) String() string {
	switch k {
	case EventIMU:
		return "imu"
	case EventGNSS:
		return "gnss"
	case EventLidar:
		return "lidar"
	}
	return "unknown"
}

// Event is one timestamped sensor reading. IMU holds the sample for
// EventIMU; Meas holds the measurement for the position kinds.
type Event struct {
	Kind EventKind
	Time float64
	IMU  ekf.IMUSample
	Meas ekf.PositionMeasurement
}

// MergeEvents merges per-sensor streams into a single time-ordered
// sequence suitable for feeding the filter. Ordering is by timestamp with
// the EventKind tie-break at equal timestamps; the sort is stable, so
// samples within one stream keep their original order.
func MergeEvents(streams ...[]Event) []Event {
	var total int
	for _, s := range streams {
		total += len(s)
	}
	merged := make([]Event, 0, total)
	for _, s := range streams {
		merged = append(merged, s...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Time != merged[j].Time {
			return merged[i].Time < merged[j].Time
		}
		return merged[i].Kind < merged[j].Kind
	})
	return merged
}
