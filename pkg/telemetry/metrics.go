package telemetry

import "time"

// Namespace prefixes every metric the module registers.
const Namespace = "datagate"

// DurationBuckets are the histogram buckets, in milliseconds, shared by query and
// remote call durations.
var DurationBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000}

// Milliseconds returns the time elapsed since start in milliseconds.
func Milliseconds(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
