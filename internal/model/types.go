package model

import "math"

// DeviceID identifies one device. IDs are stable and unique for the
// lifetime of a net.
type DeviceID uint32

// Time is a simulated timestamp, in arbitrary time units.
type Time = float64

// Trace fingerprints a point in the static call tree of an aggregate
// program. Two devices cooperate on a sub-expression iff they agree on
// its trace.
type Trace uint64

// TraceRoot is the trace of the outermost round frame.
const TraceRoot Trace = 0

// TimeNever sorts after every schedulable event.
var TimeNever = math.Inf(1)

// Row is one logged data line: the aggregate view of the whole
// population at a given simulated time. Values follow the order of the
// run's declared columns.
type Row struct {
	Time   Time      `json:"time"`
	Values []float64 `json:"values"`
}

// RunRecord captures the identity and parameters of one net run for
// the run-history store.
type RunRecord struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Seed       int64             `json:"seed"`
	Columns    []string          `json:"columns"`
	Parameters map[string]string `json:"parameters,omitempty"`
	StartedAt  string            `json:"started_at"`
	FinishedAt string            `json:"finished_at,omitempty"`
}
