package dispatch

import "time"

// Failure is a job that was attempted and failed.
type Failure struct {
	JobID string `json:"job_id"`
	Error string `json:"error"`
}

// Result aggregates one ProcessBatch run.
type Result struct {
	Successful     []string      `json:"successful"`
	Failed         []Failure     `json:"failed"`
	// Jobs claimed by the run but returned to the queue unsent after the run
	// was cancelled.
	Unclaimed      []string      `json:"unclaimed,omitempty"`
	TotalProcessed int           `json:"total_processed"`
	Duration       time.Duration `json:"duration"`
}

// DurationMs is the run duration in milliseconds.
func (r *Result) DurationMs() int64 {
	return r.Duration.Milliseconds()
}

// Throughput returns processed jobs per second.
func (r *Result) Throughput() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.TotalProcessed) / r.Duration.Seconds()
}
