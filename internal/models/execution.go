package models

import "slices"

// ExecutionStatus is the tag of an execution Outcome.
type ExecutionStatus string

const (
	StatusSuccess          ExecutionStatus = "success"
	StatusTimedOut         ExecutionStatus = "timed_out"
	StatusRejectedByPolicy ExecutionStatus = "rejected_by_policy"
	StatusFailed           ExecutionStatus = "failed"
)

// Row is one result tuple. Values are driver scalars normalized at the
// execution boundary: nil, int64, float64, string, bool or time.Time.
type Row []any

// Outcome is the structured result of one guarded SQL execution.
type Outcome struct {
	Executed  bool            `json:"executed"`
	Success   bool            `json:"success"`
	Status    ExecutionStatus `json:"status"`
	ElapsedMs *float64        `json:"elapsed_ms"`
	Results   []Row           `json:"results"`
	Error     string          `json:"error,omitempty"`
}

// Elapsed returns the elapsed time and whether it was recorded.
func (o *Outcome) Elapsed() (float64, bool) {
	if o == nil || o.ElapsedMs == nil {
		return 0, false
	}
	return *o.ElapsedMs, true
}

// Clone returns a deep copy of o; rows share no backing arrays with o.
func (o *Outcome) Clone() *Outcome {
	if o == nil {
		return nil
	}
	c := *o
	if o.ElapsedMs != nil {
		ms := *o.ElapsedMs
		c.ElapsedMs = &ms
	}
	if o.Results != nil {
		c.Results = make([]Row, len(o.Results))
		for i, r := range o.Results {
			c.Results[i] = slices.Clone(r)
		}
	}
	return &c
}

// Succeeded is nil-safe shorthand for o.Success.
func (o *Outcome) Succeeded() bool {
	return o != nil && o.Success
}
