package models

import "time"

// RunReport summarizes one invocation of a reconciliation pass.
type RunReport struct {
	RunID            string        `json:"runId"`
	Pass             string        `json:"pass"`
	TickTime         time.Time     `json:"tickTime"`
	Skipped          bool          `json:"skipped"`
	SkipReason       string        `json:"skipReason,omitempty"`
	Candidates       int           `json:"candidates"`
	Finalized        int           `json:"finalized"`
	Malformed        int           `json:"malformed"`
	ResourcesChecked int           `json:"resourcesChecked"`
	ResourcesWritten int           `json:"resourcesWritten"`
	Deferred         int           `json:"deferred,omitempty"`
	Error            string        `json:"error,omitempty"`
	Duration         time.Duration `json:"duration"`
	FinishedAt       time.Time     `json:"finishedAt"`
}

// Failed reports whether the invocation ended with an error.
func (r RunReport) Failed() bool {
	return r.Error != ""
}
