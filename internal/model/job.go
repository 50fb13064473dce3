package model

import "time"

// JobStatus is a job's position in the lifecycle state machine.
type JobStatus string

const (
	JobQueued         JobStatus = "queued"
	JobRunning        JobStatus = "running"
	JobReadyForReview JobStatus = "ready_for_review"
	JobFailed         JobStatus = "failed"
	JobApproved       JobStatus = "approved"
	JobDenied         JobStatus = "denied"
)

// Terminal reports whether no further transitions exist from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobFailed, JobApproved, JobDenied:
		return true
	}
	return false
}

// Job wraps one pipeline run as an asynchronous unit of work with a human
// review gate. Mutated only by its owning orchestration task and by
// review-gate calls.
type Job struct {
	ID         string       `json:"id"`
	Status     JobStatus    `json:"status"`
	Input      RunInput     `json:"input"`
	Output     *PipelineRun `json:"output,omitempty"`
	Error      string       `json:"error,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
	Reviewer   string       `json:"reviewer,omitempty"`
	ApprovedAt *time.Time   `json:"approvedAt,omitempty"`
	DeniedAt   *time.Time   `json:"deniedAt,omitempty"`
}
