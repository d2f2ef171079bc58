package domain

import "time"

type ResolutionState string

const (
	ResolutionNone      ResolutionState = ""
	ResolutionSubmitted ResolutionState = "SUBMITTED"
	ResolutionSucceeded ResolutionState = "SUCCEEDED"
	ResolutionFailed    ResolutionState = "FAILED"
	ResolutionError     ResolutionState = "ERROR"
)

// JobRecord is the relay's cached view of one completed CI job.
type JobRecord struct {
	JobNumber  uint64              `json:"job_number"`
	PipelineID string              `json:"pipeline_id,omitempty"`
	RequestID  *uint64             `json:"request_id,omitempty"`
	Result     *VerificationResult `json:"result,omitempty"`
	ArchiveURL string              `json:"archive_url,omitempty"`
	Resolution ResolutionState     `json:"resolution,omitempty"`
	TxHash     string              `json:"tx_hash,omitempty"`
	Error      string              `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// DispatchRecord links a CircleCI pipeline to the pending request it was started for.
type DispatchRecord struct {
	ID             string    `json:"id"`
	RequestID      uint64    `json:"request_id"`
	Repository     string    `json:"repository"`
	PipelineID     string    `json:"pipeline_id"`
	PipelineNumber uint64    `json:"pipeline_number"`
	CreatedAt      time.Time `json:"created_at"`
}
