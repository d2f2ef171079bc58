package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

const JobStatusSuccess = "success"

type WebhookJob struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Number uint64 `json:"number"`
}

type WebhookPipeline struct {
	ID     string `json:"id"`
	Number uint64 `json:"number"`
}

// JobCompletedPayload is the CircleCI job-completed webhook body. Only job.number is
// required; the pipeline block links a job back to a dispatched request when present.
type JobCompletedPayload struct {
	Job      WebhookJob       `json:"job"`
	Pipeline *WebhookPipeline `json:"pipeline,omitempty"`
}

func ParseJobCompletedPayload(body []byte) (JobCompletedPayload, error) {
	var wire struct {
		Job *struct {
			Name   string  `json:"name"`
			Status string  `json:"status"`
			Number *uint64 `json:"number"`
		} `json:"job"`
		Pipeline *WebhookPipeline `json:"pipeline"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return JobCompletedPayload{}, fmt.Errorf("decode webhook payload: %w", err)
	}
	if wire.Job == nil {
		return JobCompletedPayload{}, errors.New("webhook payload missing job")
	}
	if wire.Job.Number == nil {
		return JobCompletedPayload{}, errors.New("webhook payload missing job.number")
	}
	return JobCompletedPayload{
		Job: WebhookJob{
			Name:   wire.Job.Name,
			Status: wire.Job.Status,
			Number: *wire.Job.Number,
		},
		Pipeline: wire.Pipeline,
	}, nil
}

func (p JobCompletedPayload) JobNumber() string {
	return strconv.FormatUint(p.Job.Number, 10)
}

// Succeeded treats a missing status as success since the minimal payload carries none.
func (p JobCompletedPayload) Succeeded() bool {
	return p.Job.Status == "" || p.Job.Status == JobStatusSuccess
}

// PipelineRef describes a CircleCI pipeline started on behalf of a request.
type PipelineRef struct {
	ID        string `json:"id"`
	Number    uint64 `json:"number"`
	State     string `json:"state"`
	CreatedAt string `json:"created_at"`
}
