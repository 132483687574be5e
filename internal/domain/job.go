package domain

import "time"

// ResourceType enumerates the kinds of generated media.
type ResourceType string

const (
	ResourceImage ResourceType = "image"
	ResourceVideo ResourceType = "video"
)

// JobStatus enumerates provider-side job lifecycle states.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// Terminal reports whether the status is final. A terminal job is never
// re-read into a different state.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// ProviderJob is the normalized view of one provider-side unit of work.
// It is created on submit and mutated only by re-reading provider status.
type ProviderJob struct {
	TaskID      string
	Provider    string
	Status      JobStatus
	Progress    float64 // 0..1, zero when the provider reports none
	Outputs     []string
	ErrorDetail string
	CreatedAt   time.Time
}

// FirstOutput returns the first output URL, or "" when none is available.
func (j *ProviderJob) FirstOutput() string {
	if j == nil || len(j.Outputs) == 0 {
		return ""
	}
	return j.Outputs[0]
}
