// Package domain defines the data shapes exchanged between the HTTP layer,
// the job services, and durable storage: job inputs, tracking descriptors,
// derived status documents, and the submission ledger persisted with GORM.
package domain

import "time"

// Job priorities accepted at submission.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// ValidPriority reports whether p is an accepted priority value.
// The empty string is allowed and treated as PriorityNormal by callers.
func ValidPriority(p string) bool {
	switch p {
	case "", PriorityNormal, PriorityHigh:
		return true
	}
	return false
}

// Derived job states. The gateway never stores these; they are computed on
// demand by scanning the artifact store. A job with no visible artifact
// reports StatusProcessing regardless of whether it is queued, running, or
// unknown; the store gives no way to tell those apart. StatusPending names
// the queued phase for API consumers; the resolver never emits it because
// pending and processing are indistinguishable from artifacts alone.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// JobInput is the JSON document written to the object store at submission
// time. Its key embeds both the user id and the job id so later scans can
// correlate artifacts back to the job.
type JobInput struct {
	Prompt      string    `json:"prompt"`
	UserID      string    `json:"user_id"`
	JobID       string    `json:"job_id"`
	Priority    string    `json:"priority"`
	CallbackURL string    `json:"callback_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// JobDescriptor is the tracking handle returned from a successful
// submission. It carries the backend's inference id and the two storage
// locations the backend will eventually write to.
type JobDescriptor struct {
	JobID                      string `json:"job_id"`
	InferenceID                string `json:"inference_id"`
	OutputLocation             string `json:"output_location"`
	FailureLocation            string `json:"failure_location"`
	EstimatedCompletionSeconds int    `json:"estimated_completion_seconds"`
	StatusURL                  string `json:"status_url"`
	UserID                     string `json:"user_id"`
}

// JobStatus is the derived status document served by the status endpoint.
// OutputURL is a time-limited presigned link, present only when completed;
// ErrorMessage is bounded and present only when failed.
type JobStatus struct {
	JobID        string     `json:"job_id"`
	Status       string     `json:"status"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	OutputURL    string     `json:"output_url,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	UserID       string     `json:"user_id"`
}
