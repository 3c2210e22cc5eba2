package model

import (
	"errors"
	"time"
)

// JobStatus tracks a queued generation request.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobDone       JobStatus = "done"
	JobFailed     JobStatus = "failed"
)

// Error codes written to failed jobs.
const (
	JobErrRateLimited        = "rate_limited"
	JobErrUnauthenticated    = "unauthenticated"
	JobErrBackendUnavailable = "backend_unavailable"
	JobErrInternal           = "internal"
)

// GenerationJob is the request document written by a queued generator and
// completed by a worker.
type GenerationJob struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           Role      `json:"role"`
	Prompt         string    `json:"prompt"`
	RequestedBy    string    `json:"requestedBy"`
	Status         JobStatus `json:"status"`
	Response       string    `json:"response,omitempty"`
	ErrorCode      string    `json:"errorCode,omitempty"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	ProcessedAt    time.Time `json:"processedAt,omitzero"`
}

// Finished reports whether the worker has written a result.
func (j GenerationJob) Finished() bool {
	return j.Status == JobDone || j.Status == JobFailed
}

// JobErrorCode maps a generation failure to the code stored on the job.
func JobErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return JobErrRateLimited
	case errors.Is(err, ErrUnauthenticated):
		return JobErrUnauthenticated
	case errors.Is(err, ErrBackendUnavailable):
		return JobErrBackendUnavailable
	default:
		return JobErrInternal
	}
}

// JobErrorCause is the inverse of JobErrorCode.
func JobErrorCause(code, message string) error {
	switch code {
	case JobErrRateLimited:
		return ErrRateLimited
	case JobErrUnauthenticated:
		return ErrUnauthenticated
	case JobErrBackendUnavailable:
		return ErrBackendUnavailable
	default:
		if message == "" {
			message = "generation job failed"
		}
		return errors.New(message)
	}
}
