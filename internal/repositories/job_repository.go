package repositories

import (
	"context"
	"time"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
)

// JobRepository stores ingestion jobs and the FIFO queue workers poll
type JobRepository interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, jobID string) (*Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, message string) error
	ListJobsByStatus(ctx context.Context, status JobStatus) ([]*Job, error)

	EnqueueJob(ctx context.Context, job *Job) error
	// DequeueJob pops the oldest queued job of the type, or returns nil when
	// the queue is empty. The popped job is marked processing.
	DequeueJob(ctx context.Context, jobType JobType, workerID string) (*Job, error)
	QueueLength(ctx context.Context, jobType JobType) (int64, error)
	Ping(ctx context.Context) error
}

// Job represents a background job in the queue
type Job struct {
	ID          string     `json:"id"`
	Type        JobType    `json:"type"`
	Status      JobStatus  `json:"status"`
	DocumentID  string     `json:"document_id"`
	Message     string     `json:"message"`
	Error       string     `json:"error,omitempty"`
	WorkerID    string     `json:"worker_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// JobType represents the type of job
type JobType string

const (
	JobTypeDocumentIngest JobType = "document_ingest"
)

// JobStatus represents the current status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

func invalidJob(jobID, reason string) error {
	msg := "invalid job: " + reason
	if jobID != "" {
		msg = "invalid job " + jobID + ": " + reason
	}
	return apperrors.Validation("validate_job", msg)
}

// Validate reports whether the job can be stored
func (j *Job) Validate() error {
	if j.ID == "" {
		return invalidJob("", "job ID is required")
	}
	if !j.Type.IsValid() {
		return invalidJob(j.ID, "invalid job type: "+string(j.Type))
	}
	if j.Status != "" && !j.Status.IsValid() {
		return invalidJob(j.ID, "invalid job status: "+string(j.Status))
	}
	if j.DocumentID == "" {
		return invalidJob(j.ID, "document ID is required")
	}
	return nil
}

func (t JobType) IsValid() bool {
	return t == JobTypeDocumentIngest
}

func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusQueued, JobStatusProcessing,
		JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is expected
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Duration is the processing time so far, or the total once finished
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	if j.CompletedAt == nil {
		return time.Since(*j.StartedAt)
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}
