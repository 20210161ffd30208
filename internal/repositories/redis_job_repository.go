package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
)

// Key layout:
//
//	job:{id}            JSON job record
//	job:status:{status} set of job ids
//	job:queue:{type}    sorted set scored by enqueue time
func jobKey(id string) string              { return "job:" + id }
func jobStatusKey(status JobStatus) string { return "job:status:" + string(status) }
func jobQueueKey(jobType JobType) string   { return "job:queue:" + string(jobType) }

// RedisJobRepository keeps jobs and their queue in Redis
type RedisJobRepository struct {
	client *redis.Client
	now    func() time.Time
}

var _ JobRepository = (*RedisJobRepository)(nil)

func NewRedisJobRepository(client *redis.Client) *RedisJobRepository {
	return &RedisJobRepository{client: client, now: time.Now}
}

func jobStoreError(op string, err error) error {
	return apperrors.New(apperrors.ErrExternalService, op, "job store unavailable", err)
}

// CreateJob stores a new job. A job id can only be created once.
func (r *RedisJobRepository) CreateJob(ctx context.Context, job *Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if job.Status == "" {
		job.Status = JobStatusPending
	}
	job.CreatedAt = r.now().UTC()
	job.UpdatedAt = job.CreatedAt

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}

	created, err := r.client.SetNX(ctx, jobKey(job.ID), data, 0).Result()
	if err != nil {
		return jobStoreError("create_job", err)
	}
	if !created {
		return apperrors.Conflict("create_job", "job already exists: "+job.ID)
	}
	if err := r.client.SAdd(ctx, jobStatusKey(job.Status), job.ID).Err(); err != nil {
		return jobStoreError("create_job", err)
	}
	return nil
}

func (r *RedisJobRepository) GetJob(ctx context.Context, jobID string) (*Job, error) {
	data, err := r.client.Get(ctx, jobKey(jobID)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, apperrors.NotFound("get_job", "job not found: "+jobID)
	case err != nil:
		return nil, jobStoreError("get_job", err)
	}

	job := new(Job)
	if err := json.Unmarshal(data, job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return job, nil
}

func (r *RedisJobRepository) UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, message string) error {
	_, err := r.transition(ctx, jobID, status, message, "")
	return err
}

// transition moves a job to status, stamping start and finish times the
// first time they are reached, and keeps the status index in step.
func (r *RedisJobRepository) transition(ctx context.Context, jobID string, status JobStatus, message, workerID string) (*Job, error) {
	if !status.IsValid() {
		return nil, invalidJob(jobID, "unknown status "+string(status))
	}
	job, err := r.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	from := job.Status
	now := r.now().UTC()
	job.Status, job.Message, job.UpdatedAt = status, message, now
	if workerID != "" {
		job.WorkerID = workerID
	}
	if status == JobStatusProcessing && job.StartedAt == nil {
		job.StartedAt = &now
	}
	if status.IsTerminal() && job.CompletedAt == nil {
		job.CompletedAt = &now
	}
	if status == JobStatusFailed {
		job.Error = message
	}

	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job %s: %w", jobID, err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, jobKey(jobID), data, 0)
		if from != status {
			pipe.SRem(ctx, jobStatusKey(from), jobID)
			pipe.SAdd(ctx, jobStatusKey(status), jobID)
		}
		return nil
	})
	if err != nil {
		return nil, jobStoreError("update_job_status", err)
	}
	return job, nil
}

// ListJobsByStatus returns the jobs in status ordered by id. Ids whose
// record vanished are skipped.
func (r *RedisJobRepository) ListJobsByStatus(ctx context.Context, status JobStatus) ([]*Job, error) {
	ids, err := r.client.SMembers(ctx, jobStatusKey(status)).Result()
	if err != nil {
		return nil, jobStoreError("list_jobs_by_status", err)
	}
	slices.Sort(ids)

	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		if job, err := r.GetJob(ctx, id); err == nil {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

// EnqueueJob marks the job queued and appends it to its type's queue
func (r *RedisJobRepository) EnqueueJob(ctx context.Context, job *Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if _, err := r.transition(ctx, job.ID, JobStatusQueued, "Job queued for processing", ""); err != nil {
		return err
	}
	job.Status = JobStatusQueued

	entry := redis.Z{Score: float64(r.now().UnixNano()), Member: job.ID}
	if err := r.client.ZAdd(ctx, jobQueueKey(job.Type), entry).Err(); err != nil {
		return jobStoreError("enqueue_job", err)
	}
	return nil
}

func (r *RedisJobRepository) DequeueJob(ctx context.Context, jobType JobType, workerID string) (*Job, error) {
	popped, err := r.client.ZPopMin(ctx, jobQueueKey(jobType), 1).Result()
	if err != nil {
		return nil, jobStoreError("dequeue_job", err)
	}
	if len(popped) == 0 {
		return nil, nil
	}
	jobID, ok := popped[0].Member.(string)
	if !ok {
		return nil, fmt.Errorf("malformed queue entry %v", popped[0].Member)
	}
	return r.transition(ctx, jobID, JobStatusProcessing, "Processing started", workerID)
}

func (r *RedisJobRepository) QueueLength(ctx context.Context, jobType JobType) (int64, error) {
	n, err := r.client.ZCard(ctx, jobQueueKey(jobType)).Result()
	if err != nil {
		return 0, jobStoreError("queue_length", err)
	}
	return n, nil
}

func (r *RedisJobRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
