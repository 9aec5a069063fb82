package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/reelforge/api/internal/model"
)

// Asynq task types
const (
	TaskTypeBatches = "content:batches"
	TaskTypeResume  = "content:resume"
	TaskTypeVideo   = "video:synthesize"
)

// ErrJobNotFound is returned for unknown or expired job IDs.
var ErrJobNotFound = errors.New("job not found")

// jobRetention is how long finished job records stay queryable.
const jobRetention = 24 * time.Hour

// JobService owns job records and their queueing. Job records live in redis
// and describe observable state only; the content store remains the source
// of truth for what was actually produced.
type JobService struct {
	redis       *redis.Client
	asynqClient *asynq.Client
}

// NewJobService creates a new job service
func NewJobService(redisClient *redis.Client, asynqClient *asynq.Client) *JobService {
	return &JobService{
		redis:       redisClient,
		asynqClient: asynqClient,
	}
}

// EnqueueBatches queues a batch-generation job for the item.
func (s *JobService) EnqueueBatches(ctx context.Context, payload *model.BatchJobPayload) (*model.JobQueuedResponse, error) {
	return s.enqueue(ctx, model.JobTypeBatches, TaskTypeBatches, "batches", payload)
}

// EnqueueResume queues a resume job that regenerates only the item's missing
// sets.
func (s *JobService) EnqueueResume(ctx context.Context, payload *model.BatchJobPayload) (*model.JobQueuedResponse, error) {
	return s.enqueue(ctx, model.JobTypeResume, TaskTypeResume, "batches", payload)
}

// EnqueueVideo queues a frame-chained video synthesis job for the item.
func (s *JobService) EnqueueVideo(ctx context.Context, payload *model.VideoJobPayload) (*model.JobQueuedResponse, error) {
	return s.enqueue(ctx, model.JobTypeVideo, TaskTypeVideo, "video", payload)
}

func (s *JobService) enqueue(ctx context.Context, jobType, taskType, queue string, payload interface{}) (*model.JobQueuedResponse, error) {
	jobID := uuid.New().String()
	now := time.Now()

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	job := &model.Job{
		ID:        jobID,
		Type:      jobType,
		Status:    model.JobStatusQueued,
		Progress:  0,
		Payload:   payloadBytes,
		CreatedAt: now,
	}
	if err := s.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := newJobTask(taskType, jobID, payloadBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	// Asynq-level retries stay off: the pipeline does its own backoff per
	// external call and records partial results, so re-running the whole
	// task would double work that already persisted.
	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue(queue),
		asynq.MaxRetry(0),
		asynq.Retention(jobRetention),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.JobQueuedResponse{
		JobID:     jobID,
		Status:    model.JobStatusQueued,
		CreatedAt: now,
	}, nil
}

// GetStatus returns the current observable state of a job.
func (s *JobService) GetStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.JobStatusResponse{
		JobID:       job.ID,
		Type:        job.Type,
		Status:      job.Status,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}, nil
}

// GetResult returns the summary of a finished job, raw. Results exist for
// both succeeded jobs and failed ones that got far enough to have partial
// outcomes.
func (s *JobService) GetResult(ctx context.Context, jobID string) (json.RawMessage, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusSucceeded && job.Status != model.JobStatusFailed {
		return nil, fmt.Errorf("job %s has not finished", jobID)
	}
	if len(job.Result) == 0 {
		return nil, fmt.Errorf("job %s produced no result", jobID)
	}
	return json.RawMessage(job.Result), nil
}

// UpdateProgress marks the job running and records coarse progress.
func (s *JobService) UpdateProgress(ctx context.Context, jobID string, progress int, step string) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return
	}

	job.Status = model.JobStatusRunning
	job.Progress = progress
	job.CurrentStep = step
	if job.StartedAt == nil {
		now := time.Now()
		job.StartedAt = &now
	}
	_ = s.SaveJob(ctx, job)
}

// Complete finishes the job with a result summary. succeeded=false records a
// partial run: the summary is still stored so callers can see which units
// failed.
func (s *JobService) Complete(ctx context.Context, jobID string, result interface{}, succeeded bool) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return
	}

	job.Result = resultBytes
	job.Progress = 100
	now := time.Now()
	job.CompletedAt = &now
	if succeeded {
		job.Status = model.JobStatusSucceeded
	} else {
		job.Status = model.JobStatusFailed
		msg := "job finished with failed units; see result for details"
		job.Error = &msg
	}
	_ = s.SaveJob(ctx, job)
}

// Fail marks the job fatally failed with no result.
func (s *JobService) Fail(ctx context.Context, jobID, errMsg string) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return
	}

	job.Status = model.JobStatusFailed
	job.Error = &errMsg
	now := time.Now()
	job.CompletedAt = &now
	_ = s.SaveJob(ctx, job)
}

// SaveJob persists the job record.
func (s *JobService) SaveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, jobKey(job.ID), data, jobRetention).Err()
}

// GetJob loads a job record.
func (s *JobService) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func jobKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

func newJobTask(taskType, jobID string, payload []byte) (*asynq.Task, error) {
	taskPayload := map[string]interface{}{
		"jobId":   jobID,
		"payload": payload,
	}
	data, err := json.Marshal(taskPayload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}
