// Package worker hosts the asynq task handlers. Each handler hydrates its
// payload, drives the matching service, and mirrors progress to the job
// record and the websocket hub. Items run concurrently across workers; the
// ordering that matters lives inside the services.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/service"
	"github.com/reelforge/api/internal/store"
	"github.com/reelforge/api/internal/websocket"
)

// taskEnvelope is the wire shape shared by every queued task.
type taskEnvelope struct {
	JobID   string          `json:"jobId"`
	Payload json.RawMessage `json:"payload"`
}

// BatchWorker processes batch-generation and resume jobs.
type BatchWorker struct {
	batch        *service.BatchService
	jobs         *service.JobService
	contentStore store.ContentStore
	hub          *websocket.Hub
}

// NewBatchWorker creates a new batch worker
func NewBatchWorker(batch *service.BatchService, jobs *service.JobService, contentStore store.ContentStore, hub *websocket.Hub) *BatchWorker {
	return &BatchWorker{
		batch:        batch,
		jobs:         jobs,
		contentStore: contentStore,
		hub:          hub,
	}
}

// ProcessBatches handles a full batch run over the item's missing sets.
func (w *BatchWorker) ProcessBatches(ctx context.Context, t *asynq.Task) error {
	var env taskEnvelope
	if err := json.Unmarshal(t.Payload(), &env); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	var payload model.BatchJobPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		w.fail(ctx, env.JobID, "Invalid payload")
		return fmt.Errorf("failed to unmarshal batch payload: %w", err)
	}

	log.Printf("[Worker] Starting batches job %s for %s/%s", env.JobID, payload.ContentType, payload.Title)
	w.progress(ctx, env.JobID, 0, "loading item")

	item, err := w.contentStore.LoadMetadata(ctx, payload.ContentType, payload.Title)
	if err != nil {
		w.fail(ctx, env.JobID, err.Error())
		return err
	}

	summary, err := w.batch.Run(ctx, item, w.progressFunc(ctx, env.JobID))
	if err != nil {
		w.fail(ctx, env.JobID, err.Error())
		return err
	}

	w.finish(ctx, env.JobID, summary)
	return nil
}

// ProcessResume handles a resume run: only the item's missing sets are
// regenerated, against the original metadata.
func (w *BatchWorker) ProcessResume(ctx context.Context, t *asynq.Task) error {
	var env taskEnvelope
	if err := json.Unmarshal(t.Payload(), &env); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	var payload model.BatchJobPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		w.fail(ctx, env.JobID, "Invalid payload")
		return fmt.Errorf("failed to unmarshal resume payload: %w", err)
	}

	log.Printf("[Worker] Starting resume job %s for %s/%s", env.JobID, payload.ContentType, payload.Title)
	w.progress(ctx, env.JobID, 0, "diffing persisted sets")

	summary, err := w.batch.Resume(ctx, payload.ContentType, payload.Title, w.progressFunc(ctx, env.JobID))
	if err != nil {
		w.fail(ctx, env.JobID, err.Error())
		return err
	}

	w.finish(ctx, env.JobID, summary)
	return nil
}

func (w *BatchWorker) progressFunc(ctx context.Context, jobID string) service.ProgressFunc {
	return func(progress int, step string) {
		w.progress(ctx, jobID, progress, step)
	}
}

func (w *BatchWorker) progress(ctx context.Context, jobID string, progress int, step string) {
	w.jobs.UpdateProgress(ctx, jobID, progress, step)
	w.hub.BroadcastProgress(jobID, progress, model.JobStatusRunning, step)
}

func (w *BatchWorker) finish(ctx context.Context, jobID string, summary *model.JobSummary) {
	w.jobs.Complete(ctx, jobID, summary, summary.Success)
	w.hub.BroadcastComplete(jobID, summary)
	log.Printf("[Worker] Batches job %s finished: success=%v failed_sets=%v",
		jobID, summary.Success, summary.FailedSets)
}

func (w *BatchWorker) fail(ctx context.Context, jobID, msg string) {
	w.jobs.Fail(ctx, jobID, msg)
	w.hub.BroadcastError(jobID, "BATCH_FAILED", msg)
}
