package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/service"
	"github.com/reelforge/api/internal/websocket"
)

// VideoWorker processes frame-chained video synthesis jobs.
type VideoWorker struct {
	video *service.VideoService
	jobs  *service.JobService
	hub   *websocket.Hub
}

// NewVideoWorker creates a new video worker
func NewVideoWorker(video *service.VideoService, jobs *service.JobService, hub *websocket.Hub) *VideoWorker {
	return &VideoWorker{
		video: video,
		jobs:  jobs,
		hub:   hub,
	}
}

// ProcessTask renders the item's segments sequentially, chaining frames. A
// halted run still completes the job with its partial summary; only setup
// errors (unknown item, incomplete script, unreadable reference) fail it
// outright.
func (w *VideoWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var env taskEnvelope
	if err := json.Unmarshal(t.Payload(), &env); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	var payload model.VideoJobPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		w.fail(ctx, env.JobID, "Invalid payload")
		return fmt.Errorf("failed to unmarshal video payload: %w", err)
	}

	log.Printf("[Worker] Starting video job %s for %s/%s", env.JobID, payload.ContentType, payload.Title)
	w.jobs.UpdateProgress(ctx, env.JobID, 0, "preparing synthesis")

	progress := func(p int, step string) {
		w.jobs.UpdateProgress(ctx, env.JobID, p, step)
		w.hub.BroadcastProgress(env.JobID, p, model.JobStatusRunning, step)
	}

	summary, err := w.video.Synthesize(ctx, payload.ContentType, payload.Title, payload.CharacterRefKey, progress)
	if err != nil {
		w.fail(ctx, env.JobID, err.Error())
		return err
	}

	w.jobs.Complete(ctx, env.JobID, summary, summary.Success)
	w.hub.BroadcastComplete(env.JobID, summary)
	if summary.Success {
		log.Printf("[Worker] Video job %s finished: %d clips rendered", env.JobID, len(summary.Segments))
	} else {
		log.Printf("[Worker] Video job %s halted at segment %d", env.JobID, *summary.FailedSegment)
	}
	return nil
}

func (w *VideoWorker) fail(ctx context.Context, jobID, msg string) {
	w.jobs.Fail(ctx, jobID, msg)
	w.hub.BroadcastError(jobID, "VIDEO_FAILED", msg)
}
