package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/retry"
	"github.com/reelforge/api/internal/store"
)

// ProgressFunc reports coarse progress (0-100) and a human-readable step to
// whoever is watching the job. Callers may pass nil.
type ProgressFunc func(progress int, step string)

// BatchService walks a content item's sets in order, generating and
// persisting each one. Failures are isolated per set: a failed set is
// recorded and skipped, never allowed to abort the pass.
type BatchService struct {
	script       SetGenerator
	contentStore store.ContentStore
	backoff      *retry.Executor

	// SetInterval is the pause between consecutive set generations, to
	// stay polite with the text provider. Zero disables it (tests).
	SetInterval time.Duration
}

// NewBatchService creates a new batch service
func NewBatchService(script SetGenerator, contentStore store.ContentStore, backoff *retry.Executor, setInterval time.Duration) *BatchService {
	return &BatchService{
		script:       script,
		contentStore: contentStore,
		backoff:      backoff,
		SetInterval:  setInterval,
	}
}

// Run generates every missing set of the item, in ascending order. Sets
// already on disk are skipped, so Run on a half-finished item behaves like a
// resume. The returned summary reports per-set outcomes; Success is true
// only if the item is complete when the pass ends.
func (s *BatchService) Run(ctx context.Context, item *model.ContentItem, progress ProgressFunc) (*model.JobSummary, error) {
	missing, err := s.contentStore.MissingSets(ctx, item.ContentType, item.Title, item.TotalSegments, item.SegmentsPerSet)
	if err != nil {
		return nil, fmt.Errorf("failed to diff sets: %w", err)
	}
	return s.runSets(ctx, item, missing, progress)
}

// Resume loads the item from the store and re-runs only its missing sets,
// against the original metadata. An item that was never started is a fatal
// error, not an empty run.
func (s *BatchService) Resume(ctx context.Context, contentType model.ContentType, title string, progress ProgressFunc) (*model.JobSummary, error) {
	item, err := s.contentStore.LoadMetadata(ctx, contentType, title)
	if err != nil {
		return nil, err
	}

	missing, err := s.contentStore.MissingSets(ctx, contentType, title, item.TotalSegments, item.SegmentsPerSet)
	if err != nil {
		return nil, fmt.Errorf("failed to diff sets: %w", err)
	}
	log.Printf("[Batch] Resume %s/%s — %d of %d sets missing", contentType, title, len(missing), item.SetCount())

	summary, err := s.runSets(ctx, item, missing, progress)
	if err != nil {
		return nil, err
	}
	summary.OriginallyFailedCount = len(missing)
	return summary, nil
}

func (s *BatchService) runSets(ctx context.Context, item *model.ContentItem, setNumbers []int, progress ProgressFunc) (*model.JobSummary, error) {
	if progress == nil {
		progress = func(int, string) {}
	}

	summary := &model.JobSummary{
		ContentType:    item.ContentType,
		Title:          item.Title,
		SuccessfulSets: []int{},
		FailedSets:     []int{},
	}

	total := len(setNumbers)
	if total == 0 {
		summary.Success = true
		progress(100, "all sets already persisted")
		return summary, nil
	}

	for i, setNumber := range setNumbers {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		progress(i*100/total, fmt.Sprintf("generating set %d of %d", setNumber, item.SetCount()))

		result := retry.Do(ctx, s.backoff, func(ctx context.Context) (*model.Set, error) {
			return s.script.GenerateSet(ctx, item, setNumber)
		})

		outcome := model.SetOutcome{SetNumber: setNumber, Attempts: result.Attempts}

		if result.OK() {
			if err := s.contentStore.SaveSet(ctx, item.ContentType, item.Title, result.Value); err != nil {
				// Persistence failure would silently lose a generated
				// set; that breaks the store-as-truth contract, so abort.
				return nil, fmt.Errorf("failed to persist set %d: %w", setNumber, err)
			}
			outcome.Status = model.SetStatusSuccess
			outcome.Segments = len(result.Value.Segments)
			summary.SuccessfulSets = append(summary.SuccessfulSets, setNumber)
			log.Printf("[Batch] %s/%s set %d persisted (%d segments, %d attempt(s))",
				item.ContentType, item.Title, setNumber, outcome.Segments, result.Attempts)
		} else {
			// Record the failure and keep going: later sets don't depend
			// on this one and a resume will pick it up.
			outcome.Status = model.SetStatusFailed
			outcome.Error = result.Err.Error()
			summary.FailedSets = append(summary.FailedSets, setNumber)
			log.Printf("[Batch] %s/%s set %d failed after %d attempt(s): %v",
				item.ContentType, item.Title, setNumber, result.Attempts, result.Err)

			// Persist the failure as a replaceable placeholder. The diff
			// treats it as missing, and a later success overwrites the
			// record at the same index.
			failedSet := &model.Set{
				SetNumber: setNumber,
				Status:    model.SetStatusFailed,
				Error:     result.Err.Error(),
				CreatedAt: time.Now().UTC(),
			}
			if err := s.contentStore.SaveSet(ctx, item.ContentType, item.Title, failedSet); err != nil {
				log.Printf("[Batch] %s/%s set %d: could not record failure: %v",
					item.ContentType, item.Title, setNumber, err)
			}
		}
		summary.Outcomes = append(summary.Outcomes, outcome)

		if s.SetInterval > 0 && i < total-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.SetInterval):
			}
		}
	}

	summary.Success = len(summary.FailedSets) == 0
	progress(100, fmt.Sprintf("done: %d ok, %d failed", len(summary.SuccessfulSets), len(summary.FailedSets)))
	return summary, nil
}
