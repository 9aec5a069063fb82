package service

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/reelforge/api/internal/client"
	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/retry"
	"github.com/reelforge/api/internal/store"
)

// scriptedGenerator fails or succeeds per set according to a plan. The plan
// maps set number to a queue of errors consumed one per call; once the queue
// is drained the set succeeds.
type scriptedGenerator struct {
	plan  map[int][]error
	calls map[int]int
}

func newScriptedGenerator(plan map[int][]error) *scriptedGenerator {
	return &scriptedGenerator{plan: plan, calls: map[int]int{}}
}

func (g *scriptedGenerator) GenerateSet(ctx context.Context, item *model.ContentItem, setNumber int) (*model.Set, error) {
	g.calls[setNumber]++
	if queue := g.plan[setNumber]; len(queue) > 0 {
		err := queue[0]
		g.plan[setNumber] = queue[1:]
		return nil, err
	}

	count := item.SegmentsInSet(setNumber)
	start := (setNumber-1)*item.SegmentsPerSet + 1
	segments := make([]model.Segment, count)
	for i := range segments {
		segments[i] = model.Segment{Index: start + i, Narration: fmt.Sprintf("line %d", start+i)}
	}
	return &model.Set{
		SetNumber: setNumber,
		Status:    model.SetStatusSuccess,
		Segments:  segments,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func newTestBackoff(maxAttempts int) *retry.Executor {
	ex := retry.New(maxAttempts, time.Second, client.IsTransient)
	ex.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return ex
}

func permanent(msg string) error {
	return fmt.Errorf("%w: %s", model.ErrMalformedOutput, msg)
}

func transient() error {
	return &client.StatusError{Provider: "groq", Code: 503, Body: "upstream overloaded"}
}

func setupBatch(t *testing.T, total, perSet int) (*store.FSStore, *model.ContentItem, func(map[int][]error) *scriptedGenerator) {
	t.Helper()
	fs := store.NewFSStore(t.TempDir())
	item := testItem(total, perSet)
	if err := fs.SaveMetadata(context.Background(), item); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}
	mk := func(plan map[int][]error) *scriptedGenerator {
		return newScriptedGenerator(plan)
	}
	return fs, item, mk
}

func TestRunFailureIsolation(t *testing.T) {
	// Set 3 of 5 fails permanently; 1,2,4,5 must still be persisted.
	fs, item, mk := setupBatch(t, 50, 10)
	gen := mk(map[int][]error{3: {permanent("wrong segment count")}})
	svc := NewBatchService(gen, fs, newTestBackoff(3), 0)

	summary, err := svc.Run(context.Background(), item, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Success {
		t.Error("partial run reported as success")
	}
	if !reflect.DeepEqual(summary.SuccessfulSets, []int{1, 2, 4, 5}) {
		t.Errorf("successful sets = %v, want [1 2 4 5]", summary.SuccessfulSets)
	}
	if !reflect.DeepEqual(summary.FailedSets, []int{3}) {
		t.Errorf("failed sets = %v, want [3]", summary.FailedSets)
	}

	missing, err := fs.MissingSets(context.Background(), item.ContentType, item.Title, item.TotalSegments, item.SegmentsPerSet)
	if err != nil {
		t.Fatalf("MissingSets: %v", err)
	}
	if !reflect.DeepEqual(missing, []int{3}) {
		t.Errorf("missing = %v, want [3]", missing)
	}

	// The failed set leaves a diagnostic record with the error.
	failedSet, err := fs.LoadSet(context.Background(), item.ContentType, item.Title, 3)
	if err != nil {
		t.Fatalf("LoadSet(3): %v", err)
	}
	if failedSet.Status != model.SetStatusFailed || failedSet.Error == "" {
		t.Errorf("failed set record = %+v, want failed status with error", failedSet)
	}
}

func TestRunTransientTimeoutsThenSuccess(t *testing.T) {
	// Set 2 times out on attempts 1-2 and succeeds on attempt 3.
	fs, item, mk := setupBatch(t, 30, 10)
	gen := mk(map[int][]error{2: {transient(), transient()}})
	svc := NewBatchService(gen, fs, newTestBackoff(3), 0)

	summary, err := svc.Run(context.Background(), item, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !summary.Success {
		t.Errorf("run should succeed, summary: %+v", summary)
	}
	if !reflect.DeepEqual(summary.SuccessfulSets, []int{1, 2, 3}) {
		t.Errorf("successful sets = %v, want [1 2 3]", summary.SuccessfulSets)
	}
	if gen.calls[2] != 3 {
		t.Errorf("set 2 attempted %d times, want 3", gen.calls[2])
	}

	for _, o := range summary.Outcomes {
		if o.SetNumber == 2 && o.Attempts != 3 {
			t.Errorf("outcome for set 2 records %d attempts, want 3", o.Attempts)
		}
	}
}

func TestRunPermanentFailureNotRetried(t *testing.T) {
	fs, item, mk := setupBatch(t, 20, 10)
	gen := mk(map[int][]error{1: {permanent("truncated"), permanent("truncated"), permanent("truncated")}})
	svc := NewBatchService(gen, fs, newTestBackoff(3), 0)

	if _, err := svc.Run(context.Background(), item, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gen.calls[1] != 1 {
		t.Errorf("permanent failure attempted %d times, want 1", gen.calls[1])
	}
}

func TestResumeIdempotent(t *testing.T) {
	fs, item, mk := setupBatch(t, 50, 10)
	ctx := context.Background()

	// First pass: sets 3 and 5 fail permanently.
	gen := mk(map[int][]error{
		3: {permanent("bad output")},
		5: {permanent("bad output")},
	})
	svc := NewBatchService(gen, fs, newTestBackoff(3), 0)
	first, err := svc.Run(ctx, item, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(first.FailedSets, []int{3, 5}) {
		t.Fatalf("first pass failed sets = %v, want [3 5]", first.FailedSets)
	}

	// Resume: everything succeeds now.
	resumeGen := mk(nil)
	resumeSvc := NewBatchService(resumeGen, fs, newTestBackoff(3), 0)
	second, err := resumeSvc.Resume(ctx, item.ContentType, item.Title, nil)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !second.Success {
		t.Errorf("resume should complete the item, summary: %+v", second)
	}
	if second.OriginallyFailedCount != 2 {
		t.Errorf("originally failed = %d, want 2", second.OriginallyFailedCount)
	}
	if !reflect.DeepEqual(resumeGen.calls, map[int]int{3: 1, 5: 1}) {
		t.Errorf("resume regenerated %v, want only sets 3 and 5 once each", resumeGen.calls)
	}

	// Exactly 5 success records, no gaps, no duplicates.
	missing, err := fs.MissingSets(ctx, item.ContentType, item.Title, 50, 10)
	if err != nil {
		t.Fatalf("MissingSets: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("missing after resume = %v, want none", missing)
	}

	// A second resume is a no-op.
	again, err := resumeSvc.Resume(ctx, item.ContentType, item.Title, nil)
	if err != nil {
		t.Fatalf("second Resume: %v", err)
	}
	if !again.Success || len(again.SuccessfulSets) != 0 {
		t.Errorf("repeat resume should do nothing, summary: %+v", again)
	}
}

func TestResumeNeverStartedIsFatal(t *testing.T) {
	fs := store.NewFSStore(t.TempDir())
	svc := NewBatchService(newScriptedGenerator(nil), fs, newTestBackoff(3), 0)

	if _, err := svc.Resume(context.Background(), model.ContentTypeMovie, "ghost", nil); err == nil {
		t.Fatal("resume of a never-started item must fail")
	}
}

func TestResumeMetadataImmutable(t *testing.T) {
	fs, item, mk := setupBatch(t, 20, 10)
	ctx := context.Background()

	before, err := fs.LoadMetadata(ctx, item.ContentType, item.Title)
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	beforeJSON, _ := json.Marshal(before)

	gen := mk(map[int][]error{2: {permanent("bad")}})
	svc := NewBatchService(gen, fs, newTestBackoff(3), 0)
	if _, err := svc.Run(ctx, item, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := svc.Resume(ctx, item.ContentType, item.Title, nil); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	after, err := fs.LoadMetadata(ctx, item.ContentType, item.Title)
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	afterJSON, _ := json.Marshal(after)
	if string(beforeJSON) != string(afterJSON) {
		t.Errorf("metadata changed across resume:\nbefore: %s\nafter:  %s", beforeJSON, afterJSON)
	}
}
