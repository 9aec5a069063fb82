package service

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/reelforge/api/internal/client"
	"github.com/reelforge/api/internal/media"
	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/retry"
	"github.com/reelforge/api/internal/store"
)

// VideoService renders a content item's segments as a chain of clips. The
// terminal frame of each rendered clip seeds the next segment, so clips cut
// together without visible jumps. Rendering is strictly sequential within an
// item; concurrency lives at the job level, across items.
type VideoService struct {
	imageGen     client.ImageSynthesizer
	videoGen     client.VideoSynthesizer
	downloader   client.ClipDownloader
	extractor    media.FrameExtractor
	storage      client.StorageClient // nil when object storage is not configured
	contentStore store.ContentStore
	backoff      *retry.Executor

	workDir         string
	segmentDuration int
	pollInterval    time.Duration
	pollMaxWait     time.Duration
}

// NewVideoService creates a new video service
func NewVideoService(
	imageGen client.ImageSynthesizer,
	videoGen client.VideoSynthesizer,
	downloader client.ClipDownloader,
	extractor media.FrameExtractor,
	storage client.StorageClient,
	contentStore store.ContentStore,
	backoff *retry.Executor,
	workDir string,
	segmentDuration int,
	pollInterval, pollMaxWait time.Duration,
) *VideoService {
	if segmentDuration <= 0 {
		segmentDuration = 5
	}
	return &VideoService{
		imageGen:        imageGen,
		videoGen:        videoGen,
		downloader:      downloader,
		extractor:       extractor,
		storage:         storage,
		contentStore:    contentStore,
		backoff:         backoff,
		workDir:         workDir,
		segmentDuration: segmentDuration,
		pollInterval:    pollInterval,
		pollMaxWait:     pollMaxWait,
	}
}

// frameChain carries the state threaded from one segment to the next.
type frameChain struct {
	startFrame []byte
	origin     model.FrameOrigin
}

// Synthesize renders every segment of the item in order. A segment whose
// clip already exists on disk is skipped, so re-running after a partial
// failure resumes at the first unrendered segment. On the first permanent
// failure the run halts: later segments cannot be produced without the
// failed clip's terminal frame. Frame artifacts are deleted only on full
// success.
func (s *VideoService) Synthesize(ctx context.Context, contentType model.ContentType, title, characterRefKey string, progress ProgressFunc) (*model.VideoJobSummary, error) {
	if progress == nil {
		progress = func(int, string) {}
	}

	item, err := s.contentStore.LoadMetadata(ctx, contentType, title)
	if err != nil {
		return nil, err
	}
	segments, err := s.loadOrderedSegments(ctx, item)
	if err != nil {
		return nil, err
	}

	charRef, err := s.loadCharacterReference(ctx, characterRefKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load character reference: %w", err)
	}

	dir := s.itemWorkDir(contentType, title)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}

	summary := &model.VideoJobSummary{
		ContentType: contentType,
		Title:       title,
	}

	chain := s.resolveSeedFrame(ctx, dir, charRef, segments[0])
	total := len(segments)

	for i, seg := range segments {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		progress(i*100/total, fmt.Sprintf("rendering segment %d of %d", seg.Index, total))

		outcome := model.SegmentOutcome{Index: seg.Index, StartFrameOrigin: chain.origin}
		clipPath := filepath.Join(dir, clipFileName(seg.Index))

		if fileExists(clipPath) {
			// Rendered by a previous run; keep it and re-anchor the chain
			// on its actual terminal frame.
			log.Printf("[Video] %s/%s segment %d already rendered, skipping", contentType, title, seg.Index)
			outcome.Rendered = true
			outcome.ClipPath = clipPath
		} else {
			if err := s.renderSegment(ctx, dir, charRef, chain, seg, clipPath); err != nil {
				outcome.Error = err.Error()
				summary.Segments = append(summary.Segments, outcome)
				failedAt := seg.Index
				summary.FailedSegment = &failedAt
				log.Printf("[Video] %s/%s halted at segment %d: %v", contentType, title, seg.Index, err)
				// Clips and frames rendered so far stay on disk so a retry
				// resumes here instead of redoing 1..i-1.
				return summary, nil
			}
			outcome.Rendered = true
			outcome.ClipPath = clipPath
		}

		if i < total-1 {
			chain = s.propagateFrame(ctx, dir, charRef, seg.Index, clipPath)
		}
		summary.Segments = append(summary.Segments, outcome)
	}

	summary.Success = true
	progress(95, "publishing clips")

	if s.storage != nil {
		s.publishClips(ctx, contentType, title, dir, summary)
	}
	s.cleanupFrames(dir)

	progress(100, "done")
	return summary, nil
}

// renderSegment produces one clip: synthesize the end frame, submit the
// video task, await completion, download the result. Every external call is
// wrapped in the shared backoff executor.
func (s *VideoService) renderSegment(ctx context.Context, dir string, charRef []byte, chain frameChain, seg model.Segment, clipPath string) error {
	endFrame, err := s.synthesizeEndFrame(ctx, dir, charRef, chain.startFrame, seg)
	if err != nil {
		return fmt.Errorf("end frame synthesis failed: %w", err)
	}

	taskResult := retry.Do(ctx, s.backoff, func(ctx context.Context) (string, error) {
		return s.videoGen.CreateVideoTask(ctx, &client.VideoTaskRequest{
			StartImage: chain.startFrame,
			EndImage:   endFrame,
			Prompt:     seg.VideoPrompt,
			Duration:   s.segmentDuration,
		})
	})
	if !taskResult.OK() {
		return fmt.Errorf("video task submission failed after %d attempt(s): %w", taskResult.Attempts, taskResult.Err)
	}
	taskID := taskResult.Value

	pollResult := retry.Do(ctx, s.backoff, func(ctx context.Context) (*client.VideoTaskStatus, error) {
		return s.videoGen.PollVideoTask(ctx, taskID, s.pollInterval, s.pollMaxWait)
	})
	if !pollResult.OK() {
		return fmt.Errorf("video task %s did not complete: %w", taskID, pollResult.Err)
	}

	dlResult := retry.Do(ctx, s.backoff, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.downloader.DownloadClip(ctx, pollResult.Value.VideoURL, clipPath)
	})
	if !dlResult.OK() {
		return fmt.Errorf("clip download failed: %w", dlResult.Err)
	}
	return nil
}

// resolveSeedFrame produces the very first start frame of the chain. The
// seed is cosmetic: if synthesis fails, the bare character reference serves
// as the start frame rather than blocking the whole item.
func (s *VideoService) resolveSeedFrame(ctx context.Context, dir string, charRef []byte, first model.Segment) frameChain {
	framePath := filepath.Join(dir, frameFileName(first.Index, model.FrameRoleStart))
	if data, err := os.ReadFile(framePath); err == nil && len(data) > 0 {
		return frameChain{startFrame: data, origin: model.FrameOriginGenerated}
	}

	if !s.imageGenReady() {
		return frameChain{startFrame: charRef, origin: model.FrameOriginReference}
	}

	result := retry.Do(ctx, s.backoff, func(ctx context.Context) ([]byte, error) {
		return s.imageGen.GenerateImage(ctx, [][]byte{charRef}, first.ScenePrompt)
	})
	if !result.OK() {
		log.Printf("[Video] seed frame synthesis failed, falling back to character reference: %v", result.Err)
		return frameChain{startFrame: charRef, origin: model.FrameOriginReference}
	}

	s.writeFrame(framePath, result.Value)
	return frameChain{startFrame: result.Value, origin: model.FrameOriginGenerated}
}

// synthesizeEndFrame renders the requested end frame for a segment from two
// conditioning inputs: the character reference for identity and the resolved
// start frame for continuity. Without image synthesis configured the video
// call runs on the start frame alone.
func (s *VideoService) synthesizeEndFrame(ctx context.Context, dir string, charRef, startFrame []byte, seg model.Segment) ([]byte, error) {
	if !s.imageGenReady() {
		return nil, nil
	}

	result := retry.Do(ctx, s.backoff, func(ctx context.Context) ([]byte, error) {
		return s.imageGen.GenerateImage(ctx, [][]byte{charRef, startFrame}, seg.ScenePrompt)
	})
	if !result.OK() {
		return nil, result.Err
	}

	s.writeFrame(filepath.Join(dir, frameFileName(seg.Index, model.FrameRoleEnd)), result.Value)
	return result.Value, nil
}

// propagateFrame extracts the terminal frame of the clip just rendered and
// makes it the next segment's start frame. The extracted frame is
// authoritative over the synthesized end frame: it is what the viewer
// actually saw last. If extraction fails, the chain re-anchors on the
// character reference instead of halting.
func (s *VideoService) propagateFrame(ctx context.Context, dir string, charRef []byte, segIndex int, clipPath string) frameChain {
	framePath := filepath.Join(dir, frameFileName(segIndex+1, model.FrameRoleStart))

	if err := s.extractor.ExtractLastFrame(ctx, clipPath, framePath); err != nil {
		log.Printf("[Video] terminal frame extraction for segment %d failed, re-anchoring on character reference: %v", segIndex, err)
		return frameChain{startFrame: charRef, origin: model.FrameOriginReference}
	}

	data, err := os.ReadFile(framePath)
	if err != nil || len(data) == 0 {
		log.Printf("[Video] extracted frame for segment %d unreadable, re-anchoring on character reference: %v", segIndex, err)
		return frameChain{startFrame: charRef, origin: model.FrameOriginReference}
	}
	return frameChain{startFrame: data, origin: model.FrameOriginPropagated}
}

// loadOrderedSegments flattens the item's persisted sets into one ordered
// segment list. An incomplete item is a fatal error: rendering against a
// gapped script would chain frames across a hole in the story.
func (s *VideoService) loadOrderedSegments(ctx context.Context, item *model.ContentItem) ([]model.Segment, error) {
	missing, err := s.contentStore.MissingSets(ctx, item.ContentType, item.Title, item.TotalSegments, item.SegmentsPerSet)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("item %s/%s is incomplete, missing sets %v: resume it before synthesizing video", item.ContentType, item.Title, missing)
	}

	var segments []model.Segment
	for n := 1; n <= item.SetCount(); n++ {
		set, err := s.contentStore.LoadSet(ctx, item.ContentType, item.Title, n)
		if err != nil {
			return nil, err
		}
		segments = append(segments, set.Segments...)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("item %s/%s has no segments", item.ContentType, item.Title)
	}
	return segments, nil
}

// loadCharacterReference fetches the identity anchor image. Keys resolve
// through object storage when it is configured, otherwise as local paths.
func (s *VideoService) loadCharacterReference(ctx context.Context, key string) ([]byte, error) {
	if s.storage != nil {
		result := retry.Do(ctx, s.backoff, func(ctx context.Context) ([]byte, error) {
			return s.storage.Download(ctx, key)
		})
		if result.OK() {
			return result.Value, nil
		}
		return nil, result.Err
	}
	return os.ReadFile(key)
}

// publishClips uploads the finished clips to object storage. Upload failures
// are logged, not fatal: the clips still exist locally and the job already
// succeeded creatively.
func (s *VideoService) publishClips(ctx context.Context, contentType model.ContentType, title, dir string, summary *model.VideoJobSummary) {
	for i := range summary.Segments {
		out := &summary.Segments[i]
		if !out.Rendered || out.ClipPath == "" {
			continue
		}
		data, err := os.ReadFile(out.ClipPath)
		if err != nil {
			log.Printf("[Video] cannot read clip for upload: %v", err)
			continue
		}
		key := fmt.Sprintf("videos/%s/%s/%s",
			store.SanitizeKey(string(contentType)), store.SanitizeKey(title), clipFileName(out.Index))
		url, err := s.storage.Upload(ctx, key, bytes.NewReader(data), "video/mp4")
		if err != nil {
			log.Printf("[Video] upload of %s failed: %v", key, err)
			continue
		}
		out.ClipURL = url
	}
}

// cleanupFrames removes the transient frame artifacts after a fully
// successful run. Clips are the durable output and are left alone.
func (s *VideoService) cleanupFrames(dir string) {
	matches, err := filepath.Glob(filepath.Join(dir, "frame_*.png"))
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			log.Printf("[Video] could not remove frame artifact %s: %v", m, err)
		}
	}
}

func (s *VideoService) imageGenReady() bool {
	return s.imageGen != nil && s.imageGen.IsConfigured()
}

func (s *VideoService) itemWorkDir(contentType model.ContentType, title string) string {
	return filepath.Join(s.workDir, store.SanitizeKey(string(contentType)), store.SanitizeKey(title))
}

func (s *VideoService) writeFrame(path string, data []byte) {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Printf("[Video] could not persist frame artifact %s: %v", path, err)
	}
}

func clipFileName(index int) string {
	return fmt.Sprintf("segment_%03d.mp4", index)
}

func frameFileName(index int, role model.FrameRole) string {
	return fmt.Sprintf("frame_%03d_%s.png", index, role)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
