// Package media wraps the local ffmpeg binary for frame work on rendered
// clips.
package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// FrameExtractor pulls still frames out of rendered clips.
type FrameExtractor interface {
	// ExtractLastFrame writes the final frame of the clip at videoPath to
	// framePath as a PNG. The extracted frame is authoritative for
	// continuity: the provider may not end the clip exactly on the
	// requested end frame.
	ExtractLastFrame(ctx context.Context, videoPath, framePath string) error
}

// FFmpegExtractor implements FrameExtractor with the ffmpeg CLI
type FFmpegExtractor struct {
	// Binary is the ffmpeg executable, "ffmpeg" by default.
	Binary string
}

// NewFFmpegExtractor creates an extractor using the ffmpeg on PATH
func NewFFmpegExtractor() *FFmpegExtractor {
	return &FFmpegExtractor{Binary: "ffmpeg"}
}

// ExtractLastFrame seeks to the tail of the clip and keeps the last decoded
// frame. Seeking from the end (-sseof) avoids decoding the whole clip.
func (e *FFmpegExtractor) ExtractLastFrame(ctx context.Context, videoPath, framePath string) error {
	if _, err := os.Stat(videoPath); err != nil {
		return fmt.Errorf("clip not readable: %w", err)
	}

	bin := e.Binary
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, bin, "-y",
		"-sseof", "-1",
		"-i", videoPath,
		"-update", "1",
		"-q:v", "2",
		framePath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg last-frame extraction: %w: %s", err, tail(out, 512))
	}

	// ffmpeg can exit zero without producing output on corrupted trailers.
	if info, err := os.Stat(framePath); err != nil || info.Size() == 0 {
		return fmt.Errorf("ffmpeg produced no frame for %s", videoPath)
	}
	return nil
}

func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[len(b)-n:])
}
