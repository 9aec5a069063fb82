package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/reelforge/api/internal/client"
	"github.com/reelforge/api/internal/model"
)

// SetGenerator defines the interface for producing one set of segments.
type SetGenerator interface {
	GenerateSet(ctx context.Context, item *model.ContentItem, setNumber int) (*model.Set, error)
}

// ScriptService asks the text provider for one batch of scripted segments
// at a time, always against the item's immutable metadata.
type ScriptService struct {
	textGen client.TextGenerator

	// tokens granted per requested segment; the output budget must grow
	// with the batch size or large sets come back truncated.
	segmentTokenBudget int
}

// NewScriptService creates a new script service
func NewScriptService(textGen client.TextGenerator, segmentTokenBudget int) *ScriptService {
	if segmentTokenBudget <= 0 {
		segmentTokenBudget = 400
	}
	return &ScriptService{
		textGen:            textGen,
		segmentTokenBudget: segmentTokenBudget,
	}
}

// GenerateSet requests exactly the segments belonging to setNumber. The
// response is decoded and validated at this boundary: a truncated or
// wrong-sized reply is a structural failure, not something worth retrying.
func (s *ScriptService) GenerateSet(ctx context.Context, item *model.ContentItem, setNumber int) (*model.Set, error) {
	count := item.SegmentsInSet(setNumber)
	if count < 1 {
		return nil, fmt.Errorf("set %d is out of range for %q", setNumber, item.Title)
	}
	startIndex := (setNumber-1)*item.SegmentsPerSet + 1

	if s.textGen == nil || !s.textGen.IsConfigured() {
		return s.generateMockSet(item, setNumber, startIndex, count), nil
	}

	system := s.buildSystemPrompt(item.Metadata)
	user := s.buildSetPrompt(item, setNumber, startIndex, count)

	response, err := s.textGen.ChatCompletion(ctx, system, user, s.TokenBudget(count))
	if err != nil {
		return nil, fmt.Errorf("script generation failed: %w", err)
	}

	segments, err := s.parseSetResponse(response, startIndex, count)
	if err != nil {
		return nil, err
	}

	return &model.Set{
		SetNumber: setNumber,
		Status:    model.SetStatusSuccess,
		Segments:  segments,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// TokenBudget returns the completion budget for a batch of count segments.
func (s *ScriptService) TokenBudget(count int) int {
	return 256 + count*s.segmentTokenBudget
}

func (s *ScriptService) buildSystemPrompt(md *model.Metadata) string {
	var roster strings.Builder
	for _, ch := range md.Characters {
		fmt.Fprintf(&roster, "- %s (%s): %s\n", ch.Name, ch.ID, ch.Description)
	}

	return fmt.Sprintf(`You are a screenwriter for serialized short-form video.
You write for the production titled %q.
Synopsis: %s
Style: %s
Recurring cast (use only these characters, never invent new ones):
%s
Always output your response as valid JSON in the exact format requested.
Do not include any text outside the JSON structure.`,
		md.Title, md.Synopsis, md.Style, roster.String())
}

func (s *ScriptService) buildSetPrompt(item *model.ContentItem, setNumber, startIndex, count int) string {
	return fmt.Sprintf(`Write segments %d through %d of %d for this production (batch %d of %d).
Each segment is one scene of roughly 5 seconds of video.

For every segment provide:
- "narration": the spoken line for the scene
- "scenePrompt": a visual description of the scene and character pose
- "videoPrompt": the camera and motion direction for the clip

Write exactly %d segments, in order, continuing naturally from the synopsis.

Output as JSON: {"segments": [{"narration": "...", "scenePrompt": "...", "videoPrompt": "..."}]}`,
		startIndex, startIndex+count-1, item.TotalSegments, setNumber, item.SetCount(), count)
}

func (s *ScriptService) parseSetResponse(response string, startIndex, count int) ([]model.Segment, error) {
	response = extractJSON(response)

	var result struct {
		Segments []struct {
			Narration   string `json:"narration"`
			ScenePrompt string `json:"scenePrompt"`
			VideoPrompt string `json:"videoPrompt"`
		} `json:"segments"`
	}

	if err := json.Unmarshal([]byte(response), &result); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", model.ErrMalformedOutput, err)
	}
	if len(result.Segments) != count {
		return nil, fmt.Errorf("%w: asked for %d segments, got %d", model.ErrMalformedOutput, count, len(result.Segments))
	}

	segments := make([]model.Segment, 0, count)
	for i, seg := range result.Segments {
		if seg.Narration == "" && seg.ScenePrompt == "" {
			return nil, fmt.Errorf("%w: segment %d is empty", model.ErrMalformedOutput, startIndex+i)
		}
		segments = append(segments, model.Segment{
			Index:       startIndex + i,
			Narration:   seg.Narration,
			ScenePrompt: seg.ScenePrompt,
			VideoPrompt: seg.VideoPrompt,
		})
	}
	return segments, nil
}

// extractJSON attempts to extract JSON from a response that may contain extra text
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")

	if start != -1 && end != -1 && end > start {
		return s[start : end+1]
	}
	return s
}

// generateMockSet produces deterministic segments for development/testing
func (s *ScriptService) generateMockSet(item *model.ContentItem, setNumber, startIndex, count int) *model.Set {
	segments := make([]model.Segment, 0, count)
	for i := 0; i < count; i++ {
		idx := startIndex + i
		segments = append(segments, model.Segment{
			Index:       idx,
			Narration:   fmt.Sprintf("Scene %d of %s.", idx, item.Title),
			ScenePrompt: fmt.Sprintf("Wide shot, scene %d, main character centered.", idx),
			VideoPrompt: "Slow push-in, natural lighting.",
		})
	}
	return &model.Set{
		SetNumber: setNumber,
		Status:    model.SetStatusSuccess,
		Segments:  segments,
		CreatedAt: time.Now().UTC(),
	}
}
