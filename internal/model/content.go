package model

import (
	"errors"
	"time"
)

// ErrMalformedOutput marks a structurally invalid provider response
// (truncated JSON, wrong segment count). It is never retried.
var ErrMalformedOutput = errors.New("malformed provider output")

// CharacterDescriptor is one roster entry. The ID and reference image stay
// stable for the lifetime of a content item so every frame and clip is
// anchored to the same identity.
type CharacterDescriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	// ReferenceKey is the object-storage key of the character reference
	// image, set once at item creation.
	ReferenceKey string `json:"referenceKey,omitempty"`
}

// Metadata is the immutable shared context of one content item. It is
// written once when the item is created and every set generation call reads
// this exact record — regenerating it mid-job would break character and
// style continuity.
type Metadata struct {
	Title      string                `json:"title"`
	Synopsis   string                `json:"synopsis"`
	Hashtags   []string              `json:"hashtags,omitempty"`
	Narrator   string                `json:"narrator,omitempty"`
	Style      string                `json:"style,omitempty"`
	Characters []CharacterDescriptor `json:"characters"`
	CreatedAt  time.Time             `json:"createdAt"`
}

// ContentItem is one end-to-end generation job: a title's worth of segments
// plus the knobs that shape how they are produced.
type ContentItem struct {
	ContentType    ContentType `json:"contentType"`
	Title          string      `json:"title"`
	TotalSegments  int         `json:"totalSegments"`
	SegmentsPerSet int         `json:"segmentsPerSet"`
	Metadata       *Metadata   `json:"metadata"`
}

// SetCount returns the number of sets needed to cover all segments.
func (c *ContentItem) SetCount() int {
	if c.SegmentsPerSet <= 0 {
		return 0
	}
	return (c.TotalSegments + c.SegmentsPerSet - 1) / c.SegmentsPerSet
}

// SegmentsInSet returns how many segments set number n (1-based) must hold.
// Every set is full except possibly the last.
func (c *ContentItem) SegmentsInSet(n int) int {
	if n < 1 || n > c.SetCount() {
		return 0
	}
	remaining := c.TotalSegments - (n-1)*c.SegmentsPerSet
	if remaining > c.SegmentsPerSet {
		return c.SegmentsPerSet
	}
	return remaining
}

// Segment is the smallest addressable unit of content: one scene's worth of
// script, and (for video-bearing items) the frame bookkeeping for its clip.
type Segment struct {
	Index int `json:"index"` // global, 1-based

	// Creative fields. Opaque to the pipeline; the script service fills
	// them from the text provider and the video service reads the prompts.
	Narration   string `json:"narration,omitempty"`
	VideoPrompt string `json:"videoPrompt,omitempty"`
	ScenePrompt string `json:"scenePrompt,omitempty"`

	// Frame bookkeeping, populated during video synthesis.
	StartFrameOrigin FrameOrigin `json:"startFrameOrigin,omitempty"`
	EndFrameOrigin   FrameOrigin `json:"endFrameOrigin,omitempty"`
}

// Set is a contiguous slice of segments produced by one text-generation
// call. Sets are persisted individually so a failed call loses only its own
// slice.
type Set struct {
	SetNumber int       `json:"setNumber"` // 1-based
	Status    SetStatus `json:"status"`
	Segments  []Segment `json:"segments,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
