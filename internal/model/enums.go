package model

// Content types
type ContentType string

const (
	ContentTypeMovie          ContentType = "movie"
	ContentTypeStory          ContentType = "story"
	ContentTypeMeme           ContentType = "meme"
	ContentTypeFreeContent    ContentType = "free-content"
	ContentTypeMusicVideo     ContentType = "music-video"
	ContentTypeDailyCharacter ContentType = "daily-character"
)

var ValidContentTypes = []ContentType{
	ContentTypeMovie, ContentTypeStory, ContentTypeMeme,
	ContentTypeFreeContent, ContentTypeMusicVideo, ContentTypeDailyCharacter,
}

// IsValidContentType reports whether t is a known content type
func IsValidContentType(t ContentType) bool {
	for _, v := range ValidContentTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Set status
type SetStatus string

const (
	SetStatusPending SetStatus = "pending"
	SetStatusSuccess SetStatus = "success"
	SetStatusFailed  SetStatus = "failed"
)

// Job status
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// Frame roles within a segment
type FrameRole string

const (
	FrameRoleStart FrameRole = "start"
	FrameRoleEnd   FrameRole = "end"
)

// FrameOrigin records how a segment's start frame was resolved
type FrameOrigin string

const (
	// FrameOriginGenerated means the frame was synthesized fresh by the
	// image service.
	FrameOriginGenerated FrameOrigin = "generated-fresh"
	// FrameOriginPropagated means the frame was extracted from the
	// previous segment's rendered clip.
	FrameOriginPropagated FrameOrigin = "propagated-from-previous-clip"
	// FrameOriginReference means the bare character reference was used
	// as a fallback.
	FrameOriginReference FrameOrigin = "character-reference"
)
