package model

import "time"

// Job represents a background job in the system
type Job struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"` // "batches", "resume" or "video"
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep,omitempty"`
	Error       *string    `json:"error,omitempty"`
	Payload     []byte     `json:"payload,omitempty"` // opaque JSON, round-tripped through redis
	Result      []byte     `json:"result,omitempty"`  // summary JSON, set on completion
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Job types
const (
	JobTypeBatches = "batches"
	JobTypeResume  = "resume"
	JobTypeVideo   = "video"
)

// BatchJobPayload identifies the content item a batches/resume job works on.
type BatchJobPayload struct {
	ContentType ContentType `json:"contentType"`
	Title       string      `json:"title"`
}

// VideoJobPayload identifies the item plus the character reference used as
// the identity anchor for every frame of the run.
type VideoJobPayload struct {
	ContentType     ContentType `json:"contentType"`
	Title           string      `json:"title"`
	CharacterRefKey string      `json:"characterRefKey"`
}

// SetOutcome records how one set fared inside a batch run.
type SetOutcome struct {
	SetNumber int       `json:"setNumber"`
	Status    SetStatus `json:"status"`
	Segments  int       `json:"segments,omitempty"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
}

// JobSummary is the result of a batch or resume run. Success is true only
// when every expected set was persisted — a partial run is never reported
// as success.
type JobSummary struct {
	ContentType           ContentType  `json:"contentType"`
	Title                 string       `json:"title"`
	Success               bool         `json:"success"`
	SuccessfulSets        []int        `json:"successfulSets"`
	FailedSets            []int        `json:"failedSets"`
	Outcomes              []SetOutcome `json:"outcomes"`
	OriginallyFailedCount int          `json:"originallyFailedCount,omitempty"`
}

// SegmentOutcome records how one segment fared inside a video run.
type SegmentOutcome struct {
	Index            int         `json:"index"`
	Rendered         bool        `json:"rendered"`
	ClipPath         string      `json:"clipPath,omitempty"`
	ClipURL          string      `json:"clipUrl,omitempty"`
	StartFrameOrigin FrameOrigin `json:"startFrameOrigin,omitempty"`
	Error            string      `json:"error,omitempty"`
}

// VideoJobSummary is the result of a frame-chained video run. FailedSegment
// is the 1-based index of the segment the run halted at, nil on full
// success. Segments after a failure are never attempted because their start
// frames depend on the failed clip.
type VideoJobSummary struct {
	ContentType   ContentType      `json:"contentType"`
	Title         string           `json:"title"`
	Success       bool             `json:"success"`
	Segments      []SegmentOutcome `json:"segments"`
	FailedSegment *int             `json:"failedSegment,omitempty"`
}

// Request/response shapes for the HTTP surface.

type ContentStartRequest struct {
	ContentType    ContentType `json:"contentType" validate:"required"`
	Title          string      `json:"title" validate:"required,min=1,max=200"`
	Idea           string      `json:"idea" validate:"required,min=1"`
	Style          string      `json:"style,omitempty"`
	TotalSegments  int         `json:"totalSegments" validate:"required,min=1,max=500"`
	SegmentsPerSet int         `json:"segmentsPerSet" validate:"required,min=1,max=50"`
	CharacterCount int         `json:"characterCount,omitempty" validate:"omitempty,min=1,max=10"`
}

type BatchRunRequest struct {
	ContentType ContentType `json:"contentType" validate:"required"`
	Title       string      `json:"title" validate:"required"`
}

type VideoSynthesizeRequest struct {
	ContentType     ContentType `json:"contentType" validate:"required"`
	Title           string      `json:"title" validate:"required"`
	CharacterRefKey string      `json:"characterRefKey" validate:"required"`
}

type JobQueuedResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type JobStatusResponse struct {
	JobID       string     `json:"jobId"`
	Type        string     `json:"type"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type ContentInfoResponse struct {
	Item         *ContentItem `json:"item"`
	ExistingSets []int        `json:"existingSets"`
	MissingSets  []int        `json:"missingSets"`
	Complete     bool         `json:"complete"`
}

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage is the minimal envelope used for client-originated frames.
type WSMessage struct {
	Type string `json:"type"`
}

type WSProgressMessage struct {
	Type        string    `json:"type"`
	JobID       string    `json:"jobId"`
	Progress    int       `json:"progress"`
	Status      JobStatus `json:"status"`
	CurrentStep string    `json:"currentStep,omitempty"`
}

type WSCompleteMessage struct {
	Type   string      `json:"type"`
	JobID  string      `json:"jobId"`
	Result interface{} `json:"result,omitempty"`
}

type WSErrorMessage struct {
	Type    string `json:"type"`
	JobID   string `json:"jobId"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
