package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/reelforge/api/internal/client"
	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/store"
)

// ErrAlreadyExists is returned when starting an item whose title is taken
// within its content-type namespace.
var ErrAlreadyExists = errors.New("content item already exists")

// ContentService creates content items and answers questions about them.
// Creation is the only moment metadata is generated; afterwards it is
// immutable for the life of the item.
type ContentService struct {
	textGen       client.TextGenerator
	contentStore  store.ContentStore
	metadataToken int
}

// NewContentService creates a new content service
func NewContentService(textGen client.TextGenerator, contentStore store.ContentStore, metadataTokenBudget int) *ContentService {
	if metadataTokenBudget <= 0 {
		metadataTokenBudget = 2048
	}
	return &ContentService{
		textGen:       textGen,
		contentStore:  contentStore,
		metadataToken: metadataTokenBudget,
	}
}

// Start creates the item: generates its metadata (synopsis, hashtags,
// narrator voice, character roster) from the request and persists it. The
// roster generated here anchors identity for every later set and frame.
func (s *ContentService) Start(ctx context.Context, req *model.ContentStartRequest) (*model.ContentItem, error) {
	if _, err := s.contentStore.LoadMetadata(ctx, req.ContentType, req.Title); err == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrAlreadyExists, req.ContentType, req.Title)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing item: %w", err)
	}

	md, err := s.generateMetadata(ctx, req)
	if err != nil {
		return nil, err
	}

	item := &model.ContentItem{
		ContentType:    req.ContentType,
		Title:          req.Title,
		TotalSegments:  req.TotalSegments,
		SegmentsPerSet: req.SegmentsPerSet,
		Metadata:       md,
	}

	if err := s.contentStore.SaveMetadata(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to persist item: %w", err)
	}
	return item, nil
}

// Info reports the persisted state of an item: which sets exist and which
// are still missing.
func (s *ContentService) Info(ctx context.Context, contentType model.ContentType, title string) (*model.ContentInfoResponse, error) {
	item, err := s.contentStore.LoadMetadata(ctx, contentType, title)
	if err != nil {
		return nil, err
	}

	existing, err := s.contentStore.ListExistingSets(ctx, contentType, title)
	if err != nil {
		return nil, err
	}
	missing, err := s.contentStore.MissingSets(ctx, contentType, title, item.TotalSegments, item.SegmentsPerSet)
	if err != nil {
		return nil, err
	}

	return &model.ContentInfoResponse{
		Item:         item,
		ExistingSets: existing,
		MissingSets:  missing,
		Complete:     len(missing) == 0,
	}, nil
}

// Delete removes the item and all its sets.
func (s *ContentService) Delete(ctx context.Context, contentType model.ContentType, title string) error {
	return s.contentStore.Delete(ctx, contentType, title)
}

func (s *ContentService) generateMetadata(ctx context.Context, req *model.ContentStartRequest) (*model.Metadata, error) {
	if s.textGen == nil || !s.textGen.IsConfigured() {
		return s.generateMockMetadata(req), nil
	}

	system := `You are a showrunner for serialized short-form video.
Always output your response as valid JSON in the exact format requested.
Do not include any text outside the JSON structure.`

	characterCount := req.CharacterCount
	if characterCount <= 0 {
		characterCount = 2
	}

	user := fmt.Sprintf(`Plan a %s production titled %q based on this idea:
%s

Style constraints: %s

Provide:
- "synopsis": a 2-3 sentence synopsis that can carry %d segments
- "hashtags": 3-6 hashtags
- "narrator": a one-line description of the narrator voice
- "characters": exactly %d recurring characters, each with a short stable "id" (lowercase, no spaces), a "name" and a visual "description" detailed enough to regenerate the same look

Output as JSON: {"synopsis": "...", "hashtags": ["..."], "narrator": "...", "characters": [{"id": "...", "name": "...", "description": "..."}]}`,
		req.ContentType, req.Title, req.Idea, req.Style, req.TotalSegments, characterCount)

	response, err := s.textGen.ChatCompletion(ctx, system, user, s.metadataToken)
	if err != nil {
		return nil, fmt.Errorf("metadata generation failed: %w", err)
	}

	var parsed struct {
		Synopsis   string   `json:"synopsis"`
		Hashtags   []string `json:"hashtags"`
		Narrator   string   `json:"narrator"`
		Characters []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"characters"`
	}
	if err := json.Unmarshal([]byte(extractJSON(response)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: invalid metadata JSON: %v", model.ErrMalformedOutput, err)
	}
	if parsed.Synopsis == "" || len(parsed.Characters) == 0 {
		return nil, fmt.Errorf("%w: metadata response missing synopsis or characters", model.ErrMalformedOutput)
	}

	md := &model.Metadata{
		Title:     req.Title,
		Synopsis:  parsed.Synopsis,
		Hashtags:  parsed.Hashtags,
		Narrator:  parsed.Narrator,
		Style:     req.Style,
		CreatedAt: time.Now().UTC(),
	}
	for _, ch := range parsed.Characters {
		id := ch.ID
		if id == "" {
			id = strings.ToLower(strings.ReplaceAll(ch.Name, " ", "-"))
		}
		md.Characters = append(md.Characters, model.CharacterDescriptor{
			ID:          id,
			Name:        ch.Name,
			Description: ch.Description,
		})
	}
	return md, nil
}

func (s *ContentService) generateMockMetadata(req *model.ContentStartRequest) *model.Metadata {
	return &model.Metadata{
		Title:    req.Title,
		Synopsis: fmt.Sprintf("A %s in %d segments: %s", req.ContentType, req.TotalSegments, req.Idea),
		Hashtags: []string{"#reelforge", "#" + store.SanitizeKey(req.Title)},
		Narrator: "Warm, measured documentary narrator.",
		Style:    req.Style,
		Characters: []model.CharacterDescriptor{
			{ID: "lead", Name: "The Lead", Description: "mid-30s, dark coat, expressive eyes"},
		},
		CreatedAt: time.Now().UTC(),
	}
}
