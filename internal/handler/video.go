package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/service"
	"github.com/reelforge/api/pkg/response"
)

type VideoHandler struct {
	jobs      *service.JobService
	validator *validator.Validate
}

func NewVideoHandler(jobs *service.JobService, v *validator.Validate) *VideoHandler {
	return &VideoHandler{
		jobs:      jobs,
		validator: v,
	}
}

// Synthesize handles POST /api/videos/synthesize
func (h *VideoHandler) Synthesize(c *fiber.Ctx) error {
	var req model.VideoSynthesizeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	if !model.IsValidContentType(req.ContentType) {
		return response.ValidationError(c, "Unknown content type", fiber.Map{"contentType": string(req.ContentType)})
	}

	queued, err := h.jobs.EnqueueVideo(c.Context(), &model.VideoJobPayload{
		ContentType:     req.ContentType,
		Title:           req.Title,
		CharacterRefKey: req.CharacterRefKey,
	})
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.Accepted(c, queued)
}
