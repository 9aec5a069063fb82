package handler

import (
	"errors"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/service"
	"github.com/reelforge/api/internal/store"
	"github.com/reelforge/api/pkg/response"
)

type ContentHandler struct {
	content   *service.ContentService
	jobs      *service.JobService
	validator *validator.Validate
}

func NewContentHandler(content *service.ContentService, jobs *service.JobService, v *validator.Validate) *ContentHandler {
	return &ContentHandler{
		content:   content,
		jobs:      jobs,
		validator: v,
	}
}

// Start handles POST /api/content/start
func (h *ContentHandler) Start(c *fiber.Ctx) error {
	var req model.ContentStartRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	if !model.IsValidContentType(req.ContentType) {
		return response.ValidationError(c, "Unknown content type", fiber.Map{"contentType": string(req.ContentType)})
	}

	item, err := h.content.Start(c.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrAlreadyExists) {
			return response.Conflict(c, "A content item with this title already exists")
		}
		if errors.Is(err, model.ErrMalformedOutput) {
			return response.AIError(c, err.Error())
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, item)
}

// RunBatches handles POST /api/content/batches
func (h *ContentHandler) RunBatches(c *fiber.Ctx) error {
	payload, err := h.parseBatchRequest(c)
	if err != nil {
		return err
	}

	queued, err := h.jobs.EnqueueBatches(c.Context(), payload)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.Accepted(c, queued)
}

// Resume handles POST /api/content/resume
func (h *ContentHandler) Resume(c *fiber.Ctx) error {
	payload, err := h.parseBatchRequest(c)
	if err != nil {
		return err
	}

	// A resume of a never-started item is fatal; reject it here rather
	// than queueing a job doomed to fail.
	if _, err := h.content.Info(c.Context(), payload.ContentType, payload.Title); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Content item not found; start it first")
		}
		return response.ServiceError(c, err.Error())
	}

	queued, err := h.jobs.EnqueueResume(c.Context(), payload)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.Accepted(c, queued)
}

// Info handles GET /api/content/:type/:title
func (h *ContentHandler) Info(c *fiber.Ctx) error {
	contentType, title, err := h.parseItemParams(c)
	if err != nil {
		return err
	}

	info, err := h.content.Info(c.Context(), contentType, title)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Content item not found")
		}
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, info)
}

// Delete handles DELETE /api/content/:type/:title
func (h *ContentHandler) Delete(c *fiber.Ctx) error {
	contentType, title, err := h.parseItemParams(c)
	if err != nil {
		return err
	}

	if err := h.content.Delete(c.Context(), contentType, title); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Content item not found")
		}
		return response.ServiceError(c, err.Error())
	}
	return response.NoContent(c)
}

func (h *ContentHandler) parseBatchRequest(c *fiber.Ctx) (*model.BatchJobPayload, error) {
	var req model.BatchRunRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return nil, response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	if !model.IsValidContentType(req.ContentType) {
		return nil, response.ValidationError(c, "Unknown content type", fiber.Map{"contentType": string(req.ContentType)})
	}
	return &model.BatchJobPayload{ContentType: req.ContentType, Title: req.Title}, nil
}

func (h *ContentHandler) parseItemParams(c *fiber.Ctx) (model.ContentType, string, error) {
	contentType := model.ContentType(c.Params("type"))
	title, err := urlParam(c, "title")
	if err != nil || title == "" {
		return "", "", response.ValidationError(c, "Title is required", nil)
	}
	if !model.IsValidContentType(contentType) {
		return "", "", response.ValidationError(c, "Unknown content type", fiber.Map{"contentType": string(contentType)})
	}
	return contentType, title, nil
}

// urlParam decodes a path parameter; titles may carry percent-encoding.
func urlParam(c *fiber.Ctx, name string) (string, error) {
	return url.QueryUnescape(c.Params(name))
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
