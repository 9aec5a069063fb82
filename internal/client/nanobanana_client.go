package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/reelforge/api/internal/config"
)

// ImageSynthesizer defines the interface for reference-conditioned image
// generation. refs carries zero, one or two reference images: the first is
// the identity anchor (character reference), the second the continuity
// anchor (previous frame).
type ImageSynthesizer interface {
	GenerateImage(ctx context.Context, refs [][]byte, description string) ([]byte, error)
	IsConfigured() bool
}

// NanoBananaClient implements ImageSynthesizer for the NanoBanana image API
type NanoBananaClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// imageInput is one base64-encoded conditioning image
type imageInput struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
}

type imageGenerateRequest struct {
	Model  string       `json:"model"`
	Prompt string       `json:"prompt"`
	Images []imageInput `json:"images,omitempty"`
}

type imageGenerateResponse struct {
	Success bool `json:"success"`
	Image   *struct {
		Data     string `json:"data"`
		MimeType string `json:"mime_type"`
	} `json:"image,omitempty"`
	Error string `json:"error,omitempty"`
}

// NewNanoBananaClient creates a new NanoBanana API client
func NewNanoBananaClient(cfg *config.NanoBananaConfig) *NanoBananaClient {
	return &NanoBananaClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

// GenerateImage synthesizes one still image conditioned on up to two
// reference images. The provider accepts at most two references; extras are
// ignored rather than rejected.
func (c *NanoBananaClient) GenerateImage(ctx context.Context, refs [][]byte, description string) ([]byte, error) {
	reqData := imageGenerateRequest{
		Model:  c.model,
		Prompt: description,
	}
	for i, ref := range refs {
		if i >= 2 {
			break
		}
		if len(ref) == 0 {
			continue
		}
		reqData.Images = append(reqData.Images, imageInput{
			Data:     base64.StdEncoding.EncodeToString(ref),
			MimeType: "image/png",
		})
	}

	bodyBytes, err := json.Marshal(reqData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/images/generate", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Provider: "nanobanana", Code: resp.StatusCode, Body: string(respBody)}
	}

	var genResp imageGenerateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !genResp.Success || genResp.Image == nil {
		return nil, fmt.Errorf("image generation failed: %s", genResp.Error)
	}

	imageData, err := base64.StdEncoding.DecodeString(genResp.Image.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image data: %w", err)
	}

	return imageData, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *NanoBananaClient) IsConfigured() bool {
	return c.apiKey != ""
}
