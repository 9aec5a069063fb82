package client

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/reelforge/api/internal/config"
)

// VideoSynthesizer defines the interface for asynchronous clip generation:
// submit a task, then poll until the provider has rendered the clip.
type VideoSynthesizer interface {
	CreateVideoTask(ctx context.Context, req *VideoTaskRequest) (string, error)
	GetVideoTask(ctx context.Context, taskID string) (*VideoTaskStatus, error)
	PollVideoTask(ctx context.Context, taskID string, interval, maxWait time.Duration) (*VideoTaskStatus, error)
	IsConfigured() bool
}

// ClipDownloader fetches a rendered clip to a local file.
type ClipDownloader interface {
	DownloadClip(ctx context.Context, url, destPath string) error
}

// VideoTaskRequest describes one clip: a start image, an optional end image
// for interpolation, a motion prompt and a duration in seconds.
type VideoTaskRequest struct {
	StartImage []byte
	EndImage   []byte
	Prompt     string
	Duration   int
}

// VideoTaskStatus is the provider-side state of a video task.
type VideoTaskStatus struct {
	TaskID   string
	Status   string // "submitted", "processing", "succeed", "failed"
	VideoURL string
	Message  string
}

// KlingClient implements VideoSynthesizer and ClipDownloader for Kling AI
type KlingClient struct {
	httpClient *http.Client
	baseURL    string
	accessKey  string
	secretKey  string
	model      string
}

type klingInput struct {
	ImageBase64     string `json:"image_base64"`
	ImageTailBase64 string `json:"image_tail_base64,omitempty"`
	Prompt          string `json:"prompt"`
	Duration        int    `json:"duration"`
}

type klingCreateTaskRequest struct {
	Model    string     `json:"model"`
	TaskType string     `json:"task_type"`
	Input    klingInput `json:"input"`
}

type klingTaskResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		TaskResult struct {
			Videos []struct {
				URL      string `json:"url"`
				Duration string `json:"duration"`
			} `json:"videos"`
		} `json:"task_result"`
	} `json:"data"`
}

// NewKlingClient creates a new Kling API client
func NewKlingClient(cfg *config.KlingConfig) *KlingClient {
	return &KlingClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL:   cfg.BaseURL,
		accessKey: cfg.AccessKey,
		secretKey: cfg.SecretKey,
		model:     cfg.Model,
	}
}

// generateJWT builds the short-lived HMAC token Kling expects on every call
func (c *KlingClient) generateJWT() string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))

	now := time.Now().Unix()
	payload := map[string]interface{}{
		"iss": c.accessKey,
		"exp": now + 1800,
		"nbf": now - 5,
	}
	payloadBytes, _ := json.Marshal(payload)
	payloadEncoded := base64.RawURLEncoding.EncodeToString(payloadBytes)

	signingInput := header + "." + payloadEncoded
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(signingInput))
	signature := base64.RawURLEncoding.EncodeToString(h.Sum(nil))

	return signingInput + "." + signature
}

// CreateVideoTask submits an image2video task and returns its task ID.
func (c *KlingClient) CreateVideoTask(ctx context.Context, taskReq *VideoTaskRequest) (string, error) {
	input := klingInput{
		ImageBase64: base64.StdEncoding.EncodeToString(taskReq.StartImage),
		Prompt:      taskReq.Prompt,
		Duration:    taskReq.Duration,
	}
	if len(taskReq.EndImage) > 0 {
		input.ImageTailBase64 = base64.StdEncoding.EncodeToString(taskReq.EndImage)
	}

	reqData := klingCreateTaskRequest{
		Model:    c.model,
		TaskType: "image2video",
		Input:    input,
	}

	var result klingTaskResponse
	if err := c.post(ctx, "/v1/videos/image2video", reqData, &result); err != nil {
		return "", err
	}
	if result.Data.TaskID == "" {
		return "", fmt.Errorf("no task ID in response: %s", result.Message)
	}
	return result.Data.TaskID, nil
}

// GetVideoTask retrieves the current status of a video task.
func (c *KlingClient) GetVideoTask(ctx context.Context, taskID string) (*VideoTaskStatus, error) {
	var result klingTaskResponse
	if err := c.get(ctx, "/v1/videos/image2video/"+taskID, &result); err != nil {
		return nil, err
	}

	status := &VideoTaskStatus{
		TaskID:  result.Data.TaskID,
		Status:  result.Data.TaskStatus,
		Message: result.Message,
	}
	if len(result.Data.TaskResult.Videos) > 0 {
		status.VideoURL = result.Data.TaskResult.Videos[0].URL
	}
	return status, nil
}

// PollVideoTask polls the task until it succeeds, fails, or maxWait passes.
func (c *KlingClient) PollVideoTask(ctx context.Context, taskID string, interval, maxWait time.Duration) (*VideoTaskStatus, error) {
	deadline := time.Now().Add(maxWait)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++
		status, err := c.GetVideoTask(ctx, taskID)
		if err != nil {
			log.Printf("[Kling] Poll #%d (task=%s) — error: %v", attempt, taskID, err)
			return nil, err
		}

		log.Printf("[Kling] Poll #%d (task=%s) — status: %s", attempt, taskID, status.Status)

		switch status.Status {
		case "succeed":
			if status.VideoURL == "" {
				return nil, fmt.Errorf("task %s succeeded without a video URL", taskID)
			}
			return status, nil
		case "failed":
			return nil, fmt.Errorf("video task failed: %s", status.Message)
		}

		select {
		case <-ctx.Done():
			log.Printf("[Kling] Poll (task=%s) — context cancelled", taskID)
			return nil, ctx.Err()
		case <-time.After(interval):
			continue
		}
	}

	return nil, fmt.Errorf("video task timed out after %v", maxWait)
}

// DownloadClip streams a rendered clip to destPath.
func (c *KlingClient) DownloadClip(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download clip: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Provider: "kling-cdn", Code: resp.StatusCode, Body: string(body)}
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create clip file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("failed to write clip file: %w", err)
	}
	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *KlingClient) IsConfigured() bool {
	return c.accessKey != "" && c.secretKey != ""
}

func (c *KlingClient) post(ctx context.Context, endpoint string, body, out interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.generateJWT())

	return c.do(req, out)
}

func (c *KlingClient) get(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.generateJWT())

	return c.do(req, out)
}

func (c *KlingClient) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Provider: "kling", Code: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
