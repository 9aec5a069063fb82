package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/reelforge/api/internal/client"
	"github.com/reelforge/api/internal/config"
	"github.com/reelforge/api/internal/handler"
	"github.com/reelforge/api/internal/middleware"
	"github.com/reelforge/api/internal/service"
	"github.com/reelforge/api/internal/store"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app  *fiber.App
	auth *middleware.AuthMiddleware
}

// setupApp creates a Fiber app wired like main.go but with unconfigured
// external clients, so every service falls back to its mock output. Tests
// are skipped when the local redis is unreachable.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // test DB, away from development data
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: "localhost:6379",
		DB:   15,
	})
	t.Cleanup(func() { asynqClient.Close() })

	validate := validator.New()

	// Unconfigured clients trigger mock fallbacks in the services.
	groqClient := client.NewGroqClient(&config.GroqConfig{})

	contentStore := store.NewFSStore(t.TempDir())

	contentService := service.NewContentService(groqClient, contentStore, 2048)
	jobService := service.NewJobService(redisClient, asynqClient)

	contentHandler := handler.NewContentHandler(contentService, jobService, validate)
	videoHandler := handler.NewVideoHandler(jobService, validate)
	jobHandler := handler.NewJobHandler(jobService)

	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", authMiddleware.Authenticate())

	// High rate limits so tests never trip them.
	content := api.Group("/content")
	content.Post("/start", rateLimiter.StartLimit(10000), contentHandler.Start)
	content.Post("/batches", rateLimiter.BatchLimit(10000), contentHandler.RunBatches)
	content.Post("/resume", rateLimiter.BatchLimit(10000), contentHandler.Resume)
	content.Get("/:type/:title", rateLimiter.InfoLimit(10000), contentHandler.Info)
	content.Delete("/:type/:title", contentHandler.Delete)

	videos := api.Group("/videos", rateLimiter.VideoLimit(10000))
	videos.Post("/synthesize", videoHandler.Synthesize)

	jobs := api.Group("/jobs", rateLimiter.InfoLimit(10000))
	jobs.Get("/:jobId/status", jobHandler.Status)
	jobs.Get("/:jobId/result", jobHandler.Result)

	return &testApp{app: app, auth: authMiddleware}
}

// generateToken creates an HMAC JWT for test requests.
func generateToken(t *testing.T, a *testApp) string {
	t.Helper()
	token, err := a.auth.GenerateToken("test-user-123", "test@example.com")
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, a *testApp, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t, a)
	return doRequest(a.app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
