package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/reelforge/api/internal/client"
	"github.com/reelforge/api/internal/config"
	"github.com/reelforge/api/internal/handler"
	"github.com/reelforge/api/internal/media"
	"github.com/reelforge/api/internal/middleware"
	"github.com/reelforge/api/internal/retry"
	"github.com/reelforge/api/internal/service"
	"github.com/reelforge/api/internal/store"
	"github.com/reelforge/api/internal/worker"
	ws "github.com/reelforge/api/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Redis backs job records, rate limits and the task queue.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	validate := validator.New()

	hub := ws.NewHub()
	go hub.Run()

	// Provider clients. Unconfigured providers fall back to mock output so
	// the pipeline stays runnable in development.
	groqClient := client.NewGroqClient(&cfg.Groq)
	imageClient := client.NewNanoBananaClient(&cfg.NanoBanana)
	klingClient := client.NewKlingClient(&cfg.Kling)

	var storage client.StorageClient
	if r2, err := client.NewR2Client(&cfg.R2); err != nil {
		log.Printf("Warning: R2 not configured, clips stay local: %v", err)
	} else {
		storage = r2
	}

	contentStore := store.NewFSStore(cfg.Store.Root)

	backoff := retry.New(
		cfg.Pipeline.MaxAttempts,
		time.Duration(cfg.Pipeline.BackoffBaseSeconds)*time.Second,
		client.IsTransient,
	)

	// Services
	contentService := service.NewContentService(groqClient, contentStore, cfg.Pipeline.MetadataTokenBudget)
	scriptService := service.NewScriptService(groqClient, cfg.Pipeline.SegmentTokenBudget)
	batchService := service.NewBatchService(scriptService, contentStore, backoff,
		time.Duration(cfg.Pipeline.SetIntervalSeconds)*time.Second)
	videoService := service.NewVideoService(
		imageClient, klingClient, klingClient, media.NewFFmpegExtractor(), storage,
		contentStore, backoff, cfg.Store.WorkDir, cfg.Pipeline.SegmentDuration,
		time.Duration(cfg.Pipeline.VideoPollSeconds)*time.Second,
		time.Duration(cfg.Pipeline.VideoPollMaxMinutes)*time.Minute,
	)
	jobService := service.NewJobService(redisClient, asynqClient)

	// Handlers
	contentHandler := handler.NewContentHandler(contentService, jobService, validate)
	videoHandler := handler.NewVideoHandler(jobService, validate)
	jobHandler := handler.NewJobHandler(jobService)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    10 * 1024 * 1024, // 10MB
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", authMiddleware.Authenticate())

	// Content routes
	content := api.Group("/content")
	content.Post("/start", rateLimiter.StartLimit(cfg.RateLimit.StartPerMin), contentHandler.Start)
	content.Post("/batches", rateLimiter.BatchLimit(cfg.RateLimit.BatchPerHour), contentHandler.RunBatches)
	content.Post("/resume", rateLimiter.BatchLimit(cfg.RateLimit.BatchPerHour), contentHandler.Resume)
	content.Get("/:type/:title", rateLimiter.InfoLimit(cfg.RateLimit.InfoPerMin), contentHandler.Info)
	content.Delete("/:type/:title", contentHandler.Delete)

	// Video routes
	videos := api.Group("/videos", rateLimiter.VideoLimit(cfg.RateLimit.VideoPerHour))
	videos.Post("/synthesize", videoHandler.Synthesize)

	// Job routes
	jobs := api.Group("/jobs", rateLimiter.InfoLimit(cfg.RateLimit.InfoPerMin))
	jobs.Get("/:jobId/status", jobHandler.Status)
	jobs.Get("/:jobId/result", jobHandler.Result)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, batchService, videoService, jobService, contentStore, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	batchService *service.BatchService,
	videoService *service.VideoService,
	jobService *service.JobService,
	contentStore *store.FSStore,
	hub *ws.Hub,
) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"batches": 6,
				"video":   4,
			},
		},
	)

	batchWorker := worker.NewBatchWorker(batchService, jobService, contentStore, hub)
	videoWorker := worker.NewVideoWorker(videoService, jobService, hub)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeBatches, batchWorker.ProcessBatches)
	mux.HandleFunc(service.TaskTypeResume, batchWorker.ProcessResume)
	mux.HandleFunc(service.TaskTypeVideo, videoWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
