package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	Groq       GroqConfig
	NanoBanana NanoBananaConfig
	Kling      KlingConfig
	R2         R2Config
	Store      StoreConfig
	Pipeline   PipelineConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	StartPerMin  int
	BatchPerHour int
	VideoPerHour int
	InfoPerMin   int
}

type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type NanoBananaConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type KlingConfig struct {
	AccessKey string
	SecretKey string
	BaseURL   string
	Model     string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type StoreConfig struct {
	Root    string // durable content store root
	WorkDir string // per-item frame/clip workspace
}

type PipelineConfig struct {
	MaxAttempts         int // retry budget per external call
	BackoffBaseSeconds  int
	SetIntervalSeconds  int // pause between set generations
	MetadataTokenBudget int
	SegmentTokenBudget  int // per requested segment
	SegmentDuration     int // seconds of video per segment
	VideoPollSeconds    int
	VideoPollMaxMinutes int
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("GROQ_API_KEY")
	readSecret("NANOBANANA_API_KEY")
	readSecret("KLING_ACCESS_KEY")
	readSecret("KLING_SECRET_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("groq.api_key", "GROQ_API_KEY")
	_ = viper.BindEnv("groq.base_url", "GROQ_BASE_URL")
	_ = viper.BindEnv("groq.model", "GROQ_MODEL")
	_ = viper.BindEnv("nanobanana.api_key", "NANOBANANA_API_KEY")
	_ = viper.BindEnv("nanobanana.base_url", "NANOBANANA_BASE_URL")
	_ = viper.BindEnv("nanobanana.model", "NANOBANANA_MODEL")
	_ = viper.BindEnv("kling.access_key", "KLING_ACCESS_KEY")
	_ = viper.BindEnv("kling.secret_key", "KLING_SECRET_KEY")
	_ = viper.BindEnv("kling.base_url", "KLING_BASE_URL")
	_ = viper.BindEnv("kling.model", "KLING_MODEL")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("store.root", "STORE_ROOT")
	_ = viper.BindEnv("store.work_dir", "STORE_WORK_DIR")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.start_per_min", 10)
	viper.SetDefault("ratelimit.batch_per_hour", 10)
	viper.SetDefault("ratelimit.video_per_hour", 5)
	viper.SetDefault("ratelimit.info_per_min", 60)

	// Groq defaults
	viper.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("groq.model", "llama-3.3-70b-versatile")

	// NanoBanana defaults
	viper.SetDefault("nanobanana.base_url", "https://api.nanobanana.ai")
	viper.SetDefault("nanobanana.model", "nanobanana-v1")

	// Kling defaults
	viper.SetDefault("kling.base_url", "https://api.klingai.com")
	viper.SetDefault("kling.model", "kling-v1")

	// Store defaults
	viper.SetDefault("store.root", "./data/content")
	viper.SetDefault("store.work_dir", "./data/work")

	// Pipeline defaults
	viper.SetDefault("pipeline.max_attempts", 3)
	viper.SetDefault("pipeline.backoff_base_seconds", 2)
	viper.SetDefault("pipeline.set_interval_seconds", 3)
	viper.SetDefault("pipeline.metadata_token_budget", 2048)
	viper.SetDefault("pipeline.segment_token_budget", 400)
	viper.SetDefault("pipeline.segment_duration", 5)
	viper.SetDefault("pipeline.video_poll_seconds", 5)
	viper.SetDefault("pipeline.video_poll_max_minutes", 10)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			StartPerMin:  viper.GetInt("ratelimit.start_per_min"),
			BatchPerHour: viper.GetInt("ratelimit.batch_per_hour"),
			VideoPerHour: viper.GetInt("ratelimit.video_per_hour"),
			InfoPerMin:   viper.GetInt("ratelimit.info_per_min"),
		},
		Groq: GroqConfig{
			APIKey:  viper.GetString("groq.api_key"),
			BaseURL: viper.GetString("groq.base_url"),
			Model:   viper.GetString("groq.model"),
		},
		NanoBanana: NanoBananaConfig{
			APIKey:  viper.GetString("nanobanana.api_key"),
			BaseURL: viper.GetString("nanobanana.base_url"),
			Model:   viper.GetString("nanobanana.model"),
		},
		Kling: KlingConfig{
			AccessKey: viper.GetString("kling.access_key"),
			SecretKey: viper.GetString("kling.secret_key"),
			BaseURL:   viper.GetString("kling.base_url"),
			Model:     viper.GetString("kling.model"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Store: StoreConfig{
			Root:    viper.GetString("store.root"),
			WorkDir: viper.GetString("store.work_dir"),
		},
		Pipeline: PipelineConfig{
			MaxAttempts:         viper.GetInt("pipeline.max_attempts"),
			BackoffBaseSeconds:  viper.GetInt("pipeline.backoff_base_seconds"),
			SetIntervalSeconds:  viper.GetInt("pipeline.set_interval_seconds"),
			MetadataTokenBudget: viper.GetInt("pipeline.metadata_token_budget"),
			SegmentTokenBudget:  viper.GetInt("pipeline.segment_token_budget"),
			SegmentDuration:     viper.GetInt("pipeline.segment_duration"),
			VideoPollSeconds:    viper.GetInt("pipeline.video_poll_seconds"),
			VideoPollMaxMinutes: viper.GetInt("pipeline.video_poll_max_minutes"),
		},
	}

	return cfg, nil
}
