// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"dev"`
	Port     int    `env:"PORT" envDefault:"8080"`
	MongoURI string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDB  string `env:"MONGO_DB" envDefault:"interview_analyzer"`
	// RedisAddr backs the pub/sub event notifier; empty disables publishing.
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	EventChannel  string `env:"EVENT_CHANNEL" envDefault:"interview.analysis.events"`

	// Analysis worker pool
	MaxWorkers   int           `env:"MAX_WORKERS" envDefault:"2"`
	MaxQueueSize int           `env:"MAX_QUEUE_SIZE" envDefault:"100"`
	TaskTimeout  time.Duration `env:"TASK_TIMEOUT" envDefault:"5m"`
	MaxRetries   int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryDelay   time.Duration `env:"RETRY_DELAY" envDefault:"5s"`
	// DrainInterval is a safety re-drain tick for the pool's queue.
	DrainInterval time.Duration `env:"DRAIN_INTERVAL" envDefault:"1s"`

	// Transcription service (Whisper-compatible HTTP endpoint)
	TranscriptionURL     string        `env:"TRANSCRIPTION_URL" envDefault:"http://localhost:9000"`
	TranscriptionAPIKey  string        `env:"TRANSCRIPTION_API_KEY"`
	TranscriptionTimeout time.Duration `env:"TRANSCRIPTION_TIMEOUT" envDefault:"120s"`

	// Scoring LLM endpoint (OpenAI-compatible chat completions)
	ScoringBaseURL   string        `env:"SCORING_BASE_URL" envDefault:"https://api.openai.com/v1"`
	ScoringAPIKey    string        `env:"SCORING_API_KEY"`
	ScoringModel     string        `env:"SCORING_MODEL" envDefault:"gpt-4o-mini"`
	ScoringTimeout   time.Duration `env:"SCORING_TIMEOUT" envDefault:"90s"`
	ScoringMaxTokens int           `env:"SCORING_MAX_TOKENS" envDefault:"1500"`
	// PromptTokenBudget caps transcript text packed into the scoring prompt.
	PromptTokenBudget int `env:"PROMPT_TOKEN_BUDGET" envDefault:"6000"`
	// RubricPath optionally overrides the built-in scoring rubric.
	RubricPath string `env:"RUBRIC_PATH"`

	// Upstream call backoff
	BackoffMaxElapsedTime  time.Duration `env:"BACKOFF_MAX_ELAPSED_TIME" envDefault:"60s"`
	BackoffInitialInterval time.Duration `env:"BACKOFF_INITIAL_INTERVAL" envDefault:"1s"`
	BackoffMaxInterval     time.Duration `env:"BACKOFF_MAX_INTERVAL" envDefault:"15s"`
	BackoffMultiplier      float64       `env:"BACKOFF_MULTIPLIER" envDefault:"2.0"`

	// Stuck-task sweeper
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	MaxProcessingAge time.Duration `env:"MAX_PROCESSING_AGE" envDefault:"10m"`

	// HTTP server
	OTLPEndpoint          string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName       string        `env:"OTEL_SERVICE_NAME" envDefault:"ai-interview-analyzer"`
	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"30"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// GetBackoffConfig returns upstream backoff settings for the current
// environment. Test runs get much shorter windows.
func (c Config) GetBackoffConfig() (maxElapsedTime, initialInterval, maxInterval time.Duration, multiplier float64) {
	if c.IsTest() {
		return 2 * time.Second, 50 * time.Millisecond, 500 * time.Millisecond, 2.0
	}
	return c.BackoffMaxElapsedTime, c.BackoffInitialInterval, c.BackoffMaxInterval, c.BackoffMultiplier
}
