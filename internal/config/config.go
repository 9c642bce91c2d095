// Package config reads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting used by the api, worker and notifier binaries.
type Config struct {
	RunLocal bool
	LogMode  string

	AWSRegion           string
	AWSEndpointOverride string

	MealsTable         string
	IdempotencyTable   string
	MealsBucket        string
	ProcessingQueueURL string
	EventsQueueURL     string
	MetricsNamespace   string

	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAIModel           string
	OpenAITranscribeModel string

	JWTSecret string

	StepTimeout          time.Duration
	StaleProcessingAfter time.Duration
	UploadURLExpiry      time.Duration
	WorkerConcurrency    int
}

// Load reads the environment. With RUN_LOCAL=true a .env file in the working
// directory is loaded first if present; real environment variables win.
func Load() (Config, error) {
	runLocal := os.Getenv("RUN_LOCAL") == "true"
	if runLocal {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := Config{
		RunLocal:              runLocal,
		LogMode:               getenv("LOG_MODE", "prod"),
		AWSRegion:             getenv("AWS_REGION", "us-east-1"),
		AWSEndpointOverride:   os.Getenv("AWS_ENDPOINT_OVERRIDE"),
		MealsTable:            os.Getenv("MEALS_TABLE"),
		IdempotencyTable:      os.Getenv("IDEMPOTENCY_TABLE"),
		MealsBucket:           os.Getenv("MEALS_BUCKET"),
		ProcessingQueueURL:    os.Getenv("PROCESSING_QUEUE_URL"),
		EventsQueueURL:        os.Getenv("EVENTS_QUEUE_URL"),
		MetricsNamespace:      getenv("METRICS_NAMESPACE", "MealPipeline"),
		OpenAIAPIKey:          os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:         getenv("OPENAI_BASE_URL", "https://api.openai.com"),
		OpenAIModel:           getenv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAITranscribeModel: getenv("OPENAI_TRANSCRIBE_MODEL", "whisper-1"),
		JWTSecret:             os.Getenv("JWT_SECRET"),
	}

	var errs []error
	cfg.StepTimeout = durationEnv("STEP_TIMEOUT", 60*time.Second, &errs)
	cfg.StaleProcessingAfter = durationEnv("STALE_PROCESSING_AFTER", 5*time.Minute, &errs)
	cfg.UploadURLExpiry = durationEnv("UPLOAD_URL_EXPIRY", 10*time.Minute, &errs)
	cfg.WorkerConcurrency = intEnv("WORKER_CONCURRENCY", 4, &errs)
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RequireAPI checks the settings the HTTP API cannot start without.
func (c Config) RequireAPI() error {
	return requireEnv(map[string]string{
		"MEALS_TABLE":       c.MealsTable,
		"IDEMPOTENCY_TABLE": c.IdempotencyTable,
		"MEALS_BUCKET":      c.MealsBucket,
		"EVENTS_QUEUE_URL":  c.EventsQueueURL,
		"JWT_SECRET":        c.JWTSecret,
	})
}

// RequireWorker checks the settings the processing worker cannot start without.
func (c Config) RequireWorker() error {
	return requireEnv(map[string]string{
		"MEALS_TABLE":    c.MealsTable,
		"MEALS_BUCKET":   c.MealsBucket,
		"OPENAI_API_KEY": c.OpenAIAPIKey,
	})
}

// RequireNotifier checks the settings the upload notifier cannot start without.
func (c Config) RequireNotifier() error {
	return requireEnv(map[string]string{
		"PROCESSING_QUEUE_URL": c.ProcessingQueueURL,
	})
}

func requireEnv(values map[string]string) error {
	var missing []string
	for name, v := range values {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("missing required env: %s", strings.Join(missing, ", "))
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration, errs *[]error) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("invalid %s %q: want a positive duration such as 30s", key, raw))
		return def
	}
	return d
}

func intEnv(key string, def int, errs *[]error) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		*errs = append(*errs, fmt.Errorf("invalid %s %q: want a positive integer", key, raw))
		return def
	}
	return n
}
