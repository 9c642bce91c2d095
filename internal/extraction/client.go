// Package extraction turns meal audio and pictures into structured nutrition
// data through the OpenAI HTTP API.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/imrishuroy/go-meal-pipeline/internal/logger"
)

var (
	// ErrExtraction is matched by every error this package returns.
	ErrExtraction = errors.New("extraction error")

	// ErrUnavailable covers transport failures, timeouts and retryable HTTP statuses.
	ErrUnavailable = fmt.Errorf("%w: service unavailable", ErrExtraction)

	// ErrMalformedResponse means the payload could not be decoded.
	ErrMalformedResponse = fmt.Errorf("%w: malformed response", ErrExtraction)

	// ErrInvalidNutrition means the payload decoded but failed validation.
	ErrInvalidNutrition = fmt.Errorf("%w: invalid nutrition data", ErrExtraction)
)

// Config configures the OpenAI client.
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	TranscribeModel string
	Language        string
	HTTPClient      *http.Client
}

// Client calls the OpenAI transcription and chat completion endpoints.
type Client struct {
	log             *logger.Logger
	baseURL         string
	apiKey          string
	model           string
	transcribeModel string
	language        string
	httpClient      *http.Client
}

// NewClient validates cfg and fills in defaults.
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	transcribeModel := cfg.TranscribeModel
	if transcribeModel == "" {
		transcribeModel = "whisper-1"
	}
	language := cfg.Language
	if language == "" {
		language = "pt"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// per-call deadlines come from the caller's context
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}

	return &Client{
		log:             log.With("service", "OpenAIClient"),
		baseURL:         baseURL,
		apiKey:          apiKey,
		model:           model,
		transcribeModel: transcribeModel,
		language:        language,
		httpClient:      httpClient,
	}, nil
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func isRetryableStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// send performs one request and classifies failures. There is no retry loop:
// redelivery of the trigger governs retries.
func (c *Client) send(ctx context.Context, path, contentType string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrExtraction, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, path, err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrUnavailable, path, readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		herr := &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
		if isRetryableStatus(resp.StatusCode) {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, herr)
		}
		return nil, fmt.Errorf("%w: %w", ErrExtraction, herr)
	}
	return raw, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode request: %w", ErrExtraction, err)
	}
	raw, err := c.send(ctx, path, "application/json", body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrMalformedResponse, path, err)
	}
	return nil
}
