// Package pipeline drives the meal lifecycle: creating meals with an upload
// handle and turning upload notifications into extracted nutrition data.
package pipeline

import (
	"context"
	"time"

	"github.com/imrishuroy/go-meal-pipeline/internal/meals"
)

// Repository persists meals. *meals.Store implements it.
type Repository interface {
	Create(ctx context.Context, m meals.Meal) (meals.Meal, error)
	GetByFileKey(ctx context.Context, fileKey string) (meals.Meal, error)
	GetByIDAndUser(ctx context.Context, id, userID string) (meals.Meal, error)
	ListByUserAndDay(ctx context.Context, userID, date string, status meals.Status) ([]meals.Meal, error)
	Update(ctx context.Context, m meals.Meal) (meals.Meal, error)
	Delete(ctx context.Context, id, userID string) error
}

// FileSource reads uploaded meal files. *storage.Gateway implements it.
type FileSource interface {
	FetchBytes(ctx context.Context, key string) ([]byte, error)
	ImageURL(ctx context.Context, key string) (string, error)
}

// UploadIssuer hands out time-limited write credentials.
type UploadIssuer interface {
	IssueUploadHandle(ctx context.Context, key, contentType string) (string, error)
}

// Extractor is the AI extraction gateway. *extraction.Client implements it.
type Extractor interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
	ExtractFromText(ctx context.Context, text string, referenceTime time.Time) (meals.Details, error)
	ExtractFromImage(ctx context.Context, imageURL string, referenceTime time.Time) (meals.Details, error)
}

// EventPublisher sends a message with string attributes to a queue.
type EventPublisher interface {
	Publish(ctx context.Context, body string, attributes map[string]string) error
}

// Metrics receives one observation per finished processing attempt.
type Metrics interface {
	MealProcessed(ctx context.Context, status string, elapsed time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) MealProcessed(context.Context, string, time.Duration) {}
