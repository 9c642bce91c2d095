package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-meal-pipeline/internal/logger"
	"github.com/imrishuroy/go-meal-pipeline/internal/meals"
	"github.com/imrishuroy/go-meal-pipeline/internal/storage"
)

// CreateResult is returned by CreateMeal.
type CreateResult struct {
	Meal      meals.Meal
	UploadURL string
}

// Creator allocates meals and serves the owner-scoped read paths.
type Creator struct {
	repo    Repository
	uploads UploadIssuer
	events  EventPublisher
	log     *logger.Logger
	nowFunc func() time.Time
	newID   func() string
	newKey  func(fileType string) (string, error)
}

func NewCreator(repo Repository, uploads UploadIssuer, events EventPublisher, log *logger.Logger) *Creator {
	if log == nil {
		log = logger.Nop()
	}
	return &Creator{
		repo:    repo,
		uploads: uploads,
		events:  events,
		log:     log.With("service", "MealCreator"),
		nowFunc: time.Now,
		newID:   uuid.NewString,
		newKey:  storage.NewObjectKey,
	}
}

// CreateMeal issues an upload handle, then persists the meal in uploading state,
// then announces it. A handle failure leaves no row behind.
func (c *Creator) CreateMeal(ctx context.Context, userID, fileType string) (CreateResult, error) {
	inputType, err := meals.InputTypeFor(fileType)
	if err != nil {
		return CreateResult{}, err
	}
	key, err := c.newKey(fileType)
	if err != nil {
		return CreateResult{}, err
	}

	uploadURL, err := c.uploads.IssueUploadHandle(ctx, key, fileType)
	if err != nil {
		return CreateResult{}, err
	}

	meal, err := c.repo.Create(ctx, meals.NewMeal(c.newID(), userID, inputType, key, c.nowFunc()))
	if err != nil {
		return CreateResult{}, err
	}
	log := c.log.With("meal_id", meal.ID, "user_id", userID)

	body, err := json.Marshal(MealCreatedEvent{
		MealID:    meal.ID,
		UserID:    meal.UserID,
		InputType: string(meal.InputType),
		FileKey:   meal.InputFileKey,
		CreatedAt: meal.CreatedAt,
	})
	if err != nil {
		return CreateResult{}, fmt.Errorf("marshal meal created event: %w", err)
	}
	if err := c.events.Publish(ctx, string(body), map[string]string{EventTypeAttribute: EventMealCreated}); err != nil {
		log.Error("publish meal created event failed", "error", err.Error())
		return CreateResult{}, fmt.Errorf("publish meal created event: %w", err)
	}

	log.Info("meal created", "input_type", string(meal.InputType), "file_key", key)
	return CreateResult{Meal: meal, UploadURL: uploadURL}, nil
}

// Fetch returns the meal if it belongs to userID.
func (c *Creator) Fetch(ctx context.Context, id, userID string) (meals.Meal, error) {
	return c.repo.GetByIDAndUser(ctx, id, userID)
}

// List returns the user's successfully processed meals created on date (UTC).
func (c *Creator) List(ctx context.Context, userID, date string) ([]meals.Meal, error) {
	return c.repo.ListByUserAndDay(ctx, userID, date, meals.StatusSuccess)
}

// Delete removes the meal if it belongs to userID.
func (c *Creator) Delete(ctx context.Context, id, userID string) error {
	if err := c.repo.Delete(ctx, id, userID); err != nil {
		return err
	}
	c.log.Info("meal deleted", "meal_id", id, "user_id", userID)
	return nil
}
