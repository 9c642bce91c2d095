package pipeline

import "time"

// EventTypeAttribute and EventMealCreated tag creation events on the events queue.
const (
	EventTypeAttribute = "event_type"
	EventMealCreated   = "MealCreated"
)

// TriggerMessage is the processing queue payload emitted when an upload lands.
type TriggerMessage struct {
	FileKey string `json:"fileKey"`
}

// MealCreatedEvent is published once a meal row exists.
type MealCreatedEvent struct {
	MealID    string    `json:"mealId"`
	UserID    string    `json:"userId"`
	InputType string    `json:"inputType"`
	FileKey   string    `json:"fileKey"`
	CreatedAt time.Time `json:"createdAt"`
}
