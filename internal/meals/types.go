// Package meals holds the meal aggregate, its lifecycle transitions and the
// DynamoDB-backed repository.
package meals

import "time"

// Status is the lifecycle state of a meal.
type Status string

// Meal statuses
const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further automatic transition occurs from s.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// InputType is the kind of file a meal was logged with.
type InputType string

// Input types
const (
	InputTypeAudio   InputType = "audio"
	InputTypePicture InputType = "picture"
)

// Supported upload content types.
const (
	FileTypeAudio = "audio/m4a"
	FileTypeImage = "image/jpeg"
)

// Food is one structured nutrition record produced by extraction.
type Food struct {
	Name          string  `json:"name" dynamodbav:"name"`
	Quantity      string  `json:"quantity" dynamodbav:"quantity"`
	Calories      float64 `json:"calories" dynamodbav:"calories"`
	Proteins      float64 `json:"proteins" dynamodbav:"proteins"`
	Carbohydrates float64 `json:"carbohydrates" dynamodbav:"carbohydrates"`
	Fats          float64 `json:"fats" dynamodbav:"fats"`
}

// Details is the extraction result committed on success.
type Details struct {
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Foods []Food `json:"foods"`
}

// Meal is the aggregate root of the processing pipeline. Values are treated as
// immutable snapshots: transitions return a new Meal.
type Meal struct {
	ID           string
	UserID       string
	Status       Status
	InputType    InputType
	InputFileKey string
	Name         *string
	Icon         *string
	Foods        []Food
	CreatedAt    time.Time
	UpdatedAt    time.Time
	// Version is the optimistic concurrency token, bumped on every persisted write.
	Version int64
}

// View is the HTTP representation of a meal.
type View struct {
	ID        string    `json:"id"`
	Name      *string   `json:"name"`
	Icon      *string   `json:"icon"`
	Status    Status    `json:"status"`
	Foods     []Food    `json:"foods"`
	CreatedAt time.Time `json:"createdAt"`
}

// ToView presents m for API responses.
func (m Meal) ToView() View {
	foods := m.Foods
	if foods == nil {
		foods = []Food{}
	}
	return View{
		ID:        m.ID,
		Name:      m.Name,
		Icon:      m.Icon,
		Status:    m.Status,
		Foods:     foods,
		CreatedAt: m.CreatedAt,
	}
}
