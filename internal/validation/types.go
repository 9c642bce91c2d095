package validation

// CreateMealRequest is the payload for POST /meals.
type CreateMealRequest struct {
	FileType string `json:"fileType" validate:"required,meal_file_type"`
}

// ListMealsQuery is the query string of GET /meals.
type ListMealsQuery struct {
	Date string `form:"date" validate:"required,datetime=2006-01-02"` // UTC calendar day
}

// MealIDParam is the :id path segment of the single-meal routes.
type MealIDParam struct {
	ID string `uri:"id" validate:"required,uuid4"`
}
