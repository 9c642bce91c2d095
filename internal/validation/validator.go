package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-meal-pipeline/internal/meals"
)

// New returns a configured validator with the meal-specific tags registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// meal_file_type accepts exactly the upload content types the pipeline can process.
	_ = v.RegisterValidation("meal_file_type", mealFileType)

	return v
}

func mealFileType(fl validatorv10.FieldLevel) bool {
	_, err := meals.InputTypeFor(fl.Field().String())
	return err == nil
}
