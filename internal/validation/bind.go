package validation

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

// BindAndValidate binds JSON body into `out` and runs validation.
// If validation fails, it writes a 400 response and returns an error for the handler to short-circuit.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	return bind(c, out, v, c.ShouldBindJSON, "invalid_request_body")
}

// BindQuery is BindAndValidate for `form`-tagged query parameters.
func BindQuery(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	return bind(c, out, v, c.ShouldBindQuery, "invalid_query")
}

// BindURI is BindAndValidate for `uri`-tagged path parameters.
func BindURI(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	return bind(c, out, v, c.ShouldBindUri, "invalid_path")
}

func bind(c *gin.Context, out interface{}, v *validatorv10.Validate, decode func(interface{}) error, code string) error {
	if err := decode(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  code,
			"detail": err.Error(),
		})
		return err
	}

	if err := v.Struct(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation_failed",
			"fields": validationErrorsToMap(err),
		})
		return err
	}
	return nil
}

func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fe.Field()] = fe.Tag()
		}
	} else {
		out["error"] = err.Error()
	}
	return out
}
