package utils

import (
	"reflect"
	"strings"

	apperrors "github.com/ascholar/testing-service/internal/errors"
	"github.com/ascholar/testing-service/internal/models"
	"github.com/go-playground/validator/v10"
)

// Validator wraps the struct validator and converts its failures into the
// shared ValidationErrors type.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	validate := validator.New()

	validate.RegisterValidation("review_status", validateReviewStatus)

	// Report json field names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{validate: validate}
}

func (v *Validator) Validate(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		return apperrors.ToValidationErrors(err)
	}
	return nil
}

func validateReviewStatus(fl validator.FieldLevel) bool {
	value := models.TestStatus(fl.Field().String())
	for _, status := range models.ReviewStatuses() {
		if status == value {
			return true
		}
	}
	return false
}
