package errors

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationErrorMessage(t *testing.T) {
	err := NewValidationError("answer", "must not be blank", "")

	assert.Equal(t, "answer", err.Field)
	assert.Equal(t, "validation error on field 'answer': must not be blank", err.Error())
}

func TestValidationErrorsAggregateMessage(t *testing.T) {
	var errs ValidationErrors
	assert.Equal(t, "validation failed", errs.Error())

	errs = append(errs, *NewValidationError("test_id", "is required", nil))
	assert.Equal(t, "validation failed: test_id is required", errs.Error())

	errs = append(errs, *NewValidationError("candidate_id", "is required", nil))
	assert.Equal(t, "validation failed: 2 field errors", errs.Error())
}

func TestToValidationErrors(t *testing.T) {
	type req struct {
		TestID uint   `validate:"required"`
		Answer string `validate:"required,max=5"`
	}

	v := validator.New()
	err := v.Struct(req{Answer: "too long for five"})
	require.Error(t, err)

	converted := ToValidationErrors(err)
	require.Len(t, converted, 2)
	assert.Equal(t, "is required", converted[0].Message)
	assert.Equal(t, "required", converted[0].Rule)
	assert.Equal(t, "must be at most 5", converted[1].Message)
}
