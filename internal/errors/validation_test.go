package errors

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError_Error(t *testing.T) {
	err := NewValidationError("normalization_method", "must be a valid normalization method", "rank_sum")

	assert.Equal(t, "normalization_method", err.Field)
	assert.Equal(t, "rank_sum", err.Value)
	assert.Equal(t, "validation error on field 'normalization_method': must be a valid normalization method", err.Error())
}

func TestValidationErrors_ErrorSummaries(t *testing.T) {
	var errs ValidationErrors
	assert.Equal(t, "validation failed", errs.Error())

	errs = append(errs, *NewValidationError("exam_id", "is required", nil))
	assert.Equal(t, "validation failed: exam_id is required", errs.Error())

	errs = append(errs, *NewValidationErrorWithRule("job_type", "must be a valid job type", "job_type", "grade"))
	assert.Equal(t, "validation failed: 2 field errors", errs.Error())
	assert.Equal(t, "job_type", errs[1].Rule)
}

func TestToValidationErrors_DomainRuleMessages(t *testing.T) {
	v := validator.New()
	require.NoError(t, v.RegisterValidation("normalization_method", func(fl validator.FieldLevel) bool { return false }))
	require.NoError(t, v.RegisterValidation("job_type", func(fl validator.FieldLevel) bool { return false }))

	type startRequest struct {
		JobType string  `validate:"required,job_type"`
		Method  string  `validate:"normalization_method"`
		Ratio   float64 `validate:"min=0.01"`
	}
	err := v.Struct(startRequest{JobType: "grade", Method: "rank_sum"})
	require.Error(t, err)

	errs := ToValidationErrors(err)
	require.Len(t, errs, 3)

	byField := make(map[string]ValidationError, len(errs))
	for _, e := range errs {
		byField[e.Field] = e
	}
	assert.Contains(t, byField["JobType"].Message, "valid job type")
	assert.Contains(t, byField["JobType"].Message, "rank_calculation")
	assert.Contains(t, byField["Method"].Message, "valid normalization method")
	assert.Contains(t, byField["Method"].Message, "z_score")
	assert.Contains(t, byField["Ratio"].Message, "at least 0.01")
	assert.Equal(t, "min", byField["Ratio"].Rule)
}

func TestToValidationErrors_NonValidatorError(t *testing.T) {
	errs := ToValidationErrors(assert.AnError)
	assert.Empty(t, errs)
}
