package utils

import (
	"reflect"
	"strings"
	"time"

	"github.com/exametrics/normalization-service/internal/models"
	"github.com/go-playground/validator/v10"
)

// Validator wraps struct tag validation with the custom domain validators registered
type Validator struct {
	structValidator *validator.Validate
}

// NewValidator creates a validator instance with all custom validators registered
func NewValidator() *Validator {
	structValidator := validator.New()
	RegisterCustomValidators(structValidator)

	return &Validator{structValidator: structValidator}
}

// ValidateStruct validates struct tags
func (v *Validator) ValidateStruct(s interface{}) error {
	return v.structValidator.Struct(s)
}

// Custom validation functions

func ValidateNormalizationMethod(fl validator.FieldLevel) bool {
	validMethods := []models.NormalizationMethod{
		models.MethodZScore,
		models.MethodRaw,
		models.MethodPercentile,
		models.MethodModifiedZ,
		models.MethodEquating,
		models.MethodCustom,
	}

	value := fl.Field().String()
	for _, validMethod := range validMethods {
		if string(validMethod) == value {
			return true
		}
	}
	return false
}

func ValidateJobType(fl validator.FieldLevel) bool {
	validTypes := []models.JobType{
		models.JobTypeNormalization,
		models.JobTypeRankCalculation,
		models.JobTypeCutoffPrediction,
	}

	value := fl.Field().String()
	for _, validType := range validTypes {
		if string(validType) == value {
			return true
		}
	}
	return false
}

// RegisterCustomValidators registers all custom validators
func RegisterCustomValidators(validate *validator.Validate) {
	validate.RegisterValidation("normalization_method", ValidateNormalizationMethod)
	validate.RegisterValidation("job_type", ValidateJobType)

	// Register custom tag name function for better error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ParseDate parses a date in YYYY-MM-DD form
func ParseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}
