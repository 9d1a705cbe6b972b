package services

import (
	"errors"
	"fmt"

	apperrors "github.com/exametrics/normalization-service/internal/errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrValidationFailed = errors.New("validation failed")
	ErrInternalError    = errors.New("internal server error")
	ErrBadRequest       = errors.New("bad request")
	ErrConflict         = errors.New("resource conflict")

	// Exam specific errors
	ErrExamNotFound          = errors.New("exam not found")
	ErrExamInactive          = errors.New("exam is not active")
	ErrNormalizationDisabled = errors.New("normalization is disabled for this exam")

	// Normalization specific errors
	ErrUnknownMethod           = errors.New("unknown normalization method")
	ErrNormalizationIncomplete = errors.New("normalization incomplete for exam")
	ErrNoSubmissions           = errors.New("exam has no submissions")

	// Shift specific errors
	ErrShiftNotFound = errors.New("shift not found")

	// Submission specific errors
	ErrSubmissionNotFound  = errors.New("submission not found")
	ErrDuplicateRollNumber = errors.New("roll number already exists for this exam")

	// Job specific errors
	ErrJobNotFound      = errors.New("job run not found")
	ErrJobAlreadyActive = errors.New("a job is already active for this exam")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

// SkipError marks an exam that was deliberately skipped by a batch stage,
// with the reason preserved for the job's result message. It is a note, not
// a failure: the surrounding batch keeps going.
type SkipError struct {
	ExamID uint
	Reason string
	Err    error
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("exam %d skipped: %s", e.ExamID, e.Reason)
}

func (e *SkipError) Unwrap() error {
	return e.Err
}

func NewSkipError(examID uint, reason string, err error) *SkipError {
	return &SkipError{ExamID: examID, Reason: reason, Err: err}
}

// ===== ERROR CLASSIFICATION HELPERS =====

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrExamNotFound) ||
		errors.Is(err, ErrShiftNotFound) ||
		errors.Is(err, ErrSubmissionNotFound) ||
		errors.Is(err, ErrJobNotFound)
}

func IsValidation(err error) bool {
	var ve ValidationErrors
	var single *ValidationError
	return errors.Is(err, ErrValidationFailed) || errors.As(err, &ve) || errors.As(err, &single)
}

func IsSkip(err error) bool {
	var se *SkipError
	return errors.As(err, &se)
}
