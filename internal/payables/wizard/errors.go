package wizard

import (
	"errors"
	"fmt"

	"github.com/smallbiznis/freightdesk/internal/payables/domain"
)

var (
	ErrStepInvalid        = errors.New("step_invalid")
	ErrLastStep           = errors.New("last_step")
	ErrNotOnReviewStep    = errors.New("not_on_review_step")
	ErrSubmissionInFlight = errors.New("submission_in_flight")
	ErrSessionNotFound    = errors.New("session_not_found")
	ErrInvalidStore       = errors.New("invalid_store")
)

// StepError is the single notification raised when next() is blocked.
type StepError struct {
	Step Step
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: complete the %s step before continuing", ErrStepInvalid, e.Step.Title())
}

func (e *StepError) Unwrap() error { return ErrStepInvalid }

// SubmissionError wraps a failure reported by the persistence collaborator.
// The wizard stays on the review step with its data intact.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// RejectedError reports an update the collaborator declined with
// {success: false, error}.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return "update rejected"
	}
	return e.Message
}

// InputError lists the raw inputs of one edit that were rejected.
type InputError struct {
	Errors []domain.FieldError
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", domain.ErrInvalidField, domain.KeyList(e.Errors))
}

func (e *InputError) Unwrap() error { return domain.ErrInvalidField }

// ValidationError lists the fields that failed full-schema validation on
// submit.
type ValidationError struct {
	Errors []domain.FieldError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", domain.ErrRecordInvalid, domain.KeyList(e.Errors))
}

func (e *ValidationError) Unwrap() error { return domain.ErrRecordInvalid }
