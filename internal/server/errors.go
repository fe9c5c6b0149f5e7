package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/freightdesk/internal/audit/domain"
	"github.com/smallbiznis/freightdesk/internal/authorization"
	payablesdomain "github.com/smallbiznis/freightdesk/internal/payables/domain"
	"github.com/smallbiznis/freightdesk/internal/payables/review"
	"github.com/smallbiznis/freightdesk/internal/payables/wizard"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrTooManyRequests    = errors.New("too_many_requests")
)

// stepBlockedError carries the inline errors of a step the wizard refused to
// leave.
type stepBlockedError struct {
	err    *wizard.StepError
	fields []payablesdomain.FieldError
}

func (e *stepBlockedError) Error() string { return e.err.Error() }

func (e *stepBlockedError) Unwrap() error { return e.err }

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func fromFieldErrors(errs []payablesdomain.FieldError) []ValidationError {
	out := make([]ValidationError, 0, len(errs))
	for _, fe := range errs {
		out = append(out, ValidationError{Field: fe.Field, Code: fe.Code, Message: fe.Message})
	}
	return out
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if fieldErrs, ok := asFieldErrors(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  fromFieldErrors(fieldErrs),
		}
	}

	var blocked *stepBlockedError
	if errors.As(err, &blocked) {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "step_invalid",
			Message: blocked.Error(),
			Errors:  fromFieldErrors(blocked.fields),
		}
	}

	var rejected *wizard.RejectedError
	if errors.As(err, &rejected) {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "rejected",
			Message: rejected.Error(),
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "too_many_requests",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code logged per request.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func asFieldErrors(err error) ([]payablesdomain.FieldError, bool) {
	var recordErr *payablesdomain.RecordValidationError
	if errors.As(err, &recordErr) {
		return recordErr.Errors, true
	}
	var wizardErr *wizard.ValidationError
	if errors.As(err, &wizardErr) {
		return wizardErr.Errors, true
	}
	var inputErr *wizard.InputError
	if errors.As(err, &inputErr) {
		return inputErr.Errors, true
	}
	var payloadErr *payablesdomain.PayloadFieldError
	if errors.As(err, &payloadErr) {
		return []payablesdomain.FieldError{payablesdomain.InputError(payloadErr.Field, payloadErr.Err)}, true
	}
	return nil, false
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, review.ErrUnsupportedFormat):
		return true
	case isPayablesValidationError(err),
		isAuditValidationError(err):
		return true
	default:
		return false
	}
}

func isPayablesValidationError(err error) bool {
	switch {
	case errors.Is(err, payablesdomain.ErrInvalidOrganization),
		errors.Is(err, payablesdomain.ErrInvalidID),
		errors.Is(err, payablesdomain.ErrInvalidBookingNo),
		errors.Is(err, payablesdomain.ErrInvalidAmount),
		errors.Is(err, payablesdomain.ErrNegativeAmount),
		errors.Is(err, payablesdomain.ErrInvalidDate),
		errors.Is(err, payablesdomain.ErrInvalidField),
		errors.Is(err, payablesdomain.ErrUnknownField),
		errors.Is(err, payablesdomain.ErrReadOnlyField),
		errors.Is(err, payablesdomain.ErrInvalidPayload),
		errors.Is(err, payablesdomain.ErrInvalidPageToken):
		return true
	default:
		return false
	}
}

func isAuditValidationError(err error) bool {
	switch {
	case errors.Is(err, auditdomain.ErrInvalidOrganization),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, payablesdomain.ErrUpdateInFlight),
		errors.Is(err, wizard.ErrSubmissionInFlight),
		errors.Is(err, wizard.ErrLastStep),
		errors.Is(err, wizard.ErrNotOnReviewStep):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, payablesdomain.ErrUpdateInFlight),
		errors.Is(err, wizard.ErrSubmissionInFlight):
		return "an update of this record is already in progress"
	case errors.Is(err, wizard.ErrLastStep):
		return "already on the last step"
	case errors.Is(err, wizard.ErrNotOnReviewStep):
		return "submission is only allowed from the review step"
	default:
		return "conflict"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, payablesdomain.ErrNotFound),
		errors.Is(err, wizard.ErrSessionNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, review.ErrUnsupportedFormat):
		return "invalid_format"
	default:
		return rootCode(err)
	}
}

// rootCode returns the sentinel text of a possibly wrapped error.
func rootCode(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_format":
		return "format must be one of json, html, pdf, xlsx"
	case "invalid_booking_no":
		return "booking number is required"
	case "invalid_page_token":
		return "invalid page token"
	default:
		return "invalid value"
	}
}
