package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All services MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField   ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidChannel ErrorCode = "validation_invalid_channel"
	ErrCodeValidationInvalidTrigger ErrorCode = "validation_invalid_trigger"
	ErrCodeValidationQuietHours     ErrorCode = "validation_quiet_hours_invalid"
	ErrCodeValidationEmptyTitle     ErrorCode = "validation_empty_product_title"
	ErrCodeValidationEmptyProductID ErrorCode = "validation_empty_product_id"
	ErrCodeValidationInvalidWebhook ErrorCode = "validation_invalid_webhook_url"

	// Channel configuration (422)
	ErrCodeConfigMissingCredentials ErrorCode = "config_missing_credentials"
	ErrCodeConfigMissingDestination ErrorCode = "config_missing_destination"
	ErrCodeConfigChannelDisabled    ErrorCode = "config_channel_disabled"

	// Auth (401)
	ErrCodeAuthInvalidKey ErrorCode = "auth_invalid_key"

	// Not Found (404)
	ErrCodeNotFoundAlert    ErrorCode = "not_found_alert"
	ErrCodeNotFoundSession  ErrorCode = "not_found_session"
	ErrCodeNotFoundIndexJob ErrorCode = "not_found_index_job"
	ErrCodeNotFoundProduct  ErrorCode = "not_found_product"
	ErrCodeNotFoundSettings ErrorCode = "not_found_settings"

	// Conflict (409)
	ErrCodeConflictAlertState  ErrorCode = "conflict_alert_state"
	ErrCodeConflictJobFinished ErrorCode = "conflict_job_finished"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamEmail       ErrorCode = "upstream_email_provider_unavailable"
	ErrCodeUpstreamSMS         ErrorCode = "upstream_sms_provider_unavailable"
	ErrCodeUpstreamCRM         ErrorCode = "upstream_crm_provider_unavailable"
	ErrCodeUpstreamCatalog     ErrorCode = "upstream_catalog_unavailable"
	ErrCodeUpstreamEnrichment  ErrorCode = "upstream_enrichment_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamRejected    ErrorCode = "upstream_rejected"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the ops surface to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "config_"):
		return http.StatusUnprocessableEntity // 422
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case s == string(ErrCodeUpstreamRateLimited):
		return http.StatusTooManyRequests // 429
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type used throughout the platform.
// All domain errors should be expressed as AppError to enable consistent error
// formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
// This is useful for adding context without mutating the original error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
