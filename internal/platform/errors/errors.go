// Package errors provides the platform's unified error taxonomy.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is one of the stable taxonomy tags every layer maps into.
type ErrorCode string

const (
	ErrCodeAuthRequired    ErrorCode = "AUTH_REQUIRED"
	ErrCodeTokenInvalid    ErrorCode = "TOKEN_INVALID"
	ErrCodeOrgMismatch     ErrorCode = "ORG_MISMATCH"
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodeRateLimited     ErrorCode = "RATE_LIMITED"
	ErrCodeUpstreamRateLimited ErrorCode = "UPSTREAM_RATE_LIMITED"
	ErrCodeUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	ErrCodeInvalidGrant    ErrorCode = "INVALID_GRANT"
	ErrCodeKeyUnavailable  ErrorCode = "KEY_UNAVAILABLE"
	ErrCodeDecryptionFailure ErrorCode = "DECRYPTION_FAILURE"
	ErrCodeInternal        ErrorCode = "INTERNAL"
)

// ServiceError is a structured error carrying a taxonomy tag, an HTTP
// status, a caller-safe message, and an optional wrapped cause.
type ServiceError struct {
	Code       ErrorCode              `json:"error"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches a caller-visible detail field and returns the error
// for chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new ServiceError.
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap wraps an existing error with taxonomy context.
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// Auth / authorization

func AuthRequired(message string) *ServiceError {
	return New(ErrCodeAuthRequired, message, http.StatusUnauthorized)
}

func TokenInvalid(err error) *ServiceError {
	return Wrap(ErrCodeTokenInvalid, "authentication token is invalid or expired", http.StatusUnauthorized, err)
}

func OrgMismatch(resource string) *ServiceError {
	return New(ErrCodeOrgMismatch, "resource does not belong to the caller's organization", http.StatusForbidden).
		WithDetails("resource", resource)
}

func PermissionDenied(action string) *ServiceError {
	return New(ErrCodePermissionDenied, "caller's role does not permit this action", http.StatusForbidden).
		WithDetails("action", action)
}

// Validation

func ValidationFailed(field, reason string) *ServiceError {
	return New(ErrCodeValidationFailed, "validation failed", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

// Resource

func NotFound(resource, id string) *ServiceError {
	return New(ErrCodeNotFound, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func Conflict(message string) *ServiceError {
	return New(ErrCodeConflict, message, http.StatusConflict)
}

// Rate limiting

func RateLimited(retryAfterSec int) *ServiceError {
	return New(ErrCodeRateLimited, "rate limit exceeded", http.StatusTooManyRequests).
		WithDetails("retry_after_seconds", retryAfterSec)
}

func UpstreamRateLimited(platform string, retryAfterSec int) *ServiceError {
	return New(ErrCodeUpstreamRateLimited, "upstream platform rate limit exceeded", http.StatusBadGateway).
		WithDetails("platform", platform).
		WithDetails("retry_after_seconds", retryAfterSec)
}

func UpstreamUnavailable(platform string, err error) *ServiceError {
	return Wrap(ErrCodeUpstreamUnavailable, "upstream platform unavailable", http.StatusBadGateway, err).
		WithDetails("platform", platform)
}

// OAuth / credential

func InvalidGrant(platform string, err error) *ServiceError {
	return Wrap(ErrCodeInvalidGrant, "oauth refresh rejected by platform", http.StatusUnauthorized, err).
		WithDetails("platform", platform)
}

func KeyUnavailable(err error) *ServiceError {
	return Wrap(ErrCodeKeyUnavailable, "credential vault master key unavailable", http.StatusServiceUnavailable, err)
}

func DecryptionFailure(connectionID string, err error) *ServiceError {
	return Wrap(ErrCodeDecryptionFailure, "credential decryption failed", http.StatusInternalServerError, err).
		WithDetails("connection_id", connectionID)
}

// Catch-all

func Internal(message string, err error) *ServiceError {
	return Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

// Helpers

// IsServiceError reports whether err carries a ServiceError in its chain.
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a ServiceError from an error chain, if present.
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP status to report for err.
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Code returns the taxonomy tag for err, or ErrCodeInternal if err does not
// carry a ServiceError.
func Code(err error) ErrorCode {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.Code
	}
	return ErrCodeInternal
}
