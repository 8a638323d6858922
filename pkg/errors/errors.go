package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// AppError is a structured failure rendered to API consumers. Challenge, when set,
// is written to the WWW-Authenticate header by the transport layer.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Challenge  string `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches AppErrors by code so copies produced by WithInternal still compare equal
// to the sentinel they were derived from.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code && e.StatusCode == other.StatusCode
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage returns a copy of the AppError with a replaced client-facing message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Message = message
	return &cpy
}

// WithChallenge returns a copy carrying the authentication scheme to advertise.
func (e *AppError) WithChallenge(scheme string) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Challenge = scheme
	return &cpy
}

// Common errors exposed to the rest of the application.
var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	// ErrInvalidCredential covers malformed, unsigned, expired or unknown credentials.
	// The message never tells an absent credential apart from a bad one.
	ErrInvalidCredential = &AppError{
		Code:       "INVALID_CREDENTIAL",
		Message:    "Could not validate credentials",
		StatusCode: http.StatusUnauthorized,
	}

	ErrInactivePrincipal = &AppError{
		Code:       "INACTIVE_PRINCIPAL",
		Message:    "Inactive user",
		StatusCode: http.StatusForbidden,
	}

	ErrInsufficientGrant = &AppError{
		Code:       "INSUFFICIENT_GRANT",
		Message:    "Insufficient permissions",
		StatusCode: http.StatusForbidden,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Permission denied",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrProviderUnconfigured = &AppError{
		Code:       "PROVIDER_UNCONFIGURED",
		Message:    "OAuth provider is not configured",
		StatusCode: http.StatusNotImplemented,
	}

	ErrUpstreamIdentity = &AppError{
		Code:       "UPSTREAM_IDENTITY_FAILURE",
		Message:    "OAuth authentication failed",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}

	ErrRateLimit = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many requests, please slow down",
		StatusCode: http.StatusTooManyRequests,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest wraps validation errors with a helpful message.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrBadRequest.Code,
		Message:    message,
		StatusCode: ErrBadRequest.StatusCode,
	}
}

// NewInsufficientGrant reports the unmet requirements. Callers pass only what is
// missing, never what the caller holds.
func NewInsufficientGrant(kind string, unmet []string) *AppError {
	return ErrInsufficientGrant.WithMessage(fmt.Sprintf("Missing required %s: [%s]", kind, strings.Join(unmet, ", ")))
}
