// AngelaMos | 2026
// errors.go

package core

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
	ErrInternal     = errors.New("internal error")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
	Code       string
}

func NewAppError(err error, message string, status int, code string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		StatusCode: status,
		Code:       code,
	}
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func UnauthorizedError(message string) *AppError {
	if message == "" {
		message = "authentication required"
	}
	return NewAppError(ErrUnauthorized, message, http.StatusUnauthorized, "UNAUTHORIZED")
}

func ForbiddenError(message string) *AppError {
	if message == "" {
		message = "access denied"
	}
	return NewAppError(ErrForbidden, message, http.StatusForbidden, "FORBIDDEN")
}

func NotFoundError(resource string) *AppError {
	return NewAppError(
		ErrNotFound,
		fmt.Sprintf("%s not found", resource),
		http.StatusNotFound,
		"NOT_FOUND",
	)
}

func BadRequestError(message string) *AppError {
	return NewAppError(ErrInvalidInput, message, http.StatusBadRequest, "BAD_REQUEST")
}

func TokenExpiredError() *AppError {
	return NewAppError(ErrTokenExpired, "token has expired", http.StatusUnauthorized, "TOKEN_EXPIRED")
}

func TokenInvalidError() *AppError {
	return NewAppError(ErrTokenInvalid, "token is invalid", http.StatusUnauthorized, "TOKEN_INVALID")
}

func InternalError() *AppError {
	return NewAppError(
		ErrInternal,
		"an unexpected error occurred",
		http.StatusInternalServerError,
		"INTERNAL_ERROR",
	)
}

func RateLimitedError(retryAfterSeconds int) *AppError {
	return NewAppError(
		nil,
		fmt.Sprintf("Rate limit exceeded. Retry after %d seconds.", retryAfterSeconds),
		http.StatusTooManyRequests,
		"RATE_LIMITED",
	)
}
