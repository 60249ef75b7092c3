// Package apperrors defines the service's error taxonomy on top of
// errbuilder. Only validation errors reach callers as request failures;
// configuration errors are fatal at startup, and store or estimator problems
// degrade gracefully elsewhere and never become HTTP errors.
package apperrors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	errbuilder "github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
)

// Category classifies an error for handling and logging.
type Category string

const (
	CategoryValidation       Category = "validation"
	CategoryConfiguration    Category = "configuration"
	CategoryStoreUnavailable Category = "store_unavailable"
	CategoryEstimator        Category = "estimator_failure"
	CategoryRateLimit        Category = "rate_limit"
	CategoryAuth             Category = "auth"
	CategoryInternal         Category = "internal"
)

// AppError wraps an errbuilder error with a category and HTTP status.
type AppError struct {
	*errbuilder.ErrBuilder
	Category   Category  `json:"category"`
	HTTPStatus int       `json:"http_status"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Category, e.ErrBuilder.Msg)
}

func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

func newAppError(builder *errbuilder.ErrBuilder, category Category, status int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: status,
		Timestamp:  time.Now(),
	}
}

// NewValidationError rejects malformed input before it reaches the core.
func NewValidationError(message string) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(message)
	return newAppError(builder, CategoryValidation, http.StatusBadRequest)
}

// NewConfigurationError marks invalid deployment configuration; fatal at
// startup, never produced per request.
func NewConfigurationError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(message)
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return newAppError(builder, CategoryConfiguration, http.StatusInternalServerError)
}

// NewAuthError maps an authentication failure to its HTTP status.
func NewAuthError(message string, status int) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodePermissionDenied).
		WithMsg(message)
	return newAppError(builder, CategoryAuth, status)
}

// NewRateLimitError rejects a request over its budget.
func NewRateLimitError(retryAfter time.Duration) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeResourceExhausted).
		WithMsg("rate limit exceeded")
	e := newAppError(builder, CategoryRateLimit, http.StatusTooManyRequests)
	errMap := errbuilder.ErrorMap{}
	errMap.Set("retry_after", errors.New(retryAfter.String()))
	e.ErrBuilder = e.ErrBuilder.WithDetails(errbuilder.NewErrDetails(errMap))
	return e
}

// NewPayloadTooLarge rejects an oversized batch.
func NewPayloadTooLarge(message string) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(message)
	return newAppError(builder, CategoryValidation, http.StatusRequestEntityTooLarge)
}

// NewInternalError covers the unexpected.
func NewInternalError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(message)
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return newAppError(builder, CategoryInternal, http.StatusInternalServerError)
}

// ToAppError converts any error to an AppError.
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError("an unexpected error occurred", err)
}

// Respond logs the error and writes the structured error response.
func Respond(c *gin.Context, err error) {
	appErr := ToAppError(err)
	logError(c, appErr)
	c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
		"error":    string(appErr.Category),
		"message":  appErr.ErrBuilder.Msg,
		"category": appErr.Category,
	})
}

// RecoveryHandler converts panics into structured internal errors.
func RecoveryHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		appErr := NewInternalError(fmt.Sprintf("panic recovered: %v", recovered), nil)
		logError(c, appErr)
		c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
			"error":   string(CategoryInternal),
			"message": "internal server error",
		})
	})
}

func logError(c *gin.Context, err *AppError) {
	entry := slog.With(
		"error_category", err.Category,
		"http_status", err.HTTPStatus,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.GetString("request_id"),
	)
	switch err.Category {
	case CategoryValidation, CategoryRateLimit, CategoryAuth:
		entry.Warn(err.ErrBuilder.Msg)
	default:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			entry.Error(err.ErrBuilder.Msg, "cause", cause)
		} else {
			entry.Error(err.ErrBuilder.Msg)
		}
	}
}
