// Package apperrors provides the structured error types used across
// RenLocalizer: an HTTP-flavored AppError for the optional status API, and a
// TranslationError sum type for the translation manager (spec.md §9).
package apperrors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// AppError represents a structured application error, returned by the
// optional status API (internal/statusapi).
type AppError struct {
	HTTPStatusCode int                    `json:"-"`
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        map[string]interface{} `json:"details,omitempty"`
	Err            error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error { return e.Err }

// ToJSON returns the JSON byte representation of the error.
func (e *AppError) ToJSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// New creates a new AppError.
func New(statusCode int, code, message string, err error) *AppError {
	return &AppError{HTTPStatusCode: statusCode, Code: code, Message: message, Err: err}
}

func BadRequest(message string, err error) *AppError {
	return New(http.StatusBadRequest, "bad_request", message, err)
}

func NotFound(message string, err error) *AppError {
	return New(http.StatusNotFound, "not_found", message, err)
}

func InternalServerError(message string, err error) *AppError {
	return New(http.StatusInternalServerError, "internal_error", message, err)
}
