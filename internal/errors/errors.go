package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError represents a standardized API error response
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
	Details string    `json:"details,omitempty"`
	Status  int       `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithDetails adds additional details to an error
func (e *APIError) WithDetails(details string) *APIError {
	e.Details = details
	return e
}

// TaskNotFound creates a TASK_NOT_FOUND error
func TaskNotFound(taskID string) *APIError {
	return &APIError{
		Code:    ErrTaskNotFound,
		Message: fmt.Sprintf("task %s not found", taskID),
		Status:  http.StatusNotFound,
	}
}

// AlreadyFinal creates an ALREADY_FINAL error for mutations on finished tasks
func AlreadyFinal(taskID string) *APIError {
	return &APIError{
		Code:    ErrAlreadyFinal,
		Message: fmt.Sprintf("task %s is already in a final state", taskID),
		Status:  http.StatusConflict,
	}
}

// NotCompleted creates a NOT_COMPLETED error
func NotCompleted(taskID string) *APIError {
	return &APIError{
		Code:    ErrNotCompleted,
		Message: fmt.Sprintf("task %s is not completed yet", taskID),
		Status:  http.StatusConflict,
	}
}

// ArtifactUnavailable creates an ARTIFACT_UNAVAILABLE error
func ArtifactUnavailable(kind string) *APIError {
	return &APIError{
		Code:    ErrArtifactUnavailable,
		Message: fmt.Sprintf("no %s artifact is bound to this task", kind),
		Status:  http.StatusConflict,
	}
}

// FileMissing creates a FILE_MISSING error for artifacts gone from disk
func FileMissing(path string) *APIError {
	return &APIError{
		Code:    ErrFileMissing,
		Message: "artifact file no longer exists on disk",
		Details: path,
		Status:  http.StatusNotFound,
	}
}

// OutOfRange creates an OUT_OF_RANGE error for a named parameter
func OutOfRange(field, message string) *APIError {
	return &APIError{
		Code:    ErrOutOfRange,
		Message: message,
		Field:   field,
		Status:  http.StatusBadRequest,
	}
}

// InvalidInput creates an INVALID_INPUT error
func InvalidInput(message string) *APIError {
	return &APIError{
		Code:    ErrInvalidInput,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// UploadTooLarge creates an UPLOAD_TOO_LARGE error
func UploadTooLarge(limitMB int) *APIError {
	return &APIError{
		Code:    ErrUploadTooLarge,
		Message: fmt.Sprintf("upload exceeds the %d MB limit", limitMB),
		Status:  http.StatusRequestEntityTooLarge,
	}
}

// StageFailed creates a STAGE_FAILED error for pipeline stage errors
func StageFailed(stage, message string) *APIError {
	return &APIError{
		Code:    ErrStageFailed,
		Message: message,
		Field:   stage,
		Status:  http.StatusInternalServerError,
	}
}

// QueueFull creates a QUEUE_FULL error
func QueueFull() *APIError {
	return &APIError{
		Code:    ErrQueueFull,
		Message: "processing queue is full, try again later",
		Status:  http.StatusServiceUnavailable,
	}
}

// Internal creates an INTERNAL_ERROR
func Internal(message string) *APIError {
	return &APIError{
		Code:    ErrInternalError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

// AsAPIError unwraps err into an *APIError when possible.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
