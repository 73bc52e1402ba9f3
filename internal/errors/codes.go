package errors

import "net/http"

// ErrorCode represents the type of error
type ErrorCode string

const (
	ErrTaskNotFound        ErrorCode = "TASK_NOT_FOUND"
	ErrAlreadyFinal        ErrorCode = "ALREADY_FINAL"
	ErrNotCompleted        ErrorCode = "NOT_COMPLETED"
	ErrArtifactUnavailable ErrorCode = "ARTIFACT_UNAVAILABLE"
	ErrFileMissing         ErrorCode = "FILE_MISSING"
	ErrOutOfRange          ErrorCode = "OUT_OF_RANGE"
	ErrInvalidInput        ErrorCode = "INVALID_INPUT"
	ErrUploadTooLarge      ErrorCode = "UPLOAD_TOO_LARGE"
	ErrStageFailed         ErrorCode = "STAGE_FAILED"
	ErrQueueFull           ErrorCode = "QUEUE_FULL"
	ErrInternalError       ErrorCode = "INTERNAL_ERROR"
)

// StatusCodeMap maps ErrorCode to HTTP status code
var StatusCodeMap = map[ErrorCode]int{
	ErrTaskNotFound:        http.StatusNotFound,
	ErrAlreadyFinal:        http.StatusConflict,
	ErrNotCompleted:        http.StatusConflict,
	ErrArtifactUnavailable: http.StatusConflict,
	ErrFileMissing:         http.StatusNotFound,
	ErrOutOfRange:          http.StatusBadRequest,
	ErrInvalidInput:        http.StatusBadRequest,
	ErrUploadTooLarge:      http.StatusRequestEntityTooLarge,
	ErrStageFailed:         http.StatusInternalServerError,
	ErrQueueFull:           http.StatusServiceUnavailable,
	ErrInternalError:       http.StatusInternalServerError,
}

// StatusCode returns the HTTP status code for this error code
func (e ErrorCode) StatusCode() int {
	if code, ok := StatusCodeMap[e]; ok {
		return code
	}
	return http.StatusInternalServerError
}
