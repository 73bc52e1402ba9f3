package client

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/json-iterator/go"
)

// NetworkError wraps transport-level failures: connection refused, DNS,
// timeouts. The request never produced an HTTP response.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is a non-success response from the server. Code and Message
// are filled from the structured error body when the server sent one.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Body    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("[%d] %s", e.Status, e.Body)
}

// ContractError means the server answered successfully but the payload
// does not satisfy the API contract the CLI was built against.
type ContractError struct {
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("unexpected server response: %s", e.Reason)
}

// PollTimeoutError reports that a task did not finish within the
// client-side polling deadline. The task itself keeps running.
type PollTimeoutError struct {
	TaskID string
	After  time.Duration
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("task %s did not finish within %s", e.TaskID, e.After)
}

// errorBody is the server's structured error response shape.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// httpError builds an HTTPError from a failed response, picking the
// structured code and message out of the body when present.
func httpError(resp *resty.Response) *HTTPError {
	body := resp.Body()
	e := &HTTPError{Status: resp.StatusCode(), Body: string(body)}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Code != "" {
		e.Code = parsed.Code
		e.Message = parsed.Message
	}
	return e
}
