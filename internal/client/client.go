// Package client is the Go API client for the hum2song server, used by
// the CLI. Transport failures, HTTP-level failures and contract
// violations surface as distinct error types so callers can map them to
// exit codes.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/json-iterator/go"

	"github.com/zzn199216/hum2song-webui/internal/models"
	"github.com/zzn199216/hum2song-webui/internal/score"
	"github.com/zzn199216/hum2song-webui/internal/version"
)

// Client talks to one hum2song server.
type Client struct {
	http *resty.Client
}

// New builds a client for baseURL. A zero timeout disables the
// client-side request deadline (downloads can be slow on purpose).
func New(baseURL string, timeout time.Duration) *Client {
	hc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("User-Agent", "hum2song-cli/"+version.Version)
	if timeout > 0 {
		hc.SetTimeout(timeout)
	}
	return &Client{http: hc}
}

// Submit uploads an audio file to POST /generate and returns the queued
// task handle.
func (c *Client) Submit(ctx context.Context, filePath string, format models.OutputFormat, gain float64) (*models.TaskCreateResponse, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", filepath.Base(filePath), f).
		SetQueryParam("output_format", string(format)).
		SetQueryParam("gain", strconv.FormatFloat(gain, 'f', -1, 64)).
		Post("/generate")
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	if resp.StatusCode() != http.StatusAccepted {
		return nil, httpError(resp)
	}

	var out models.TaskCreateResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &ContractError{Reason: fmt.Sprintf("malformed 202 body: %v", err)}
	}
	if out.TaskID == "" || out.PollURL == "" {
		return nil, &ContractError{Reason: "202 body is missing task_id or poll_url"}
	}
	return &out, nil
}

// Status fetches the current snapshot of a task.
func (c *Client) Status(ctx context.Context, taskID string) (*models.TaskInfo, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/tasks/" + taskID)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, httpError(resp)
	}

	var info models.TaskInfo
	if err := json.Unmarshal(resp.Body(), &info); err != nil {
		return nil, &ContractError{Reason: fmt.Sprintf("malformed task body: %v", err)}
	}
	if err := info.Validate(); err != nil {
		return nil, &ContractError{Reason: err.Error()}
	}
	return &info, nil
}

// WaitForCompletion polls a task until it reaches a final state. Each
// observed snapshot is passed to onUpdate (may be nil). Exceeding the
// deadline returns PollTimeoutError; the server keeps working.
func (c *Client) WaitForCompletion(ctx context.Context, taskID string, interval, timeout time.Duration, onUpdate func(*models.TaskInfo)) (*models.TaskInfo, error) {
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.Now().Add(timeout)

	for {
		info, err := c.Status(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if onUpdate != nil {
			onUpdate(info)
		}
		if info.Status.Final() {
			return info, nil
		}
		if time.Now().After(deadline) {
			return nil, &PollTimeoutError{TaskID: taskID, After: timeout}
		}

		select {
		case <-ctx.Done():
			return nil, &NetworkError{Err: ctx.Err()}
		case <-time.After(interval):
		}
	}
}

// Download streams a bound artifact to destPath. Unless overwrite is
// set, an existing destination is an error before any request is made.
func (c *Client) Download(ctx context.Context, taskID string, fileType models.FileType, destPath string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(destPath); err == nil {
			return fmt.Errorf("refusing to overwrite %s", destPath)
		}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("file_type", string(fileType)).
		SetDoNotParseResponse(true).
		Get(fmt.Sprintf("/tasks/%s/download", taskID))
	if err != nil {
		return &NetworkError{Err: err}
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(body, 1<<16))
		return httpErrorFromRaw(resp.StatusCode(), raw)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create download file: %w", err)
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		os.Remove(destPath)
		return &NetworkError{Err: err}
	}
	return out.Close()
}

// GetScore fetches and strictly decodes the task's normalized score.
func (c *Client) GetScore(ctx context.Context, taskID string) (*score.Score, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/tasks/%s/score", taskID))
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, httpError(resp)
	}

	sc, err := score.DecodeStrict(resp.Body())
	if err != nil {
		return nil, &ContractError{Reason: fmt.Sprintf("malformed score body: %v", err)}
	}
	return sc, nil
}

// PutScoreResponse is the 200 body of PUT /tasks/{id}/score.
type PutScoreResponse struct {
	OK              bool   `json:"ok"`
	TaskID          string `json:"task_id"`
	MIDIPath        string `json:"midi_path"`
	MIDIDownloadURL string `json:"midi_download_url"`
	Hint            string `json:"hint"`
}

// PutScore uploads an edited score document; the server normalizes it
// and rebinds the MIDI artifact.
func (c *Client) PutScore(ctx context.Context, taskID string, scoreJSON []byte) (*PutScoreResponse, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(scoreJSON).
		Put(fmt.Sprintf("/tasks/%s/score", taskID))
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, httpError(resp)
	}

	var out PutScoreResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &ContractError{Reason: fmt.Sprintf("malformed put-score body: %v", err)}
	}
	if !out.OK {
		return nil, &ContractError{Reason: "put-score response has ok=false"}
	}
	return &out, nil
}

// RenderResponse is the 200 body of POST /tasks/{id}/render.
type RenderResponse struct {
	OK               bool   `json:"ok"`
	TaskID           string `json:"task_id"`
	AudioPath        string `json:"audio_path"`
	AudioDownloadURL string `json:"audio_download_url"`
}

// Render asks the server to re-synthesize audio from the task's current
// MIDI artifact.
func (c *Client) Render(ctx context.Context, taskID string, format models.OutputFormat) (*RenderResponse, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("output_format", string(format)).
		Post(fmt.Sprintf("/tasks/%s/render", taskID))
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, httpError(resp)
	}

	var out RenderResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &ContractError{Reason: fmt.Sprintf("malformed render body: %v", err)}
	}
	return &out, nil
}

// httpErrorFromRaw is httpError for responses read without resty's body
// buffering (streamed downloads).
func httpErrorFromRaw(status int, body []byte) *HTTPError {
	e := &HTTPError{Status: status, Body: string(body)}
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Code != "" {
		e.Code = parsed.Code
		e.Message = parsed.Message
	}
	return e
}
