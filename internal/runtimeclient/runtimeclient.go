// Package runtimeclient implements the typed HTTP contract between channel
// plugins and the task-execution runtime: create a task, fetch a task.
package runtimeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aokihu/atom-message-gateway/internal/gwtypes"
)

// NetworkError wraps a transport-level failure reaching the runtime.
type NetworkError struct {
	Base  string
	Cause error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("Failed to reach %s: %s", e.Base, e.Cause)
}

func (e *NetworkError) Unwrap() error { return e.Cause }

// InvalidResponseError is returned when the runtime's response body cannot
// be interpreted as the expected envelope shape.
type InvalidResponseError struct {
	Detail string
}

func (e *InvalidResponseError) Error() string {
	return "invalid response from runtime: " + e.Detail
}

// RemoteError wraps an error the runtime itself reported via its envelope.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// envelope is the wire shape of every runtime response.
type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *envelopeError  `json:"error,omitempty"`
}

type envelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreateTaskRequest is the body for POST /v1/tasks.
type CreateTaskRequest struct {
	Input    string `json:"input"`
	Priority *int   `json:"priority,omitempty"`
	Type     string `json:"type,omitempty"`
}

// CreateTaskResponse is the parsed data payload of a successful createTask.
type CreateTaskResponse struct {
	TaskID string                `json:"taskId"`
	Task   gwtypes.TaskSnapshot  `json:"task"`
}

// GetTaskResponse is the parsed data payload of a successful getTask.
type GetTaskResponse struct {
	Task     gwtypes.TaskSnapshot `json:"task"`
	Messages []json.RawMessage   `json:"messages,omitempty"`
}

// Client is a typed HTTP client for the task runtime's API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the runtime at baseURL. A trailing slash on
// baseURL is stripped.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateTask submits a new task to the runtime.
func (c *Client) CreateTask(ctx context.Context, req CreateTaskRequest) (*CreateTaskResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshalling create-task request: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, "/v1/tasks", body)
	if err != nil {
		return nil, err
	}

	var resp CreateTaskResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &InvalidResponseError{Detail: err.Error()}
	}
	return &resp, nil
}

// GetTask fetches the current snapshot of a task by id.
func (c *Client) GetTask(ctx context.Context, id string) (*GetTaskResponse, error) {
	path := "/v1/tasks/" + url.PathEscape(id)

	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var resp GetTaskResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &InvalidResponseError{Detail: err.Error()}
	}
	return &resp, nil
}

// do performs one HTTP round-trip and returns the envelope's data field,
// translating transport and envelope failures per spec.md §4.5.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Base: c.baseURL, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Base: c.baseURL, Cause: err}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &InvalidResponseError{Detail: "empty response body"}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &InvalidResponseError{Detail: "response is not valid JSON: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if env.Error != nil {
			return nil, &RemoteError{Code: env.Error.Code, Message: env.Error.Message}
		}
		return nil, &InvalidResponseError{Detail: fmt.Sprintf("HTTP %d with no error envelope", resp.StatusCode)}
	}

	if !env.OK || env.Data == nil {
		return nil, &InvalidResponseError{Detail: "envelope is not ok:true with data"}
	}

	return env.Data, nil
}
