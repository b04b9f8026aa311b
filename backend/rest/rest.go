// Package rest implements backend.Repository against the todo web API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"wishdo/backend"
	"wishdo/internal/ratelimit"
	"wishdo/internal/utils"
)

const (
	// DefaultBaseURL is the development server address.
	DefaultBaseURL = "http://localhost:4000/api"
)

// Config holds connection settings for the todo API.
type Config struct {
	BaseURL         string
	TokenFunc       func() string // returns the current bearer token, "" when logged out
	MaxRetries      int
	RetryDelay      time.Duration
	EnableRateLimit bool
}

// ConfigFromEnv creates a Config from environment variables.
func ConfigFromEnv() Config {
	return Config{
		BaseURL: os.Getenv("WISHDO_API_URL"),
	}
}

// Client implements backend.Repository over HTTP.
type Client struct {
	config  Config
	client  *http.Client
	baseURL string
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		config:  cfg,
		client:  createHTTPClient(),
		baseURL: baseURL,
	}, nil
}

// createHTTPClient creates an HTTP client with proper configuration.
func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
	}
}

// Host returns the backend host this client talks to, used as the
// capability-cache key. Falls back to the raw base URL when it does not
// parse.
func (c *Client) Host() string {
	u, err := url.Parse(c.baseURL)
	if err != nil || u.Host == "" {
		return c.baseURL
	}
	return u.Host
}

// Close releases idle connections.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if transport, ok := c.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}

// token returns the current bearer token, if any.
func (c *Client) token() string {
	if c.config.TokenFunc == nil {
		return ""
	}
	return c.config.TokenFunc()
}

// doRequest performs an API request, attaching bearer auth when a session
// exists, with retry support for rate-limited responses.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	reqURL := c.baseURL + path

	policy := ratelimit.NewPolicy(c.config.MaxRetries, c.config.RetryDelay)

	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			jsonBody, marshalErr := json.Marshal(body)
			if marshalErr != nil {
				return nil, marshalErr
			}
			bodyReader = bytes.NewReader(jsonBody)
		}

		req, reqErr := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
		if reqErr != nil {
			return nil, reqErr
		}

		req.Header.Set("Content-Type", "application/json")
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			utils.Debugf("transport failure on %s %s: %v", method, path, err)
			return nil, backend.NewNetworkError(err)
		}

		if resp.StatusCode != http.StatusTooManyRequests || !c.config.EnableRateLimit {
			return resp, nil
		}

		delay, retry := policy.Delay(attempt, resp)
		_ = resp.Body.Close()
		if !retry {
			rlErr := &ratelimit.Error{Host: c.Host(), Attempts: policy.MaxRetries}
			return nil, backend.NewError(backend.KindHTTP, http.StatusTooManyRequests, rlErr.Error())
		}
		utils.Debugf("rate limited on %s %s, retrying in %s", method, path, delay)

		select {
		case <-ctx.Done():
			return nil, backend.NewNetworkError(ctx.Err())
		case <-time.After(delay):
		}
	}
}

// errorMessage extracts the server-provided {"error": ...} message, if any.
func errorMessage(body io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return ""
	}
	return payload.Error
}

// classify maps a non-2xx response to a typed error.
func classify(resp *http.Response) *backend.Error {
	msg := errorMessage(resp.Body)
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return backend.NewError(backend.KindUnauthorized, resp.StatusCode, msg)
	case http.StatusNotFound:
		return backend.NewError(backend.KindNotFound, resp.StatusCode, msg)
	default:
		return backend.NewError(backend.KindHTTP, resp.StatusCode, msg)
	}
}

// wireTask mirrors the server's todo JSON representation.
type wireTask struct {
	ID          string     `json:"_id"`
	Body        string     `json:"body"`
	Completed   bool       `json:"completed"`
	Priority    string     `json:"priority,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	StarredBy   []string   `json:"starredBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// toTask converts a wire task to the domain model.
func (w *wireTask) toTask() backend.Task {
	priority, ok := backend.ParsePriority(w.Priority)
	if !ok {
		// Unknown priorities from older servers degrade to unset.
		priority = ""
	}
	return backend.Task{
		ID:          w.ID,
		Body:        w.Body,
		Completed:   w.Completed,
		Priority:    priority,
		DueDate:     w.DueDate,
		StarredBy:   w.StarredBy,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
		CompletedAt: w.CompletedAt,
	}
}

// List fetches tasks, forwarding non-empty filters as query parameters.
func (c *Client) List(ctx context.Context, q backend.Query) ([]backend.Task, error) {
	params := url.Values{}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.Status != "" && q.Status != backend.StatusAll {
		params.Set("status", string(q.Status))
	}
	if q.Priority != "" {
		params.Set("priority", string(q.Priority))
	}

	path := "/todos"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, classify(resp)
	}

	var wire []wireTask
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode task list: %w", err)
	}

	tasks := make([]backend.Task, len(wire))
	for i := range wire {
		tasks[i] = wire[i].toTask()
	}
	return tasks, nil
}

// Create adds a new task. The server assigns the identifier.
func (c *Client) Create(ctx context.Context, p backend.CreatePayload) (*backend.Task, error) {
	body := map[string]interface{}{
		"body": p.Body,
	}
	if p.Priority != "" {
		body["priority"] = string(p.Priority)
	}
	if p.DueDate != nil {
		body["dueDate"] = p.DueDate.UTC().Format(time.RFC3339)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/todos", body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, classify(resp)
	}

	var wire wireTask
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode created task: %w", err)
	}

	task := wire.toTask()
	return &task, nil
}

// Patch sends a partial update. An empty Updates value sends an empty JSON
// object, which the server defines as "toggle completed"; toggle-vs-edit is
// the caller's decision and the payload is forwarded verbatim. The server
// may answer with the updated task or a bare success envelope; in the
// latter case the returned task is nil.
func (c *Client) Patch(ctx context.Context, id string, u backend.Updates) (*backend.Task, error) {
	body := map[string]interface{}{}
	if u.Body != nil {
		body["body"] = *u.Body
	}
	if u.Priority != nil {
		body["priority"] = string(*u.Priority)
	}
	if u.ClearDueDate {
		body["dueDate"] = nil
	} else if u.DueDate != nil {
		body["dueDate"] = u.DueDate.UTC().Format(time.RFC3339)
	}

	resp, err := c.doRequest(ctx, http.MethodPatch, "/todos/"+id, body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, classify(resp)
	}

	// Older servers reply {"success": true} instead of the entity.
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read patch response: %w", err)
	}
	var wire wireTask
	if err := json.Unmarshal(raw, &wire); err != nil || wire.ID == "" {
		return nil, nil
	}

	task := wire.toTask()
	return &task, nil
}

// Delete removes a task.
func (c *Client) Delete(ctx context.Context, id string) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/todos/"+id, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return classify(resp)
	}

	return nil
}

// SetStar sets or clears the star on a task for the current user.
// The result distinguishes auth rejection from capability rejection:
// a 403 on this endpoint means the host does not support starring.
func (c *Client) SetStar(ctx context.Context, id string, desired bool) (backend.StarResult, error) {
	body := map[string]interface{}{"starred": desired}

	resp, err := c.doRequest(ctx, http.MethodPatch, "/todos/"+id+"/star", body)
	if err != nil {
		return backend.StarFailure, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return backend.StarSuccess, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return backend.StarUnauthorized, backend.NewError(backend.KindUnauthorized, resp.StatusCode, errorMessage(resp.Body))
	case resp.StatusCode == http.StatusForbidden:
		return backend.StarUnsupported, backend.NewError(backend.KindUnsupported, resp.StatusCode, errorMessage(resp.Body))
	default:
		return backend.StarFailure, classify(resp)
	}
}

// Verify interface compliance at compile time
var _ backend.Repository = (*Client)(nil)
