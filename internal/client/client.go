// Package client provides an HTTP client for the quizdeck server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/raphaelgruber/quizdeck/internal/metrics"
	"github.com/raphaelgruber/quizdeck/internal/models"
	"github.com/raphaelgruber/quizdeck/internal/pipeline"
	"github.com/raphaelgruber/quizdeck/internal/service"
)

// Client talks to the quizdeck HTTP API.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a new API client.
// If endpoint is empty, uses QUIZDECK_SERVER_URL env var or defaults to localhost:8585.
// Timeout can be configured via QUIZDECK_CLIENT_TIMEOUT env var (default 30s).
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("QUIZDECK_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:8585"
	}

	timeout := 30 * time.Second
	if t := os.Getenv("QUIZDECK_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		endpoint: strings.TrimRight(endpoint, "/") + "/api/v1",
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError is an error response from the server.
type APIError struct {
	Status  int
	Kind    string `json:"kind"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("server error %d (%s): %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("server error %d: %s", e.Status, e.Message)
}

// Is lets callers match input errors with errors.Is(err, models.ErrInput).
func (e *APIError) Is(target error) bool {
	return target == models.ErrInput && e.Kind == models.KindInput
}

// do sends a request and decodes a JSON response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// =============================================================================
// Jobs
// =============================================================================

// SubmitJob starts a pipeline run on the server.
func (c *Client) SubmitJob(ctx context.Context, in pipeline.Input) (*service.JobView, error) {
	var job service.JobView
	if err := c.do(ctx, http.MethodPost, "/jobs", in, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// SubmitReplay starts a replay job for a source.
func (c *Client) SubmitReplay(ctx context.Context, sourceID, deckName string) (*service.JobView, error) {
	path := "/quizzes/" + url.PathEscape(sourceID) + "/replay"
	if deckName != "" {
		path += "?deck=" + url.QueryEscape(deckName)
	}
	var job service.JobView
	if err := c.do(ctx, http.MethodPost, path, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJob fetches a job. Returns nil, nil if the job does not exist.
func (c *Client) GetJob(ctx context.Context, id string) (*service.JobView, error) {
	var job service.JobView
	err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, &job)
	if apiErr, ok := err.(*APIError); ok && apiErr.Status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns all jobs, most recent first.
func (c *Client) ListJobs(ctx context.Context) ([]service.JobView, error) {
	var jobs []service.JobView
	if err := c.do(ctx, http.MethodGet, "/jobs", nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// =============================================================================
// Quizzes and stats
// =============================================================================

// GetQuiz fetches the processed quiz for a source.
func (c *Client) GetQuiz(ctx context.Context, sourceID string) (models.QuizSet, error) {
	var body struct {
		QuizData models.QuizSet `json:"quiz_data"`
	}
	if err := c.do(ctx, http.MethodGet, "/quizzes/"+url.PathEscape(sourceID), nil, &body); err != nil {
		return nil, err
	}
	return body.QuizData, nil
}

// Stats fetches the server's metrics snapshot.
func (c *Client) Stats(ctx context.Context) (*metrics.Snapshot, error) {
	var snap metrics.Snapshot
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
