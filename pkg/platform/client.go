// Package platform is the typed HTTP client for the performance-testing
// platform's run-lifecycle API.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/perfx-labs/perfx/pkg/models"
	"github.com/perfx-labs/perfx/pkg/retry"
)

// envelope is the platform's uniform response wrapper.
// A non-zero code is a rejection even on HTTP 200.
type envelope struct {
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// Client manages communication with the platform API
type Client struct {
	baseURL    string
	httpClient *http.Client
	retryCfg   retry.Config
}

// Option configures a Client
type Option func(*Client)

// WithTimeout overrides the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRetryConfig overrides the transient-error retry policy
func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Client) { c.retryCfg = cfg }
}

// NewClient creates a new platform client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retryCfg: retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchRun retrieves the run descriptor, including endpoint schema and
// environment references
func (c *Client) FetchRun(ctx context.Context, runID string) (*models.RunDescriptor, error) {
	data, err := c.call(ctx, http.MethodGet, "/api/perf/runs/"+runID, nil, "run", runID)
	if err != nil {
		return nil, err
	}
	var run models.RunDescriptor
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run descriptor: %w", err)
	}
	return &run, nil
}

// FetchEnvironment retrieves an environment by id or code
func (c *Client) FetchEnvironment(ctx context.Context, envID string) (*models.EnvironmentInfo, error) {
	data, err := c.call(ctx, http.MethodGet, "/api/perf/environments/"+envID, nil, "environment", envID)
	if err != nil {
		return nil, err
	}
	var env models.EnvironmentInfo
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}
	return &env, nil
}

// Start records the run as started with its resolved arguments.
// The platform treats a duplicate start with identical arguments as an
// idempotent acknowledgment, so a retried start that conflicts is
// success, not an error.
func (c *Client) Start(ctx context.Context, runID string, args models.ResolvedArguments) error {
	payload := map[string]interface{}{}
	if len(args) > 0 {
		payload["arguments"] = args
	}
	_, err := c.call(ctx, http.MethodPost, "/api/perf/runs/"+runID+"/start", payload, "run", runID)
	var rej *RejectionError
	if err != nil && errors.As(err, &rej) && rej.StatusCode == http.StatusConflict {
		return nil
	}
	return err
}

// Complete marks the run completed with its summary stats
func (c *Client) Complete(ctx context.Context, runID string, summary models.RunSummary) error {
	_, err := c.call(ctx, http.MethodPost, "/api/perf/runs/"+runID+"/complete", summary, "run", runID)
	return err
}

// Fail marks the run failed with a captured reason
func (c *Client) Fail(ctx context.Context, runID string, reason string) error {
	payload := map[string]string{"error_message": reason}
	_, err := c.call(ctx, http.MethodPost, "/api/perf/runs/"+runID+"/fail", payload, "run", runID)
	return err
}

// Cancel marks the run canceled on the platform
func (c *Client) Cancel(ctx context.Context, runID string) error {
	_, err := c.call(ctx, http.MethodPost, "/api/perf/runs/"+runID+"/cancel", nil, "run", runID)
	return err
}

// call performs one logical API call with bounded retries on transient
// errors. Non-transient errors surface immediately.
func (c *Client) call(ctx context.Context, method, path string, body interface{}, resource, id string) (json.RawMessage, error) {
	var result json.RawMessage
	err := retry.Do(ctx, c.retryCfg, func() error {
		data, err := c.doOnce(ctx, method, path, body, resource, id)
		if err != nil {
			var transient *TransientError
			if errors.As(err, &transient) {
				return err
			}
			return retry.Permanent(err)
		}
		result = data
		return nil
	})
	return result, err
}

func (c *Client) doOnce(ctx context.Context, method, path string, body interface{}, resource, id string) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Err: err}
	}

	if resp.StatusCode >= 500 {
		return nil, &TransientError{Err: fmt.Errorf("server error (status %d): %s", resp.StatusCode, string(respBody))}
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, &NotFoundError{Resource: resource, ID: id}
	}
	if resp.StatusCode >= 400 {
		return nil, &RejectionError{StatusCode: resp.StatusCode, Message: apiMessage(respBody)}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if env.Code != 0 {
		return nil, &RejectionError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	return env.Data, nil
}

// apiMessage pulls the message field out of an error body, falling
// back to the raw body
func apiMessage(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
		return env.Message
	}
	return string(body)
}
