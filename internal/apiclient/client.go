// Package apiclient implements the HTTP client of the users API
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fullstack-poc/usersview/internal/models"
	"go.uber.org/zap"
)

const (
	healthPath = "/api/health"
	usersPath  = "/api/users"

	maxResponseSize = 10 * 1024 * 1024 // 10MB
)

// ErrMalformedResponse is returned when a 2xx response body does not have the expected shape
var ErrMalformedResponse = errors.New("malformed response body")

// StatusError is returned for responses with a non-2xx status code
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the users API.
// It holds no state besides its configuration and is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a new users API client.
//
// "baseURL" is the scheme and host of the API, without a trailing slash.
// If "httpClient" is nil, http.DefaultClient is used, so the transport defaults govern timeouts.
func New(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// BaseURL returns the configured base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// UsersURL returns the absolute URL of the users collection
func (c *Client) UsersURL() string {
	return c.baseURL + usersPath
}

// Health reads the API health status.
// The response must be a JSON object with at least "status" and "uptime".
func (c *Client) Health(ctx context.Context) (*models.HealthStatus, error) {
	body, err := c.do(ctx, http.MethodGet, healthPath, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Status    *string  `json:"status"`
		Uptime    *float64 `json:"uptime"`
		Timestamp string   `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	if payload.Status == nil || payload.Uptime == nil {
		return nil, fmt.Errorf("health response without status or uptime: %w", ErrMalformedResponse)
	}

	return &models.HealthStatus{
		Status:    *payload.Status,
		Uptime:    *payload.Uptime,
		Timestamp: payload.Timestamp,
	}, nil
}

// ListUsers reads all users.
//
// A 2xx response whose body is valid JSON but not an array yields an empty, non-nil slice.
func (c *Client) ListUsers(ctx context.Context) ([]models.UserRecord, error) {
	body, err := c.do(ctx, http.MethodGet, usersPath, nil)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode users response: %w", err)
	}

	users := []models.UserRecord{}
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		c.logger.Debug("users response is not an array, using empty collection")
		return users, nil
	}
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}

// CreateUser creates a user from the draft and returns the record stored by the server.
// An empty role is sent as "user". A 2xx body that is not a record with a server-assigned id
// is reported as ErrMalformedResponse.
func (c *Client) CreateUser(ctx context.Context, draft models.DraftUser) (*models.UserRecord, error) {
	payload, err := json.Marshal(draft.WithDefaults())
	if err != nil {
		return nil, fmt.Errorf("failed to encode user: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, usersPath, payload)
	if err != nil {
		return nil, err
	}

	var user *models.UserRecord
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to decode created user: %w", err)
	}
	if user == nil || user.ID == 0 {
		return nil, fmt.Errorf("created user without id: %w", ErrMalformedResponse)
	}
	return user, nil
}

// do issues the request and returns the body of a 2xx response.
// Non-2xx responses are returned as *StatusError carrying the response text.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	url := c.baseURL + path

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("sending request", zap.String("method", method), zap.String("url", url))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	c.logger.Debug("received response",
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
	)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}
