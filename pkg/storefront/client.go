// Package storefront is the Go client for the storefront API: checkout
// orchestration, the remote cart and the route auth guard.
package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout      = 15 * time.Second
	errorBodyReadLimit  = 4096
	clientIDHeader      = "X-Client-Id"
	idempotencyHeader   = "Idempotency-Key"
	authorizationHeader = "Authorization"
	contentTypeJSON     = "application/json"
)

var errClientNotConfigured = errors.New("storefront client not configured")

// APIError is a non-2xx answer from the storefront API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("storefront: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("storefront: status %d %s: %s", e.Status, e.Code, e.Message)
}

// Temporary reports whether the same request may succeed later.
func (e *APIError) Temporary() bool {
	return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

// Client talks to one storefront deployment.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	token      func(ctx context.Context) string
}

// Option configures optional client behavior.
type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithClientID sets the device id the server namespaces carts by.
func WithClientID(id string) Option {
	return func(c *Client) {
		c.clientID = strings.TrimSpace(id)
	}
}

// WithTokenSource supplies the bearer token for authenticated calls.
func WithTokenSource(fn func(ctx context.Context) string) Option {
	return func(c *Client) {
		c.token = fn
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errors.New("storefront base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid storefront base url %q: %w", baseURL, err)
	}

	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type requestOptions struct {
	token          string
	idempotencyKey string
}

// do sends body as JSON and decodes a 2xx answer into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any, ro requestOptions) error {
	if c == nil || c.httpClient == nil {
		return errClientNotConfigured
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", contentTypeJSON)
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	if c.clientID != "" {
		req.Header.Set(clientIDHeader, c.clientID)
	}
	token := ro.token
	if token == "" && c.token != nil {
		token = c.token(ctx)
	}
	if token != "" {
		req.Header.Set(authorizationHeader, "Bearer "+token)
	}
	if ro.idempotencyKey != "" {
		req.Header.Set(idempotencyHeader, ro.idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
	apiErr := &APIError{Status: resp.StatusCode}

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Code != "" {
		apiErr.Code = body.Error.Code
		apiErr.Message = body.Error.Message
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// envelope is the `{success, data}` wrapper used under /api.
type envelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}
