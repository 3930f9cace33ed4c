// Package api is the client for the remote project and task service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// TokenSource supplies the bearer token for authenticated requests.
type TokenSource interface {
	Token() string
}

// Client is a thin HTTP client for the remote REST API.
// It handles Bearer token authentication, JSON marshaling, client-side
// rate limiting and retry with exponential backoff on HTTP 429.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	limiter    *rate.Limiter
	log        logrus.FieldLogger

	mu             sync.RWMutex
	tokens         TokenSource
	onUnauthorized func()
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRateLimit caps outbound requests per second. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxRetries sets how many times a 429 response is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a new API client. The baseURL should be the root of
// the API (e.g., https://uptask.example.com/api).
func NewClient(baseURL string, opts ...Option) *Client {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
		log:        discard,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTokenSource sets where authenticated requests read their token from.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = ts
}

// OnUnauthorized registers fn to be called whenever an authenticated
// request is answered with 401.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

// request describes a single API call.
type request struct {
	method string
	path   string
	body   interface{}
	result interface{}

	// anonymous requests carry no token and treat 401 as a plain
	// credential failure rather than a session invalidation.
	anonymous bool

	// token overrides the TokenSource when set.
	token string
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tokens == nil {
		return ""
	}
	return c.tokens.Token()
}

func (c *Client) unauthorized() {
	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// do is the core HTTP method that builds the request, handles auth,
// rate limiting with exponential backoff, and JSON (de)serialization.
func (c *Client) do(ctx context.Context, r request) error {
	token := r.token
	if !r.anonymous && token == "" {
		token = c.currentToken()
		if token == "" {
			return &Error{
				Kind:    KindUnauthorized,
				Method:  r.method,
				Path:    r.path,
				Message: "You must log in first",
			}
		}
	}

	var payload []byte
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	requestID := uuid.NewString()
	log := c.log.WithFields(logrus.Fields{
		"method":     r.method,
		"path":       r.path,
		"request_id": requestID,
	})

	var lastStatus int
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return c.networkError(r, err)
			}
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", requestID)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		started := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			log.WithError(err).Warn("request failed")
			return c.networkError(r, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return c.networkError(r, readErr)
		}

		log.WithFields(logrus.Fields{
			"status":  resp.StatusCode,
			"elapsed": time.Since(started),
			"attempt": attempt,
		}).Debug("request done")

		if resp.StatusCode == http.StatusTooManyRequests {
			lastStatus = resp.StatusCode
			wait := retryAfterDuration(resp, attempt)
			select {
			case <-ctx.Done():
				return c.networkError(r, ctx.Err())
			case <-time.After(wait):
				continue
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := responseError(r, resp.StatusCode, respBody)
			if apiErr.Kind == KindUnauthorized && !r.anonymous {
				c.unauthorized()
			}
			return apiErr
		}

		// No content to parse (e.g. 204).
		if r.result == nil || resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
			return nil
		}

		if err := json.Unmarshal(respBody, r.result); err != nil {
			return &Error{
				Kind:    KindServer,
				Status:  resp.StatusCode,
				Method:  r.method,
				Path:    r.path,
				Message: "The server sent an unreadable response",
				Err:     fmt.Errorf("unmarshaling response from %s %s: %w", r.method, r.path, err),
			}
		}

		return nil
	}

	return &Error{
		Kind:    KindServer,
		Status:  lastStatus,
		Method:  r.method,
		Path:    r.path,
		Message: fmt.Sprintf("Server is busy, max retries (%d) exceeded", c.maxRetries),
	}
}

func (c *Client) networkError(r request, err error) *Error {
	return &Error{
		Kind:    KindNetwork,
		Method:  r.method,
		Path:    r.path,
		Message: defaultMessage(KindNetwork),
		Err:     err,
	}
}

// responseError maps a non-2xx response to an *Error, passing the
// server's message through verbatim when the body carries one.
func responseError(r request, status int, body []byte) *Error {
	kind := kindForStatus(status)
	msg := defaultMessage(kind)

	var errResp ErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.text() != "" {
		msg = errResp.text()
	}

	return &Error{
		Kind:    kind,
		Status:  status,
		Method:  r.method,
		Path:    r.path,
		Message: msg,
	}
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
