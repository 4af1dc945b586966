package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"snda-portal/internal/domain"
	"snda-portal/internal/observability"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const requestIDHeader = "X-Request-ID"

// Endpoints names the backend paths used by the client
type Endpoints struct {
	Login   string `toml:"login"`
	Refresh string `toml:"refresh"`
	Me      string `toml:"me"`
}

// DefaultEndpoints returns the Django REST paths served by the backend
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Login:   "/api/token/",
		Refresh: "/api/token/refresh/",
		Me:      "/api/users/me/",
	}
}

// Client talks to the backend REST API
type Client struct {
	baseURL    string
	endpoints  Endpoints
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithCookieJar attaches a jar so token cookies travel with every request
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *Client) {
		c.httpClient.Jar = jar
	}
}

// WithRateLimit throttles outbound requests. A non-positive rps disables the limiter.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithEndpoints overrides the backend paths
func WithEndpoints(e Endpoints) Option {
	return func(c *Client) {
		c.endpoints = e
	}
}

// NewClient creates a backend client rooted at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		endpoints: DefaultEndpoints(),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured API origin
func (c *Client) BaseURL() string {
	return c.baseURL
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ObtainToken exchanges credentials for an access/refresh pair
func (c *Client) ObtainToken(ctx context.Context, username, password string) (*domain.TokenPair, error) {
	resp, err := c.do(ctx, http.MethodPost, c.endpoints.Login, "", tokenRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, transportError("obtain token", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, newResponseError(resp)
	}

	var pair domain.TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w: %w", domain.ErrMalformedToken, err)
	}
	if pair.Access == "" {
		return nil, fmt.Errorf("token response missing access token: %w", domain.ErrMalformedToken)
	}
	return &pair, nil
}

// CurrentUser fetches the profile the access token belongs to
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*domain.User, error) {
	resp, err := c.do(ctx, http.MethodGet, c.endpoints.Me, accessToken, nil)
	if err != nil {
		return nil, transportError("fetch current user", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, newResponseError(resp)
	}

	var user domain.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user profile: %w", err)
	}
	return &user, nil
}

// AuthFetch performs an arbitrary request with the bearer token attached when present.
// The caller owns the returned body on success; non-2xx responses become *ResponseError.
func (c *Client) AuthFetch(ctx context.Context, token, method, path string, body any) (*http.Response, error) {
	resp, err := c.do(ctx, method, path, token, body)
	if err != nil {
		return nil, transportError(method+" "+path, err)
	}
	if !isSuccess(resp.StatusCode) {
		defer resp.Body.Close()
		return nil, newResponseError(resp)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body any) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case []byte:
			reader = bytes.NewReader(b)
		case io.Reader:
			reader = b
		default:
			data, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request body: %w", err)
			}
			reader = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	requestID := uuid.New().String()
	req.Header.Set(requestIDHeader, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)

	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	observability.BackendRequestDuration.WithLabelValues(method, path, status).Observe(elapsed.Seconds())

	observability.FromContext(observability.WithRequestID(ctx, requestID)).Debug("backend request",
		slog.String("method", method),
		slog.String("path", path),
		slog.String("status", status),
		slog.Duration("elapsed", elapsed))

	return resp, err
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}
