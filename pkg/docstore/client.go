package docstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"docbulk/internal/cache"
	"docbulk/internal/config"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DOCUMENTS_ENDPOINT = "/v1/documents"

	defaultTimeout = 30 * time.Second
)

// Client talks to the document store REST API. It is safe for concurrent use
// by the workers of a job.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	database   string

	cache    cache.Cache
	cacheTTL time.Duration

	requestTicker *time.Ticker
	requestChan   chan struct{}
	closeOnce     sync.Once
	stop          chan struct{}
}

// New creates a client with optional rate limiting and read cache. cache may be nil.
func New(cfg config.DocStoreConfig, c cache.Cache) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		database:   cfg.Database,
		cacheTTL:   time.Duration(cfg.DefaultCacheTTL) * time.Second,
		stop:       make(chan struct{}),
	}
	if cfg.Cache && c != nil {
		client.cache = c
	}

	if cfg.RequestsPerMinute > 0 {
		client.startRateLimiter(cfg.RequestsPerMinute)
	}

	log.Info().
		Str("base_url", client.baseURL).
		Str("database", client.database).
		Int("requests_per_minute", cfg.RequestsPerMinute).
		Dur("timeout", timeout).
		Bool("cache", client.cache != nil).
		Msg("Document store client initialized")

	return client
}

// NewFromMap builds a client from a job's opaque client configuration. Keys:
// base_url, username, password, database, requests_per_minute, timeout_seconds.
func NewFromMap(values map[string]string) (*Client, error) {
	cfg := config.DocStoreConfig{
		BaseURL:  values["base_url"],
		Username: values["username"],
		Password: values["password"],
		Database: values["database"],
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("client config: base_url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("client config: invalid base_url: %w", err)
	}

	for key, target := range map[string]*int{
		"requests_per_minute": &cfg.RequestsPerMinute,
		"timeout_seconds":     &cfg.TimeoutSeconds,
	} {
		raw, ok := values[key]
		if !ok || raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("client config: invalid %s %q", key, raw)
		}
		*target = n
	}

	return New(cfg, nil), nil
}

// startRateLimiter refills a single request token at the configured rate
func (c *Client) startRateLimiter(requestsPerMinute int) {
	interval := time.Minute / time.Duration(requestsPerMinute)

	c.requestTicker = time.NewTicker(interval)
	c.requestChan = make(chan struct{}, 1)
	c.requestChan <- struct{}{}

	go func() {
		for {
			select {
			case <-c.stop:
				return
			case <-c.requestTicker.C:
				select {
				case c.requestChan <- struct{}{}:
					log.Trace().Msg("Added token to request channel")
				default:
				}
			}
		}
	}()
}

// waitForToken blocks until the rate limiter grants a request or ctx ends
func (c *Client) waitForToken(ctx context.Context, requestID string) error {
	if c.requestChan == nil {
		return nil
	}

	waitStart := time.Now()
	select {
	case <-c.requestChan:
	case <-ctx.Done():
		return ctx.Err()
	}

	log.Debug().
		Str("request_id", requestID).
		Dur("wait_duration", time.Since(waitStart)).
		Msg("Acquired rate limit token")
	return nil
}

// response is a fully read HTTP response
type response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// do executes one request and returns the body of a 2xx response. Non-2xx
// responses become *APIError.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, contentType string, body io.Reader, accept string) (*response, error) {
	requestID := uuid.NewString()
	startTime := time.Now()

	target := c.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	if err := c.waitForToken(ctx, requestID); err != nil {
		return nil, fmt.Errorf("wait for rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	execStart := time.Now()
	log.Debug().
		Str("request_id", requestID).
		Str("method", method).
		Str("url", target).
		Dur("prep_duration", execStart.Sub(startTime)).
		Msg("Executing document store request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().
			Str("request_id", requestID).
			Err(err).
			Str("method", method).
			Str("url", target).
			Dur("exec_duration", time.Since(execStart)).
			Msg("Error executing request")
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	readStart := time.Now()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseAPIError(resp.StatusCode, respBody)
		log.Error().
			Str("request_id", requestID).
			Err(apiErr).
			Str("method", method).
			Str("url", target).
			Int("status_code", resp.StatusCode).
			Int("response_size", len(respBody)).
			Dur("total_duration", time.Since(startTime)).
			Msg("Document store returned error response")
		return nil, apiErr
	}

	log.Debug().
		Str("request_id", requestID).
		Str("method", method).
		Int("status_code", resp.StatusCode).
		Int("response_size", len(respBody)).
		Dur("exec_duration", readStart.Sub(execStart)).
		Dur("read_duration", time.Since(readStart)).
		Dur("total_duration", time.Since(startTime)).
		Msg("Document store request completed successfully")

	return &response{StatusCode: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}

// resolveDatabase falls back to the configured database
func (c *Client) resolveDatabase(database string) string {
	if database != "" {
		return database
	}
	return c.database
}

// Close stops the rate limiter. It does not close the shared cache.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		if c.requestTicker != nil {
			log.Info().Str("base_url", c.baseURL).Msg("Shutting down document store client")
			c.requestTicker.Stop()
		}
	})
	return nil
}
