package deskguard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Client is the Deskguard SDK client. It communicates with the policy
// engine's JSON API to resolve effective policies and run simulations.
type Client struct {
	serverAddr string
	apiKey     string
	failMode   string
	timeout    time.Duration
	httpClient *http.Client

	// Cache fields. Resolutions are read-heavy and change only on
	// publish, so short-TTL caching cuts most lookups.
	cache        sync.Map
	cacheTTL     time.Duration
	cacheMaxSize int
	cacheCount   int64
	cacheMu      sync.Mutex

	logger *slog.Logger
}

// cacheEntry is a cached resolution with expiry.
type cacheEntry struct {
	resolution *Resolution
	expiresAt  time.Time
	createdAt  time.Time
}

// NewClient creates a new Deskguard SDK client.
// It reads configuration from DESKGUARD_* environment variables by default.
// Options can be used to override the defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		serverAddr:   os.Getenv("DESKGUARD_SERVER_ADDR"),
		apiKey:       os.Getenv("DESKGUARD_API_KEY"),
		failMode:     envOrDefault("DESKGUARD_FAIL_MODE", "closed"),
		timeout:      parseDurationEnv("DESKGUARD_TIMEOUT", 5*time.Second),
		cacheTTL:     parseDurationEnv("DESKGUARD_CACHE_TTL", 5*time.Second),
		cacheMaxSize: parseIntEnv("DESKGUARD_CACHE_MAX_SIZE", 1000),
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.timeout,
		}
	}

	return c
}

// Resolve looks up the effective policy for a ticket context. The
// returned Resolution has Matched=false when no published policy
// applies. With fail mode "open", an unreachable server also yields an
// unmatched resolution instead of an error.
func (c *Client) Resolve(ctx context.Context, req ResolveRequest) (*Resolution, error) {
	cacheKey := req.Domain + ":" + req.Queue + ":" + req.TicketType
	if res, ok := c.getFromCache(cacheKey); ok {
		return res, nil
	}

	q := url.Values{}
	q.Set("domain", req.Domain)
	if req.Queue != "" {
		q.Set("queue", req.Queue)
	}
	if req.TicketType != "" {
		q.Set("ticket_type", req.TicketType)
	}

	var res Resolution
	err := c.doRequest(ctx, http.MethodGet, "/api/v1/resolve?"+q.Encode(), nil, &res)
	if err != nil {
		if isConnectionError(err) {
			if c.failMode == "open" {
				c.logger.Warn("Deskguard server unreachable, failing open",
					"server_addr", c.serverAddr,
					"error", err,
				)
				return &Resolution{Matched: false}, nil
			}
			return nil, &ServerUnreachableError{Cause: err}
		}
		return nil, err
	}

	c.putInCache(cacheKey, &res)
	return &res, nil
}

// Effective returns the published version of a template, or a
// *NotFoundError when the template has no published version.
func (c *Client) Effective(ctx context.Context, templateID string) (*Version, error) {
	var v Version
	path := fmt.Sprintf("/api/v1/templates/%s/effective", url.PathEscape(templateID))
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Simulate dry-runs a version against sampled production data. The
// version is not modified; the server records the run in its audit
// trail.
func (c *Client) Simulate(ctx context.Context, versionID string, req SimulateRequest) (*SimulationReport, error) {
	var report SimulationReport
	path := fmt.Sprintf("/api/v1/versions/%s/simulate", url.PathEscape(versionID))
	if err := c.doRequest(ctx, http.MethodPost, path, req, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// errorBody is the server's error response shape.
type errorBody struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields"`
}

// doRequest performs an HTTP request to the Deskguard server and maps
// error responses to the SDK error types.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, result any) error {
	requestURL := strings.TrimRight(c.serverAddr, "/") + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return mapErrorResponse(httpResp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

// mapErrorResponse converts a non-2xx response into a typed error.
func mapErrorResponse(status int, body []byte) error {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || eb.Error == "" {
		eb.Error = strings.TrimSpace(string(body))
	}

	switch status {
	case http.StatusBadRequest:
		return &ValidationError{Message: eb.Error, Fields: eb.Fields}
	case http.StatusNotFound:
		return &NotFoundError{Message: eb.Error}
	case http.StatusConflict:
		return &ConflictError{Message: eb.Error}
	default:
		return &APIError{StatusCode: status, Message: eb.Error}
	}
}

// getFromCache retrieves a cached resolution if it exists and hasn't expired.
func (c *Client) getFromCache(key string) (*Resolution, bool) {
	if c.cacheTTL <= 0 {
		return nil, false
	}
	val, ok := c.cache.Load(key)
	if !ok {
		return nil, false
	}
	entry := val.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.cache.Delete(key)
		c.cacheMu.Lock()
		c.cacheCount--
		c.cacheMu.Unlock()
		return nil, false
	}
	return entry.resolution, true
}

// putInCache stores a resolution in the cache.
func (c *Client) putInCache(key string, res *Resolution) {
	if c.cacheTTL <= 0 {
		return
	}

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	// Best-effort eviction: if over max size, delete some expired entries.
	if c.cacheCount >= int64(c.cacheMaxSize) {
		now := time.Now()
		evicted := 0
		c.cache.Range(func(k, v any) bool {
			entry := v.(*cacheEntry)
			if now.After(entry.expiresAt) {
				c.cache.Delete(k)
				evicted++
			}
			return evicted < 100
		})
		c.cacheCount -= int64(evicted)

		// If still over limit, evict the oldest entry.
		if c.cacheCount >= int64(c.cacheMaxSize) {
			var oldest time.Time
			var oldestKey any
			c.cache.Range(func(k, v any) bool {
				entry := v.(*cacheEntry)
				if oldest.IsZero() || entry.createdAt.Before(oldest) {
					oldest = entry.createdAt
					oldestKey = k
				}
				return true
			})
			if oldestKey != nil {
				c.cache.Delete(oldestKey)
				c.cacheCount--
			}
		}
	}

	c.cache.Store(key, &cacheEntry{
		resolution: res,
		expiresAt:  time.Now().Add(c.cacheTTL),
		createdAt:  time.Now(),
	})
	c.cacheCount++
}

// isConnectionError determines if an error is a connection-level error
// (server unreachable, connection refused, timeout, etc.).
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	// Errors the server answered with are not connection errors.
	var apiErr *APIError
	var ve *ValidationError
	var nf *NotFoundError
	var ce *ConflictError
	if errors.As(err, &apiErr) || errors.As(err, &ve) || errors.As(err, &nf) || errors.As(err, &ce) {
		return false
	}

	// All other errors from http.Client.Do are connection errors
	// (DNS resolution, connection refused, TLS handshake, timeouts).
	return true
}

// Helper functions for env var parsing.

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func parseDurationEnv(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	// Try parsing as seconds (integer).
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	// Try parsing as duration string.
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return defaultVal
}

func parseIntEnv(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return defaultVal
}
