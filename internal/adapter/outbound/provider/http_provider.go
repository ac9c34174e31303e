// Package provider supplies sample entities for simulation runs. The
// HTTP provider fetches live samples from an external service; the
// static provider serves fixtures for tests and offline evaluation.
package provider

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
	"github.com/Desk-Guard/Deskguard/internal/domain/sample"
)

// maxResponseBodySize caps the sample response body. The provider is
// an external service; an unbounded body must not OOM the engine.
const maxResponseBodySize = 10 * 1024 * 1024 // 10MB

// defaultFetchTimeout bounds one sample fetch.
const defaultFetchTimeout = 10 * time.Second

// HTTPProvider fetches sample entities from an external HTTP service.
// It implements sample.Provider.
type HTTPProvider struct {
	endpoint   string
	httpClient *http.Client
	authToken  string
}

// HTTPProviderOption is a functional option for configuring HTTPProvider.
type HTTPProviderOption func(*HTTPProvider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPProviderOption {
	return func(p *HTTPProvider) {
		p.httpClient = client
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) HTTPProviderOption {
	return func(p *HTTPProvider) {
		if p.httpClient != nil {
			p.httpClient.Timeout = d
		}
	}
}

// WithAuthToken sets a bearer token sent with each fetch.
func WithAuthToken(token string) HTTPProviderOption {
	return func(p *HTTPProvider) {
		p.authToken = token
	}
}

// NewHTTPProvider creates a provider for the given sample service
// endpoint. The endpoint is the base URL; samples are fetched from
// GET {endpoint}/samples.
func NewHTTPProvider(endpoint string, opts ...HTTPProviderOption) *HTTPProvider {
	p := &HTTPProvider{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: defaultFetchTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// sampleEnvelope is the wire format of the sample service response.
type sampleEnvelope struct {
	Entities []wireEntity `json:"entities"`
}

type wireEntity struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	CreatedAt time.Time      `json:"created_at"`
	Attrs     map[string]any `json:"attrs"`
}

// FetchSample retrieves up to limit entities for the given domain and
// scope. The response is untrusted input: entities missing an id or
// kind are dropped rather than failing the whole fetch.
func (p *HTTPProvider) FetchSample(ctx context.Context, domain policy.Domain, scope sample.Scope, limit int) ([]sample.Entity, error) {
	q := url.Values{}
	q.Set("domain", string(domain))
	q.Set("scope_type", string(scope.ScopeType))
	if scope.ScopeValue != "" {
		q.Set("scope_value", scope.ScopeValue)
	}
	q.Set("limit", strconv.Itoa(limit))

	reqURL := p.endpoint + "/samples?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build sample request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sample: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little for connection reuse, then report.
		_, _ = io.CopyN(io.Discard, resp.Body, 1024)
		return nil, fmt.Errorf("sample service returned status %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxResponseBodySize)
	var envelope sampleEnvelope
	if err := json.NewDecoder(body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode sample response: %w", err)
	}

	entities := make([]sample.Entity, 0, len(envelope.Entities))
	for _, w := range envelope.Entities {
		if w.ID == "" || w.Kind == "" {
			continue
		}
		entities = append(entities, sample.Entity{
			ID:        w.ID,
			Kind:      w.Kind,
			CreatedAt: w.CreatedAt.UTC(),
			Attrs:     w.Attrs,
		})
		if len(entities) >= limit {
			break
		}
	}
	return entities, nil
}
