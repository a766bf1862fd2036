package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"commute-annotator/internal/types"
	"github.com/sirupsen/logrus"
)

// HTTPClient provides HTTP functionality with rate limiting and retries
type HTTPClient struct {
	client  *http.Client
	config  *types.Config
	logger  types.Logger
	tracer  *Tracer
	limiter *time.Ticker
}

// NewHTTPClient creates a new HTTP client with the given configuration
func NewHTTPClient(config *types.Config, logger types.Logger, tracer *Tracer) *HTTPClient {
	client := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	delay := config.RequestDelay
	if delay <= 0 {
		delay = time.Millisecond
	}

	return &HTTPClient{
		client:  client,
		config:  config,
		logger:  logger,
		tracer:  tracer,
		limiter: time.NewTicker(delay),
	}
}

// Get performs a GET request with rate limiting and retries
func (h *HTTPClient) Get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	safeURL := RedactURL(url)

	for attempt := 0; attempt <= h.config.HTTPRetries; attempt++ {
		select {
		case <-h.limiter.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", h.config.UserAgent)
		req.Header.Set("Accept", "application/json")

		h.logger.Debugf("Making request to %s (attempt %d/%d)", safeURL, attempt+1, h.config.HTTPRetries+1)
		h.tracer.Trace("http-get", logrus.Fields{"url": safeURL, "attempt": attempt + 1})

		body, status, err := h.do(req)
		if err != nil {
			lastErr = err
			h.logger.Warnf("Request failed (attempt %d): %v", attempt+1, RedactText(err.Error()))
			continue
		}
		if status != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status code: %d", status)
			h.logger.Warnf("Unexpected status code %d (attempt %d)", status, attempt+1)
			continue
		}

		h.logger.Debugf("Successfully retrieved %d bytes from %s", len(body), safeURL)
		return body, nil
	}

	return nil, fmt.Errorf("all retry attempts failed: %w", lastErr)
}

// PostJSON sends payload as JSON and decodes the response into out. It makes a
// single attempt; callers own the retry policy.
func (h *HTTPClient) PostJSON(ctx context.Context, url string, headers map[string]string, payload, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	select {
	case <-h.limiter.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", h.config.UserAgent)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	h.tracer.Trace("http-post", logrus.Fields{"url": RedactURL(url)})

	body, status, err := h.do(req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", status)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (h *HTTPClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// Close cleans up resources
func (h *HTTPClient) Close() {
	if h.limiter != nil {
		h.limiter.Stop()
	}
}

// RemoteResolver resolves commutes through a resolver API served by cmd/api
type RemoteResolver struct {
	http     *HTTPClient
	endpoint string
	tracer   *Tracer
}

// NewRemoteResolver creates a resolver posting to endpoint
func NewRemoteResolver(client *HTTPClient, endpoint string, tracer *Tracer) *RemoteResolver {
	return &RemoteResolver{
		http:     client,
		endpoint: endpoint,
		tracer:   tracer,
	}
}

// Resolve sends one commute request
func (r *RemoteResolver) Resolve(ctx context.Context, apartmentAddress string) (*types.ResolveResponse, error) {
	var resp types.ResolveResponse
	req := types.ResolveRequest{ApartmentAddress: apartmentAddress}
	if err := r.http.PostJSON(ctx, r.endpoint, nil, req, &resp); err != nil {
		return nil, err
	}
	r.tracer.Trace("resolver-response", logrus.Fields{"address": apartmentAddress, "response": resp})
	return &resp, nil
}
