// Package capability talks to the external capability-execution service.
package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Harshitk-cp/tenet/internal/buildconfig"
	"github.com/Harshitk-cp/tenet/internal/domain"
)

const (
	executePath    = "/v1/capabilities/execute"
	DefaultTimeout = 30 * time.Second
)

// HTTPClient executes capabilities over JSON/HTTP.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Execute returns a transport error only when no usable answer came back.
// Server-side failures without a structured body are reported as error
// responses: 5xx as retryable, other statuses as non-retryable.
func (c *HTTPClient) Execute(ctx context.Context, in domain.CapabilityRequest) (*domain.CapabilityResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal capability request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+executePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create capability request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", buildconfig.UserAgent())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("capability request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read capability response: %w", err)
	}

	var out domain.CapabilityResponse
	if err := json.Unmarshal(respBody, &out); err == nil && out.Status != "" {
		if out.Status == domain.CapabilityError && out.RetryStrategy == "" {
			out.RetryStrategy = domain.RetryNone
		}
		return &out, nil
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil, fmt.Errorf("capability service returned unparseable body: %s", string(respBody))
	}
	strategy := domain.RetryNone
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		strategy = domain.RetryBackoff
	}
	return &domain.CapabilityResponse{
		Status:        domain.CapabilityError,
		ErrorCode:     fmt.Sprintf("http_%d", resp.StatusCode),
		ErrorMessage:  strings.TrimSpace(string(respBody)),
		RetryStrategy: strategy,
	}, nil
}
