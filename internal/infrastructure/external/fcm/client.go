// Package fcm implements the push gateway client: one HTTP request sends a
// notification to many device tokens and returns a verdict per token.
package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chatpush/notifier/internal/domain/notification"
	"github.com/chatpush/notifier/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// MulticastPath is the endpoint path appended to BaseURL.
const MulticastPath = "/v1/messages:sendMulticast"

// MaxTokensPerRequest is the gateway's per-request token limit.
const MaxTokensPerRequest = 500

// ClientConfig contains configuration for the push gateway client.
type ClientConfig struct {
	// BaseURL of the gateway, e.g. https://push.internal
	BaseURL string

	// ServerKey is sent as a bearer token. Empty disables the header.
	ServerKey string

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// Logger for structured logging
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL, serverKey string) ClientConfig {
	return ClientConfig{
		BaseURL:   baseURL,
		ServerKey: serverKey,
		Timeout:   15 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// ErrTooManyTokens is returned when a batch exceeds MaxTokensPerRequest.
var ErrTooManyTokens = fmt.Errorf("fcm: more than %d tokens in one request", MaxTokensPerRequest)

// APIError is a non-2xx gateway response.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("fcm api error %d (%s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("fcm api error %d: %s", e.StatusCode, e.Message)
}

// IsServerSide reports whether the failure lies with the gateway rather
// than with the request.
func (e *APIError) IsServerSide() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// CountsAgainstCircuit decides whether err should trip the gateway breaker.
// Malformed or unauthorized requests are our fault and do not.
func CountsAgainstCircuit(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsServerSide()
	}
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the push gateway client.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new push gateway client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: config.Logger,
	}
}

// SendMulticast sends payload to every token in one request.
// Per-token failures are reported in the response, not as an error.
func (c *Client) SendMulticast(ctx context.Context, tokens []string, payload notification.Payload) (*notification.GatewayResponse, error) {
	if len(tokens) == 0 {
		return &notification.GatewayResponse{}, nil
	}
	if len(tokens) > MaxTokensPerRequest {
		return nil, ErrTooManyTokens
	}

	body, err := json.Marshal(ToMulticastRequest(tokens, payload))
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}

	var resp BatchResponseDTO
	if err := c.doRequest(ctx, MulticastPath, body, &resp); err != nil {
		return nil, err
	}

	logger.FromContext(ctx, c.logger).Debug("multicast sent",
		"client", "fcm",
		"token_count", len(tokens),
		"success_count", resp.SuccessCount,
		"failure_count", resp.FailureCount,
	)

	return resp.ToGatewayResponse(), nil
}

// doRequest performs a single POST. There is no retry: a send is best effort.
func (c *Client) doRequest(ctx context.Context, path string, body []byte, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.ServerKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.ServerKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var errResp ErrorResponseDTO
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			apiErr.Message = errResp.Error.Message
			apiErr.Status = errResp.Error.Status
		}
		return apiErr
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

var _ notification.Gateway = (*Client)(nil)
