// Package chatbot is a client for the hosted chatbot's chat-messages API.
package chatbot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/tjfontaine/chatwidget-gateway/internal/domain"
	"github.com/tjfontaine/chatwidget-gateway/internal/stream"
)

const (
	defaultBaseURL   = "https://api.dify.ai/v1"
	defaultUserAgent = "chatwidget-gateway/1.0"
	messagesPath     = "/chat-messages"
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger used for stream diagnostics.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client talks to the upstream chatbot API.
type Client struct {
	mu      sync.RWMutex
	apiKey  string
	baseURL string

	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new chatbot API client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MessagesURL returns the chat-messages endpoint.
func (c *Client) MessagesURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL + messagesPath
}

// SetUpstream replaces the base URL and API key. Requests already sent are
// unaffected. An empty base URL keeps the current one.
func (c *Client) SetUpstream(baseURL, apiKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if baseURL != "" {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
	c.apiKey = apiKey
}

// RequestOptions contains per-request options.
type RequestOptions struct {
	// UserAgent is forwarded as-is to the upstream API when set.
	UserAgent string
	// RequestID is sent as X-Request-ID so upstream logs correlate with ours.
	RequestID string
}

// SendMessage posts a streaming chat message and returns the decoded event
// stream. A non-200 answer is returned as a *domain.APIError; a missing
// conversation is reported with type not_found.
func (c *Client) SendMessage(ctx context.Context, req *ChatRequest, opts *RequestOptions) (<-chan stream.Result, error) {
	body, err := json.Marshal(req.withDefaults())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.Forward(ctx, body, opts)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, errorFromResponse(resp.StatusCode, respBody)
	}

	return stream.Read(ctx, resp.Body, c.logger), nil
}

// Forward posts an already-encoded body to the chat-messages endpoint and
// returns the raw response. The caller owns the response body.
func (c *Client) Forward(ctx context.Context, body []byte, opts *RequestOptions) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.MessagesURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(httpReq, opts)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func errorFromResponse(status int, body []byte) error {
	if apiErr, err := ParseErrorResponse(body); err == nil && apiErr != nil {
		return apiErr.ToCanonical(status)
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return domain.NewAPIError(domain.ErrorTypeForStatus(status), msg).WithStatusCode(status)
}

func (c *Client) setHeaders(req *http.Request, opts *RequestOptions) {
	c.mu.RLock()
	apiKey := c.apiKey
	c.mu.RUnlock()

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	if opts != nil && opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	} else {
		req.Header.Set("User-Agent", defaultUserAgent)
	}
	if opts != nil && opts.RequestID != "" {
		req.Header.Set("X-Request-ID", opts.RequestID)
	}
}
