// Package api is the client for the conversation REST service: conversation
// list, history, models.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"ai-chat-transcript-service/internal/models"
	"ai-chat-transcript-service/internal/observability/metrics"
)

// ErrUnexpectedStatus is returned for non-2xx responses.
var ErrUnexpectedStatus = errors.New("unexpected status")

// Config holds REST client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Token is passed through as a bearer token; the client never inspects it.
	Token string
}

// Client calls the conversation REST service. No retries.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	metrics *metrics.Metrics
}

// New creates a client. It fails on an unparsable base URL.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "api: parse base url")
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("api: base url %q needs scheme and host", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: base,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		metrics: metrics.DefaultMetrics,
	}, nil
}

// ListConversations returns the conversations in the order the server lists
// them (oldest first).
func (c *Client) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var out []models.ConversationSummary
	if err := c.do(ctx, "list_conversations", http.MethodGet, "/conversations", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetHistory returns the stored turns of a conversation.
func (c *Client) GetHistory(ctx context.Context, conversationID string) ([]models.HistoryRow, error) {
	var out []models.HistoryRow
	path := "/history/" + url.PathEscape(conversationID)
	if err := c.do(ctx, "get_history", http.MethodGet, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListModels returns the selectable model identifiers.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	var out struct {
		Models []string `json:"models"`
	}
	if err := c.do(ctx, "list_models", http.MethodGet, "/models", &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// DeleteConversation removes a conversation.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	path := "/conversations/" + url.PathEscape(conversationID)
	return c.do(ctx, "delete_conversation", http.MethodDelete, path, nil)
}

func (c *Client) do(ctx context.Context, operation, method, path string, out any) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordAPICall(operation, err, time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, nil)
	if err != nil {
		return errors.Wrapf(err, "api: %s: build request", operation)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "api: %s", operation)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Wrapf(ErrUnexpectedStatus, "api: %s: %d %s", operation, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "api: %s: decode response", operation)
	}
	return nil
}
