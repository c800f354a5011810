package lark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseSize = 64 * 1024
)

// Client posts messages to a custom-bot webhook. The zero value is not
// usable; construct with NewClient.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient returns a Client with a default request timeout.
func NewClient(logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

// apiResponse is the vendor's application-level status envelope. Older
// endpoints return code/msg, newer ones StatusCode/StatusMessage; both are
// decoded and treated identically.
type apiResponse struct {
	Code          int    `json:"code"`
	Msg           string `json:"msg"`
	StatusCode    int    `json:"StatusCode"`
	StatusMessage string `json:"StatusMessage"`
}

// Send posts msg to webhookURL and returns an error for transport failures,
// non-2xx HTTP statuses, and application-level rejections embedded in a 2xx
// response body. There are no retries; every failure is terminal.
func (c *Client) Send(ctx context.Context, webhookURL string, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post to webhook: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read webhook response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var status apiResponse
	if err := json.Unmarshal(respBody, &status); err != nil {
		return fmt.Errorf("decode webhook response: %w", err)
	}

	if status.Code != 0 {
		return fmt.Errorf("webhook rejected message (code %d): %s", status.Code, status.Msg)
	}
	if status.StatusCode != 0 {
		return fmt.Errorf("webhook rejected message (code %d): %s", status.StatusCode, status.StatusMessage)
	}

	c.logger.Debug("webhook accepted message", "status", resp.StatusCode)
	return nil
}
