package queue

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client publishes payloads to the queue service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a client for the queue at baseURL. A nil httpClient gets
// a default with timeout.
func NewClient(baseURL, token string, httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

type publishResponse struct {
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
}

// Enqueue publishes payload for delivery to endpoint and returns the queue's
// message id.
func (c *Client) Enqueue(ctx context.Context, endpoint string, payload []byte) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("queue: destination endpoint is empty")
	}
	url := c.baseURL + "/v2/publish/" + endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("queue: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("queue: publish failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("queue: failed to read response: %w", err)
	}

	var decoded publishResponse
	_ = json.Unmarshal(body, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := decoded.Error
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return "", fmt.Errorf("queue: publish rejected with status %d: %s", resp.StatusCode, msg)
	}
	if decoded.MessageID == "" {
		return "", fmt.Errorf("queue: response carried no message id")
	}
	return decoded.MessageID, nil
}
