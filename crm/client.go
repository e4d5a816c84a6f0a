// Package crm is the HTTP client for the property-management backend that
// owns lots, parks and the batch-import endpoint. Entity storage, validation
// rules and auth issuance all live on that side; this package only moves
// JSON back and forth and translates failures into a uniform error shape.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client issues authenticated JSON requests against the CRM backend
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient builds a client with a sane default timeout.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Do issues one request and decodes the JSON response into out (when out is
// non-nil). Non-2xx responses are returned as errors whose message is
// "<status>: <body>"; callers rely on that convention to extract structured
// error codes, see ErrorCode.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ErrorCode extracts the structured "code" field from an error produced by
// Do, i.e. one following the "<status>: <body>" convention with a JSON body.
// Returns "" when the error carries no such code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	idx := strings.Index(msg, ": ")
	if idx < 0 {
		return ""
	}

	var payload struct {
		Code string `json:"code"`
	}
	if jsonErr := json.Unmarshal([]byte(msg[idx+2:]), &payload); jsonErr != nil {
		return ""
	}
	return payload.Code
}
