// Package ledger talks to the remote ledger that stores shift reports. Every
// call is a single POST of {action, payload} answered by
// {success, data, message}.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Actions understood by the ledger.
const (
	ActionSubmitReport = "SUBMIT_REPORT"
)

// Request is the envelope posted for every call.
type Request struct {
	Action  string `json:"action"`
	Payload any    `json:"payload"`
}

// Response is the envelope the ledger answers with.
type Response struct {
	Success     bool            `json:"success"`
	Data        json.RawMessage `json:"data,omitempty"`
	Message     string          `json:"message,omitempty"`
	Discrepancy string          `json:"discrepancy,omitempty"`
}

// RejectedError is returned when the ledger answers with success=false.
type RejectedError struct {
	Action  string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ledger rejected %s", e.Action)
	}
	return fmt.Sprintf("ledger rejected %s: %s", e.Action, e.Message)
}

// Client calls the ledger endpoint
type Client struct {
	url    string
	client *http.Client
}

// NewClient creates a Client posting to url
func NewClient(url string) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("ledger URL is required")
	}
	return &Client{
		url:    url,
		client: &http.Client{},
	}, nil
}

// Call posts action with payload and decodes the envelope. Transport and
// decoding failures are errors; an unsuccessful envelope is returned as is.
func (c *Client) Call(ctx context.Context, action string, payload any) (*Response, error) {
	jsonData, err := json.Marshal(Request{Action: action, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling ledger: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ledger error (status %d): %s", resp.StatusCode, string(body))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &out, nil
}
