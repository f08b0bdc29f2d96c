package recording

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// StartRequest is the payload sent to POST /v1/recordings.
type StartRequest struct {
	CallID      string `json:"call_id"`
	ChannelName string `json:"channel_name"`
	CallType    string `json:"call_type"`
	RequestedBy string `json:"requested_by,omitempty"`
}

type startResponse struct {
	RecordingID string `json:"recording_id"`
}

// envelope is the recording service's standard response wrapper.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Client talks to the cloud recording service over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// Configured returns true if the client has a base URL.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// Start asks the service to begin recording a channel and returns its id.
func (c *Client) Start(ctx context.Context, req StartRequest) (string, error) {
	var out startResponse
	if err := c.do(ctx, http.MethodPost, "/v1/recordings", req, &out); err != nil {
		return "", err
	}
	if out.RecordingID == "" {
		return "", errors.New("recording: service returned empty recording id")
	}
	slog.Debug("recording started", "call_id", req.CallID, "recording_id", out.RecordingID)
	return out.RecordingID, nil
}

// Stop ends a recording. Stopping an already stopped recording is not an error.
func (c *Client) Stop(ctx context.Context, recordingID string) error {
	if recordingID == "" {
		return errors.New("recording: recording id is required")
	}
	path := "/v1/recordings/" + url.PathEscape(recordingID) + "/stop"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if !c.Configured() {
		return errors.New("recording: client not configured")
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("recording: marshalling request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("recording: creating request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("recording: sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("recording: reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env envelope
		if json.Unmarshal(respBody, &env) == nil && env.Error != "" {
			return fmt.Errorf("recording: service error (status %d): %s", resp.StatusCode, env.Error)
		}
		return fmt.Errorf("recording: service returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("recording: decoding response: %w", err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("recording: decoding response data: %w", err)
	}
	return nil
}
