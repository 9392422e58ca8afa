package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client talks to the Infernum HTTP API. Responses are returned as raw JSON
// so the command line can print whatever the server sends.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Inference schedules prompt against the image at imagePath. The path is
// read by the server, not the client.
func (c *Client) Inference(ctx context.Context, prompt, imagePath string) (json.RawMessage, error) {
	body := map[string]string{"prompt": prompt, "image_path": imagePath}
	return c.do(ctx, http.MethodPost, "/v1/inference", body)
}

// Results polls for the oldest completed result.
func (c *Client) Results(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/v1/results", nil)
}

// State fetches the engine state.
func (c *Client) State(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/v1/state", nil)
}

// do sends a request and returns the JSON body. Error statuses still return
// the body alongside the error so it can be shown.
func (c *Client) do(ctx context.Context, method, path string, reqBody any) (json.RawMessage, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("server returned status %d with non-JSON body: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	if resp.StatusCode >= 400 {
		return data, fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return data, nil
}
