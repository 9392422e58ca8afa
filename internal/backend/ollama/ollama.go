// Package ollama runs requests against a vision model served by Ollama's
// /api/generate endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/seantiz/infernum/internal/backend"
	"github.com/seantiz/infernum/internal/imageio"
)

// Name is the registry name of the ollama model.
const Name = "ollama"

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "llava"
	defaultTimeout = 10 * time.Minute
)

// ErrModelRequired is returned by New when no model tag is given.
var ErrModelRequired = errors.New("ollama model tag is required")

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Images  []string       `json:"images,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Model forwards each request to an Ollama server.
type Model struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// New returns a model that talks to the Ollama server at baseURL and uses
// the given model tag.
func New(baseURL, model string) (*Model, error) {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		return nil, ErrModelRequired
	}
	return &Model{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}, nil
}

// Factory builds ollama models for a backend.Registry.
func Factory(opts backend.Options) (backend.Model, error) {
	tag := opts.OllamaModel
	if tag == "" {
		tag = defaultModel
	}
	return New(opts.OllamaURL, tag)
}

// SetHTTPClient replaces the client used for requests.
func (m *Model) SetHTTPClient(c *http.Client) {
	m.httpClient = c
}

// Run implements backend.Model.
func (m *Model) Run(req backend.Request) (backend.Response, error) {
	body := generateRequest{
		Model:  m.model,
		Prompt: req.Prompt,
		Stream: false,
	}
	if len(req.Image.Pix) > 0 {
		png, err := imageio.EncodePNG(req.Image)
		if err != nil {
			return backend.Response{}, fmt.Errorf("encode image: %w", err)
		}
		body.Images = []string{base64.StdEncoding.EncodeToString(png)}
	}
	if req.SampleLen > 0 {
		body.Options = map[string]any{"num_predict": req.SampleLen}
	}

	var resp generateResponse
	if err := m.post(context.Background(), "/api/generate", body, &resp); err != nil {
		return backend.Response{}, err
	}
	return backend.Response{Text: resp.Response}, nil
}

func (m *Model) post(ctx context.Context, path string, reqBody, respBody any) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer httpResp.Body.Close()

	respData, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		var errResp errorResponse
		if json.Unmarshal(respData, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("ollama error: %s", errResp.Error)
		}
		return fmt.Errorf("ollama error: status %d, body: %s", httpResp.StatusCode, string(respData))
	}

	if err := json.Unmarshal(respData, respBody); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
