// Package echo provides a deterministic model that describes the image it is
// given. It needs no weights and is used for development and tests.
package echo

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/seantiz/infernum/internal/backend"
)

// Name is the registry name of the echo model.
const Name = "echo"

// ErrEmptyPrompt is returned for requests without a prompt.
var ErrEmptyPrompt = errors.New("prompt is empty")

// Model answers with the prompt, the image size and the image's mean colour.
// Delay is slept before answering to imitate a slow model.
type Model struct {
	Delay time.Duration

	runs atomic.Int64
}

// New returns an echo model with the given artificial delay.
func New(delay time.Duration) *Model {
	return &Model{Delay: delay}
}

// Factory builds echo models for a backend.Registry.
func Factory(opts backend.Options) (backend.Model, error) {
	return New(opts.Delay), nil
}

// Run implements backend.Model.
func (m *Model) Run(req backend.Request) (backend.Response, error) {
	m.runs.Add(1)
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return backend.Response{}, ErrEmptyPrompt
	}

	text := fmt.Sprintf("%s: %s image, mean colour %s", req.Prompt, req.Image.Size, meanColour(req.Image.Pix))
	return backend.Response{Text: truncateWords(text, req.SampleLen)}, nil
}

// Runs returns how many requests the model has seen. It may be called while
// an engine worker is running the model.
func (m *Model) Runs() int {
	return int(m.runs.Load())
}

func meanColour(pix []byte) string {
	n := len(pix) / 3
	if n == 0 {
		return "#000000"
	}
	var r, g, b int
	for i := 0; i+2 < len(pix); i += 3 {
		r += int(pix[i])
		g += int(pix[i+1])
		b += int(pix[i+2])
	}
	return fmt.Sprintf("#%02x%02x%02x", r/n, g/n, b/n)
}

// truncateWords keeps at most n words of s. n <= 0 keeps everything.
func truncateWords(s string, n int) string {
	if n <= 0 {
		return s
	}
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ")
}
