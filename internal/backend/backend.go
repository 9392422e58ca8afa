package backend

import (
	"time"

	"github.com/seantiz/infernum/internal/engine"
	"github.com/seantiz/infernum/internal/imageio"
)

// DefaultSampleLen is the number of tokens a model is asked to produce when
// a request does not say.
const DefaultSampleLen = 50

// Request is one prompt/image pair to run through a model.
type Request struct {
	Prompt    string
	Image     imageio.Image
	SampleLen int
}

// Metadata is the part of a Request kept alongside its response.
// It holds the image size but never the pixels.
type Metadata struct {
	Prompt    string       `json:"prompt"`
	ImageSize imageio.Size `json:"image_size"`
}

// Metadata implements engine.RequestMetadata.
func (r Request) Metadata() Metadata {
	return Metadata{
		Prompt:    r.Prompt,
		ImageSize: r.Image.Size,
	}
}

// Response is a model's answer.
type Response struct {
	Text string `json:"text"`
}

// Model is a model that serves Requests.
type Model = engine.Model[Request, Response]

// Engine is the engine instantiation used by the server.
type Engine = engine.Engine[Request, Response, Metadata]

// PollResult is the poll outcome of an Engine.
type PollResult = engine.PollResult[Response, Metadata]

// NewEngine starts an engine that owns m.
func NewEngine(m Model, opts ...engine.Option) *Engine {
	return engine.New[Request, Response, Metadata](m, opts...)
}

// Options carries the settings model factories may use. Each factory reads
// only the fields it needs.
type Options struct {
	Delay       time.Duration
	OllamaURL   string
	OllamaModel string
}
