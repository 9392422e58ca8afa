package engine

import (
	"errors"
	"fmt"
	"time"
)

// ErrWorkerUnavailable is returned by Schedule once the worker has stopped.
// The engine cannot be reused after this; build a new one.
var ErrWorkerUnavailable = errors.New("engine worker unavailable")

// ErrQueueFull is returned by Schedule when a queue capacity is configured
// and that many requests are already waiting.
var ErrQueueFull = errors.New("engine queue full")

// Model is a unit of computation run by the engine's worker.
//
// Run is only ever called from the worker goroutine and never concurrently
// with itself, so implementations may keep mutable state without locking.
// Ordinary failures must be returned as errors; a panic is recovered and
// reported as a *PanicError.
type Model[Req, Resp any] interface {
	Run(req Req) (Resp, error)
}

// RequestMetadata is implemented by request types to expose a lightweight
// summary of themselves. The returned value must not share the request's
// large buffers: it is kept on the response after the request has been
// handed to the model.
type RequestMetadata[Meta any] interface {
	Metadata() Meta
}

// Request is a payload tagged with its identifier while it sits in the queue.
type Request[Req any] struct {
	ID      uint64
	Payload Req
}

// Response is the outcome of one request. Exactly one of Result and Err is
// meaningful: Err is nil when the model succeeded.
type Response[Resp, Meta any] struct {
	ID        uint64
	Result    Resp
	Err       error
	Metadata  Meta
	StartTime time.Time
	Duration  time.Duration
}

// State reports what the worker is doing.
type State int32

const (
	StateIdle State = iota
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// PollStatus tags the outcome of TryPollResponse.
type PollStatus int

const (
	// PollEmpty means no completed response is waiting.
	PollEmpty PollStatus = iota
	// PollSuccess means a response was dequeued and the model succeeded.
	PollSuccess
	// PollError means a response was dequeued and the model failed.
	PollError
)

func (s PollStatus) String() string {
	switch s {
	case PollEmpty:
		return "empty"
	case PollSuccess:
		return "success"
	case PollError:
		return "error"
	default:
		return fmt.Sprintf("poll(%d)", int(s))
	}
}

// PollResult is returned by TryPollResponse. Response is set for
// PollSuccess and PollError; Err mirrors Response.Err for PollError.
// State is the engine state observed at poll time and is advisory only.
type PollResult[Resp, Meta any] struct {
	Status   PollStatus
	Response *Response[Resp, Meta]
	Err      error
	State    State
}

// PanicError is the error recorded for a request whose model panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("model panicked: %v", e.Value)
}

// Unwrap returns the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
