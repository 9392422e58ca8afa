package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

type options struct {
	logger        *slog.Logger
	queueCapacity int
}

// Option configures an Engine.
type Option func(*options)

// WithLogger sets the engine's structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithQueueCapacity bounds the number of requests waiting to start.
// Zero or a negative value means unbounded.
func WithQueueCapacity(n int) Option {
	return func(o *options) { o.queueCapacity = n }
}

// Engine owns a model and the single worker goroutine that runs it.
// It is safe for concurrent use by multiple callers.
type Engine[Req RequestMetadata[Meta], Resp, Meta any] struct {
	model  Model[Req, Resp]
	logger *slog.Logger
	broker *StateBroker

	queueCapacity int
	state         atomic.Int32
	nextID        atomic.Uint64

	mu       sync.Mutex
	queue    []Request[Req]
	inFlight bool
	closed   bool
	wake     chan struct{}

	respMu    sync.Mutex
	responses []Response[Resp, Meta]

	done chan struct{}
}

// New takes ownership of model and starts the worker. The caller must not
// use model afterwards. Call Close or Shutdown to stop the worker.
func New[Req RequestMetadata[Meta], Resp, Meta any](model Model[Req, Resp], opts ...Option) *Engine[Req, Resp, Meta] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	e := &Engine[Req, Resp, Meta]{
		model:         model,
		logger:        o.logger,
		broker:        NewStateBroker(),
		queueCapacity: o.queueCapacity,
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
	e.state.Store(int32(StateIdle))

	go e.work()

	return e
}

// Broker returns the broker that publishes state transitions.
func (e *Engine[Req, Resp, Meta]) Broker() *StateBroker {
	return e.broker
}

// State returns the last state set by the worker.
func (e *Engine[Req, Resp, Meta]) State() State {
	return State(e.state.Load())
}

// Pending returns the number of requests queued or running.
func (e *Engine[Req, Resp, Meta]) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.queue)
	if e.inFlight {
		n++
	}
	return n
}

// Done is closed once the worker goroutine has exited.
func (e *Engine[Req, Resp, Meta]) Done() <-chan struct{} {
	return e.done
}

// Schedule enqueues payload under the next engine-assigned id and returns
// that id. It never blocks.
func (e *Engine[Req, Resp, Meta]) Schedule(payload Req) (uint64, error) {
	id := e.nextID.Add(1)
	if err := e.enqueue(Request[Req]{ID: id, Payload: payload}); err != nil {
		return 0, err
	}
	return id, nil
}

// ScheduleWithID enqueues payload under a caller-assigned id. Uniqueness of
// caller ids is the caller's concern.
func (e *Engine[Req, Resp, Meta]) ScheduleWithID(id uint64, payload Req) error {
	return e.enqueue(Request[Req]{ID: id, Payload: payload})
}

func (e *Engine[Req, Resp, Meta]) enqueue(req Request[Req]) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrWorkerUnavailable
	}
	select {
	case <-e.done:
		e.mu.Unlock()
		return ErrWorkerUnavailable
	default:
	}
	if e.queueCapacity > 0 && len(e.queue) >= e.queueCapacity {
		e.mu.Unlock()
		return ErrQueueFull
	}
	e.queue = append(e.queue, req)
	e.mu.Unlock()

	queueDepth.Inc()
	e.signal()
	e.logger.Debug("inference scheduled", "request_id", req.ID)
	return nil
}

// TryPollResponse removes and returns the oldest completed response, if any.
// It never blocks. A response is returned at most once.
func (e *Engine[Req, Resp, Meta]) TryPollResponse() PollResult[Resp, Meta] {
	e.respMu.Lock()
	if len(e.responses) == 0 {
		e.respMu.Unlock()
		return PollResult[Resp, Meta]{Status: PollEmpty, State: e.State()}
	}
	resp := e.responses[0]
	var zero Response[Resp, Meta]
	e.responses[0] = zero
	e.responses = e.responses[1:]
	e.respMu.Unlock()

	if resp.Err != nil {
		return PollResult[Resp, Meta]{Status: PollError, Response: &resp, Err: resp.Err, State: e.State()}
	}
	return PollResult[Resp, Meta]{Status: PollSuccess, Response: &resp, State: e.State()}
}

// Shutdown stops accepting requests and waits for the worker to exit. Every
// request Schedule accepted still runs: the worker finishes the one in
// flight, then drains the queue, so each accepted request yields exactly one
// response. If ctx ends first Shutdown returns ctx.Err() and the worker exits
// on its own once the queue is empty.
func (e *Engine[Req, Resp, Meta]) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		if n := len(e.queue); n > 0 {
			e.logger.Info("engine shutting down, draining queue", "queued", n, "in_flight", e.inFlight)
		} else {
			e.logger.Debug("engine shutting down", "in_flight", e.inFlight)
		}
	}
	e.mu.Unlock()
	e.signal()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close is Shutdown without a deadline.
func (e *Engine[Req, Resp, Meta]) Close() error {
	return e.Shutdown(context.Background())
}

func (e *Engine[Req, Resp, Meta]) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// work is the worker loop. It exits once the engine is closed and the queue
// has been drained.
func (e *Engine[Req, Resp, Meta]) work() {
	defer close(e.done)
	defer e.broker.Close()

	for {
		req, ok := e.next()
		if !ok {
			return
		}
		e.process(req)
	}
}

// next blocks until a request is available. Once the engine is closed it
// keeps handing out queued requests and reports false when none are left.
func (e *Engine[Req, Resp, Meta]) next() (Request[Req], bool) {
	for {
		e.mu.Lock()
		if len(e.queue) > 0 {
			req := e.queue[0]
			e.queue[0] = Request[Req]{}
			e.queue = e.queue[1:]
			e.inFlight = true
			draining := e.closed
			e.mu.Unlock()
			queueDepth.Dec()
			if draining {
				drainedRequestsTotal.Inc()
			}
			return req, true
		}
		if e.closed {
			e.mu.Unlock()
			return Request[Req]{}, false
		}
		e.mu.Unlock()
		<-e.wake
	}
}

func (e *Engine[Req, Resp, Meta]) process(req Request[Req]) {
	e.logger.Debug("inference starting", "request_id", req.ID)

	meta, err := e.metadata(req.Payload)
	start := time.Now()
	e.setState(StateProcessing)

	var result Resp
	if err == nil {
		result, err = e.run(req.Payload)
	}
	duration := time.Since(start)

	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeError
		var pe *PanicError
		if errors.As(err, &pe) {
			outcome = outcomePanic
			e.logger.Error("model panicked", "request_id", req.ID, "error", err)
		} else {
			e.logger.Debug("inference failed", "request_id", req.ID, "error", err)
		}
	} else {
		e.logger.Debug("inference completed", "request_id", req.ID, "duration_ms", duration.Milliseconds())
	}
	requestsTotal.WithLabelValues(outcome).Inc()
	inferenceDuration.Observe(duration.Seconds())

	e.respMu.Lock()
	e.responses = append(e.responses, Response[Resp, Meta]{
		ID:        req.ID,
		Result:    result,
		Err:       err,
		Metadata:  meta,
		StartTime: start,
		Duration:  duration,
	})
	e.respMu.Unlock()

	e.mu.Lock()
	e.inFlight = false
	e.mu.Unlock()
	e.setState(StateIdle)
}

func (e *Engine[Req, Resp, Meta]) metadata(payload Req) (meta Meta, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return payload.Metadata(), nil
}

func (e *Engine[Req, Resp, Meta]) run(payload Req) (resp Resp, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return e.model.Run(payload)
}

func (e *Engine[Req, Resp, Meta]) setState(s State) {
	if State(e.state.Swap(int32(s))) == s {
		return
	}
	if s == StateProcessing {
		processingGauge.Set(1)
	} else {
		processingGauge.Set(0)
	}
	e.broker.Publish(s)
}
