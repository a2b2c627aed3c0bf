// Package rpc hosts single-threaded endpoints. Every endpoint owns a mailbox;
// its handler sees one message at a time, so handler state needs no locks.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrEndpointStopped is returned when a message is sent to a stopped endpoint.
	ErrEndpointStopped = errors.New("rpc endpoint stopped")
	// ErrEndpointExists is returned when an endpoint name is already registered.
	ErrEndpointExists = errors.New("rpc endpoint already registered")
)

// Handler processes the messages delivered to an endpoint.
type Handler interface {
	HandleMessage(ctx context.Context, msg any) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg any) (any, error)

func (f HandlerFunc) HandleMessage(ctx context.Context, msg any) (any, error) {
	return f(ctx, msg)
}

// FailureHandler is told when an endpoint dies because its handler panicked.
type FailureHandler interface {
	OnFatalError(err error)
}

type reply struct {
	value any
	err   error
}

type envelope struct {
	ctx   context.Context
	msg   any
	reply chan reply // nil for Tell
}

// Endpoint is a named mailbox processed by a single goroutine.
type Endpoint struct {
	name    string
	handler Handler
	fatal   FailureHandler
	logger  *slog.Logger

	mu      sync.Mutex
	queue   []envelope
	stopped bool
	wake    chan struct{}

	startOnce sync.Once
	done      chan struct{}
}

func newEndpoint(name string, h Handler, fatal FailureHandler, logger *slog.Logger) *Endpoint {
	return &Endpoint{
		name:    name,
		handler: h,
		fatal:   fatal,
		logger:  logger.With("endpoint", name),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Name returns the name the endpoint was registered under.
func (e *Endpoint) Name() string { return e.name }

// Start begins processing the mailbox. Messages sent before Start are queued.
func (e *Endpoint) Start() {
	e.startOnce.Do(func() {
		go e.loop()
	})
}

// Tell enqueues msg without waiting for it to be handled.
func (e *Endpoint) Tell(msg any) error {
	return e.enqueue(envelope{ctx: context.Background(), msg: msg})
}

// Ask enqueues msg and waits for the handler's reply.
func (e *Endpoint) Ask(ctx context.Context, msg any) (any, error) {
	ch := make(chan reply, 1)
	if err := e.enqueue(envelope{ctx: ctx, msg: msg, reply: ch}); err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.value, r.err
	case <-e.done:
		// The reply may have been sent just before the endpoint stopped.
		select {
		case r := <-ch:
			return r.value, r.err
		default:
			return nil, ErrEndpointStopped
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop stops the endpoint. Queued messages are dropped; pending Asks fail
// with ErrEndpointStopped.
func (e *Endpoint) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.queue = nil
	e.mu.Unlock()

	// A never-started endpoint has no loop to close done.
	e.startOnce.Do(func() { close(e.done) })
	e.signal()
}

// Done is closed once the endpoint has stopped processing messages.
func (e *Endpoint) Done() <-chan struct{} { return e.done }

func (e *Endpoint) enqueue(env envelope) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrEndpointStopped
	}
	e.queue = append(e.queue, env)
	e.signal()
	return nil
}

func (e *Endpoint) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Endpoint) next() (envelope, bool, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return envelope{}, false, true
	}
	if len(e.queue) == 0 {
		return envelope{}, false, false
	}
	env := e.queue[0]
	e.queue[0] = envelope{}
	e.queue = e.queue[1:]
	return env, true, false
}

func (e *Endpoint) loop() {
	defer close(e.done)
	for {
		env, ok, stopped := e.next()
		if stopped {
			return
		}
		if !ok {
			<-e.wake
			continue
		}
		if !e.deliver(env) {
			return
		}
	}
}

// deliver runs the handler for one message. It returns false if the handler
// panicked, which kills the endpoint.
func (e *Endpoint) deliver(env envelope) (alive bool) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("endpoint %s: handler panic: %v", e.name, r)
			e.logger.Error("endpoint handler panicked", "error", err)
			e.mu.Lock()
			e.stopped = true
			e.queue = nil
			e.mu.Unlock()
			if env.reply != nil {
				env.reply <- reply{err: err}
			}
			if e.fatal != nil {
				e.fatal.OnFatalError(err)
			}
			alive = false
		}
	}()

	value, err := e.handler.HandleMessage(env.ctx, env.msg)
	if env.reply != nil {
		env.reply <- reply{value: value, err: err}
	} else if err != nil {
		e.logger.Warn("message handling failed", "message", fmt.Sprintf("%T", env.msg), "error", err)
	}
	return true
}
