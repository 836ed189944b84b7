package publish

import (
	"context"
	"fmt"
	"sync"
)

// LoopbackTransport delivers each message synchronously to an in-process
// handler. Publishing with no handler attached counts as overflow.
type LoopbackTransport struct {
	mu      sync.RWMutex
	handler Handler
	closed  bool
}

// NewLoopbackTransport creates a loopback transport delivering to h, which may
// be nil until SetHandler or Subscribe attaches one.
func NewLoopbackTransport(h Handler) *LoopbackTransport {
	return &LoopbackTransport{handler: h}
}

// SetHandler attaches the consumer handler.
func (l *LoopbackTransport) SetHandler(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = h
}

// Publish invokes the handler in the caller's goroutine.
func (l *LoopbackTransport) Publish(ctx context.Context, msg Message) error {
	l.mu.RLock()
	h, closed := l.handler, l.closed
	l.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if h == nil {
		return fmt.Errorf("%w: no consumer attached", ErrOverflow)
	}
	return h(ctx, msg)
}

// Subscribe attaches h and blocks until ctx is done.
func (l *LoopbackTransport) Subscribe(ctx context.Context, h Handler) error {
	l.SetHandler(h)
	<-ctx.Done()
	l.SetHandler(nil)
	return nil
}

// Close detaches the handler; later publishes fail with ErrClosed.
func (l *LoopbackTransport) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.handler = nil
	return nil
}
