package publish

import (
	"context"
	"sync"
)

// ChannelTransport is a bounded in-memory bus. Sends never block: a full
// buffer rejects the message with ErrOverflow.
type ChannelTransport struct {
	ch        chan Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewChannelTransport creates a bus holding at most capacity messages.
func NewChannelTransport(capacity int) *ChannelTransport {
	if capacity < 0 {
		capacity = 0
	}
	return &ChannelTransport{
		ch:   make(chan Message, capacity),
		done: make(chan struct{}),
	}
}

// Publish enqueues msg if there is room.
func (c *ChannelTransport) Publish(ctx context.Context, msg Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.ch <- msg:
		return nil
	default:
		return ErrOverflow
	}
}

// Len returns the number of buffered messages.
func (c *ChannelTransport) Len() int { return len(c.ch) }

// Subscribe delivers buffered messages to h until ctx is done or the
// transport is closed. After Close the remaining buffer is drained first.
// Handler errors do not stop delivery.
func (c *ChannelTransport) Subscribe(ctx context.Context, h Handler) error {
	for {
		select {
		case msg := <-c.ch:
			_ = h(ctx, msg)
		case <-ctx.Done():
			return nil
		case <-c.done:
			for {
				select {
				case msg := <-c.ch:
					_ = h(ctx, msg)
				default:
					return nil
				}
			}
		}
	}
}

// Close stops accepting messages.
func (c *ChannelTransport) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}
