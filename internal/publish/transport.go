// Package publish moves serialized telemetry from the simulation onto a
// message bus and back out to consumers.
package publish

import (
	"context"
	"errors"
)

var (
	// ErrOverflow is returned when a transport refuses a message because its
	// buffer is full or it could not accept the message in time.
	ErrOverflow = errors.New("transport buffer full")
	// ErrClosed is returned by transports that have been closed.
	ErrClosed = errors.New("transport closed")
)

// Message is one serialized telemetry event bound for a topic. Key carries the
// partition key (the soldier id) so per-agent ordering can be preserved.
type Message struct {
	Topic string
	Key   string
	Value []byte
	RunID string
}

// Handler processes one delivered message.
type Handler func(ctx context.Context, msg Message) error

// Transport is an interface to support different message buses.
type Transport interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber delivers messages to h until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, h Handler) error
}
