package publish

import (
	"context"
	"errors"

	"watchtower-sim/internal/logging"
)

// MultiTransport fans a message out to several transports. Every transport is
// attempted. A message accepted by at least one transport counts as delivered;
// the other failures are logged.
type MultiTransport struct {
	transports []Transport
}

// NewMultiTransport creates a new MultiTransport.
func NewMultiTransport(ts ...Transport) *MultiTransport {
	return &MultiTransport{transports: ts}
}

// Transports returns the wrapped transports.
func (m *MultiTransport) Transports() []Transport { return m.transports }

// Publish sends msg to all transports. It returns the joined errors only when
// no transport accepted msg.
func (m *MultiTransport) Publish(ctx context.Context, msg Message) error {
	var errs []error
	for _, t := range m.transports {
		if err := t.Publish(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	if len(errs) < len(m.transports) {
		logging.FromContext(ctx).Warn("partial delivery", "key", msg.Key, "failed", len(errs), "err", errors.Join(errs...))
		return nil
	}
	return errors.Join(errs...)
}

// Subscribe delegates to the first transport able to deliver messages.
func (m *MultiTransport) Subscribe(ctx context.Context, h Handler) error {
	for _, t := range m.transports {
		if s, ok := t.(Subscriber); ok {
			return s.Subscribe(ctx, h)
		}
	}
	return errors.New("no subscribable transport")
}

// Close closes every transport.
func (m *MultiTransport) Close() error {
	var errs []error
	for _, t := range m.transports {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
