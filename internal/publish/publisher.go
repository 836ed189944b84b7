package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"watchtower-sim/internal/telemetry"
)

// Outcome classifies a single publish attempt.
type Outcome int

const (
	Published Outcome = iota
	// Dropped means the transport applied backpressure.
	Dropped
	// Failed covers encoding errors and transport failures other than overflow.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Published:
		return "published"
	case Dropped:
		return "dropped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is returned for every publish. Callers log it and move on; it is
// never retried.
type Result struct {
	Outcome Outcome
	Err     error
}

// OK reports whether the event reached the transport.
func (r Result) OK() bool { return r.Outcome == Published }

// Stats counts publish outcomes.
type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
}

// Publisher serializes telemetry events and hands them to a transport with a
// bounded wait. It does no buffering or batching of its own.
type Publisher struct {
	transport Transport
	topic     string
	runID     string
	timeout   time.Duration

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// NewPublisher creates a publisher for topic. A positive timeout bounds how
// long a single publish may wait on the transport.
func NewPublisher(t Transport, topic, runID string, timeout time.Duration) *Publisher {
	return &Publisher{transport: t, topic: topic, runID: runID, timeout: timeout}
}

// Publish sends ev. It never blocks longer than the configured timeout and
// never returns an error to the caller; failures are reported in the Result.
func (p *Publisher) Publish(ctx context.Context, ev telemetry.Event) Result {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.failed.Add(1)
		return Result{Outcome: Failed, Err: fmt.Errorf("encode event: %w", err)}
	}
	msg := Message{
		Topic: p.topic,
		Key:   strconv.FormatInt(ev.SoldierID, 10),
		Value: payload,
		RunID: p.runID,
	}

	pctx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	err = p.transport.Publish(pctx, msg)
	switch {
	case err == nil:
		p.published.Add(1)
		return Result{Outcome: Published}
	case errors.Is(err, ErrOverflow), errors.Is(err, context.DeadlineExceeded):
		p.dropped.Add(1)
		return Result{Outcome: Dropped, Err: err}
	default:
		p.failed.Add(1)
		return Result{Outcome: Failed, Err: err}
	}
}

// Stats returns the outcome counters accumulated so far.
func (p *Publisher) Stats() Stats {
	return Stats{
		Published: p.published.Load(),
		Dropped:   p.dropped.Load(),
		Failed:    p.failed.Load(),
	}
}
