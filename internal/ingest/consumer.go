package ingest

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"watchtower-sim/internal/classifier"
	"watchtower-sim/internal/logging"
	"watchtower-sim/internal/publish"
	"watchtower-sim/internal/sink"
	"watchtower-sim/internal/telemetry"
)

// Predictor classifies one event.
type Predictor interface {
	Predict(ctx context.Context, ev telemetry.Event) (classifier.Verdict, error)
}

// LocalPredictor classifies in-process.
type LocalPredictor struct{}

// Predict implements Predictor.
func (LocalPredictor) Predict(_ context.Context, ev telemetry.Event) (classifier.Verdict, error) {
	return classifier.Classify(ev)
}

// RemotePredictor classifies through a running ingestion endpoint.
type RemotePredictor struct {
	client *resty.Client
}

// NewRemotePredictor creates a client for the endpoint at baseURL.
func NewRemotePredictor(baseURL string, timeout time.Duration) *RemotePredictor {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &RemotePredictor{client: client}
}

// Predict posts ev to /predict.
func (p *RemotePredictor) Predict(ctx context.Context, ev telemetry.Event) (classifier.Verdict, error) {
	var verdict classifier.Verdict
	var apiErr errorBody
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(ev).
		SetResult(&verdict).
		SetError(&apiErr).
		Post("/predict")
	if err != nil {
		return classifier.Verdict{}, fmt.Errorf("call predict: %w", err)
	}
	if resp.IsError() {
		return classifier.Verdict{}, fmt.Errorf("predict returned %s: %s", resp.Status(), apiErr.Detail)
	}
	return verdict, nil
}

// ConsumerStats counts consumed messages.
type ConsumerStats struct {
	Processed uint64 `json:"processed"`
	Breaches  uint64 `json:"breaches"`
	Rejected  uint64 `json:"rejected"`
}

// Consumer turns bus messages into verdicts.
type Consumer struct {
	predictor Predictor
	writer    sink.VerdictWriter

	processed atomic.Uint64
	breaches  atomic.Uint64
	rejected  atomic.Uint64
}

// NewConsumer creates a consumer. A nil writer discards verdicts.
func NewConsumer(p Predictor, w sink.VerdictWriter) *Consumer {
	if w == nil {
		w = sink.Discard
	}
	return &Consumer{predictor: p, writer: w}
}

// Handle is a publish.Handler. Messages that cannot be decoded or classified
// are logged and skipped; Handle never fails the delivery.
func (c *Consumer) Handle(ctx context.Context, msg publish.Message) error {
	log := logging.FromContext(ctx)
	ev, err := DecodeEventBytes(msg.Value)
	if err != nil {
		c.rejected.Add(1)
		log.Warn("telemetry message rejected", "key", msg.Key, "err", err)
		return nil
	}
	verdict, err := c.predictor.Predict(ctx, ev)
	if err != nil {
		c.rejected.Add(1)
		log.Warn("classification failed", "soldier_id", ev.SoldierID, "err", err)
		return nil
	}
	c.processed.Add(1)
	if verdict.Status == classifier.StatusBreach {
		c.breaches.Add(1)
		log.Warn("breach detected", "soldier_id", ev.SoldierID, "heart_rate", ev.HeartRate, "rule", verdict.Rule)
	}
	if err := c.writer.WriteVerdict(ev, verdict); err != nil {
		log.Error("write verdict", "soldier_id", ev.SoldierID, "err", err)
	}
	return nil
}

// Stats returns the counters accumulated so far.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Processed: c.processed.Load(),
		Breaches:  c.breaches.Load(),
		Rejected:  c.rejected.Load(),
	}
}

// WaitHandled blocks until at least n messages have been handled, grace
// elapses or ctx is done. It reports whether n was reached.
func (c *Consumer) WaitHandled(ctx context.Context, n uint64, grace time.Duration) bool {
	handled := func() bool { return c.processed.Load()+c.rejected.Load() >= n }
	if handled() {
		return true
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	poll := time.NewTicker(10 * time.Millisecond)
	defer poll.Stop()
	for {
		select {
		case <-ctx.Done():
			return handled()
		case <-timer.C:
			return handled()
		case <-poll.C:
			if handled() {
				return true
			}
		}
	}
}
