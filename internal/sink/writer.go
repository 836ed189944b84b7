// Package sink renders classified telemetry for operators.
package sink

import (
	"errors"

	"watchtower-sim/internal/classifier"
	"watchtower-sim/internal/telemetry"
)

// VerdictWriter receives each classified event.
type VerdictWriter interface {
	WriteVerdict(ev telemetry.Event, v classifier.Verdict) error
}

// Record is the flattened form of an event and its verdict.
type Record struct {
	SoldierID    int64             `json:"soldier_id"`
	Timestamp    float64           `json:"timestamp"`
	HeartRate    float64           `json:"heart_rate"`
	Stamina      float64           `json:"stamina"`
	AnomalyScore float64           `json:"anomaly_score"`
	IsAnomalous  bool              `json:"is_anomalous"`
	Status       classifier.Status `json:"status"`
	Rule         string            `json:"rule,omitempty"`
}

// NewRecord combines ev and v.
func NewRecord(ev telemetry.Event, v classifier.Verdict) Record {
	return Record{
		SoldierID:    ev.SoldierID,
		Timestamp:    ev.Timestamp,
		HeartRate:    ev.HeartRate,
		Stamina:      ev.Stamina,
		AnomalyScore: v.AnomalyScore,
		IsAnomalous:  v.IsAnomalous,
		Status:       v.Status,
		Rule:         v.Rule,
	}
}

// MultiWriter fans verdicts out to multiple writers.
type MultiWriter struct {
	writers []VerdictWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(ws ...VerdictWriter) *MultiWriter {
	return &MultiWriter{writers: ws}
}

// WriteVerdict sends the verdict to every writer and joins their errors.
func (mw *MultiWriter) WriteVerdict(ev telemetry.Event, v classifier.Verdict) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.WriteVerdict(ev, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer that has a Close method.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.writers {
		if c, ok := w.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Discard drops every verdict.
var Discard VerdictWriter = discard{}

type discard struct{}

func (discard) WriteVerdict(telemetry.Event, classifier.Verdict) error { return nil }
