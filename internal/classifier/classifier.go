// Package classifier maps telemetry events to anomaly verdicts using a fixed,
// ordered rule set. Classification is pure: no history and no per-agent memory.
package classifier

import (
	"errors"
	"fmt"
	"math"

	"watchtower-sim/internal/telemetry"
)

// Status labels a verdict.
type Status string

const (
	StatusSecure Status = "SECURE"
	StatusBreach Status = "BREACH"
)

// Scores produced by the rule set.
const (
	PoisonScore  = 0.95
	FatigueScore = 0.80
)

// ErrInvalidReading marks events that cannot be classified.
var ErrInvalidReading = errors.New("invalid reading")

// ReadingError describes a non-finite or out-of-domain field.
type ReadingError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ReadingError) Error() string {
	return fmt.Sprintf("invalid reading: %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *ReadingError) Unwrap() error { return ErrInvalidReading }

// Verdict is the classifier output for one event.
type Verdict struct {
	SoldierID    int64   `json:"soldier_id"`
	AnomalyScore float64 `json:"anomaly_score"`
	IsAnomalous  bool    `json:"is_anomalous"`
	Status       Status  `json:"status"`
	// Rule names the matching rule; empty for SECURE verdicts.
	Rule string `json:"-"`
}

// Rule is one entry in the ordered rule set.
type Rule struct {
	Name  string
	Score float64
	Match func(telemetry.Event) bool
}

// Rules is the rule set in priority order. The first match wins.
var Rules = []Rule{
	{
		Name:  "poison",
		Score: PoisonScore,
		Match: func(ev telemetry.Event) bool { return ev.HeartRate > 170 },
	},
	{
		Name:  "fatigue",
		Score: FatigueScore,
		Match: func(ev telemetry.Event) bool { return ev.Stamina < 20 && ev.HeartRate > 100 },
	},
}

// Classify returns the verdict for ev. Invalid readings yield an error wrapping
// ErrInvalidReading and never a SECURE verdict.
func Classify(ev telemetry.Event) (Verdict, error) {
	if err := CheckReading(ev); err != nil {
		return Verdict{}, err
	}
	for _, r := range Rules {
		if r.Match(ev) {
			return Verdict{
				SoldierID:    ev.SoldierID,
				AnomalyScore: r.Score,
				IsAnomalous:  true,
				Status:       StatusBreach,
				Rule:         r.Name,
			}, nil
		}
	}
	return Verdict{SoldierID: ev.SoldierID, Status: StatusSecure}, nil
}

// CheckReading rejects non-finite values and negative physiological readings.
func CheckReading(ev telemetry.Event) error {
	fields := []struct {
		name string
		v    float64
	}{
		{"heart_rate", ev.HeartRate},
		{"stamina", ev.Stamina},
		{"timestamp", ev.Timestamp},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &ReadingError{Field: f.name, Value: f.v, Reason: "not finite"}
		}
	}
	if ev.HeartRate < 0 {
		return &ReadingError{Field: "heart_rate", Value: ev.HeartRate, Reason: "negative"}
	}
	if ev.Stamina < 0 {
		return &ReadingError{Field: "stamina", Value: ev.Stamina, Reason: "negative"}
	}
	return nil
}
