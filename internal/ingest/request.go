package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"watchtower-sim/internal/telemetry"
)

// ErrMalformedBody is returned when a body is not a JSON object.
var ErrMalformedBody = errors.New("malformed request body")

// ValidationError reports a missing or mistyped request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// soldierID accepts JSON integers and integral floats such as 1.0.
type soldierID int64

func (id *soldierID) UnmarshalJSON(b []byte) error {
	invalid := &ValidationError{Field: "soldier_id", Reason: fmt.Sprintf("expected integer, got %s", b)}
	if len(b) == 0 || b[0] == '"' {
		return invalid
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return invalid
	}
	if v, err := n.Int64(); err == nil {
		*id = soldierID(v)
		return nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return invalid
	}
	*id = soldierID(f)
	return nil
}

// predictRequest uses pointers so missing fields can be told apart from zero.
type predictRequest struct {
	SoldierID *soldierID `json:"soldier_id"`
	Timestamp *float64   `json:"timestamp"`
	HeartRate *float64   `json:"heart_rate"`
	Stamina   *float64   `json:"stamina"`
}

// DecodeEvent reads one telemetry event from r. All four fields are required;
// soldier_id must be a whole number and the rest numeric. Unknown fields are
// ignored; anything after the object other than whitespace is not.
func DecodeEvent(r io.Reader) (telemetry.Event, error) {
	var req predictRequest
	dec := json.NewDecoder(r)
	if err := dec.Decode(&req); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return telemetry.Event{}, verr
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			field := typeErr.Field
			if field == "" {
				field = "body"
			}
			return telemetry.Event{}, &ValidationError{
				Field:  field,
				Reason: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
			}
		}
		return telemetry.Event{}, fmt.Errorf("%w: %w", ErrMalformedBody, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("trailing data after object")
		}
		return telemetry.Event{}, fmt.Errorf("%w: %w", ErrMalformedBody, err)
	}
	return req.event()
}

// DecodeEventBytes is DecodeEvent over a byte slice.
func DecodeEventBytes(b []byte) (telemetry.Event, error) {
	return DecodeEvent(bytes.NewReader(b))
}

func (r predictRequest) event() (telemetry.Event, error) {
	switch {
	case r.SoldierID == nil:
		return telemetry.Event{}, &ValidationError{Field: "soldier_id", Reason: "field required"}
	case r.Timestamp == nil:
		return telemetry.Event{}, &ValidationError{Field: "timestamp", Reason: "field required"}
	case r.HeartRate == nil:
		return telemetry.Event{}, &ValidationError{Field: "heart_rate", Reason: "field required"}
	case r.Stamina == nil:
		return telemetry.Event{}, &ValidationError{Field: "stamina", Reason: "field required"}
	}
	return telemetry.Event{
		SoldierID: int64(*r.SoldierID),
		Timestamp: *r.Timestamp,
		HeartRate: *r.HeartRate,
		Stamina:   *r.Stamina,
	}, nil
}
