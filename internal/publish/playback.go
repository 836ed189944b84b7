package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// ReplayLog feeds events from r to h as messages on topic. A speed > 0 paces
// delivery by the gap between event timestamps divided by speed; speed <= 0
// delivers as fast as possible. Handler errors stop the replay.
func ReplayLog(ctx context.Context, r io.Reader, h Handler, topic string, speed float64) error {
	dec := json.NewDecoder(r)
	var prev float64
	first := true
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("decode event log: %w", err)
		}
		var head struct {
			SoldierID int64   `json:"soldier_id"`
			Timestamp float64 `json:"timestamp"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return fmt.Errorf("decode event log: %w", err)
		}
		if !first && speed > 0 {
			diff := time.Duration((head.Timestamp - prev) / speed * float64(time.Second))
			if diff > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(diff):
				}
			}
		}
		msg := Message{Topic: topic, Key: strconv.FormatInt(head.SoldierID, 10), Value: raw}
		if err := h(ctx, msg); err != nil {
			return err
		}
		prev = head.Timestamp
		first = false
	}
}

// ReplayLogFile opens a file and replays its events.
func ReplayLogFile(ctx context.Context, path string, h Handler, topic string, speed float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ReplayLog(ctx, f, h, topic, speed)
}
