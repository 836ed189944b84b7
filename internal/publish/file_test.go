package publish

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchtower-sim/internal/telemetry"
)

func TestFileTransportRoundTripsThroughReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	tr, err := NewFileTransport(path)
	require.NoError(t, err)

	p := NewPublisher(tr, "soldier_telemetry", "run", 0)
	events := []telemetry.Event{
		{SoldierID: 0, Timestamp: 1, HeartRate: 61, Stamina: 100},
		{SoldierID: 1, Timestamp: 1, HeartRate: 185, Stamina: 100},
		{SoldierID: 0, Timestamp: 2, HeartRate: 62, Stamina: 100},
	}
	for _, ev := range events {
		require.True(t, p.Publish(context.Background(), ev).OK())
	}
	require.NoError(t, tr.Close())
	assert.ErrorIs(t, tr.Publish(context.Background(), Message{Value: []byte(`{}`)}), ErrClosed)

	var keys []string
	err = ReplayLogFile(context.Background(), path, func(_ context.Context, m Message) error {
		keys = append(keys, m.Key)
		assert.Equal(t, "soldier_telemetry", m.Topic)
		return nil
	}, "soldier_telemetry", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", "0"}, keys)
}

func TestReplayLogStopsOnHandlerError(t *testing.T) {
	log := `{"soldier_id":1,"timestamp":1}` + "\n" + `{"soldier_id":2,"timestamp":2}` + "\n"
	boom := errors.New("boom")
	calls := 0
	err := ReplayLog(context.Background(), strings.NewReader(log), func(context.Context, Message) error {
		calls++
		return boom
	}, "t", 0)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestReplayLogRejectsGarbage(t *testing.T) {
	err := ReplayLog(context.Background(), strings.NewReader("not json"), func(context.Context, Message) error { return nil }, "t", 0)
	assert.Error(t, err)
}

func TestReplayLogHonoursCancel(t *testing.T) {
	log := `{"soldier_id":1,"timestamp":1}` + "\n" + `{"soldier_id":1,"timestamp":1000}` + "\n"
	ctx, cancel := context.WithCancel(context.Background())
	err := ReplayLog(ctx, strings.NewReader(log), func(context.Context, Message) error {
		cancel()
		return nil
	}, "t", 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMultiTransport(t *testing.T) {
	a := NewChannelTransport(1)
	b := &recordingTransport{}
	m := NewMultiTransport(b, a)

	require.NoError(t, m.Publish(context.Background(), Message{Key: "1"}))
	assert.Len(t, b.msgs, 1)
	assert.Equal(t, 1, a.Len())

	require.NoError(t, m.Publish(context.Background(), Message{Key: "2"}), "one transport accepted the message")
	assert.Len(t, b.msgs, 2)
	assert.Equal(t, 1, a.Len())

	require.NoError(t, m.Close())
	var got []string
	require.NoError(t, m.Subscribe(context.Background(), func(_ context.Context, msg Message) error {
		got = append(got, msg.Key)
		return nil
	}))
	assert.Equal(t, []string{"1"}, got)
}

func TestMultiTransportPartialDeliveryCountsAsPublished(t *testing.T) {
	full := NewChannelTransport(0)
	var delivered int
	loop := NewLoopbackTransport(func(context.Context, Message) error {
		delivered++
		return nil
	})
	p := NewPublisher(NewMultiTransport(loop, full), "t", "run", 0)

	res := p.Publish(context.Background(), telemetry.Event{SoldierID: 1, Timestamp: 1, HeartRate: 70, Stamina: 100})
	assert.Equal(t, Published, res.Outcome)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, Stats{Published: 1}, p.Stats())
}

func TestMultiTransportAllFailed(t *testing.T) {
	m := NewMultiTransport(NewChannelTransport(0), NewLoopbackTransport(nil))
	err := m.Publish(context.Background(), Message{Key: "1"})
	assert.ErrorIs(t, err, ErrOverflow)
}
