package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/term"

	"watchtower-sim/internal/config"
	"watchtower-sim/internal/ingest"
	"watchtower-sim/internal/publish"
	"watchtower-sim/internal/sink"
)

const (
	outputAuto     = "auto"
	outputJSON     = "json"
	outputColor    = "color"
	outputBreaches = "breaches"
	outputTUI      = "tui"
	outputNone     = "none"
)

// resolveOutput maps "auto" to the TUI on a terminal and JSON otherwise.
func resolveOutput(output string) string {
	if output != outputAuto {
		return output
	}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return outputTUI
	}
	return outputJSON
}

// newVerdictWriter creates the verdict sink for output. The returned cleanup
// function releases it.
func newVerdictWriter(output, title string) (sink.VerdictWriter, func(), error) {
	switch output {
	case outputJSON:
		return sink.NewJSONStdoutWriter(), func() {}, nil
	case outputColor:
		return sink.NewColorStdoutWriter(false), func() {}, nil
	case outputBreaches:
		return sink.NewColorStdoutWriter(true), func() {}, nil
	case outputTUI:
		w := sink.NewTUIWriter(title)
		return w, func() { w.Close() }, nil
	case outputNone:
		return sink.Discard, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown output %q", output)
	}
}

// newPredictor classifies locally unless a remote endpoint is given.
func newPredictor(predictURL string, timeout time.Duration) ingest.Predictor {
	if predictURL == "" {
		return ingest.LocalPredictor{}
	}
	return ingest.NewRemotePredictor(predictURL, timeout)
}

// newTransport creates the transport named by cfg.Transport.Kind. logFile,
// when set, adds a JSONL export next to it.
func newTransport(ctx context.Context, cfg *config.SimulationConfig, clientID, logFile string) (publish.Transport, error) {
	tc := cfg.Transport
	var base publish.Transport
	switch tc.Kind {
	case "loopback":
		base = publish.NewLoopbackTransport(nil)
	case "channel":
		base = publish.NewChannelTransport(tc.Capacity)
	case "redis":
		rt := publish.NewRedisStreamTransport(publish.RedisStreamConfig{
			Addr:     tc.Addr,
			Stream:   tc.Topic,
			Capacity: int64(tc.Capacity),
			Group:    tc.ConsumerGroup,
			Consumer: clientID,
		})
		if err := rt.Ping(ctx); err != nil {
			rt.Close()
			return nil, fmt.Errorf("connect to redis %s: %w", tc.Addr, err)
		}
		base = rt
	case "mqtt":
		mt, err := publish.NewMQTTTransport(publish.MQTTConfig{
			Broker:   tc.Addr,
			ClientID: clientID,
			Topic:    tc.Topic,
			QoS:      tc.QoS,
		})
		if err != nil {
			return nil, err
		}
		base = mt
	case "file":
		ft, err := publish.NewFileTransport(tc.Addr)
		if err != nil {
			return nil, err
		}
		base = ft
	default:
		return nil, fmt.Errorf("unknown transport kind %q", tc.Kind)
	}

	if logFile == "" {
		return base, nil
	}
	ft, err := publish.NewFileTransport(logFile)
	if err != nil {
		base.Close()
		return nil, err
	}
	return publish.NewMultiTransport(base, ft), nil
}

// loopbackOf returns the loopback transport inside t, if any.
func loopbackOf(t publish.Transport) *publish.LoopbackTransport {
	switch v := t.(type) {
	case *publish.LoopbackTransport:
		return v
	case *publish.MultiTransport:
		for _, inner := range v.Transports() {
			if lb := loopbackOf(inner); lb != nil {
				return lb
			}
		}
	}
	return nil
}
