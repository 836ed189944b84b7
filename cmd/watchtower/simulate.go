package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"watchtower-sim/internal/config"
	"watchtower-sim/internal/ingest"
	"watchtower-sim/internal/logging"
	"watchtower-sim/internal/publish"
	"watchtower-sim/internal/sim"
	"watchtower-sim/internal/sink"
)

var (
	simAgents     int
	simHorizon    int64
	simSeed       int64
	simTransport  string
	simAddr       string
	simTopic      string
	simTick       time.Duration
	simLogFile    string
	simOutput     string
	simConsume    bool
	simPredictURL string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the soldier telemetry simulation",
	Long: "simulate drives soldier agents on a virtual clock, publishes one telemetry event per agent " +
		"per simulated second and optionally classifies the stream as it is produced.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := applySimulateFlags(cmd, cfg); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runSimulation(ctx, cfg, simulateOptions{
			output:     simOutput,
			consume:    simConsume,
			predictURL: simPredictURL,
			logFile:    simLogFile,
		})
	},
}

func init() {
	f := simulateCmd.Flags()
	f.IntVar(&simAgents, "agents", 0, "Number of soldier agents")
	f.Int64Var(&simHorizon, "horizon", 0, "Simulated seconds to run")
	f.Int64Var(&simSeed, "seed", 0, "Random seed (0 seeds from the wall clock)")
	f.StringVar(&simTransport, "transport", "", "Transport kind (loopback, channel, redis, mqtt, file)")
	f.StringVar(&simAddr, "addr", "", "Transport address (broker, redis host:port or file path)")
	f.StringVar(&simTopic, "topic", "", "Topic or stream name")
	f.DurationVar(&simTick, "tick", 0, "Wall-clock pause per simulated second (0 runs as fast as possible)")
	f.StringVar(&simLogFile, "log-file", "", "Path to export published telemetry (JSONL)")
	f.StringVar(&simOutput, "output", outputAuto, "Verdict output: auto, json, color, breaches, tui or none")
	f.BoolVar(&simConsume, "consume", false, "Classify the published stream in this process")
	f.StringVar(&simPredictURL, "predict-url", "", "Classify through a remote ingestion endpoint instead of in-process")
}

// applySimulateFlags overrides configuration with the flags set on cmd.
func applySimulateFlags(cmd *cobra.Command, cfg *config.SimulationConfig) error {
	f := cmd.Flags()
	if f.Changed("agents") {
		cfg.AgentCount = simAgents
	}
	if f.Changed("horizon") {
		cfg.HorizonSeconds = simHorizon
	}
	if f.Changed("seed") {
		cfg.Seed = simSeed
	}
	if f.Changed("transport") {
		cfg.Transport.Kind = simTransport
	}
	if f.Changed("addr") {
		cfg.Transport.Addr = simAddr
	}
	if f.Changed("topic") {
		cfg.Transport.Topic = simTopic
	}
	if f.Changed("tick") {
		cfg.TickInterval = simTick
	}
	return cfg.Validate()
}

// consumerDrainGrace bounds how long a broker-backed consumer may keep
// reading after the run ends.
const consumerDrainGrace = 5 * time.Second

type simulateOptions struct {
	output     string
	consume    bool
	predictURL string
	logFile    string
	// writer replaces the writer selected by output when set.
	writer sink.VerdictWriter
}

// runSimulation wires transport, consumer and simulator for one run.
func runSimulation(ctx context.Context, cfg *config.SimulationConfig, opts simulateOptions) error {
	runID := uuid.NewString()
	output := resolveOutput(opts.output)
	log := newLogger(cfg, output).With("run_id", runID)
	ctx = logging.NewContext(ctx, log)

	tr, err := newTransport(ctx, cfg, "watchtower-"+runID[:8], opts.logFile)
	if err != nil {
		return err
	}
	closeTransport := sync.OnceValue(tr.Close)
	defer closeTransport()

	// The loopback bus delivers in-process, so it always has a consumer.
	loopback := loopbackOf(tr)
	consume := opts.consume || loopback != nil

	var consumer *ingest.Consumer
	var writer sink.VerdictWriter = sink.Discard
	stopConsumer := func(published uint64) {}
	if consume {
		if opts.writer != nil {
			writer = opts.writer
		} else {
			w, cleanup, err := newVerdictWriter(output, "watchtower "+runID[:8])
			if err != nil {
				return err
			}
			defer cleanup()
			writer = w
		}
		consumer = ingest.NewConsumer(newPredictor(opts.predictURL, cfg.Server.WriteTimeout), writer)

		if loopback != nil {
			loopback.SetHandler(consumer.Handle)
		} else {
			sub, ok := tr.(publish.Subscriber)
			if !ok {
				return fmt.Errorf("transport %q cannot be consumed", cfg.Transport.Kind)
			}
			consumeCtx, cancelConsume := context.WithCancel(ctx)
			done := make(chan struct{})
			go func() {
				defer close(done)
				if err := sub.Subscribe(consumeCtx, consumer.Handle); err != nil {
					log.Error("consumer stopped", "err", err)
				}
			}()
			stopConsumer = func(published uint64) {
				defer cancelConsume()
				// a channel bus drains its buffer once closed
				if cfg.Transport.Kind == "channel" {
					closeTransport()
				} else {
					if !consumer.WaitHandled(ctx, published, consumerDrainGrace) {
						cs := consumer.Stats()
						log.Warn("consumer stopped before the stream was drained",
							"published", published, "handled", cs.Processed+cs.Rejected)
					}
					cancelConsume()
				}
				<-done
			}
		}
	}

	pub := publish.NewPublisher(tr, cfg.Transport.Topic, runID, cfg.Transport.PublishTimeout)
	simulator := sim.NewSimulator(runID, cfg, pub)
	sum, runErr := simulator.Run(ctx)
	stopConsumer(pub.Stats().Published)

	if consumer != nil {
		cs := consumer.Stats()
		log.Info("consumer summary", "processed", cs.Processed, "breaches", cs.Breaches, "rejected", cs.Rejected)
		if tw, ok := writer.(*sink.TUIWriter); ok && runErr == nil {
			tw.SetStatus(fmt.Sprintf("run complete: t=%d events=%d dropped=%d breaches=%d",
				sum.VirtualTime, sum.Events, sum.Dropped, cs.Breaches))
			<-ctx.Done()
		}
	}

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}
