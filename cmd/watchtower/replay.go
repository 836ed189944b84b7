package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"watchtower-sim/internal/ingest"
	"watchtower-sim/internal/logging"
	"watchtower-sim/internal/publish"
	"watchtower-sim/internal/sink"
)

var (
	replayInput      string
	replaySpeed      float64
	replayOutput     string
	replayPredictURL string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a telemetry log file",
	Long:  "replay feeds events from a JSONL telemetry log through the anomaly classifier.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		output := resolveOutput(replayOutput)
		log := newLogger(cfg, output)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, log)

		writer, cleanup, err := newVerdictWriter(output, "watchtower replay")
		if err != nil {
			return err
		}
		defer cleanup()

		consumer := ingest.NewConsumer(newPredictor(replayPredictURL, cfg.Server.WriteTimeout), writer)
		err = publish.ReplayLogFile(ctx, replayInput, consumer.Handle, cfg.Transport.Topic, replaySpeed)
		cs := consumer.Stats()
		log.Info("replay finished", "processed", cs.Processed, "breaches", cs.Breaches, "rejected", cs.Rejected)
		if err != nil && ctx.Err() == nil {
			return err
		}
		if tw, ok := writer.(*sink.TUIWriter); ok {
			tw.SetStatus(fmt.Sprintf("replay complete: processed=%d breaches=%d", cs.Processed, cs.Breaches))
			<-ctx.Done()
		}
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to telemetry log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 replays as fast as possible)")
	replayCmd.Flags().StringVar(&replayOutput, "output", outputJSON, "Verdict output: auto, json, color, breaches, tui or none")
	replayCmd.Flags().StringVar(&replayPredictURL, "predict-url", "", "Classify through a remote ingestion endpoint instead of in-process")
	replayCmd.MarkFlagRequired("input")
}
