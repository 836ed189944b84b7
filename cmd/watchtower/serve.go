package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"watchtower-sim/internal/ingest"
	"watchtower-sim/internal/logging"
	"watchtower-sim/internal/publish"
)

var (
	serveListen  string
	serveConsume bool
	serveOutput  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the anomaly ingestion endpoint",
	Long: "serve exposes POST /predict and GET /health. With --consume it also classifies telemetry " +
		"read from the configured redis or mqtt transport.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("listen") {
			cfg.Server.Listen = serveListen
		}
		output := resolveOutput(serveOutput)
		log := newLogger(cfg, output)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, log)

		if serveConsume {
			switch cfg.Transport.Kind {
			case "redis", "mqtt":
			default:
				return fmt.Errorf("--consume needs a redis or mqtt transport, got %q", cfg.Transport.Kind)
			}
			tr, err := newTransport(ctx, cfg, "watchtower-serve-"+uuid.NewString()[:8], "")
			if err != nil {
				return err
			}
			defer tr.Close()
			writer, cleanup, err := newVerdictWriter(output, "watchtower serve")
			if err != nil {
				return err
			}
			defer cleanup()
			consumer := ingest.NewConsumer(ingest.LocalPredictor{}, writer)
			go func() {
				if err := tr.(publish.Subscriber).Subscribe(ctx, consumer.Handle); err != nil {
					log.Error("consumer stopped", "err", err)
				}
			}()
		}

		return ingest.NewServer(cfg.Server).Start(ctx, cfg.Server.Listen)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (default from config, :8000)")
	serveCmd.Flags().BoolVar(&serveConsume, "consume", false, "Also classify telemetry from the configured transport")
	serveCmd.Flags().StringVar(&serveOutput, "output", outputNone, "Verdict output for --consume: auto, json, color, breaches, tui or none")
}
