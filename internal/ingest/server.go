// Package ingest exposes the anomaly classifier over HTTP and consumes
// telemetry from the message bus.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"watchtower-sim/internal/classifier"
	"watchtower-sim/internal/config"
	"watchtower-sim/internal/logging"
)

// maxBodyBytes bounds a /predict request body.
const maxBodyBytes = 1 << 16

// Server serves POST /predict and GET /health. It keeps no state between
// requests.
type Server struct {
	mux          *http.ServeMux
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewServer creates the ingestion server.
func NewServer(cfg config.ServerConfig) *Server {
	s := &Server{
		mux:          http.NewServeMux(),
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /predict", s.handlePredict)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.mux }

// Start listens on addr until ctx is done, then shuts down gracefully.
// Request contexts derive from ctx and carry its logger.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log := logging.FromContext(ctx)
	srv := &http.Server{
		Handler:      s.mux,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	log.Info("ingestion server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("ingestion server stopped")
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type errorBody struct {
	Detail string `json:"detail"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	ev, err := DecodeEvent(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			writeJSON(log, w, http.StatusUnprocessableEntity, errorBody{Detail: verr.Error()})
			return
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(log, w, http.StatusRequestEntityTooLarge, errorBody{Detail: err.Error()})
			return
		}
		writeJSON(log, w, http.StatusBadRequest, errorBody{Detail: err.Error()})
		return
	}

	verdict, err := classifier.Classify(ev)
	if err != nil {
		log.Error("classification failed", "soldier_id", ev.SoldierID, "err", err)
		writeJSON(log, w, http.StatusInternalServerError, errorBody{Detail: err.Error()})
		return
	}
	if verdict.Status == classifier.StatusBreach {
		log.Warn("breach detected", "soldier_id", ev.SoldierID, "heart_rate", ev.HeartRate, "rule", verdict.Rule)
	}
	writeJSON(log, w, http.StatusOK, verdict)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	writeJSON(log, w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(log *slog.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to write response", "status", status, "err", err)
	}
}
