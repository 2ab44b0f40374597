package poller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"channelwatch/internal/domain/entity"
	"channelwatch/internal/resilience/failover"
	"channelwatch/internal/thingspeak"
)

// HealthServer serves the poller's operational HTTP surface:
//   - GET  /health: liveness probe, always 200
//   - GET  /health/ready: readiness probe, 200 once polling has started
//   - GET  /status: client counters plus failover provider snapshot
//   - POST /providers/reset?name={primary|secondary|all}: operator reset
//
// The server supports graceful shutdown via context cancellation.
type HealthServer struct {
	addr    string
	client  *thingspeak.Client
	poller  *Poller
	logger  *slog.Logger
	isReady atomic.Bool
	server  *http.Server
}

type healthResponse struct {
	Status string `json:"status"`
}

// statusResponse is the payload of the /status endpoint.
type statusResponse struct {
	Client    thingspeak.ClientStatus `json:"client"`
	Failover  failover.Snapshot       `json:"failover"`
	Channels  int                     `json:"channels"`
	Timestamp time.Time               `json:"timestamp"`
}

// NewHealthServer creates the operational server. It does not listen until
// Start is called; readiness starts false.
func NewHealthServer(addr string, client *thingspeak.Client, poller *Poller, logger *slog.Logger) *HealthServer {
	return &HealthServer{
		addr:   addr,
		client: client,
		poller: poller,
		logger: logger,
	}
}

// Start runs the server until ctx is cancelled. It returns
// http.ErrServerClosed on graceful shutdown.
func (h *HealthServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleLiveness)
	mux.HandleFunc("/health/ready", h.handleReadiness)
	mux.HandleFunc("/status", h.handleStatus)
	mux.HandleFunc("/providers/reset", h.handleProviderReset)

	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		h.logger.Info("health server starting", slog.String("addr", h.addr))
		if err := h.server.ListenAndServe(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		h.logger.Info("health server shutting down")
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			h.logger.Error("health server shutdown failed", slog.Any("error", err))
			return err
		}
		return http.ErrServerClosed

	case err := <-errChan:
		if err != http.ErrServerClosed {
			h.logger.Error("health server failed", slog.Any("error", err))
		}
		return err
	}
}

// SetReady flips the readiness probe. Call with true once the first poll
// cycle has been scheduled, and false before shutdown.
func (h *HealthServer) SetReady(ready bool) {
	h.isReady.Store(ready)
	h.logger.Info("health server readiness changed", slog.Bool("ready", ready))
}

func (h *HealthServer) handleLiveness(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *HealthServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if h.isReady.Load() {
		h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	h.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready"})
}

func (h *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, statusResponse{
		Client:    h.client.Status(),
		Failover:  h.poller.ExecutorStatus(),
		Channels:  len(h.poller.Targets()),
		Timestamp: time.Now().UTC(),
	})
}

func (h *HealthServer) handleProviderReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeJSON(w, http.StatusMethodNotAllowed, healthResponse{Status: "method not allowed"})
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = "all"
	}
	if err := h.poller.ResetProvider(name); err != nil {
		var verr *entity.ValidationError
		if errors.As(err, &verr) {
			h.writeJSON(w, http.StatusBadRequest, healthResponse{Status: verr.Message})
			return
		}
		h.writeJSON(w, http.StatusInternalServerError, healthResponse{Status: "reset failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "reset"})
}

func (h *HealthServer) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", slog.Any("error", err))
	}
}
