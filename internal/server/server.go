// Package server exposes the HTTP control surface for a running vcable
// instance: health and readiness probes, the Prometheus metrics endpoint,
// and a handful of control routes for mute, interrupt, and the pass-through
// monitor. There is no data-plane HTTP — audio never crosses this server.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mlaggner/vcable/internal/health"
	"github.com/mlaggner/vcable/internal/observe"
)

// shutdownTimeout bounds graceful HTTP shutdown during Run teardown.
const shutdownTimeout = 5 * time.Second

// SessionControl is the slice of the routing session the control surface
// needs. Implemented by engine.Session.
type SessionControl interface {
	SetMuted(muted bool)
	ToggleMuted() bool
	Muted() bool
	Interrupt()
	Running() bool
}

// MonitorControl is the slice of the pass-through monitor the control
// surface needs. Implemented by monitor.Monitor.
type MonitorControl interface {
	Start() error
	Stop() error
	Running() bool
}

// Server serves the control surface. Construct with [New]; either mount
// [Server.Handler] yourself or let [Server.Run] own the listener.
type Server struct {
	addr    string
	session SessionControl
	monitor MonitorControl
	metrics *observe.Metrics
	checks  []health.Checker
}

// New creates a Server. monitor may be nil when no monitor is configured;
// its routes then return 404. Extra health checkers are served by /readyz
// alongside the built-in session check.
func New(addr string, session SessionControl, monitor MonitorControl, metrics *observe.Metrics, checks ...health.Checker) *Server {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Server{
		addr:    addr,
		session: session,
		monitor: monitor,
		metrics: metrics,
		checks:  checks,
	}
}

// Handler returns the full route tree wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	checks := append([]health.Checker{
		{Name: "session", Check: func(_ context.Context) error {
			if !s.session.Running() {
				return errors.New("session not running")
			}
			return nil
		}},
	}, s.checks...)
	health.New(checks...).Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("POST /v1/mute", s.handleMute)
	mux.HandleFunc("POST /v1/mute/toggle", s.handleMuteToggle)
	mux.HandleFunc("POST /v1/interrupt", s.handleInterrupt)
	if s.monitor != nil {
		mux.HandleFunc("POST /v1/monitor/start", s.handleMonitorStart)
		mux.HandleFunc("POST /v1/monitor/stop", s.handleMonitorStop)
	}

	return observe.Middleware(s.metrics)(mux)
}

// Run serves the control surface until ctx is cancelled, then shuts down
// gracefully with a bounded timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("control server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// statusResponse is the JSON body of GET /v1/status.
type statusResponse struct {
	Running        bool `json:"running"`
	Muted          bool `json:"muted"`
	MonitorRunning bool `json:"monitor_running"`
}

// muteRequest is the JSON body of POST /v1/mute.
type muteRequest struct {
	Muted bool `json:"muted"`
}

// muteResponse echoes the effective mute state.
type muteResponse struct {
	Muted bool `json:"muted"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Running: s.session.Running(),
		Muted:   s.session.Muted(),
	}
	if s.monitor != nil {
		resp.MonitorRunning = s.monitor.Running()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	var req muteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	s.session.SetMuted(req.Muted)
	writeJSON(w, http.StatusOK, muteResponse{Muted: req.Muted})
}

func (s *Server) handleMuteToggle(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, muteResponse{Muted: s.session.ToggleMuted()})
}

func (s *Server) handleInterrupt(w http.ResponseWriter, _ *http.Request) {
	s.session.Interrupt()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMonitorStart(w http.ResponseWriter, _ *http.Request) {
	if err := s.monitor.Start(); err != nil {
		slog.Error("monitor start failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMonitorStop(w http.ResponseWriter, _ *http.Request) {
	if err := s.monitor.Stop(); err != nil {
		slog.Error("monitor stop failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
