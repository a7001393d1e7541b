// Package httpapi serves the operational surface of the simulation service:
// liveness, readiness, text metrics, and the replay dump trigger.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"threebody/sim/internal/logging"
	"threebody/sim/internal/replay"
	"threebody/sim/internal/simulation"
)

// ReadinessProvider exposes the service state required for readiness checks.
type ReadinessProvider interface {
	ClientCount() int
	StartupError() error
	Uptime() time.Duration
	Terminated() bool
}

// ReplayDumper triggers a replay dump and returns the artefact location.
type ReplayDumper interface {
	DumpReplay(ctx context.Context) (string, error)
}

// ReplayDumperFunc adapts a function into a ReplayDumper.
type ReplayDumperFunc func(ctx context.Context) (string, error)

// DumpReplay implements ReplayDumper.
func (f ReplayDumperFunc) DumpReplay(ctx context.Context) (string, error) { return f(ctx) }

// RateLimiter gates how frequently sensitive operations may be invoked.
type RateLimiter interface {
	Allow() bool
}

// Options configures the HandlerSet.
type Options struct {
	Logger      *logging.Logger
	Readiness   ReadinessProvider
	Tick        func() uint64
	TickStats   func() simulation.TickStats
	BodyCount   func() int
	Broadcasts  func() int64
	Replay      ReplayDumper
	ReplayStats func() replay.Stats
	AdminToken  string
	RateLimiter RateLimiter
	TimeSource  func() time.Time
}

// HandlerSet bundles the operational handlers.
type HandlerSet struct {
	logger      *logging.Logger
	readiness   ReadinessProvider
	tick        func() uint64
	tickStats   func() simulation.TickStats
	bodyCount   func() int
	broadcasts  func() int64
	replay      ReplayDumper
	replayStats func() replay.Stats
	adminToken  string
	rateLimiter RateLimiter
	now         func() time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	return &HandlerSet{
		logger:      logger,
		readiness:   opts.Readiness,
		tick:        opts.Tick,
		tickStats:   opts.TickStats,
		bodyCount:   opts.BodyCount,
		broadcasts:  opts.Broadcasts,
		replay:      opts.Replay,
		replayStats: opts.ReplayStats,
		adminToken:  strings.TrimSpace(opts.AdminToken),
		rateLimiter: opts.RateLimiter,
		now:         now,
	}
}

// Register attaches all handlers to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/livez", h.LivenessHandler())
	mux.HandleFunc("/readyz", h.ReadinessHandler())
	mux.HandleFunc("/metrics", h.MetricsHandler())
	mux.HandleFunc("/replay/dump", h.ReplayDumpHandler())
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports simulation readiness, including viewer counts and
// whether the run has ended.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		Message       string  `json:"message,omitempty"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Clients       int     `json:"clients"`
		Terminated    bool    `json:"terminated"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := response{Status: "ok"}
		if h.readiness != nil {
			resp.Clients = h.readiness.ClientCount()
			resp.UptimeSeconds = h.readiness.Uptime().Seconds()
			resp.Terminated = h.readiness.Terminated()
			if err := h.readiness.StartupError(); err != nil {
				status = http.StatusServiceUnavailable
				resp.Status = "error"
				resp.Message = err.Error()
			}
		}
		writeJSON(w, status, resp)
	}
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		if h.readiness != nil {
			fmt.Fprintf(w, "# HELP sim_uptime_seconds Service uptime in seconds.\n")
			fmt.Fprintf(w, "# TYPE sim_uptime_seconds gauge\n")
			fmt.Fprintf(w, "sim_uptime_seconds %.0f\n", h.readiness.Uptime().Seconds())

			fmt.Fprintf(w, "# HELP sim_clients Current connected WebSocket viewers.\n")
			fmt.Fprintf(w, "# TYPE sim_clients gauge\n")
			fmt.Fprintf(w, "sim_clients %d\n", h.readiness.ClientCount())
		}
		if h.tick != nil {
			fmt.Fprintf(w, "# HELP sim_ticks_total Simulation ticks advanced since start.\n")
			fmt.Fprintf(w, "# TYPE sim_ticks_total counter\n")
			fmt.Fprintf(w, "sim_ticks_total %d\n", h.tick())
		}
		if h.bodyCount != nil {
			fmt.Fprintf(w, "# HELP sim_bodies Bodies currently tracked by the world.\n")
			fmt.Fprintf(w, "# TYPE sim_bodies gauge\n")
			fmt.Fprintf(w, "sim_bodies %d\n", h.bodyCount())
		}
		if h.broadcasts != nil {
			fmt.Fprintf(w, "# HELP sim_broadcasts_total Total tick payloads delivered to viewers.\n")
			fmt.Fprintf(w, "# TYPE sim_broadcasts_total counter\n")
			fmt.Fprintf(w, "sim_broadcasts_total %d\n", h.broadcasts())
		}
		if h.tickStats != nil {
			stats := h.tickStats()
			fmt.Fprintf(w, "# HELP sim_tick_duration_avg_seconds Average wall-clock tick duration.\n")
			fmt.Fprintf(w, "# TYPE sim_tick_duration_avg_seconds gauge\n")
			fmt.Fprintf(w, "sim_tick_duration_avg_seconds %.6f\n", stats.Average.Seconds())
			fmt.Fprintf(w, "# HELP sim_tick_duration_max_seconds Longest observed tick duration.\n")
			fmt.Fprintf(w, "# TYPE sim_tick_duration_max_seconds gauge\n")
			fmt.Fprintf(w, "sim_tick_duration_max_seconds %.6f\n", stats.Max.Seconds())
		}
		if h.replayStats != nil {
			stats := h.replayStats()
			fmt.Fprintf(w, "# HELP sim_replay_buffer_frames Buffered replay frames awaiting flush.\n")
			fmt.Fprintf(w, "# TYPE sim_replay_buffer_frames gauge\n")
			fmt.Fprintf(w, "sim_replay_buffer_frames %d\n", stats.BufferedFrames)
			fmt.Fprintf(w, "# HELP sim_replay_buffer_bytes Buffered replay payload size in bytes.\n")
			fmt.Fprintf(w, "# TYPE sim_replay_buffer_bytes gauge\n")
			fmt.Fprintf(w, "sim_replay_buffer_bytes %d\n", stats.BufferedBytes)
			fmt.Fprintf(w, "# HELP sim_replay_dumps_total Replay dumps completed successfully.\n")
			fmt.Fprintf(w, "# TYPE sim_replay_dumps_total counter\n")
			fmt.Fprintf(w, "sim_replay_dumps_total %d\n", stats.Dumps)
		}
	}
}

// ReplayDumpHandler authorises and triggers replay dump creation.
func (h *HandlerSet) ReplayDumpHandler() http.HandlerFunc {
	type response struct {
		Status   string `json:"status"`
		Location string `json:"location,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.logger.With(
			logging.String("handler", "replay_dump"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.adminToken == "" {
			reqLogger.Warn("replay dump denied: admin auth disabled")
			http.Error(w, "admin authentication not configured", http.StatusForbidden)
			return
		}
		if !h.authorise(r) {
			reqLogger.Warn("replay dump denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.rateLimiter != nil && !h.rateLimiter.Allow() {
			reqLogger.Warn("replay dump denied: rate limit exceeded")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if h.replay == nil {
			reqLogger.Warn("replay dump denied: no dumper configured")
			http.Error(w, "replay dumping is unavailable", http.StatusServiceUnavailable)
			return
		}
		location, err := h.replay.DumpReplay(r.Context())
		if err != nil {
			reqLogger.Error("replay dump trigger failed", logging.Error(err))
			http.Error(w, "failed to trigger replay dump", http.StatusInternalServerError)
			return
		}
		reqLogger.Info("replay dump triggered")
		writeJSON(w, http.StatusAccepted, response{Status: "accepted", Location: location})
	}
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	var token string
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	} else if header != "" {
		token = header
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
