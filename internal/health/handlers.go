// Package health exposes the server's operational HTTP surface: the single
// read endpoint of spec §4.7, a liveness probe, and an admin-gated
// diagnostics trigger. It is adapted from the teacher's internal/http
// HandlerSet (Options struct, functional registration onto a mux,
// writeJSON helper) generalized from broker readiness/replay concerns to
// this server's coordination-store and session-store concerns.
package health

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"pongserver/internal/logging"
	"pongserver/internal/simulation"
)

// Pinger reports whether the coordination store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueDepth reports the current matchmaking queue length.
type QueueDepth interface {
	Depth(ctx context.Context) (int, error)
}

// SessionCounter reports the number of active sessions.
type SessionCounter interface {
	Count() int
}

// Snapshotter triggers an out-of-band diagnostics snapshot.
type Snapshotter interface {
	SnapshotNow() (string, error)
}

// RateLimiter gates how frequently a sensitive operation may be invoked.
type RateLimiter interface {
	Allow() bool
}

// TickMetrics reports the scheduler's tick-duration statistics.
type TickMetrics interface {
	Metrics() simulation.TickMetricsSnapshot
}

// Options configures the HandlerSet.
type Options struct {
	Logger      *logging.Logger
	CoordStore  Pinger
	Queue       QueueDepth
	Sessions    SessionCounter
	Snapshotter Snapshotter
	Scheduler   TickMetrics
	AdminToken  string
	RateLimiter RateLimiter
	TimeSource  func() time.Time
}

// HandlerSet bundles the server's operational HTTP handlers.
type HandlerSet struct {
	logger      *logging.Logger
	coordStore  Pinger
	queue       QueueDepth
	sessions    SessionCounter
	snapshotter Snapshotter
	scheduler   TickMetrics
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
		coordStore:  opts.CoordStore,
		queue:       opts.Queue,
		sessions:    opts.Sessions,
		snapshotter: opts.Snapshotter,
		scheduler:   opts.Scheduler,
		adminToken:  strings.TrimSpace(opts.AdminToken),
		rateLimiter: opts.RateLimiter,
		now:         now,
	}
}

// Register attaches every handler to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/healthcheck", h.HealthcheckHandler())
	mux.HandleFunc("/livez", h.LivenessHandler())
	mux.HandleFunc("/admin/snapshot", h.AdminSnapshotHandler())
}

type dependencies struct {
	CoordStoreConnected bool   `json:"coordStoreConnected"`
	CoordStoreError     string `json:"coordStoreError,omitempty"`
}

type metrics struct {
	WaitingPlayers int     `json:"waitingPlayers"`
	ActiveGames    int     `json:"activeGames"`
	TickSamples    int     `json:"tickSamples,omitempty"`
	AverageTickMs  float64 `json:"averageTickMs,omitempty"`
	MaxTickMs      float64 `json:"maxTickMs,omitempty"`
	LastTickMs     float64 `json:"lastTickMs,omitempty"`
}

type healthResponse struct {
	Status       string       `json:"status"`
	Timestamp    string       `json:"timestamp"`
	Dependencies dependencies `json:"dependencies"`
	Metrics      metrics      `json:"metrics"`
}

// HealthcheckHandler implements spec §4.7: status is "Healthy" iff the
// coordination store is reachable and depth/count queries succeed,
// otherwise "Degraded".
func (h *HandlerSet) HealthcheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		resp := healthResponse{Status: "Healthy", Timestamp: h.now().UTC().Format(time.RFC3339)}

		if h.coordStore != nil {
			if err := h.coordStore.Ping(ctx); err != nil {
				resp.Dependencies.CoordStoreConnected = false
				resp.Dependencies.CoordStoreError = err.Error()
				resp.Status = "Degraded"
			} else {
				resp.Dependencies.CoordStoreConnected = true
			}
		}

		if h.queue != nil && resp.Dependencies.CoordStoreConnected {
			depth, err := h.queue.Depth(ctx)
			if err != nil {
				resp.Status = "Degraded"
			} else {
				resp.Metrics.WaitingPlayers = depth
			}
		}

		if h.sessions != nil {
			resp.Metrics.ActiveGames = h.sessions.Count()
		}

		if h.scheduler != nil {
			tick := h.scheduler.Metrics()
			resp.Metrics.TickSamples = tick.Samples
			resp.Metrics.AverageTickMs = tick.Average.Seconds() * 1000
			resp.Metrics.MaxTickMs = tick.Max.Seconds() * 1000
			resp.Metrics.LastTickMs = tick.Last.Seconds() * 1000
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// LivenessHandler reports that the HTTP server itself is reachable,
// independent of the coordination store.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{Status: "alive", Timestamp: h.now().UTC().Format(time.RFC3339)})
	}
}

// AdminSnapshotHandler triggers an immediate diagnostics snapshot, gated by
// a constant-time admin token comparison and a sliding-window rate limit.
func (h *HandlerSet) AdminSnapshotHandler() http.HandlerFunc {
	type response struct {
		Path string `json:"path"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if h.adminToken == "" {
			http.Error(w, "admin surface disabled", http.StatusNotFound)
			return
		}
		token := strings.TrimSpace(r.Header.Get("X-Admin-Token"))
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.rateLimiter != nil && !h.rateLimiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		if h.snapshotter == nil {
			http.Error(w, "snapshotter not configured", http.StatusServiceUnavailable)
			return
		}
		path, err := h.snapshotter.SnapshotNow()
		if err != nil {
			h.logger.Error("admin snapshot failed", logging.Error(err))
			http.Error(w, "snapshot failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, response{Path: path})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
