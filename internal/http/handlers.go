// Package httpapi serves the relay's read-only HTTP surface: availability
// queries, host status, health probes and operational metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"confy/relay/internal/identity"
	"confy/relay/internal/logging"
	"confy/relay/internal/relay"
)

// AvailabilityProvider exposes the relay state an availability query consults.
type AvailabilityProvider interface {
	PresenceOnline(ctx context.Context, id string) bool
	ExclusivelyPaired(id string) bool
}

// StatsProvider snapshots the relay tables for readiness and metrics.
type StatsProvider interface {
	Stats() relay.Stats
}

// RateLimiter gates how frequently a caller may hit an expensive endpoint.
type RateLimiter interface {
	Allow(key string) bool
}

// Options configures the HandlerSet.
type Options struct {
	Logger       *logging.Logger
	Availability AvailabilityProvider
	Stats        StatsProvider
	Status       StatusCollector
	StatusLimit  RateLimiter
	Version      string
	TimeSource   func() time.Time
}

// HandlerSet bundles the relay's HTTP handlers.
type HandlerSet struct {
	logger       *logging.Logger
	availability AvailabilityProvider
	stats        StatsProvider
	status       StatusCollector
	statusLimit  RateLimiter
	version      string
	now          func() time.Time
	started      time.Time
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
		logger:       logger,
		availability: opts.Availability,
		stats:        opts.Stats,
		status:       opts.Status,
		statusLimit:  opts.StatusLimit,
		version:      opts.Version,
		now:          now,
		started:      now(),
	}
}

// Register attaches all handlers to the provided router.
func (h *HandlerSet) Register(router *mux.Router) {
	if router == nil {
		return
	}
	router.HandleFunc("/availability/{user_id}", h.AvailabilityHandler())
	router.HandleFunc("/status", h.StatusHandler())
	router.HandleFunc("/livez", h.LivenessHandler())
	router.HandleFunc("/readyz", h.ReadinessHandler())
	router.HandleFunc("/metrics", h.MetricsHandler())
}

// AvailabilityHandler answers the tri-state recipient availability query.
func (h *HandlerSet) AvailabilityHandler() http.HandlerFunc {
	type response struct {
		UserID  string `json:"user_id"`
		State   string `json:"state"`
		Message string `json:"message"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		userID := mux.Vars(r)["user_id"]
		resp := response{UserID: userID}
		//1.- Lookups run on the hashed identity, the only form the tables know.
		hashed := identity.HashID(userID)
		switch {
		case h.availability == nil || !h.availability.PresenceOnline(r.Context(), hashed):
			resp.State = "offline"
			resp.Message = "The recipient is not connected yet."
		case h.availability.ExclusivelyPaired(hashed):
			resp.State = "busy"
			resp.Message = "The recipient is already in a conversation."
		default:
			resp.State = "available"
			resp.Message = "The recipient is available."
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// StatusHandler reports host CPU and memory figures, behind a rate limit.
func (h *HandlerSet) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.logger.With(
			logging.String("handler", "status"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if h.statusLimit != nil && !h.statusLimit.Allow(remoteHost(r)) {
			reqLogger.Warn("status denied: rate limit exceeded")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if h.status == nil {
			http.Error(w, "status collection is unavailable", http.StatusServiceUnavailable)
			return
		}
		report, err := h.status.Collect(r.Context())
		if err != nil {
			reqLogger.Error("status collection failed", logging.Error(err))
			http.Error(w, "failed to collect host status", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Version   string `json:"version,omitempty"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Version:   h.version,
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports the relay table counts alongside uptime.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status         string  `json:"status"`
		UptimeSeconds  float64 `json:"uptime_seconds"`
		Clients        int     `json:"clients"`
		Tunnels        int     `json:"tunnels"`
		WaitingSenders int     `json:"waiting_senders"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		resp := response{
			Status:        "ok",
			UptimeSeconds: h.now().Sub(h.started).Seconds(),
		}
		if h.stats != nil {
			stats := h.stats.Stats()
			resp.Clients = stats.Clients
			resp.Tunnels = stats.Tunnels
			resp.WaitingSenders = stats.WaitingSenders
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var stats relay.Stats
		if h.stats != nil {
			stats = h.stats.Stats()
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintf(w, "# HELP relay_uptime_seconds Relay uptime in seconds.\n")
		fmt.Fprintf(w, "# TYPE relay_uptime_seconds gauge\n")
		fmt.Fprintf(w, "relay_uptime_seconds %.0f\n", h.now().Sub(h.started).Seconds())

		fmt.Fprintf(w, "# HELP relay_clients Currently registered WebSocket participants.\n")
		fmt.Fprintf(w, "# TYPE relay_clients gauge\n")
		fmt.Fprintf(w, "relay_clients %d\n", stats.Clients)

		fmt.Fprintf(w, "# HELP relay_tunnels Currently tracked tunnels.\n")
		fmt.Fprintf(w, "# TYPE relay_tunnels gauge\n")
		fmt.Fprintf(w, "relay_tunnels %d\n", stats.Tunnels)

		fmt.Fprintf(w, "# HELP relay_waiting_senders Senders queued for an offline recipient.\n")
		fmt.Fprintf(w, "# TYPE relay_waiting_senders gauge\n")
		fmt.Fprintf(w, "relay_waiting_senders %d\n", stats.WaitingSenders)

		fmt.Fprintf(w, "# HELP relay_forwards_total Total payloads forwarded between participants.\n")
		fmt.Fprintf(w, "# TYPE relay_forwards_total counter\n")
		fmt.Fprintf(w, "relay_forwards_total %d\n", stats.Forwards)

		fmt.Fprintf(w, "# HELP relay_rejections_total Total connections rejected before admission.\n")
		fmt.Fprintf(w, "# TYPE relay_rejections_total counter\n")
		fmt.Fprintf(w, "relay_rejections_total %d\n", stats.Rejections)
	}
}

// remoteHost strips the port from the peer address so one caller shares one
// rate limit bucket across connections.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
