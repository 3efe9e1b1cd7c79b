// Package ws upgrades relay connections and runs one session per socket.
package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"confy/relay/internal/identity"
	"confy/relay/internal/logging"
	"confy/relay/internal/relay"
)

// Options configures the WebSocket endpoint.
type Options struct {
	Exchange        *relay.Exchange
	Logger          *logging.Logger
	AllowedOrigins  []string
	MaxPayloadBytes int64
	PingInterval    time.Duration
	MaxClients      int
}

// Handler terminates WebSocket upgrades for the relay endpoint.
type Handler struct {
	exchange     *relay.Exchange
	log          *logging.Logger
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	maxPayload   int64
	maxClients   int
}

// NewHandler constructs the endpoint handler from the provided options.
func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	return &Handler{
		exchange:     opts.Exchange,
		log:          logger,
		pingInterval: opts.PingInterval,
		maxPayload:   opts.MaxPayloadBytes,
		maxClients:   opts.MaxClients,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
	}
}

// originChecker admits every origin when the allow list is empty, otherwise
// exact matches only. Requests without an Origin header are not browsers and
// pass regardless.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	permitted := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			permitted[trimmed] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := permitted[origin]
		return ok
	}
}

// Register mounts the relay endpoint on the router.
func (h *Handler) Register(router *mux.Router) {
	if router == nil {
		return
	}
	router.HandleFunc("/ws/{pair}", h.ServeConnection)
}

// ServeConnection upgrades one connection and blocks until its session ends.
func (h *Handler) ServeConnection(w http.ResponseWriter, r *http.Request) {
	//1.- The pair parses before the upgrade so malformed paths fail as plain HTTP.
	pair := mux.Vars(r)["pair"]
	senderRaw, recipientRaw, ok := splitPair(pair)
	if !ok || strings.TrimSpace(senderRaw) == "" || strings.TrimSpace(recipientRaw) == "" {
		http.Error(w, "pair must be sender@recipient", http.StatusBadRequest)
		return
	}
	//2.- The capacity gate also fires pre-upgrade so the client sees a clean 503.
	if h.maxClients > 0 && h.exchange.Stats().Clients >= h.maxClients {
		http.Error(w, "relay at capacity", http.StatusServiceUnavailable)
		return
	}
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		//3.- Upgrade already wrote the HTTP error, so only the log line remains.
		h.log.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	logger := h.log.With(logging.String("session_id", uuid.NewString()))
	conn := newSocketConn(socket, h.maxPayload, h.pingInterval)
	defer conn.stop()
	session := relay.NewSession(h.exchange, conn,
		identity.HashID(senderRaw), identity.HashID(recipientRaw),
		relay.WithSessionLogger(logger))
	session.Run(r.Context())
}

// splitPair separates a {pair} path segment at the last "@" that leaves text
// on both sides, so raw identifiers may themselves contain "@".
func splitPair(pair string) (sender, recipient string, ok bool) {
	idx := strings.LastIndex(pair, "@")
	if idx >= 0 && idx == len(pair)-1 {
		idx = strings.LastIndex(pair[:idx], "@")
	}
	if idx <= 0 {
		return "", "", false
	}
	return pair[:idx], pair[idx+1:], true
}
