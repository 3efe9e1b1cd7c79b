package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	httpapi "confy/relay/internal/http"
	"confy/relay/internal/identity"
	"confy/relay/internal/logging"
	"confy/relay/internal/presence"
	"confy/relay/internal/relay"
	"confy/relay/internal/ws"
)

type fixedCollector struct {
	report httpapi.StatusReport
}

func (f fixedCollector) Collect(context.Context) (*httpapi.StatusReport, error) {
	report := f.report
	return &report, nil
}

// newRelayServer wires the full stack the way main does, with an in-memory
// presence store standing in for Redis.
func newRelayServer(t *testing.T) (*httptest.Server, *relay.Exchange, *presence.MemoryStore) {
	t.Helper()
	logger := logging.NewTestLogger()
	store := presence.NewMemoryStore()
	exchange := relay.NewExchange(relay.WithPresence(store), relay.WithLogger(logger))
	router := mux.NewRouter()
	ws.NewHandler(ws.Options{
		Exchange:        exchange,
		Logger:          logger,
		MaxPayloadBytes: 1 << 20,
		PingInterval:    30 * time.Second,
	}).Register(router)
	httpapi.NewHandlerSet(httpapi.Options{
		Logger:       logger,
		Availability: exchange,
		Stats:        exchange,
		Status:       fixedCollector{report: httpapi.StatusReport{NumberOfCores: 1}},
		StatusLimit:  httpapi.NewSlidingWindowLimiter(time.Minute, 30, nil),
		Version:      Version,
	}).Register(router)
	server := httptest.NewServer(logging.HTTPTraceMiddleware(logger)(router))
	t.Cleanup(server.Close)
	return server, exchange, store
}

func dialRelay(t *testing.T, server *httptest.Server, pair string) *websocket.Conn {
	t.Helper()
	target := strings.Replace(server.URL, "http", "ws", 1) + "/ws/" + pair
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		t.Fatalf("dialing %s failed: %v", pair, err)
	}
	return conn
}

func readRelayFrame(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("setting read deadline failed: %v", err)
	}
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading frame failed: %v", err)
	}
	return string(payload)
}

func fetchAvailability(t *testing.T, server *httptest.Server, userID string) string {
	t.Helper()
	resp, err := http.Get(server.URL + "/availability/" + userID)
	if err != nil {
		t.Fatalf("availability request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected availability status %d", resp.StatusCode)
	}
	var payload struct {
		UserID string `json:"user_id"`
		State  string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decoding availability failed: %v", err)
	}
	if payload.UserID != userID {
		t.Fatalf("expected the queried id echoed back, got %q", payload.UserID)
	}
	return payload.State
}

func waitUntil(t *testing.T, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRelayEndToEndFlow(t *testing.T) {
	server, exchange, store := newRelayServer(t)

	//1.- Before anyone connects, bob reads as offline.
	if state := fetchAvailability(t, server, "bob"); state != "offline" {
		t.Fatalf("expected bob offline, got %q", state)
	}

	alice := dialRelay(t, server, "alice@bob")
	defer alice.Close()
	if got := readRelayFrame(t, alice); got != relay.NoticeRecipientOffline {
		t.Fatalf("expected the offline notice, got %q", got)
	}
	waitUntil(t, "alice in presence", func() bool {
		online, err := store.Contains(context.Background(), identity.HashID("alice"))
		return err == nil && online
	})
	if state := fetchAvailability(t, server, "alice"); state != "available" {
		t.Fatalf("expected alice available while unpaired, got %q", state)
	}

	bob := dialRelay(t, server, "bob@alice")
	defer bob.Close()
	if got := readRelayFrame(t, alice); got != relay.NoticeRecipientConnected {
		t.Fatalf("expected the arrival notice, got %q", got)
	}
	waitUntil(t, "the pair to form", func() bool {
		return exchange.ExclusivelyPaired(identity.HashID("alice"))
	})
	if state := fetchAvailability(t, server, "alice"); state != "busy" {
		t.Fatalf("expected alice busy once paired, got %q", state)
	}

	//2.- Payloads cross the tunnel untouched.
	if err := alice.WriteMessage(websocket.TextMessage, []byte("hola bob")); err != nil {
		t.Fatalf("alice write failed: %v", err)
	}
	if got := readRelayFrame(t, bob); got != "hola bob" {
		t.Fatalf("expected the payload verbatim, got %q", got)
	}

	//3.- Alice leaving collapses the tunnel and bob's session with it.
	if err := alice.Close(); err != nil {
		t.Fatalf("alice close failed: %v", err)
	}
	if got := readRelayFrame(t, bob); got != relay.NoticePeerLoggedOut {
		t.Fatalf("expected the logout notice, got %q", got)
	}
	waitUntil(t, "the tables to empty", func() bool {
		stats := exchange.Stats()
		return stats.Clients == 0 && stats.Tunnels == 0
	})
	waitUntil(t, "presence to empty", func() bool { return store.Len() == 0 })
	if state := fetchAvailability(t, server, "alice"); state != "offline" {
		t.Fatalf("expected alice offline after the cascade, got %q", state)
	}
}

func TestOperationalEndpoints(t *testing.T) {
	server, _, _ := newRelayServer(t)

	resp, err := http.Get(server.URL + "/livez")
	if err != nil {
		t.Fatalf("liveness request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected liveness status %d", resp.StatusCode)
	}
	//1.- The trace middleware stamps every response it serves.
	if resp.Header.Get(logging.TraceIDHeader) == "" {
		t.Fatal("expected a trace id header on the response")
	}
	var live struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&live); err != nil {
		t.Fatalf("decoding liveness failed: %v", err)
	}
	if live.Status != "alive" || live.Version != Version {
		t.Fatalf("unexpected liveness payload: %+v", live)
	}

	metricsResp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer metricsResp.Body.Close()
	if metricsResp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected metrics status %d", metricsResp.StatusCode)
	}
	metricsBody, err := io.ReadAll(metricsResp.Body)
	if err != nil {
		t.Fatalf("reading metrics failed: %v", err)
	}
	if !strings.Contains(string(metricsBody), "relay_clients") {
		t.Fatalf("metrics output missing relay gauges:\n%s", metricsBody)
	}
}

func TestBootstrapRejectsMalformedEnvironment(t *testing.T) {
	t.Setenv("RELAY_PING_INTERVAL", "soon")
	cfg, logger, err := bootstrap()
	if err == nil {
		t.Fatal("expected a malformed environment to fail the bootstrap")
	}
	if cfg != nil || logger != nil {
		t.Fatal("a failed bootstrap must not hand back partial state")
	}
	if !strings.Contains(err.Error(), "RELAY_PING_INTERVAL") {
		t.Fatalf("expected the offending variable to be named, got %v", err)
	}
}
