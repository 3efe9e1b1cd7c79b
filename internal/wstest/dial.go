// Package wstest provides WebSocket dialing helpers for integration tests.
package wstest

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// Dial connects to a path on an httptest server, translating the http scheme
// to its ws counterpart.
func Dial(serverURL, path string, header http.Header) (*websocket.Conn, *http.Response, error) {
	target := strings.Replace(serverURL, "http", "ws", 1) + path
	return websocket.DefaultDialer.Dial(target, header)
}
