package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds every control frame write on a relay socket.
const writeWait = 10 * time.Second

// socketConn adapts a gorilla connection to the relay's channel contract.
// gorilla permits one concurrent writer at most, so outbound payloads take a
// write lock; control frames have their own concurrency guarantee.
type socketConn struct {
	socket *websocket.Conn

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

func newSocketConn(socket *websocket.Conn, maxPayloadBytes int64, pingInterval time.Duration) *socketConn {
	if maxPayloadBytes > 0 {
		socket.SetReadLimit(maxPayloadBytes)
	}
	conn := &socketConn{socket: socket, done: make(chan struct{})}
	if pingInterval > 0 {
		go conn.keepAlive(pingInterval)
	}
	return conn
}

// keepAlive pings on a timer so intermediaries keep the long lived socket open.
func (c *socketConn) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.socket.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// ReadText blocks for the next inbound payload. Binary frames are treated as
// opaque text, matching the relay's no-inspection rule.
func (c *socketConn) ReadText() (string, error) {
	_, payload, err := c.socket.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// WriteText delivers one payload as a text frame.
func (c *socketConn) WriteText(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.socket.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close stops the keepalive loop, offers a close frame and drops the socket.
func (c *socketConn) Close() error {
	c.stop()
	_ = c.socket.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return c.socket.Close()
}

func (c *socketConn) stop() {
	c.once.Do(func() { close(c.done) })
}
