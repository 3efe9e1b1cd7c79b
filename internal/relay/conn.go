package relay

// Conn is the duplex text channel a session owns. Only the owning session
// reads from it, but notices may arrive from other sessions, so WriteText and
// Close must be safe to call from any goroutine.
type Conn interface {
	// ReadText blocks until the next inbound payload or until the transport fails.
	ReadText() (string, error)
	// WriteText delivers one outbound payload.
	WriteText(text string) error
	// Close tears the transport down and unblocks any pending ReadText.
	Close() error
}
