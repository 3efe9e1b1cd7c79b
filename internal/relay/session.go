package relay

import (
	"context"
	"errors"
	"sync"

	"confy/relay/internal/logging"
)

// Session drives one connection through its lifecycle: validation,
// registration, the relay loop and finally the disconnect cascade. The
// participant IDs it receives are already hashed.
type Session struct {
	exchange  *Exchange
	conn      Conn
	sender    string
	recipient string
	key       TunnelKey
	log       *logging.Logger
	cascade   sync.Once
}

// SessionOption customises a Session during construction.
type SessionOption func(*Session)

// WithSessionLogger attaches a contextual logger to the session.
func WithSessionLogger(logger *logging.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.log = logger
		}
	}
}

// NewSession prepares the handler for one sender/recipient connection.
func NewSession(exchange *Exchange, conn Conn, sender, recipient string, opts ...SessionOption) *Session {
	session := &Session{
		exchange:  exchange,
		conn:      conn,
		sender:    sender,
		recipient: recipient,
		key:       PairKey(sender, recipient),
		log:       logging.L(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(session)
		}
	}
	return session
}

// Run owns the connection until its transport closes. Rejections send one
// notice and close the channel without touching any shared table; an admitted
// session relays payloads until its own read loop ends, then runs the
// disconnect cascade exactly once.
func (s *Session) Run(ctx context.Context) {
	//1.- Self-pairing needs no shared state to be detected.
	if s.sender == s.recipient {
		s.reject(ErrSelfPairing)
		return
	}
	//2.- Another node may already host this ID; the shared store is the only witness.
	if s.exchange.PresenceOnline(ctx, s.sender) {
		s.reject(ErrIdentityInUse)
		return
	}
	//3.- Validate against the local tables and register in one atomic step.
	admission, err := s.exchange.Admit(s.sender, s.recipient, s.conn)
	if err != nil {
		s.reject(err)
		return
	}
	//4.- Mirror the registration into the shared presence store.
	s.exchange.markPresent(ctx, s.sender)
	s.log.Info("participant connected",
		logging.String("sender", shortID(s.sender)),
		logging.String("recipient", shortID(s.recipient)))
	//5.- The sender hears exactly once that its recipient is not there yet.
	if !admission.RecipientOnline {
		if err := s.conn.WriteText(NoticeRecipientOffline); err != nil {
			s.log.Warn("offline notice failed", logging.Error(err))
		}
	}
	//6.- Senders that were waiting for this ID hear about the arrival in enqueue order.
	for _, waiter := range admission.Waiters {
		if err := waiter.Conn.WriteText(NoticeRecipientConnected); err != nil {
			s.log.Warn("arrival notice failed",
				logging.String("participant", shortID(waiter.ID)), logging.Error(err))
		}
	}
	//7.- Relay until the transport fails; nothing else ends the loop.
	for {
		payload, err := s.conn.ReadText()
		if err != nil {
			break
		}
		s.relay(payload)
	}
	//8.- The read loop is the sole owner of the teardown.
	s.shutdown(ctx)
	s.log.Info("participant disconnected", logging.String("sender", shortID(s.sender)))
}

func (s *Session) relay(payload string) {
	err := s.exchange.Forward(s.recipient, payload)
	switch {
	case err == nil:
	case errors.Is(err, ErrRecipientOffline):
		//1.- The payload is dropped and the sender reminded that nobody is listening yet.
		if err := s.conn.WriteText(NoticeStillOffline); err != nil {
			s.log.Warn("still-offline notice failed", logging.Error(err))
		}
	default:
		//2.- A failed delivery surfaces on the recipient's own read loop, not here.
		s.log.Warn("forward failed",
			logging.String("recipient", shortID(s.recipient)), logging.Error(err))
	}
}

func (s *Session) reject(reason error) {
	s.exchange.noteRejection()
	s.log.Info("connection rejected",
		logging.String("sender", shortID(s.sender)),
		logging.String("recipient", shortID(s.recipient)),
		logging.String("reason", reason.Error()))
	if err := s.conn.WriteText(RejectionNotice(reason)); err != nil {
		s.log.Warn("rejection notice failed", logging.Error(err))
	}
	_ = s.conn.Close()
}

func (s *Session) shutdown(ctx context.Context) {
	s.cascade.Do(func() {
		s.exchange.Disconnect(ctx, s.sender, s.key)
		_ = s.conn.Close()
	})
}
