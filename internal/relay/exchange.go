package relay

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"

	"confy/relay/internal/logging"
)

// TunnelKey identifies a tunnel by its unordered participant pair. Both
// orderings of the same pair produce the same key.
type TunnelKey struct {
	low, high string
}

// PairKey builds the canonical tunnel key for the pair {a, b}.
func PairKey(a, b string) TunnelKey {
	if b < a {
		a, b = b, a
	}
	return TunnelKey{low: a, high: b}
}

// PresenceStore is the slice of the shared presence service the exchange
// consumes. Calls happen outside the table lock, and failures are logged
// rather than propagated so a presence outage never takes the relay down.
type PresenceStore interface {
	Add(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
	Contains(ctx context.Context, id string) (bool, error)
}

type nopPresence struct{}

func (nopPresence) Add(context.Context, string) error { return nil }

func (nopPresence) Remove(context.Context, string) error { return nil }

func (nopPresence) Contains(context.Context, string) (bool, error) { return false, nil }

// Exchange owns every in-memory table of the relay: the connection registry,
// the tunnel table and the waiting list. One mutex guards all three so each
// admission, forward and disconnect observes a consistent snapshot.
type Exchange struct {
	log      *logging.Logger
	presence PresenceStore

	mu      sync.Mutex
	conns   map[string]Conn
	tunnels map[TunnelKey]map[string]struct{}
	waiting map[string][]string

	forwards   uint64
	rejections uint64
}

// ExchangeOption customises an Exchange during construction.
type ExchangeOption func(*Exchange)

// WithPresence attaches the shared presence store mirrored on connect and disconnect.
func WithPresence(store PresenceStore) ExchangeOption {
	return func(e *Exchange) {
		if store != nil {
			e.presence = store
		}
	}
}

// WithLogger overrides the logger used for table and presence events.
func WithLogger(logger *logging.Logger) ExchangeOption {
	return func(e *Exchange) {
		if logger != nil {
			e.log = logger
		}
	}
}

// NewExchange builds an empty exchange ready to admit participants.
func NewExchange(opts ...ExchangeOption) *Exchange {
	exchange := &Exchange{
		log:      logging.L(),
		presence: nopPresence{},
		conns:    make(map[string]Conn),
		tunnels:  make(map[TunnelKey]map[string]struct{}),
		waiting:  make(map[string][]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(exchange)
		}
	}
	return exchange
}

// Waiter pairs a drained waiting sender with its live channel.
type Waiter struct {
	ID   string
	Conn Conn
}

// Admission reports what the connecting session must do once its tables are
// updated: whether the recipient was already connected, and which waiting
// senders need an arrival notice, in the order they queued up.
type Admission struct {
	RecipientOnline bool
	Waiters         []Waiter
}

// Admit validates and registers a connecting sender in one critical section.
// Registration, tunnel membership, waiting-list enqueue and the drain of the
// sender's own queue are atomic, so a recipient connecting concurrently can
// never slip between them.
func (e *Exchange) Admit(sender, recipient string, conn Conn) (*Admission, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	//1.- A live connection already holds this ID, so the newcomer is turned away.
	if _, exists := e.conns[sender]; exists {
		return nil, ErrIdentityInUse
	}
	//2.- A recipient whose tunnel already has both sides attached accepts no third party.
	if _, connected := e.conns[recipient]; connected && e.exclusivelyPairedLocked(recipient) {
		return nil, ErrRecipientBusy
	}
	//3.- Register the connection and join the tunnel for this pair.
	e.conns[sender] = conn
	members := e.ensureTunnelLocked(PairKey(sender, recipient))
	members[sender] = struct{}{}
	admission := &Admission{}
	if _, connected := e.conns[recipient]; connected {
		members[recipient] = struct{}{}
		admission.RecipientOnline = true
	} else {
		//4.- The recipient is offline, so the sender queues up for an arrival notice.
		e.waiting[recipient] = append(e.waiting[recipient], sender)
	}
	//5.- Drain the senders that were waiting for this very ID, preserving enqueue order.
	for _, waitingID := range e.waiting[sender] {
		waitingConn, connected := e.conns[waitingID]
		if !connected {
			continue
		}
		waitingMembers := e.ensureTunnelLocked(PairKey(waitingID, sender))
		waitingMembers[waitingID] = struct{}{}
		admission.Waiters = append(admission.Waiters, Waiter{ID: waitingID, Conn: waitingConn})
	}
	delete(e.waiting, sender)
	return admission, nil
}

// Forward delivers one payload verbatim to the recipient's live channel. The
// write happens outside the table lock so a slow peer cannot stall other
// sessions.
func (e *Exchange) Forward(recipient, payload string) error {
	e.mu.Lock()
	conn, connected := e.conns[recipient]
	e.mu.Unlock()
	if !connected {
		return ErrRecipientOffline
	}
	if err := conn.WriteText(payload); err != nil {
		return fmt.Errorf("forward payload: %w", err)
	}
	e.mu.Lock()
	e.forwards++
	e.mu.Unlock()
	return nil
}

// Disconnect runs the cleanup cascade for a departing participant: its
// registration, tunnel memberships and waiting-list entries disappear, the
// remaining tunnel members are notified and closed, and the shared presence
// entries are removed. Table mutations complete before any fallible I/O runs.
func (e *Exchange) Disconnect(ctx context.Context, id string, key TunnelKey) {
	type peer struct {
		id   string
		conn Conn
	}
	e.mu.Lock()
	//1.- Drop the departing connection from the registry.
	delete(e.conns, id)
	//2.- Detach every member of the tunnel, collecting the survivors for notification.
	var peers []peer
	if members, ok := e.tunnels[key]; ok {
		delete(members, id)
		remaining := lo.Keys(members)
		sort.Strings(remaining)
		for _, memberID := range remaining {
			if conn, connected := e.conns[memberID]; connected {
				peers = append(peers, peer{id: memberID, conn: conn})
				delete(e.conns, memberID)
			}
			delete(members, memberID)
		}
		if len(members) == 0 {
			delete(e.tunnels, key)
		}
	}
	//3.- Membership is not confined to the session key: admission adds an online
	// recipient to the sender's tunnel too, so strip the ID from every table entry.
	for tunnelKey, members := range e.tunnels {
		delete(members, id)
		if len(members) == 0 {
			delete(e.tunnels, tunnelKey)
		}
	}
	//4.- Purge the waiting list: the participant's own queue and its slots in other queues.
	delete(e.waiting, id)
	for recipientID, queue := range e.waiting {
		e.waiting[recipientID] = lo.Filter(queue, func(waitingID string, _ int) bool {
			return waitingID != id
		})
	}
	e.mu.Unlock()
	//5.- With the tables consistent, run the fallible work: presence and peer teardown.
	e.markAbsent(ctx, id)
	for _, p := range peers {
		if err := p.conn.WriteText(NoticePeerLoggedOut); err != nil {
			e.log.Warn("peer logout notice failed",
				logging.String("participant", shortID(p.id)), logging.Error(err))
		}
		if err := p.conn.Close(); err != nil {
			e.log.Warn("peer channel close failed",
				logging.String("participant", shortID(p.id)), logging.Error(err))
		}
		e.markAbsent(ctx, p.id)
	}
}

// Connected reports whether the ID currently holds a live connection here.
func (e *Exchange) Connected(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, connected := e.conns[id]
	return connected
}

// ExclusivelyPaired reports whether the ID occupies a tunnel that already has
// both sides attached, which is what makes a recipient busy.
func (e *Exchange) ExclusivelyPaired(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exclusivelyPairedLocked(id)
}

// PresenceOnline reports whether the shared store lists the ID as online. A
// store failure reads as offline so presence outages never block admissions.
func (e *Exchange) PresenceOnline(ctx context.Context, id string) bool {
	online, err := e.presence.Contains(ctx, id)
	if err != nil {
		e.log.Warn("presence lookup failed",
			logging.String("participant", shortID(id)), logging.Error(err))
		return false
	}
	return online
}

// Stats is a point-in-time view of the exchange tables and counters.
type Stats struct {
	Clients        int
	Tunnels        int
	WaitingSenders int
	Forwards       uint64
	Rejections     uint64
}

// Stats snapshots the table sizes and lifetime counters.
func (e *Exchange) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	waiting := 0
	for _, queue := range e.waiting {
		waiting += len(queue)
	}
	return Stats{
		Clients:        len(e.conns),
		Tunnels:        len(e.tunnels),
		WaitingSenders: waiting,
		Forwards:       e.forwards,
		Rejections:     e.rejections,
	}
}

func (e *Exchange) exclusivelyPairedLocked(id string) bool {
	for _, members := range e.tunnels {
		if _, ok := members[id]; ok && len(members) >= 2 {
			return true
		}
	}
	return false
}

func (e *Exchange) ensureTunnelLocked(key TunnelKey) map[string]struct{} {
	members, ok := e.tunnels[key]
	if !ok {
		members = make(map[string]struct{}, 2)
		e.tunnels[key] = members
	}
	return members
}

func (e *Exchange) markPresent(ctx context.Context, id string) {
	if err := e.presence.Add(ctx, id); err != nil {
		e.log.Warn("presence add failed",
			logging.String("participant", shortID(id)), logging.Error(err))
	}
}

func (e *Exchange) markAbsent(ctx context.Context, id string) {
	if err := e.presence.Remove(ctx, id); err != nil {
		e.log.Warn("presence remove failed",
			logging.String("participant", shortID(id)), logging.Error(err))
	}
}

func (e *Exchange) noteRejection() {
	e.mu.Lock()
	e.rejections++
	e.mu.Unlock()
}

// shortID trims a hashed participant ID down to a log friendly size.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
