package relay

import (
	"context"
	"testing"
)

// startSession runs a session in the background and returns a channel that
// closes when Run returns.
func startSession(ctx context.Context, exchange *Exchange, conn *fakeConn, sender, recipient string) chan struct{} {
	done := make(chan struct{})
	session := NewSession(exchange, conn, sender, recipient)
	go func() {
		defer close(done)
		session.Run(ctx)
	}()
	return done
}

func TestSessionRejectsSelfPairing(t *testing.T) {
	exchange := newTestExchange(t)
	conn := newFakeConn()
	NewSession(exchange, conn, "alice", "alice").Run(context.Background())
	sent := conn.sent()
	if len(sent) != 1 || sent[0] != NoticeSelfPairing {
		t.Fatalf("expected a single self-pairing notice, got %q", sent)
	}
	if !conn.isClosed() {
		t.Fatal("a rejected connection must be closed")
	}
	stats := exchange.Stats()
	if stats.Clients != 0 || stats.Tunnels != 0 || stats.WaitingSenders != 0 {
		t.Fatalf("a rejection must not touch the tables: %+v", stats)
	}
	if stats.Rejections != 1 {
		t.Fatalf("expected one counted rejection, got %d", stats.Rejections)
	}
}

func TestSessionRejectsIdentityListedInPresence(t *testing.T) {
	store := newFakePresence()
	exchange := newTestExchange(t, WithPresence(store))
	ctx := context.Background()
	if err := store.Add(ctx, "alice"); err != nil {
		t.Fatalf("seeding presence failed: %v", err)
	}
	conn := newFakeConn()
	NewSession(exchange, conn, "alice", "bob").Run(ctx)
	sent := conn.sent()
	if len(sent) != 1 || sent[0] != NoticeIDInUse {
		t.Fatalf("expected a single in-use notice, got %q", sent)
	}
	if !conn.isClosed() {
		t.Fatal("a rejected connection must be closed")
	}
	if exchange.Connected("alice") {
		t.Fatal("a rejected connection must never be registered")
	}
	if !store.has("alice") {
		t.Fatal("the rejection must not disturb the existing presence entry")
	}
}

func TestSessionRejectsSecondConnectionForSameID(t *testing.T) {
	exchange := newTestExchange(t)
	ctx := context.Background()
	first := newFakeConn()
	done := startSession(ctx, exchange, first, "alice", "bob")
	waitFor(t, "alice to register", func() bool { return exchange.Connected("alice") })

	second := newFakeConn()
	NewSession(exchange, second, "alice", "carol").Run(ctx)
	sent := second.sent()
	if len(sent) != 1 || sent[0] != NoticeIDInUse {
		t.Fatalf("expected the duplicate to get one in-use notice, got %q", sent)
	}
	if !second.isClosed() {
		t.Fatal("the duplicate connection must be closed")
	}
	if !exchange.Connected("alice") || first.isClosed() {
		t.Fatal("the first connection must be untouched by the duplicate")
	}

	first.hangUp()
	<-done
}

func TestSessionRejectsBusyRecipient(t *testing.T) {
	exchange := newTestExchange(t)
	ctx := context.Background()
	aliceConn := newFakeConn()
	bobConn := newFakeConn()
	aliceDone := startSession(ctx, exchange, aliceConn, "alice", "bob")
	waitFor(t, "alice to register", func() bool { return exchange.Connected("alice") })
	bobDone := startSession(ctx, exchange, bobConn, "bob", "alice")
	waitFor(t, "the pair to form", func() bool { return exchange.ExclusivelyPaired("bob") })

	carolConn := newFakeConn()
	NewSession(exchange, carolConn, "carol", "bob").Run(ctx)
	sent := carolConn.sent()
	if len(sent) != 1 || sent[0] != NoticeRecipientBusy {
		t.Fatalf("expected one busy notice for carol, got %q", sent)
	}
	if !carolConn.isClosed() {
		t.Fatal("carol's connection must be closed")
	}
	if stats := exchange.Stats(); stats.Clients != 2 {
		t.Fatalf("the pair must survive the busy rejection, got %d clients", stats.Clients)
	}

	aliceConn.hangUp()
	<-aliceDone
	<-bobDone
}

func TestSessionNotifiesWhileRecipientOffline(t *testing.T) {
	store := newFakePresence()
	exchange := newTestExchange(t, WithPresence(store))
	ctx := context.Background()
	conn := newFakeConn()
	done := startSession(ctx, exchange, conn, "alice", "bob")
	waitFor(t, "the offline notice", func() bool { return len(conn.sent()) == 1 })
	if got := conn.sent()[0]; got != NoticeRecipientOffline {
		t.Fatalf("expected the offline notice first, got %q", got)
	}
	waitFor(t, "presence to list alice", func() bool { return store.has("alice") })

	//1.- Payloads sent into the void bounce back as still-offline reminders.
	conn.push("hi")
	waitFor(t, "the still-offline notice", func() bool { return len(conn.sent()) == 2 })
	if got := conn.sent()[1]; got != NoticeStillOffline {
		t.Fatalf("expected a still-offline reminder, got %q", got)
	}

	conn.hangUp()
	<-done
	if exchange.Connected("alice") {
		t.Fatal("the cascade must unregister alice")
	}
	if store.has("alice") {
		t.Fatal("the cascade must remove alice from presence")
	}
}

func TestSessionDeliversPayloadsVerbatimOnceBothSidesConnect(t *testing.T) {
	exchange := newTestExchange(t)
	ctx := context.Background()
	aliceConn := newFakeConn()
	bobConn := newFakeConn()
	aliceDone := startSession(ctx, exchange, aliceConn, "alice", "bob")
	waitFor(t, "alice's offline notice", func() bool { return len(aliceConn.sent()) == 1 })

	bobDone := startSession(ctx, exchange, bobConn, "bob", "alice")
	//1.- Alice queued for bob, so his arrival triggers exactly one notice for her.
	waitFor(t, "alice's arrival notice", func() bool { return len(aliceConn.sent()) == 2 })
	if got := aliceConn.sent()[1]; got != NoticeRecipientConnected {
		t.Fatalf("expected the arrival notice, got %q", got)
	}

	//2.- Payloads flow verbatim in both directions, preserving per-sender order.
	aliceConn.push("hi")
	aliceConn.push("how are you?")
	waitFor(t, "bob to receive both payloads", func() bool { return len(bobConn.sent()) == 2 })
	got := bobConn.sent()
	if got[0] != "hi" || got[1] != "how are you?" {
		t.Fatalf("payloads arrived mangled or out of order: %q", got)
	}
	bobConn.push("fine")
	waitFor(t, "alice to receive the reply", func() bool { return len(aliceConn.sent()) == 3 })
	if got := aliceConn.sent()[2]; got != "fine" {
		t.Fatalf("expected the reply verbatim, got %q", got)
	}

	aliceConn.hangUp()
	<-aliceDone
	<-bobDone
}

func TestSessionNotifiesEveryWaitingSenderOnArrival(t *testing.T) {
	exchange := newTestExchange(t)
	ctx := context.Background()
	firstConn := newFakeConn()
	secondConn := newFakeConn()
	firstDone := startSession(ctx, exchange, firstConn, "s1", "target")
	waitFor(t, "s1 to register", func() bool { return exchange.Connected("s1") })
	secondDone := startSession(ctx, exchange, secondConn, "s2", "target")
	waitFor(t, "s2 to register", func() bool { return exchange.Connected("s2") })

	targetConn := newFakeConn()
	targetDone := startSession(ctx, exchange, targetConn, "target", "s1")
	waitFor(t, "both arrival notices", func() bool {
		return len(firstConn.sent()) == 2 && len(secondConn.sent()) == 2
	})
	if got := firstConn.sent()[1]; got != NoticeRecipientConnected {
		t.Fatalf("s1 expected an arrival notice, got %q", got)
	}
	if got := secondConn.sent()[1]; got != NoticeRecipientConnected {
		t.Fatalf("s2 expected an arrival notice, got %q", got)
	}
	if stats := exchange.Stats(); stats.WaitingSenders != 0 {
		t.Fatalf("the queue must be drained, got %d pending", stats.WaitingSenders)
	}

	targetConn.hangUp()
	<-targetDone
	firstConn.hangUp()
	secondConn.hangUp()
	<-firstDone
	<-secondDone
}

func TestSessionDisconnectCascadesToPeer(t *testing.T) {
	store := newFakePresence()
	exchange := newTestExchange(t, WithPresence(store))
	ctx := context.Background()
	aliceConn := newFakeConn()
	bobConn := newFakeConn()
	aliceDone := startSession(ctx, exchange, aliceConn, "alice", "bob")
	waitFor(t, "alice to register", func() bool { return exchange.Connected("alice") })
	bobDone := startSession(ctx, exchange, bobConn, "bob", "alice")
	waitFor(t, "the pair to form", func() bool { return exchange.ExclusivelyPaired("alice") })

	//1.- Alice's transport drops, which must tear bob down as well.
	aliceConn.hangUp()
	<-aliceDone
	<-bobDone

	logoutNotices := 0
	for _, line := range bobConn.sent() {
		if line == NoticePeerLoggedOut {
			logoutNotices++
		}
	}
	if logoutNotices != 1 {
		t.Fatalf("bob must hear about the logout exactly once, got %d", logoutNotices)
	}
	if !bobConn.isClosed() {
		t.Fatal("bob's channel must be closed by the cascade")
	}
	stats := exchange.Stats()
	if stats.Clients != 0 || stats.Tunnels != 0 || stats.WaitingSenders != 0 {
		t.Fatalf("the cascade left state behind: %+v", stats)
	}
	if store.has("alice") || store.has("bob") {
		t.Fatal("both members must leave the presence store")
	}
}

func TestSessionDisconnectClearsOwnWaitingSlot(t *testing.T) {
	exchange := newTestExchange(t)
	ctx := context.Background()
	aliceConn := newFakeConn()
	done := startSession(ctx, exchange, aliceConn, "alice", "bob")
	waitFor(t, "alice to queue for bob", func() bool { return exchange.Stats().WaitingSenders == 1 })

	aliceConn.hangUp()
	<-done
	if stats := exchange.Stats(); stats.WaitingSenders != 0 {
		t.Fatalf("alice's queue slot must be purged, got %d pending", stats.WaitingSenders)
	}

	//1.- Bob arriving later drains an empty queue and hears nothing about alice.
	bobConn := newFakeConn()
	bobDone := startSession(ctx, exchange, bobConn, "bob", "alice")
	waitFor(t, "bob's offline notice", func() bool { return len(bobConn.sent()) == 1 })
	if got := bobConn.sent()[0]; got != NoticeRecipientOffline {
		t.Fatalf("expected only the offline notice for bob, got %q", got)
	}
	bobConn.hangUp()
	<-bobDone
}
