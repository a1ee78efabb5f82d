package app

import (
	"errors"
	"sync"
	"testing"

	"github.com/sigrelay/sigrelay/internal/domain"
	"github.com/sigrelay/sigrelay/internal/protocol"
)

func newPair(t *testing.T) (*Registry, *Sessions, *fakeConn, *fakeConn) {
	t.Helper()
	reg := NewRegistry(PresenceListeners)
	sessions := NewSessions(reg)
	_, prodConn := newTestPeer(t, reg, "prod", domain.RoleProducer)
	_, consConn := newTestPeer(t, reg, "cons", domain.RoleConsumer)
	return reg, sessions, prodConn, consConn
}

func TestSessions_StartValidation(t *testing.T) {
	tests := []struct {
		name      string
		initiator domain.PeerID
		target    domain.PeerID
		want      *protocol.Error
	}{
		{"unknown target", "cons", "ghost", protocol.ErrPeerNotFound},
		{"unknown initiator", "ghost", "prod", protocol.ErrPeerNotFound},
		{"self pairing", "cons", "cons", protocol.ErrSelfPairing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, sessions, _, _ := newPair(t)
			_, err := sessions.Start(tt.initiator, tt.target)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSessions_StartPairsBoth(t *testing.T) {
	reg, sessions, prodConn, _ := newPair(t)

	sess, err := sessions.Start("cons", "prod")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.ProducerID != "prod" || sess.ConsumerID != "cons" {
		t.Fatalf("wrong participant ordering: %+v", sess)
	}
	if sess.State != domain.SessionRequested {
		t.Fatalf("expected requested state, got %s", sess.State)
	}
	for _, id := range []domain.PeerID{"prod", "cons"} {
		p, _ := reg.Lookup(id)
		if p.Status != domain.StatusInSession {
			t.Fatalf("peer %s status %s, want in_session", id, p.Status)
		}
	}
	if got := prodConn.countKind(t, "session_started"); got != 1 {
		t.Fatalf("target notifications: got %d, want 1", got)
	}

	// both peers are now busy for any further pairing
	if _, err := sessions.Start("cons", "prod"); !errors.Is(err, protocol.ErrPeerBusy) {
		t.Fatalf("expected peer_busy, got %v", err)
	}
}

func TestSessions_ConcurrentStartSingleWinner(t *testing.T) {
	reg := NewRegistry(PresenceListeners)
	sessions := NewSessions(reg)
	newTestPeer(t, reg, "prod", domain.RoleProducer)
	newTestPeer(t, reg, "c1", domain.RoleConsumer)
	newTestPeer(t, reg, "c2", domain.RoleConsumer)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, c := range []domain.PeerID{"c1", "c2"} {
		wg.Add(1)
		go func(i int, c domain.PeerID) {
			defer wg.Done()
			_, errs[i] = sessions.Start(c, "prod")
		}(i, c)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else if !errors.Is(err, protocol.ErrPeerBusy) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestSessions_EndByParticipant(t *testing.T) {
	reg, sessions, prodConn, _ := newPair(t)
	sess, err := sessions.Start("cons", "prod")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := sessions.End(sess.ID, "ghost"); !errors.Is(err, protocol.ErrNotParticipant) {
		t.Fatalf("expected not_participant, got %v", err)
	}
	if err := sessions.End(sess.ID, "cons"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if got := prodConn.countKind(t, "session_ended"); got != 1 {
		t.Fatalf("other participant notifications: got %d, want 1", got)
	}
	for _, id := range []domain.PeerID{"prod", "cons"} {
		p, _ := reg.Lookup(id)
		if p.Status != domain.StatusAvailable {
			t.Fatalf("peer %s status %s, want available", id, p.Status)
		}
	}
	if _, ok := sessions.Get(sess.ID); ok {
		t.Fatalf("expected session record to be destroyed")
	}
	// the record is gone, a second end stays a success no-op
	if err := sessions.End(sess.ID, "cons"); err != nil {
		t.Fatalf("second end: %v", err)
	}
	if got := prodConn.countKind(t, "session_ended"); got != 1 {
		t.Fatalf("second end renotified: got %d, want 1", got)
	}
}

func TestSessions_EndClosedSessionNoOp(t *testing.T) {
	// Both participants racing to end the same session each get a success,
	// whichever order their requests land in.
	_, sessions, _, _ := newPair(t)
	sess, err := sessions.Start("cons", "prod")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sessions.End(sess.ID, "cons"); err != nil {
		t.Fatalf("first end: %v", err)
	}
	if err := sessions.End(sess.ID, "prod"); err != nil {
		t.Fatalf("end after close: %v", err)
	}
	// even a stranger ending a dead session gets the no-op: there is no
	// record left to check participation against
	if err := sessions.End(sess.ID, "ghost"); err != nil {
		t.Fatalf("stranger end after close: %v", err)
	}
}

func TestSessions_ForceCloseNotifiesOnlyViaError(t *testing.T) {
	reg, sessions, _, consConn := newPair(t)
	sess, err := sessions.Start("cons", "prod")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// corrupt the registry behind the session's back: prod vanishes without
	// the removal path running
	reg.mu.Lock()
	delete(reg.peers, "prod")
	reg.mu.Unlock()

	if _, err := sessions.ResolveRelay("cons", sess.ID, true); !errors.Is(err, protocol.ErrPeerGone) {
		t.Fatalf("expected peer_gone, got %v", err)
	}
	// the wire error is the sender's only reply
	if got := consConn.countKind(t, "session_ended"); got != 0 {
		t.Fatalf("sender got %d session_ended on top of the error", got)
	}
	if _, ok := sessions.Get(sess.ID); ok {
		t.Fatalf("inconsistent session survived force-close")
	}
	p, ok := reg.Lookup("cons")
	if !ok || p.Status != domain.StatusAvailable {
		t.Fatalf("sender left in %v after force-close", p.Status)
	}
}

func TestSessions_DisconnectTeardown(t *testing.T) {
	reg, sessions, _, consConn := newPair(t)
	sess, err := sessions.Start("cons", "prod")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	reg.Remove("prod")

	if got := consConn.countKind(t, "session_ended"); got != 1 {
		t.Fatalf("survivor notifications: got %d, want exactly 1", got)
	}
	p, ok := reg.Lookup("cons")
	if !ok || p.Status != domain.StatusAvailable {
		t.Fatalf("survivor status: %+v ok=%v, want available", p, ok)
	}
	if _, ok := reg.Lookup("prod"); ok {
		t.Fatalf("removed peer still in registry")
	}
	if _, ok := sessions.Get(sess.ID); ok {
		t.Fatalf("session survived participant removal")
	}
}

func TestSessions_ConcurrentDisconnectSingleNotification(t *testing.T) {
	// Both participants racing to disconnect must still tear the session
	// down cleanly, and nobody may be notified more than once.
	for i := 0; i < 50; i++ {
		reg, sessions, prodConn, consConn := newPair(t)
		if _, err := sessions.Start("cons", "prod"); err != nil {
			t.Fatalf("start: %v", err)
		}

		var wg sync.WaitGroup
		for _, id := range []domain.PeerID{"prod", "cons"} {
			wg.Add(1)
			go func(id domain.PeerID) {
				defer wg.Done()
				reg.Remove(id)
			}(id)
		}
		wg.Wait()

		if got := prodConn.countKind(t, "session_ended"); got > 1 {
			t.Fatalf("producer notified %d times", got)
		}
		if got := consConn.countKind(t, "session_ended"); got > 1 {
			t.Fatalf("consumer notified %d times", got)
		}
	}
}

func TestSessions_StartRacesRemove(t *testing.T) {
	// A start racing a remove for the same peer must end fully paired or
	// fully removed, never half of each.
	for i := 0; i < 50; i++ {
		reg := NewRegistry(PresenceListeners)
		sessions := NewSessions(reg)
		newTestPeer(t, reg, "prod", domain.RoleProducer)
		newTestPeer(t, reg, "cons", domain.RoleConsumer)

		var wg sync.WaitGroup
		var startErr error
		var sess domain.Session
		wg.Add(2)
		go func() {
			defer wg.Done()
			sess, startErr = sessions.Start("cons", "prod")
		}()
		go func() {
			defer wg.Done()
			reg.Remove("prod")
		}()
		wg.Wait()

		if startErr == nil {
			// pairing won the race; teardown must have followed
			if _, ok := sessions.Get(sess.ID); ok {
				t.Fatalf("session survived removal of its producer")
			}
			p, ok := reg.Lookup("cons")
			if !ok || p.Status != domain.StatusAvailable {
				t.Fatalf("consumer left in %v after teardown", p.Status)
			}
		} else if !errors.Is(startErr, protocol.ErrPeerNotFound) {
			t.Fatalf("unexpected start error: %v", startErr)
		}
	}
}
