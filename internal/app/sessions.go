package app

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sigrelay/sigrelay/internal/core"
	"github.com/sigrelay/sigrelay/internal/domain"
	"github.com/sigrelay/sigrelay/internal/protocol"
)

// Sessions owns the pairing table. It shares the Registry's mutex: a
// start_session racing a remove for the same peer resolves under one lock,
// either fully paired or fully removed, never a torn mix.
type Sessions struct {
	reg      *Registry
	sessions map[domain.SessionID]*domain.Session
	byPeer   map[domain.PeerID]domain.SessionID
}

func NewSessions(reg *Registry) *Sessions {
	s := &Sessions{
		reg:      reg,
		sessions: make(map[domain.SessionID]*domain.Session),
		byPeer:   make(map[domain.PeerID]domain.SessionID),
	}
	reg.sessions = s
	return s
}

// Start pairs initiator with target. Both peers flip to in_session
// atomically with respect to any other start or remove; the target is told
// about the new session, the initiator gets the returned record as its
// direct reply.
func (s *Sessions) Start(initiatorID, targetID domain.PeerID) (domain.Session, error) {
	var notes []outbound
	s.reg.mu.Lock()
	if initiatorID == targetID {
		s.reg.mu.Unlock()
		return domain.Session{}, protocol.ErrSelfPairing
	}
	ini, ok := s.reg.peers[initiatorID]
	if !ok {
		s.reg.mu.Unlock()
		return domain.Session{}, protocol.ErrPeerNotFound.WithMessage(string(initiatorID))
	}
	tgt, ok := s.reg.peers[targetID]
	if !ok {
		s.reg.mu.Unlock()
		return domain.Session{}, protocol.ErrPeerNotFound.WithMessage(string(targetID))
	}
	if ini.peer.Status != domain.StatusAvailable {
		s.reg.mu.Unlock()
		return domain.Session{}, protocol.ErrPeerBusy.WithMessage(string(initiatorID))
	}
	if tgt.peer.Status != domain.StatusAvailable {
		s.reg.mu.Unlock()
		return domain.Session{}, protocol.ErrPeerBusy.WithMessage(string(targetID))
	}

	sess := &domain.Session{
		ID:         domain.SessionID(uuid.NewString()),
		ProducerID: targetID,
		ConsumerID: initiatorID,
		State:      domain.SessionRequested,
	}
	if ini.peer.Role == domain.RoleProducer {
		sess.ProducerID, sess.ConsumerID = initiatorID, targetID
	}
	s.sessions[sess.ID] = sess
	s.byPeer[initiatorID] = sess.ID
	s.byPeer[targetID] = sess.ID
	ini.peer.Status = domain.StatusInSession
	tgt.peer.Status = domain.StatusInSession

	notes = append(notes, outbound{
		conn:  tgt.conn,
		frame: protocol.Encode(protocol.NewSessionStarted(sess.ID, initiatorID)),
	})
	started := *sess
	s.reg.mu.Unlock()

	flush(notes)
	log.Info().Str("module", "app.sessions").
		Str("session", string(started.ID)).
		Str("producer", string(started.ProducerID)).
		Str("consumer", string(started.ConsumerID)).
		Msg("session started")
	return started, nil
}

// Get returns a snapshot of the session record.
func (s *Sessions) Get(id domain.SessionID) (domain.Session, bool) {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, false
	}
	return *sess, true
}

// End closes a session at a participant's request. Ending a session that is
// already gone is a success no-op, not an error: teardown destroys the record
// synchronously, and both halves of a disconnect race may still ask for it.
func (s *Sessions) End(id domain.SessionID, requesterID domain.PeerID) error {
	s.reg.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.reg.mu.Unlock()
		log.Debug().Str("module", "app.sessions").
			Str("session", string(id)).Str("peer", string(requesterID)).
			Msg("end of already-closed session")
		return nil
	}
	if !sess.HasParticipant(requesterID) {
		s.reg.mu.Unlock()
		return protocol.ErrNotParticipant
	}
	notes := s.closeLocked(sess, requesterID)
	s.reg.mu.Unlock()

	flush(notes)
	log.Info().Str("module", "app.sessions").
		Str("session", string(id)).Str("peer", string(requesterID)).
		Msg("session ended by peer")
	return nil
}

// ResolveRelay validates a payload message's session reference and returns
// the paired peer's connection handle as a snapshot; the caller sends
// outside the lock. The first offer flips the session to active.
func (s *Sessions) ResolveRelay(senderID domain.PeerID, id domain.SessionID, offer bool) (core.SignalConnection, error) {
	s.reg.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.reg.mu.Unlock()
		return nil, protocol.ErrBadSessionRef.WithMessage(string(id))
	}
	if !sess.HasParticipant(senderID) {
		s.reg.mu.Unlock()
		return nil, protocol.ErrBadSessionRef.WithMessage("not a participant")
	}
	if sess.State == domain.SessionEnding || sess.State == domain.SessionClosed {
		s.reg.mu.Unlock()
		return nil, protocol.ErrBadSessionRef.WithMessage("session is ending")
	}
	otherID := sess.Other(senderID)
	conn := s.reg.connOfLocked(otherID)
	if conn == nil {
		// Session outlived a participant: registry removal should have torn
		// it down. Force-close rather than leave it inconsistent. The sender
		// counts as the initiator here: the wire error is its only reply.
		notes := s.closeLocked(sess, senderID)
		s.reg.mu.Unlock()
		flush(notes)
		log.Error().Str("module", "app.sessions").
			Str("session", string(id)).Str("peer", string(otherID)).
			Msg("participant missing from registry, session force-closed")
		return nil, protocol.ErrPeerGone.WithMessage(string(otherID))
	}
	if offer && sess.State == domain.SessionRequested {
		sess.State = domain.SessionActive
	}
	s.reg.mu.Unlock()
	return conn, nil
}

// teardownForLocked cascades a peer removal into its session, if any.
// Caller holds the registry mutex.
func (s *Sessions) teardownForLocked(pid domain.PeerID) []outbound {
	sid, ok := s.byPeer[pid]
	if !ok {
		return nil
	}
	sess, ok := s.sessions[sid]
	if !ok || sess.State == domain.SessionEnding {
		return nil
	}
	log.Info().Str("module", "app.sessions").
		Str("session", string(sid)).Str("peer", string(pid)).
		Msg("tearing down session on disconnect")
	return s.closeLocked(sess, pid)
}

// closeLocked drives requested/active -> ending -> closed in one critical
// section: every still-connected participant except initiator is notified
// exactly once, survivors revert to available, and the record is deleted.
// Caller holds the registry mutex.
func (s *Sessions) closeLocked(sess *domain.Session, initiator domain.PeerID) []outbound {
	sess.State = domain.SessionEnding
	frame := protocol.Encode(protocol.NewSessionEnded(sess.ID))
	var notes []outbound
	for _, pid := range []domain.PeerID{sess.ProducerID, sess.ConsumerID} {
		if _, present := s.reg.peers[pid]; present {
			s.reg.setStatusLocked(pid, domain.StatusAvailable)
			if pid != initiator {
				notes = append(notes, outbound{conn: s.reg.connOfLocked(pid), frame: frame})
			}
		}
		delete(s.byPeer, pid)
	}
	delete(s.sessions, sess.ID)
	sess.State = domain.SessionClosed
	return notes
}
