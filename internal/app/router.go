package app

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/sigrelay/sigrelay/internal/core"
	"github.com/sigrelay/sigrelay/internal/domain"
	"github.com/sigrelay/sigrelay/internal/protocol"
)

// Router dispatches decoded envelopes against the registry and session
// manager. It never mutates payloads: relayed messages go out as the exact
// bytes that came in.
type Router struct {
	Registry *Registry
	Sessions *Sessions
}

func NewRouter(reg *Registry, sessions *Sessions) *Router {
	return &Router{Registry: reg, Sessions: sessions}
}

// Result is the outcome of one dispatch. Reply, when set, goes straight back
// to the sender. PeerID is the sender's id after the operation: register may
// rekey a provisional id to a caller-chosen one.
type Result struct {
	Reply  core.Frame
	PeerID domain.PeerID
}

// Dispatch routes one envelope on behalf of senderID. Returned errors are
// always *protocol.Error and map directly to a wire error message; the
// connection stays open regardless.
func (rt *Router) Dispatch(senderID domain.PeerID, env *protocol.Envelope) (Result, error) {
	res := Result{PeerID: senderID}

	switch body := env.Body.(type) {
	case *protocol.RegisterRequest:
		role, err := domain.ParseRole(body.Role)
		if err != nil {
			return res, protocol.ErrInvalidRole.WithMessage(body.Role)
		}
		peer, err := rt.Registry.Register(senderID, domain.PeerID(body.ID), role, body.Meta)
		if err != nil {
			return res, err
		}
		res.PeerID = peer.ID
		res.Reply = protocol.Encode(protocol.NewRegistered(peer.ID))
		return res, nil

	case *protocol.ListRequest:
		if err := rt.requireRegistered(senderID); err != nil {
			return res, err
		}
		res.Reply = protocol.Encode(protocol.NewPeers(rt.Registry.List()))
		return res, nil

	case *protocol.StartSessionRequest:
		if err := rt.requireRegistered(senderID); err != nil {
			return res, err
		}
		sess, err := rt.Sessions.Start(senderID, domain.PeerID(body.TargetID))
		if err != nil {
			return res, err
		}
		res.Reply = protocol.Encode(protocol.NewSessionStarted(sess.ID, sess.Other(senderID)))
		return res, nil

	case *protocol.EndSessionRequest:
		if err := rt.requireRegistered(senderID); err != nil {
			return res, err
		}
		if err := rt.Sessions.End(domain.SessionID(body.SessionID), senderID); err != nil {
			return res, err
		}
		res.Reply = protocol.Encode(protocol.NewSessionEnded(domain.SessionID(body.SessionID)))
		return res, nil

	case *protocol.OfferRequest, *protocol.AnswerRequest, *protocol.ICERequest:
		if err := rt.requireRegistered(senderID); err != nil {
			return res, err
		}
		return res, rt.relay(senderID, env)

	case *protocol.PingRequest:
		res.Reply = protocol.Encode(protocol.NewPong())
		return res, nil
	}

	return res, protocol.ErrUnknownType.WithMessage(string(env.Kind))
}

// relay forwards a session-scoped payload to the paired peer, preserving the
// sender's send order. The connection handle is resolved under the state
// lock; the send happens here, outside it.
func (rt *Router) relay(senderID domain.PeerID, env *protocol.Envelope) error {
	sid := domain.SessionID(env.SessionRef())
	conn, err := rt.Sessions.ResolveRelay(senderID, sid, env.Kind == protocol.KindOffer)
	if err != nil {
		return err
	}
	if err := conn.TrySend(core.Frame(env.Raw)); err != nil {
		log.Warn().Str("module", "app.router").
			Str("session", string(sid)).Str("from", string(senderID)).
			Err(err).Msg("relay send failed")
		// A full queue means the peer is slow, not gone; the session stays up.
		if errors.Is(err, core.ErrBackpressure) {
			return protocol.ErrRelayFailed.WithMessage("receiver queue full")
		}
		return protocol.ErrPeerGone.WithMessage("relay failed")
	}
	log.Debug().Str("module", "app.router").
		Str("session", string(sid)).Str("from", string(senderID)).
		Str("kind", string(env.Kind)).Msg("relayed payload")
	return nil
}

// Disconnect handles a transport-level close: registry removal is the single
// trigger for cascading session teardown.
func (rt *Router) Disconnect(senderID domain.PeerID) {
	rt.Registry.Remove(senderID)
}

func (rt *Router) requireRegistered(id domain.PeerID) error {
	peer, ok := rt.Registry.Lookup(id)
	if !ok || peer.Status == domain.StatusRegistering {
		return protocol.ErrNotRegistered
	}
	return nil
}
