// Package protocol defines the wire envelopes of the signaling channel and
// the codec that checks their shape before any stateful component sees them.
package protocol

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

type Kind string

// Client-sent kinds.
const (
	KindRegister     Kind = "register"
	KindList         Kind = "list"
	KindStartSession Kind = "start_session"
	KindEndSession   Kind = "end_session"
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindICE          Kind = "ice"
	KindPing         Kind = "ping"
)

// Server-sent kinds.
const (
	KindWelcome        Kind = "welcome"
	KindRegistered     Kind = "registered"
	KindPeers          Kind = "peers"
	KindSessionStarted Kind = "session_started"
	KindSessionEnded   Kind = "session_ended"
	KindPeerStatus     Kind = "peer_status"
	KindPong           Kind = "pong"
	KindError          Kind = "error"
)

// SessionScoped reports whether envelopes of this kind must carry a session
// reference naming the sender as a participant.
func (k Kind) SessionScoped() bool {
	switch k {
	case KindOffer, KindAnswer, KindICE, KindEndSession:
		return true
	}
	return false
}

// Payload reports whether the router relays this kind verbatim to the paired
// peer instead of handling it itself.
func (k Kind) Payload() bool {
	switch k {
	case KindOffer, KindAnswer, KindICE:
		return true
	}
	return false
}

// Envelope is one decoded inbound message. Raw keeps the original frame so
// relayed payloads are forwarded byte-for-byte; Body is the decoded,
// shape-checked request for the router. Envelopes are never mutated after
// Decode returns.
type Envelope struct {
	Kind Kind
	Raw  json.RawMessage
	Body any
}

type RegisterRequest struct {
	Type string         `json:"type"`
	ID   string         `json:"id,omitempty" validate:"omitempty,max=64"`
	Role string         `json:"role" validate:"required,oneof=producer consumer listener"`
	Meta map[string]any `json:"meta,omitempty"`
}

type ListRequest struct {
	Type string `json:"type"`
}

type StartSessionRequest struct {
	Type     string `json:"type"`
	TargetID string `json:"target_id" validate:"required,max=64"`
}

type EndSessionRequest struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id" validate:"required,uuid4"`
}

type OfferRequest struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id" validate:"required,uuid4"`
	SDP       string `json:"sdp" validate:"required"`
}

type AnswerRequest struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id" validate:"required,uuid4"`
	SDP       string `json:"sdp" validate:"required"`
}

type ICERequest struct {
	Type      string                  `json:"type"`
	SessionID string                  `json:"session_id" validate:"required,uuid4"`
	Candidate webrtc.ICECandidateInit `json:"candidate" validate:"required"`
}

type PingRequest struct {
	Type string `json:"type"`
}

// SessionRef extracts the session id from a session-scoped body.
func (e *Envelope) SessionRef() string {
	switch b := e.Body.(type) {
	case *EndSessionRequest:
		return b.SessionID
	case *OfferRequest:
		return b.SessionID
	case *AnswerRequest:
		return b.SessionID
	case *ICERequest:
		return b.SessionID
	}
	return ""
}
