package protocol

import "github.com/sigrelay/sigrelay/internal/domain"

// Server-sent messages. Marshaled with Encode and pushed through the peer's
// connection handle.

type Welcome struct {
	Type   Kind          `json:"type"`
	PeerID domain.PeerID `json:"peer_id"`
}

func NewWelcome(id domain.PeerID) Welcome {
	return Welcome{Type: KindWelcome, PeerID: id}
}

type Registered struct {
	Type Kind          `json:"type"`
	ID   domain.PeerID `json:"id"`
}

func NewRegistered(id domain.PeerID) Registered {
	return Registered{Type: KindRegistered, ID: id}
}

type Peers struct {
	Type  Kind          `json:"type"`
	Peers []domain.Peer `json:"peers"`
}

func NewPeers(list []domain.Peer) Peers {
	return Peers{Type: KindPeers, Peers: list}
}

type SessionStarted struct {
	Type      Kind             `json:"type"`
	SessionID domain.SessionID `json:"session_id"`
	PeerID    domain.PeerID    `json:"peer_id"`
}

func NewSessionStarted(sid domain.SessionID, other domain.PeerID) SessionStarted {
	return SessionStarted{Type: KindSessionStarted, SessionID: sid, PeerID: other}
}

type SessionEnded struct {
	Type      Kind             `json:"type"`
	SessionID domain.SessionID `json:"session_id"`
}

func NewSessionEnded(sid domain.SessionID) SessionEnded {
	return SessionEnded{Type: KindSessionEnded, SessionID: sid}
}

type PeerStatus struct {
	Type   Kind              `json:"type"`
	PeerID domain.PeerID     `json:"id"`
	Status domain.PeerStatus `json:"status"`
	Role   domain.PeerRole   `json:"role,omitempty"`
	Meta   map[string]any    `json:"meta,omitempty"`
}

// PeerStatusDeparted is the status value pushed when a peer leaves the
// registry; it is presence-only and never stored on a Peer record.
const PeerStatusDeparted = domain.PeerStatus("departed")

func NewPeerStatus(p domain.Peer) PeerStatus {
	return PeerStatus{Type: KindPeerStatus, PeerID: p.ID, Status: p.Status, Role: p.Role, Meta: p.Meta}
}

func NewPeerDeparted(id domain.PeerID) PeerStatus {
	return PeerStatus{Type: KindPeerStatus, PeerID: id, Status: PeerStatusDeparted}
}

type Pong struct {
	Type Kind `json:"type"`
}

func NewPong() Pong {
	return Pong{Type: KindPong}
}

type WireError struct {
	Type    Kind   `json:"type"`
	Code    int    `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}
