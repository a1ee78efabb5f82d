// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxPeerIDLen = 64

var (
	ErrPeerIDEmpty   = errors.New("peer id empty")
	ErrPeerIDTooLong = errors.New("peer id too long")
	ErrInvalidRole   = errors.New("invalid peer role")
)

type PeerID string

type PeerRole string

const (
	RoleProducer PeerRole = "producer"
	RoleConsumer PeerRole = "consumer"
	RoleListener PeerRole = "listener"
)

func ParseRole(s string) (PeerRole, error) {
	switch PeerRole(s) {
	case RoleProducer, RoleConsumer, RoleListener:
		return PeerRole(s), nil
	}
	return "", ErrInvalidRole
}

type PeerStatus string

const (
	StatusRegistering PeerStatus = "registering"
	StatusAvailable   PeerStatus = "available"
	StatusInSession   PeerStatus = "in_session"
)

// Peer is the registry's view of one connected client. The connection
// handle lives next to it in the registry entry, not here.
type Peer struct {
	ID     PeerID         `json:"id"`
	Role   PeerRole       `json:"role"`
	Status PeerStatus     `json:"status"`
	Meta   map[string]any `json:"meta,omitempty"`
}

func ValidatePeerID(id PeerID) error {
	if len(id) == 0 {
		return ErrPeerIDEmpty
	}
	if len(id) > MaxPeerIDLen {
		return ErrPeerIDTooLong
	}
	return nil
}
