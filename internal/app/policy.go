package app

import "github.com/sigrelay/sigrelay/internal/domain"

// PresencePolicy selects who receives unsolicited peer_status pushes.
type PresencePolicy string

const (
	// PresenceAll fans presence out to every registered peer.
	PresenceAll PresencePolicy = "all"
	// PresenceListeners restricts fan-out to peers holding the listener role.
	PresenceListeners PresencePolicy = "listeners"
)

func (p PresencePolicy) Valid() bool {
	return p == PresenceAll || p == PresenceListeners
}

func (p PresencePolicy) Subscribed(peer domain.Peer) bool {
	if peer.Status == domain.StatusRegistering {
		return false
	}
	if p == PresenceListeners {
		return peer.Role == domain.RoleListener
	}
	return true
}
