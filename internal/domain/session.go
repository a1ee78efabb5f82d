package domain

type SessionID string

type SessionState string

const (
	SessionRequested SessionState = "requested"
	SessionActive    SessionState = "active"
	SessionEnding    SessionState = "ending"
	SessionClosed    SessionState = "closed"
)

// Session pairs exactly two peers. Producer/consumer ordering is fixed at
// creation time; Other is the only navigation the router needs.
type Session struct {
	ID         SessionID    `json:"id"`
	ProducerID PeerID       `json:"producer_id"`
	ConsumerID PeerID       `json:"consumer_id"`
	State      SessionState `json:"state"`
}

// Other returns the paired peer for pid, or "" when pid is not a participant.
func (s *Session) Other(pid PeerID) PeerID {
	switch pid {
	case s.ProducerID:
		return s.ConsumerID
	case s.ConsumerID:
		return s.ProducerID
	}
	return ""
}

func (s *Session) HasParticipant(pid PeerID) bool {
	return pid == s.ProducerID || pid == s.ConsumerID
}
