package app

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sigrelay/sigrelay/internal/core"
	"github.com/sigrelay/sigrelay/internal/domain"
	"github.com/sigrelay/sigrelay/internal/protocol"
)

type peerEntry struct {
	peer domain.Peer
	conn core.SignalConnection
}

// outbound is a frame resolved under the lock and delivered after it is
// released, so a slow socket never stalls the registry.
type outbound struct {
	conn  core.SignalConnection
	frame core.Frame
}

func flush(notes []outbound) {
	for _, n := range notes {
		if n.conn != nil {
			_ = n.conn.TrySend(n.frame)
		}
	}
}

// Registry is the single source of truth for connected peers. All state
// transitions on peers and sessions run under one mutex, shared with the
// Sessions manager, so pairing and removal can never interleave halfway.
type Registry struct {
	mu       sync.Mutex
	peers    map[domain.PeerID]*peerEntry
	sessions *Sessions
	presence PresencePolicy
}

func NewRegistry(presence PresencePolicy) *Registry {
	return &Registry{
		peers:    make(map[domain.PeerID]*peerEntry),
		presence: presence,
	}
}

// Admit creates a provisional peer record for a freshly validated
// connection. The peer stays in registering status, invisible to presence
// and list, until it sends register.
func (r *Registry) Admit(conn core.SignalConnection) domain.PeerID {
	id := domain.PeerID(uuid.NewString())
	r.mu.Lock()
	r.peers[id] = &peerEntry{
		peer: domain.Peer{ID: id, Status: domain.StatusRegistering},
		conn: conn,
	}
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Msg("admitted connection")
	return id
}

// Register claims a role (and optionally a caller-chosen id) for an admitted
// peer. A second live peer with the same id is rejected, never merged.
func (r *Registry) Register(id domain.PeerID, claimID domain.PeerID, role domain.PeerRole, meta map[string]any) (domain.Peer, error) {
	var notes []outbound
	r.mu.Lock()
	entry, ok := r.peers[id]
	if !ok {
		r.mu.Unlock()
		return domain.Peer{}, protocol.ErrNotRegistered.WithMessage("connection not admitted")
	}
	if entry.peer.Status != domain.StatusRegistering {
		r.mu.Unlock()
		return domain.Peer{}, protocol.ErrDuplicateID.WithMessage("already registered")
	}
	if claimID != "" && claimID != id {
		if err := domain.ValidatePeerID(claimID); err != nil {
			r.mu.Unlock()
			return domain.Peer{}, protocol.ErrValidation.WithMessage(err.Error())
		}
		if _, taken := r.peers[claimID]; taken {
			r.mu.Unlock()
			return domain.Peer{}, protocol.ErrDuplicateID.WithMessage(string(claimID))
		}
		delete(r.peers, id)
		entry.peer.ID = claimID
		r.peers[claimID] = entry
	}
	entry.peer.Role = role
	entry.peer.Meta = meta
	entry.peer.Status = domain.StatusAvailable
	registered := entry.peer
	notes = r.presenceNotesLocked(registered.ID, protocol.NewPeerStatus(registered))
	r.mu.Unlock()

	flush(notes)
	log.Info().Str("module", "app.registry").
		Str("peer", string(registered.ID)).Str("role", string(role)).
		Msg("peer registered")
	return registered, nil
}

// Lookup returns a copy of the peer record.
func (r *Registry) Lookup(id domain.PeerID) (domain.Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.peers[id]
	if !ok {
		return domain.Peer{}, false
	}
	return entry.peer, true
}

// List snapshots all registered peers, ordered by id.
func (r *Registry) List() []domain.Peer {
	r.mu.Lock()
	out := make([]domain.Peer, 0, len(r.peers))
	for _, e := range r.peers {
		if e.peer.Status == domain.StatusRegistering {
			continue
		}
		out = append(out, e.peer)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Remove drops a peer and synchronously tears down any session it is in.
// Removing an unknown id is a no-op: disconnect races routinely produce
// duplicate removal attempts.
func (r *Registry) Remove(id domain.PeerID) (domain.Peer, bool) {
	r.mu.Lock()
	entry, ok := r.peers[id]
	if !ok {
		r.mu.Unlock()
		return domain.Peer{}, false
	}
	var notes []outbound
	if r.sessions != nil {
		notes = r.sessions.teardownForLocked(id)
	}
	delete(r.peers, id)
	removed := entry.peer
	if removed.Status != domain.StatusRegistering {
		notes = append(notes, r.presenceNotesLocked(id, protocol.NewPeerDeparted(id))...)
	}
	r.mu.Unlock()

	flush(notes)
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Msg("peer removed")
	return removed, true
}

// presenceNotesLocked collects peer_status deliveries for every subscriber
// except the subject itself. Caller holds r.mu.
func (r *Registry) presenceNotesLocked(subject domain.PeerID, msg protocol.PeerStatus) []outbound {
	frame := protocol.Encode(msg)
	var notes []outbound
	for id, e := range r.peers {
		if id == subject || !r.presence.Subscribed(e.peer) {
			continue
		}
		notes = append(notes, outbound{conn: e.conn, frame: frame})
	}
	return notes
}

// connOfLocked resolves the live connection handle. Caller holds r.mu.
func (r *Registry) connOfLocked(id domain.PeerID) core.SignalConnection {
	if e, ok := r.peers[id]; ok {
		return e.conn
	}
	return nil
}

func (r *Registry) setStatusLocked(id domain.PeerID, status domain.PeerStatus) {
	if e, ok := r.peers[id]; ok {
		e.peer.Status = status
	}
}
