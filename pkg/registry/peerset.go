// Package registry keeps the set of peers a node currently knows about.
package registry

import (
	"sync"

	"seventweets/pkg/types"
)

// PeerSet is the in-memory record of who this node believes is in the
// network. Insertion dedups on the full (name, address) pair while Delete
// matches on name only. The local node is never a member of its own set.
type PeerSet struct {
	mu    sync.RWMutex
	self  types.PeerIdentity
	peers []types.PeerIdentity
}

// NewPeerSet creates a peer set that contains nothing but self
func NewPeerSet(self types.PeerIdentity) *PeerSet {
	return &PeerSet{
		self:  self,
		peers: make([]types.PeerIdentity, 0),
	}
}

// Self returns the identity of the local node
func (s *PeerSet) Self() types.PeerIdentity {
	return s.self
}

// Register adds candidate unless it is the local node or already known.
// It reports whether the set changed.
func (s *PeerSet) Register(candidate types.PeerIdentity) bool {
	if candidate == s.self {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.peers {
		if p == candidate {
			return false
		}
	}
	s.peers = append(s.peers, candidate)
	return true
}

// Delete removes at most one peer called name and reports whether one was
// removed. Unknown names are ignored.
func (s *PeerSet) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.peers {
		if p.Name == name {
			s.peers = append(s.peers[:i], s.peers[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the known peers with self appended last
func (s *PeerSet) Snapshot() []types.PeerIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.PeerIdentity, 0, len(s.peers)+1)
	out = append(out, s.peers...)
	return append(out, s.self)
}

// Peers returns a copy of the known peers, self excluded
func (s *PeerSet) Peers() []types.PeerIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.PeerIdentity, len(s.peers))
	copy(out, s.peers)
	return out
}

// Lookup returns the first known peer called name
func (s *PeerSet) Lookup(name string) (types.PeerIdentity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.peers {
		if p.Name == name {
			return p, true
		}
	}
	return types.PeerIdentity{}, false
}

// Len returns the number of known peers, self excluded
func (s *PeerSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.peers)
}
