// Package provider implements the provider-record store from spec.md §4.4:
// which peers announced they hold a given content key, with lazy expiry.
package provider

import (
	"sync"
	"time"

	"github.com/aminokad/kaddht/host"
)

// DefaultProvideValidity is how long a provider announcement remains valid
// before it is excluded from results and eligible for garbage collection
// (spec.md §4.4).
const DefaultProvideValidity = 48 * time.Hour

// Info is a single provider announcement.
type Info struct {
	ID        host.PeerID
	Addrs     []host.Multiaddr
	ExpiresAt time.Time
}

type keyedInfo struct {
	contentKey string
	peer       host.PeerID
}

// Store is the in-memory provider store (spec.md §4.4).
type Store struct {
	mu    sync.Mutex
	byKey map[string]map[host.PeerID]Info
	now   func() time.Time
}

// New creates an empty provider store. now defaults to time.Now; tests may
// override it for deterministic expiry checks.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{byKey: make(map[string]map[host.PeerID]Info), now: now}
}

// AddProvider records that peer provides contentKey, reachable at addrs,
// expiring at expiresAt.
func (s *Store) AddProvider(contentKey string, peer host.PeerID, addrs []host.Multiaddr, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	peers, ok := s.byKey[contentKey]
	if !ok {
		peers = make(map[host.PeerID]Info)
		s.byKey[contentKey] = peers
	}
	peers[peer] = Info{ID: peer, Addrs: addrs, ExpiresAt: expiresAt}
}

// GetProviders returns the non-expired providers for contentKey, lazily
// evicting any that have expired.
func (s *Store) GetProviders(contentKey string) []Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	peers, ok := s.byKey[contentKey]
	if !ok {
		return nil
	}
	now := s.now()
	out := make([]Info, 0, len(peers))
	for id, info := range peers {
		if now.After(info.ExpiresAt) {
			delete(peers, id)
			continue
		}
		out = append(out, info)
	}
	if len(peers) == 0 {
		delete(s.byKey, contentKey)
	}
	return out
}

// RemoveProvider drops peer's announcement for contentKey, if present.
func (s *Store) RemoveProvider(contentKey string, peer host.PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	peers, ok := s.byKey[contentKey]
	if !ok {
		return
	}
	delete(peers, peer)
	if len(peers) == 0 {
		delete(s.byKey, contentKey)
	}
}

// Clear removes every provider record.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey = make(map[string]map[host.PeerID]Info)
}
