package memhost

import (
	"sync"
	"time"

	"github.com/aminokad/kaddht/host"
)

// PeerStore is an in-memory host.PeerStore. TTLs are tracked so expired
// addresses stop being returned, mirroring a real peerstore's address-book
// GC (spec.md §9's address-capture policy), but eviction happens lazily on
// read rather than via a background sweep.
type PeerStore struct {
	mu   sync.Mutex
	data map[host.PeerID][]addrEntry
}

type addrEntry struct {
	addr    host.Multiaddr
	expires time.Time
}

// NewPeerStore creates an empty address book.
func NewPeerStore() *PeerStore {
	return &PeerStore{data: make(map[host.PeerID][]addrEntry)}
}

func (p *PeerStore) AddAddrs(peer host.PeerID, addrs []host.Multiaddr, ttl time.Duration) {
	if len(addrs) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	expires := time.Now().Add(ttl)
	existing := p.data[peer]
	for _, a := range addrs {
		found := false
		for i := range existing {
			if string(existing[i].addr) == string(a) {
				existing[i].expires = expires
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, addrEntry{addr: a, expires: expires})
		}
	}
	p.data[peer] = existing
}

func (p *PeerStore) GetPeer(peer host.PeerID) (host.AddrInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entries, ok := p.data[peer]
	if !ok {
		return host.AddrInfo{}, false
	}
	now := time.Now()
	live := entries[:0]
	var addrs []host.Multiaddr
	for _, e := range entries {
		if e.expires.After(now) {
			live = append(live, e)
			addrs = append(addrs, e.addr)
		}
	}
	p.data[peer] = live
	if len(addrs) == 0 {
		return host.AddrInfo{}, false
	}
	return host.AddrInfo{ID: peer, Addrs: addrs}, true
}
