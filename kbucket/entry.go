package kbucket

import (
	"time"

	"github.com/aminokad/kaddht/host"
	"github.com/aminokad/kaddht/key"
)

// PeerEntry is one routing-table record, per spec.md §3 "PeerEntry
// attributes".
type PeerEntry struct {
	ID host.PeerID
	// Key is the Kademlia key derived from ID, cached so the table doesn't
	// re-derive it on every distance comparison.
	Key key.Key

	AddedAt      time.Time
	LastUsefulAt time.Time

	// Replaceable is false for entries try_add was told must not be evicted
	// (bootstrap peers, typically). Default true.
	Replaceable bool
	// AddedByQuery is true when the entry was learned through an iterative
	// lookup response rather than a direct interaction; it affects
	// replacement priority (promoteReplacement favors entries with this set).
	AddedByQuery bool
}

func (e *PeerEntry) touch(now time.Time) {
	e.LastUsefulAt = now
}

func newEntry(id host.PeerID, k key.Key, queryPeer, replaceable bool, now time.Time) *PeerEntry {
	return &PeerEntry{
		ID:           id,
		Key:          k,
		AddedAt:      now,
		LastUsefulAt: now,
		Replaceable:  replaceable,
		AddedByQuery: queryPeer,
	}
}
