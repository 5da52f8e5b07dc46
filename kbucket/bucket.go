package kbucket

import (
	"time"

	"github.com/aminokad/kaddht/host"
)

// bucket is the bounded active/replacement pair described in spec.md §3.
// Not safe for concurrent use; callers hold the owning Table's lock.
type bucket struct {
	capacity     int
	active       []*PeerEntry
	replacements []*PeerEntry
}

func newBucket(capacity int) *bucket {
	return &bucket{capacity: capacity}
}

func (b *bucket) findActive(id host.PeerID) (*PeerEntry, int) {
	for i, e := range b.active {
		if e.ID == id {
			return e, i
		}
	}
	return nil, -1
}

func (b *bucket) findReplacement(id host.PeerID) (*PeerEntry, int) {
	for i, e := range b.replacements {
		if e.ID == id {
			return e, i
		}
	}
	return nil, -1
}

func (b *bucket) removeActive(i int) *PeerEntry {
	e := b.active[i]
	b.active = append(b.active[:i], b.active[i+1:]...)
	return e
}

func (b *bucket) removeReplacement(i int) *PeerEntry {
	e := b.replacements[i]
	b.replacements = append(b.replacements[:i], b.replacements[i+1:]...)
	return e
}

// evictionCandidate returns the index into b.active of the least-recently-
// useful replaceable entry whose measured latency exceeds maxLatency and
// whose last-useful-at is older than the grace period, or -1 if none
// qualifies (spec.md §4.2, step 1 of the replacement policy).
func (b *bucket) evictionCandidate(latency func(host.PeerID) time.Duration, maxLatency, gracePeriod time.Duration, now time.Time) int {
	best := -1
	var bestLastUseful time.Time
	for i, e := range b.active {
		if !e.Replaceable {
			continue
		}
		if now.Sub(e.LastUsefulAt) < gracePeriod {
			continue
		}
		if latency(e.ID) <= maxLatency {
			continue
		}
		if best == -1 || e.LastUsefulAt.Before(bestLastUseful) {
			best = i
			bestLastUseful = e.LastUsefulAt
		}
	}
	return best
}

// promoteReplacement moves the most-recently-added replacement into active,
// preferring one that was added via an iterative query as spec.md's
// AddedByQuery priority suggests, and returns it (nil if none available).
func (b *bucket) promoteReplacement() *PeerEntry {
	if len(b.replacements) == 0 {
		return nil
	}
	best := len(b.replacements) - 1
	for i := len(b.replacements) - 1; i >= 0; i-- {
		if b.replacements[i].AddedByQuery {
			best = i
			break
		}
	}
	e := b.removeReplacement(best)
	b.active = append(b.active, e)
	return e
}
