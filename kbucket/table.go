// Package kbucket implements the Kademlia routing table: a set of k-buckets
// indexed by common-prefix-length with an active list, a replacement list,
// and a latency-aware eviction policy (spec.md §3, §4.2).
package kbucket

import (
	"sort"
	"sync"
	"time"

	"github.com/aminokad/kaddht/host"
	"github.com/aminokad/kaddht/key"
	"github.com/aminokad/kaddht/logging"
)

// DefaultBucketSize is K in the spec, the default active-list capacity.
const DefaultBucketSize = 20

// DefaultUsefulnessGracePeriod protects a recently-useful entry from
// eviction (spec.md §4.2).
const DefaultUsefulnessGracePeriod = time.Minute

// Config holds the tunables a Table needs at construction.
type Config struct {
	BucketSize             int
	MaxLatency             time.Duration
	UsefulnessGracePeriod  time.Duration
	Latency                host.PeerLatencyMetrics
	Logger                 logging.Logger
}

func (c *Config) setDefaults() {
	if c.BucketSize <= 0 {
		c.BucketSize = DefaultBucketSize
	}
	if c.UsefulnessGracePeriod <= 0 {
		c.UsefulnessGracePeriod = DefaultUsefulnessGracePeriod
	}
	if c.Latency == nil {
		c.Latency = NewEWMATracker(0.3, 4096)
	}
	if c.Logger == nil {
		c.Logger = logging.Nop()
	}
}

// Table is the XOR/k-bucket routing table for one local peer.
type Table struct {
	mu sync.RWMutex

	local    host.PeerID
	localKey key.Key
	buckets  []*bucket
	cfg      Config

	// now is overridable in tests so eviction-grace-period logic can be
	// exercised deterministically.
	now func() time.Time
}

// New creates a Table for localID. keyBits is the bit length of the
// identifier space (e.g. 256 for a 32-byte sha256-derived peer ID); it sets
// the initial capacity of the bucket slice (one slot per possible CPL,
// 0..keyBits). The table itself grows one bucket per new CPL and does not
// enforce keyBits as an upper bound.
func New(localID host.PeerID, keyBits int, cfg Config) *Table {
	cfg.setDefaults()
	t := &Table{
		local:    localID,
		localKey: key.Of([]byte(localID)),
		cfg:      cfg,
		now:      time.Now,
	}
	t.buckets = make([]*bucket, 1, keyBits+1)
	t.buckets[0] = newBucket(cfg.BucketSize)
	return t
}

func (t *Table) cpl(k key.Key) int {
	return key.CommonPrefixLen(t.localKey, k)
}

// bucketIndexForCPL maps a CPL to a bucket slot, clamping a CPL past the
// last bucket to the last bucket. It does not grow the table: TryAdd calls
// growTo first, so each CPL gets its own bucket lazily (standard Kademlia
// "split the last bucket" simplification).
func (t *Table) bucketIndexForCPL(cpl int) int {
	if cpl >= len(t.buckets) {
		return len(t.buckets) - 1
	}
	return cpl
}

func (t *Table) growTo(n int) {
	for len(t.buckets) <= n {
		t.buckets = append(t.buckets, newBucket(t.cfg.BucketSize))
	}
}

// TryAdd attempts to add peer to the table. It returns true iff the peer is
// now present in some bucket's active list. Adding the local peer itself is
// always refused.
func (t *Table) TryAdd(peer host.PeerID, queryPeer, replaceable bool) bool {
	if peer == t.local {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key.Of([]byte(peer))
	cpl := t.cpl(k)
	t.growTo(cpl)
	idx := t.bucketIndexForCPL(cpl)
	b := t.buckets[idx]
	now := t.now()

	if e, _ := b.findActive(peer); e != nil {
		e.touch(now)
		if queryPeer {
			e.AddedByQuery = true
		}
		return true
	}

	// Reuse the existing replacement entry, if any, instead of allocating a
	// fresh one, so its AddedByQuery/added-at history survives re-addition.
	var entry *PeerEntry
	if e, i := b.findReplacement(peer); e != nil {
		e.touch(now)
		if queryPeer {
			e.AddedByQuery = true
		}
		entry = e
		b.removeReplacement(i)
	} else {
		entry = newEntry(peer, k, queryPeer, replaceable, now)
	}

	if len(b.active) < b.capacity {
		b.active = append(b.active, entry)
		return true
	}

	if ei := b.evictionCandidate(t.cfg.Latency.LatencyEWMA, t.cfg.MaxLatency, t.cfg.UsefulnessGracePeriod, now); ei != -1 {
		evicted := b.removeActive(ei)
		b.active = append(b.active, entry)
		t.cfg.Logger.Debug("evicted replaceable peer over latency gate", "peer", evicted.ID, "bucket", idx)
		return true
	}

	if len(b.replacements) < b.capacity {
		b.replacements = append(b.replacements, entry)
		return false
	}
	// Replacement list full too: drop the oldest replacement for the new
	// candidate rather than grow unbounded.
	b.replacements = append(b.replacements[1:], entry)
	return false
}

// MarkReplaceable flips an active entry's Replaceable flag, used by
// bootstrap's refresh-existing phase to un-protect peers that survived a
// liveness check (spec.md §4.9 step 2). The seed-connect phase does not use
// it; it inserts bootstrap peers through TryAdd with replaceable=false.
func (t *Table) MarkReplaceable(peer host.PeerID, replaceable bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := key.Of([]byte(peer))
	idx := t.bucketIndexForCPL(t.cpl(k))
	e, _ := t.buckets[idx].findActive(peer)
	if e == nil {
		return false
	}
	e.Replaceable = replaceable
	return true
}

// Remove deletes peer from the table. If the bucket had a replacement
// waiting, the most recent one (preferring entries added by a query) is
// promoted into the active list.
func (t *Table) Remove(peer host.PeerID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key.Of([]byte(peer))
	idx := t.bucketIndexForCPL(t.cpl(k))
	b := t.buckets[idx]

	if _, i := b.findActive(peer); i != -1 {
		b.removeActive(i)
		b.promoteReplacement()
		return true
	}
	if _, i := b.findReplacement(peer); i != -1 {
		b.removeReplacement(i)
		return true
	}
	return false
}

// Find looks up a peer's entry by ID.
func (t *Table) Find(peer host.PeerID) (PeerEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	k := key.Of([]byte(peer))
	idx := t.bucketIndexForCPL(t.cpl(k))
	if e, _ := t.buckets[idx].findActive(peer); e != nil {
		return *e, true
	}
	return PeerEntry{}, false
}

// Nearest returns up to n active peers sorted ascending by distance to
// target, ties broken by insertion order.
func (t *Table) Nearest(target key.Key, n int) []host.PeerID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	type scored struct {
		id  host.PeerID
		k   key.Key
		pos int
	}
	all := make([]scored, 0)
	pos := 0
	for _, b := range t.buckets {
		for _, e := range b.active {
			all = append(all, scored{id: e.ID, k: e.Key, pos: pos})
			pos++
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		d1 := key.Distance(target, all[i].k)
		d2 := key.Distance(target, all[j].k)
		c := d1.Cmp(d2)
		if c != 0 {
			return c < 0
		}
		return all[i].pos < all[j].pos
	})
	if n > len(all) {
		n = len(all)
	}
	out := make([]host.PeerID, n)
	for i := 0; i < n; i++ {
		out[i] = all[i].id
	}
	return out
}

// NPeersForCPL returns the number of active peers in the bucket for cpl.
func (t *Table) NPeersForCPL(cpl int) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx := t.bucketIndexForCPL(cpl)
	if idx < 0 || idx >= len(t.buckets) {
		return 0
	}
	return len(t.buckets[idx].active)
}

// HighestNonEmptyCPL returns the largest CPL with at least one active peer,
// or -1 if the table is empty. Used by periodic refresh to bound its sweep.
func (t *Table) HighestNonEmptyCPL() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.buckets) - 1; i >= 0; i-- {
		if len(t.buckets[i].active) > 0 {
			return i
		}
	}
	return -1
}

// GenRandomPeerIDWithCPL synthesizes a peer ID sharing exactly cpl leading
// bits with the local ID, for use as a refresh probing target.
func (t *Table) GenRandomPeerIDWithCPL(cpl int) (host.PeerID, error) {
	k, err := key.RandomWithCPL(t.localKey, cpl)
	if err != nil {
		return "", err
	}
	return host.PeerID(k), nil
}

// ListPeers returns a snapshot of every active entry in the table.
func (t *Table) ListPeers() []PeerEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]PeerEntry, 0)
	for _, b := range t.buckets {
		for _, e := range b.active {
			out = append(out, *e)
		}
	}
	return out
}

// Size returns the total number of active entries across all buckets.
func (t *Table) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, b := range t.buckets {
		n += len(b.active)
	}
	return n
}

// SetClock overrides the table's time source; test-only.
func (t *Table) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}
