// Package qpeerset implements the per-lookup peer-state machine described in
// spec.md §3 "Lookup state": each peer known to an in-flight lookup is in
// exactly one of Heard, Waiting, Queried, Unreachable, and the set supports
// the queries the lookup engine's scheduler needs (closest Heard peers,
// counts per state, ordered snapshots).
package qpeerset

import (
	"sort"
	"sync"

	"github.com/aminokad/kaddht/host"
	"github.com/aminokad/kaddht/key"
)

// State is a peer's position in the lookup state machine.
type State int

const (
	Heard State = iota
	Waiting
	Queried
	Unreachable
)

func (s State) String() string {
	switch s {
	case Heard:
		return "heard"
	case Waiting:
		return "waiting"
	case Queried:
		return "queried"
	case Unreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

type peerState struct {
	id    host.PeerID
	key   key.Key
	state State
	// seq records insertion order, used to break distance ties (spec.md §4.5
	// "equal distance is broken by insertion order into the peerset").
	seq int
}

// QueryPeerset tracks the peers involved in one iterative lookup toward
// target. Every method takes the set's own mutex, so it is safe for
// concurrent use; the lookup engine owns one instance per in-flight lookup
// (spec.md §5, "ordering guarantees").
type QueryPeerset struct {
	mu     sync.Mutex
	target key.Key
	peers  map[host.PeerID]*peerState
	nextSeq int
}

// New creates an empty peerset for target.
func New(target key.Key) *QueryPeerset {
	return &QueryPeerset{
		target: target,
		peers:  make(map[host.PeerID]*peerState),
	}
}

// TryAdd inserts peer in state Heard if it is not already known. It returns
// true iff the peer was newly inserted.
func (q *QueryPeerset) TryAdd(peer host.PeerID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.peers[peer]; ok {
		return false
	}
	q.peers[peer] = &peerState{
		id:    peer,
		key:   key.Of([]byte(peer)),
		state: Heard,
		seq:   q.nextSeq,
	}
	q.nextSeq++
	return true
}

// SetState transitions peer to state. Waiting->Heard is forbidden per
// spec.md §3 and panics (the lookup engine never attempts it; this guard
// exists so a programming error fails loudly in tests rather than silently
// corrupting the peerset). Setting the state of an unknown peer is a no-op.
func (q *QueryPeerset) SetState(peer host.PeerID, state State) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.peers[peer]
	if !ok {
		return
	}
	if p.state == Waiting && state == Heard {
		panic("qpeerset: illegal Waiting->Heard transition")
	}
	p.state = state
}

// GetState returns peer's current state.
func (q *QueryPeerset) GetState(peer host.PeerID) (State, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.peers[peer]
	if !ok {
		return 0, false
	}
	return p.state, true
}

// CountWaiting returns how many peers are currently in state Waiting.
func (q *QueryPeerset) CountWaiting() int {
	return q.countState(Waiting)
}

func (q *QueryPeerset) countState(s State) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, p := range q.peers {
		if p.state == s {
			n++
		}
	}
	return n
}

// ClosestInState returns up to n peers in state s, sorted by ascending
// distance to the target with insertion-order tie-breaking.
func (q *QueryPeerset) ClosestInState(s State, n int) []host.PeerID {
	q.mu.Lock()
	defer q.mu.Unlock()
	var matched []*peerState
	for _, p := range q.peers {
		if p.state == s {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		d1 := key.Distance(q.target, matched[i].key)
		d2 := key.Distance(q.target, matched[j].key)
		c := d1.Cmp(d2)
		if c != 0 {
			return c < 0
		}
		return matched[i].seq < matched[j].seq
	})
	if n > len(matched) {
		n = len(matched)
	}
	out := make([]host.PeerID, n)
	for i := 0; i < n; i++ {
		out[i] = matched[i].id
	}
	return out
}

// Closest returns up to n peers overall (any state), sorted as above.
func (q *QueryPeerset) Closest(n int) []host.PeerID {
	q.mu.Lock()
	defer q.mu.Unlock()
	matched := make([]*peerState, 0, len(q.peers))
	for _, p := range q.peers {
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool {
		d1 := key.Distance(q.target, matched[i].key)
		d2 := key.Distance(q.target, matched[j].key)
		c := d1.Cmp(d2)
		if c != 0 {
			return c < 0
		}
		return matched[i].seq < matched[j].seq
	})
	if n > len(matched) {
		n = len(matched)
	}
	out := make([]host.PeerID, n)
	for i := 0; i < n; i++ {
		out[i] = matched[i].id
	}
	return out
}

// NumHeardOrWaiting reports whether the lookup still has work to do: at
// least one peer Heard (candidate to query) or Waiting (outstanding).
func (q *QueryPeerset) NumHeardOrWaiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, p := range q.peers {
		if p.state == Heard || p.state == Waiting {
			n++
		}
	}
	return n
}

// Snapshot is an immutable view of the peerset used by stop predicates so
// they never race with the scheduler's mutations.
type Snapshot struct {
	States map[host.PeerID]State
}

func (q *QueryPeerset) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	states := make(map[host.PeerID]State, len(q.peers))
	for id, p := range q.peers {
		states[id] = p.state
	}
	return Snapshot{States: states}
}

// CountQueried returns how many peers have reached state Queried.
func (s Snapshot) CountQueried() int {
	n := 0
	for _, st := range s.States {
		if st == Queried {
			n++
		}
	}
	return n
}
