package lookup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aminokad/kaddht/host"
	"github.com/aminokad/kaddht/key"
	"github.com/aminokad/kaddht/qpeerset"
)

// network is a tiny deterministic in-memory graph: each peer knows a fixed
// set of neighbors, used to drive queryFn without any real transport.
type network struct {
	neighbors map[host.PeerID][]host.PeerID
	fail      map[host.PeerID]bool
}

func (n *network) queryFn(ctx context.Context, peer host.PeerID) ([]host.AddrInfo, error) {
	if n.fail[peer] {
		return nil, errors.New("simulated failure")
	}
	var out []host.AddrInfo
	for _, nb := range n.neighbors[peer] {
		out = append(out, host.AddrInfo{ID: nb})
	}
	return out, nil
}

func TestLookupTerminatesWithNoMorePeers(t *testing.T) {
	net := &network{neighbors: map[host.PeerID][]host.PeerID{
		"a": {"b"},
		"b": {},
	}}
	stopFn := func(qpeerset.Snapshot) bool { return false }
	res := Run(context.Background(), key.Of([]byte("target")), []host.PeerID{"a"}, net.queryFn, stopFn, Config{
		Alpha: 3, OverallTimeout: time.Second,
	})
	assert.Equal(t, NoMorePeers, res.Reason)
	_, ok := res.Peerset.GetState("b")
	assert.True(t, ok)
}

func TestLookupStopsWhenStopFnSatisfied(t *testing.T) {
	net := &network{neighbors: map[host.PeerID][]host.PeerID{
		"a": {"b", "c"},
	}}
	stopFn := func(s qpeerset.Snapshot) bool { return s.CountQueried() >= 1 }
	res := Run(context.Background(), key.Of([]byte("target")), []host.PeerID{"a"}, net.queryFn, stopFn, Config{
		Alpha: 3, OverallTimeout: time.Second,
	})
	assert.Equal(t, Success, res.Reason)
}

func TestLookupMarksFailedPeersUnreachable(t *testing.T) {
	net := &network{
		neighbors: map[host.PeerID][]host.PeerID{"a": {}},
		fail:      map[host.PeerID]bool{"a": true},
	}
	stopFn := func(qpeerset.Snapshot) bool { return false }
	res := Run(context.Background(), key.Of([]byte("target")), []host.PeerID{"a"}, net.queryFn, stopFn, Config{
		Alpha: 3, OverallTimeout: time.Second,
	})
	assert.Equal(t, NoMorePeers, res.Reason)
	st, ok := res.Peerset.GetState("a")
	require.True(t, ok)
	assert.Equal(t, qpeerset.Unreachable, st)
	assert.Len(t, res.Errors, 1)
}

func TestLookupRespectsCancellation(t *testing.T) {
	net := &network{neighbors: map[host.PeerID][]host.PeerID{"a": {"b"}, "b": {"c"}, "c": {"a"}}}
	stopFn := func(qpeerset.Snapshot) bool { return false }
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := Run(ctx, key.Of([]byte("target")), []host.PeerID{"a"}, net.queryFn, stopFn, Config{
		Alpha: 3, OverallTimeout: time.Minute,
	})
	assert.Equal(t, Cancelled, res.Reason)
}

func TestLookupExcludesSelf(t *testing.T) {
	net := &network{neighbors: map[host.PeerID][]host.PeerID{"a": {"self", "b"}}}
	stopFn := func(qpeerset.Snapshot) bool { return false }
	res := Run(context.Background(), key.Of([]byte("target")), []host.PeerID{"a"}, net.queryFn, stopFn, Config{
		Alpha: 3, OverallTimeout: time.Second, Self: "self",
	})
	_, ok := res.Peerset.GetState("self")
	assert.False(t, ok)
}

// TestLookupCancelsOutstandingSubqueriesOnStopFn guards against the
// goroutine leak where Run returned via stopFn while a slower peer's
// queryFn goroutine was still Waiting: since that goroutine blocks on an
// unbuffered send gated by <-ctx.Done(), it only ever unblocks if Run
// cancels its own context on every return path, not only when the
// caller's context is cancelled.
func TestLookupCancelsOutstandingSubqueriesOnStopFn(t *testing.T) {
	unblocked := make(chan struct{}, 1)
	queryFn := func(ctx context.Context, peer host.PeerID) ([]host.AddrInfo, error) {
		if peer == "slow" {
			<-ctx.Done()
			unblocked <- struct{}{}
			return nil, ctx.Err()
		}
		return nil, nil
	}
	stopFn := func(s qpeerset.Snapshot) bool { return s.CountQueried() >= 1 }

	// Both peers are seeded Heard so Run dispatches them in the same round
	// (Alpha=3 covers both); "fast" completes immediately and satisfies
	// stopFn while "slow" is still Waiting, blocked on its own ctx.Done().
	res := Run(context.Background(), key.Of([]byte("target")), []host.PeerID{"fast", "slow"}, queryFn, stopFn, Config{
		Alpha: 3, OverallTimeout: time.Second,
	})
	assert.Equal(t, Success, res.Reason)

	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("slow peer's queryFn goroutine never unblocked after Run returned")
	}
}
