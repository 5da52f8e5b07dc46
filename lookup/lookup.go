// Package lookup implements the α-parallel iterative lookup engine from
// spec.md §4.5, generic over the RPC used as query_fn (FIND_NODE,
// GET_VALUE, GET_PROVIDERS), grounded on oascigil-go-libp2p-kad-dht's own
// runQuery/query-the-network loop in routing.go.
package lookup

import (
	"context"
	"time"

	"github.com/aminokad/kaddht/host"
	"github.com/aminokad/kaddht/key"
	"github.com/aminokad/kaddht/logging"
	"github.com/aminokad/kaddht/qpeerset"
)

// Reason is why a lookup terminated.
type Reason int

const (
	Success Reason = iota
	NoMorePeers
	Timeout
	Cancelled
)

func (r Reason) String() string {
	switch r {
	case Success:
		return "success"
	case NoMorePeers:
		return "no-more-peers"
	case Timeout:
		return "timeout"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// QueryFunc sends the lookup's RPC to peer and returns the peers it
// learned about. It may carry out-of-band side effects (e.g. collecting a
// record or provider list into a closure-captured accumulator), per
// spec.md §4.5.
type QueryFunc func(ctx context.Context, peer host.PeerID) ([]host.AddrInfo, error)

// StopFunc reports whether the lookup should terminate early, inspecting
// only a point-in-time Snapshot so it never races the scheduler.
type StopFunc func(qpeerset.Snapshot) bool

// Config parameterizes one lookup run (spec.md §4.5).
type Config struct {
	Alpha          int
	Resiliency     int
	OverallTimeout time.Duration
	// PeerStore receives every address observed in a query response,
	// matching spec.md §4.5 "addresses are handed to the peerstore
	// collaborator", independent of whether the peer id was already known.
	PeerStore host.PeerStore
	// Self is the local peer id, never inserted into the peerset even if a
	// remote peer returns it (spec.md §4.7 self-dial avoidance applies
	// symmetrically on the lookup side).
	Self   host.PeerID
	Logger logging.Logger
}

func (c *Config) setDefaults() {
	if c.Alpha <= 0 {
		c.Alpha = 3
	}
	if c.Resiliency <= 0 {
		c.Resiliency = 20
	}
	if c.OverallTimeout <= 0 {
		c.OverallTimeout = time.Minute
	}
	if c.Logger == nil {
		c.Logger = logging.Nop()
	}
}

// Result is what a completed lookup returns to its caller.
type Result struct {
	Peerset *qpeerset.QueryPeerset
	Reason  Reason
	Errors  []error
}

type completion struct {
	peer  host.PeerID
	infos []host.AddrInfo
	err   error
}

// Run drives one iterative lookup toward target, starting from seed (all
// inserted in state Heard), until stopFn is satisfied, no peers remain to
// try, the overall timeout elapses, or ctx is cancelled (spec.md §4.5).
func Run(ctx context.Context, target key.Key, seed []host.PeerID, queryFn QueryFunc, stopFn StopFunc, cfg Config) Result {
	cfg.setDefaults()
	qp := qpeerset.New(target)
	for _, p := range seed {
		qp.TryAdd(p)
	}

	// Every return path below cancels ctx so in-flight queryFn goroutines
	// unblock on their own <-ctx.Done() case instead of leaking forever on
	// the unbuffered results send, even when Run returns for a reason other
	// than the caller's own context being cancelled (stopFn satisfied, no
	// peers left, or the overall deadline elapsed).
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan completion)
	var errs []error
	deadline := time.Now().Add(cfg.OverallTimeout)

	for {
		if ctx.Err() != nil {
			return Result{Peerset: qp, Reason: Cancelled, Errors: errs}
		}
		if stopFn(qp.Snapshot()) {
			return Result{Peerset: qp, Reason: Success, Errors: errs}
		}

		maxWaiting := cfg.Alpha - qp.CountWaiting()
		if maxWaiting > 0 {
			for _, p := range qp.ClosestInState(qpeerset.Heard, maxWaiting) {
				qp.SetState(p, qpeerset.Waiting)
				go func(peer host.PeerID) {
					infos, err := queryFn(ctx, peer)
					select {
					case results <- completion{peer: peer, infos: infos, err: err}:
					case <-ctx.Done():
					}
				}(p)
			}
		}

		if qp.NumHeardOrWaiting() == 0 {
			return Result{Peerset: qp, Reason: NoMorePeers, Errors: errs}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Result{Peerset: qp, Reason: Timeout, Errors: errs}
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{Peerset: qp, Reason: Cancelled, Errors: errs}
		case <-timer.C:
			return Result{Peerset: qp, Reason: Timeout, Errors: errs}
		case c := <-results:
			timer.Stop()
			if c.err != nil {
				qp.SetState(c.peer, qpeerset.Unreachable)
				errs = append(errs, c.err)
				cfg.Logger.Debug("lookup: peer query failed", "peer", c.peer, "error", c.err)
				continue
			}
			qp.SetState(c.peer, qpeerset.Queried)
			for _, info := range c.infos {
				if info.ID == "" || info.ID == cfg.Self {
					continue
				}
				if cfg.PeerStore != nil && len(info.Addrs) > 0 {
					cfg.PeerStore.AddAddrs(info.ID, info.Addrs, time.Hour)
				}
				qp.TryAdd(info.ID)
			}
		}
	}
}
