// Package memhost implements host.Host and its collaborators entirely
// in-memory, for use by package dht's tests and by internal/simnet's
// end-to-end scenarios. There is no real I/O: streams are backed by
// buffered channels wired directly to the remote peer's registered
// handler.
package memhost

import (
	"context"
	"sync"
	"time"

	"github.com/aminokad/kaddht/host"
)

// Network is the shared fabric a set of Hosts dial through. Peers register
// themselves on construction and look each other up by ID when opening a
// stream, mirroring how a real libp2p swarm resolves a PeerID to a live
// connection via its peerstore, except here the "connection" is direct.
type Network struct {
	mu    sync.RWMutex
	hosts map[host.PeerID]*Host
}

// NewNetwork creates an empty in-memory fabric.
func NewNetwork() *Network {
	return &Network{hosts: make(map[host.PeerID]*Host)}
}

func (n *Network) register(h *Host) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hosts[h.id] = h
}

func (n *Network) unregister(id host.PeerID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.hosts, id)
}

func (n *Network) lookup(id host.PeerID) (*Host, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	h, ok := n.hosts[id]
	return h, ok
}

// Disconnect removes id from the fabric entirely, so subsequent OpenStream
// attempts against it fail as "no such peer". Use SetUnreachable instead
// when the routing table should still find the peer's stale entry but
// dialing it should fail, the more common bootstrap/refresh test shape.
func (n *Network) Disconnect(id host.PeerID) {
	n.unregister(id)
}

// Host is an in-memory host.Host. Unreachable peers (removed via
// Network.Disconnect, or never registered) fail OpenStream the way a dead
// TCP dial would, which is what lets bootstrap/retry tests exercise
// failure paths without a real network.
type Host struct {
	net *Network
	id  host.PeerID

	mu          sync.RWMutex
	handlers    map[host.ProtocolID]func(host.Stream)
	unreachable bool
	failNext    int

	peerstore *PeerStore
	keybook   *KeyBook
	connmgr   *ConnManager
	latency   *LatencyMetrics
}

// New creates a host identified by id and joins it to net.
func New(net *Network, id host.PeerID) *Host {
	h := &Host{
		net:       net,
		id:        id,
		handlers:  make(map[host.ProtocolID]func(host.Stream)),
		peerstore: NewPeerStore(),
		keybook:   NewKeyBook(),
		connmgr:   NewConnManager(),
		latency:   NewLatencyMetrics(),
	}
	net.register(h)
	return h
}

// SetUnreachable toggles whether inbound dials to this host fail, simulating
// a peer that has gone offline without removing its routing-table entry.
func (h *Host) SetUnreachable(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unreachable = v
}

// FailNextDials makes the next n inbound OpenStream attempts against this
// host fail as transient network errors, after which dialing succeeds
// normally again. Used to exercise rpc.Client's retry-then-success and
// retry-exhaustion paths without a real flaky network.
func (h *Host) FailNextDials(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failNext = n
}

func (h *Host) ID() host.PeerID           { return h.id }
func (h *Host) Peerstore() host.PeerStore { return h.peerstore }
func (h *Host) KeyBook() host.KeyBook     { return h.keybook }
func (h *Host) ConnManager() host.ConnManager {
	return h.connmgr
}
func (h *Host) LatencyMetrics() host.PeerLatencyMetrics { return h.latency }

func (h *Host) Connectedness(peer host.PeerID) host.Connectedness {
	if _, ok := h.net.lookup(peer); ok {
		return host.CanConnect
	}
	return host.NotConnected
}

func (h *Host) SetStreamHandler(protocol host.ProtocolID, handler func(host.Stream)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[protocol] = handler
}

func (h *Host) RemoveStreamHandler(protocol host.ProtocolID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.handlers, protocol)
}

// OpenStream resolves peer on the shared network, picks the first protocol
// the remote has a handler registered for, and wires up a pair of pipe
// streams: one returned to the caller, one delivered to the remote's
// handler in a fresh goroutine (mirroring a real host's accept loop).
func (h *Host) OpenStream(ctx context.Context, peer host.PeerID, protocols []host.ProtocolID, timeout time.Duration) (host.Stream, error) {
	remote, ok := h.net.lookup(peer)
	if !ok {
		return nil, &dialError{peer: peer, reason: "no such peer"}
	}
	remote.mu.Lock()
	var proto host.ProtocolID
	var handler func(host.Stream)
	for _, p := range protocols {
		if hd, ok := remote.handlers[p]; ok {
			proto, handler = p, hd
			break
		}
	}
	unreachable := remote.unreachable
	failing := remote.failNext > 0
	if failing {
		remote.failNext--
	}
	remote.mu.Unlock()

	if unreachable {
		return nil, &dialError{peer: peer, reason: "connection refused"}
	}
	if failing {
		return nil, &dialError{peer: peer, reason: "connection reset"}
	}
	if handler == nil {
		return nil, &dialError{peer: peer, reason: "no matching protocol"}
	}

	clientSide, serverSide := newPipePair(proto, h.id, peer)
	go handler(serverSide)
	return clientSide, nil
}

// dialError reports an OpenStream failure. It implements net.Error, so
// rpc.classifyDialError's net.Error check sees it: every reason other than
// "no matching protocol" reports Timeout() and classifies as a retryable
// CodeTimeout error, while "no matching protocol" falls through to the
// non-retryable CodeProtocol.
type dialError struct {
	peer   host.PeerID
	reason string
}

func (e *dialError) Error() string { return "memhost: dial " + string(e.peer) + ": " + e.reason }

// Timeout reports true for transient-looking failures so rpc.Client's
// net.Error-based classification treats them as retryable, the same way a
// real dial timeout or refused TCP connection would be.
func (e *dialError) Timeout() bool   { return e.reason != "no matching protocol" }
func (e *dialError) Temporary() bool { return e.Timeout() }
