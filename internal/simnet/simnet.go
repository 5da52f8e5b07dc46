// Package simnet is a deterministic in-process network harness used to
// drive spec.md §8's end-to-end scenarios against real dht.Node instances
// without a real transport: every node in a Cluster shares one
// host/memhost.Network, so lookups, bootstraps, and RPC retries run
// through the exact code paths a real deployment would use, just without
// real I/O or real wall-clock-dependent flakiness.
package simnet

import (
	"context"

	"github.com/aminokad/kaddht/dht"
	"github.com/aminokad/kaddht/host"
	"github.com/aminokad/kaddht/host/memhost"
	"github.com/aminokad/kaddht/record"
)

// Cluster is a named set of dht.Node instances sharing one in-memory
// network fabric.
type Cluster struct {
	net   *memhost.Network
	nodes map[host.PeerID]*dht.Node
	hosts map[host.PeerID]*memhost.Host
}

// NewCluster creates an empty network.
func NewCluster() *Cluster {
	return &Cluster{
		net:   memhost.NewNetwork(),
		nodes: make(map[host.PeerID]*dht.Node),
		hosts: make(map[host.PeerID]*memhost.Host),
	}
}

// Spawn builds a memhost-backed dht.Node identified by id, starts it, and
// adds it to the cluster.
func (c *Cluster) Spawn(id host.PeerID, validator record.Validator, opts ...dht.Option) (*dht.Node, error) {
	h := memhost.New(c.net, id)
	n := dht.New(h, validator, opts...)
	if err := n.Start(); err != nil {
		return nil, err
	}
	c.nodes[id] = n
	c.hosts[id] = h
	return n, nil
}

// Node returns the node previously spawned under id.
func (c *Cluster) Node(id host.PeerID) *dht.Node { return c.nodes[id] }

// Host returns the memhost.Host backing the node spawned under id, for
// fault injection (SetUnreachable, FailNextDials).
func (c *Cluster) Host(id host.PeerID) *memhost.Host { return c.hosts[id] }

// Disconnect removes id from the network fabric entirely, so subsequent
// dials against it fail as "no such peer" rather than a reachability
// failure against a live host.
func (c *Cluster) Disconnect(id host.PeerID) { c.net.Disconnect(id) }

// Close stops every node in the cluster, returning the first error.
func (c *Cluster) Close() error {
	var firstErr error
	for _, n := range c.nodes {
		if err := n.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SeedOf returns the host.AddrInfo a caller would configure as a
// WithBootstrapPeers entry to reach target, using the same
// "/memhost/<id>" address convention memhost.Host.RemoteMultiaddr uses.
func SeedOf(target host.PeerID) host.AddrInfo {
	return host.AddrInfo{ID: target, Addrs: []host.Multiaddr{host.Multiaddr("/memhost/" + target)}}
}

// BootstrapAll runs Bootstrap on every node in order, stopping at the
// first error.
func BootstrapAll(ctx context.Context, nodes ...*dht.Node) error {
	for _, n := range nodes {
		if err := n.Bootstrap(ctx); err != nil {
			return err
		}
	}
	return nil
}
