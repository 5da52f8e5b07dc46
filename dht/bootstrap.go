package dht

import (
	"context"
	"time"

	"github.com/aminokad/kaddht/host"
	"github.com/aminokad/kaddht/key"
	"github.com/aminokad/kaddht/lookup"
	"github.com/aminokad/kaddht/pb"
	"github.com/aminokad/kaddht/qpeerset"
)

const (
	seedConnectTimeout = 10 * time.Second
	refreshPingTimeout = 3 * time.Second
	discoveryMaxRounds = 8
)

// Bootstrap runs the four-phase procedure from spec.md §4.9: seed connect,
// refresh existing, peer discovery, and a final health check. It never
// fails the process outright — an unreachable bootstrap peer is logged and
// skipped.
func (n *Node) Bootstrap(ctx context.Context) error {
	if err := n.requireStarted(); err != nil {
		return err
	}
	n.seedConnect(ctx)
	n.refreshExisting(ctx)
	n.peerDiscovery(ctx)
	n.healthCheck(ctx)
	return nil
}

// seedConnect is phase 1: dial every configured bootstrap peer and insert
// the reachable ones as non-replaceable (spec.md §4.9 step 1).
func (n *Node) seedConnect(ctx context.Context) {
	for _, info := range n.cfg.BootstrapPeers {
		if info.ID == n.host.ID() {
			continue
		}
		n.host.Peerstore().AddAddrs(info.ID, info.Addrs, n.cfg.ProviderAddrTTL)

		dialCtx, cancel := context.WithTimeout(ctx, seedConnectTimeout)
		_, err := n.client.Send(dialCtx, info.ID, &pb.Message{Type: pb.PING})
		cancel()
		if err != nil {
			n.logger.Debug("dht: bootstrap seed unreachable", "peer", info.ID, "error", err)
			continue
		}
		n.host.ConnManager().Protect(info.ID, "bootstrap")
		n.rt.TryAdd(info.ID, false, false)
	}
	n.tableSizeGauge.Update(int64(n.rt.Size()))
}

// refreshExisting is phase 2: PING every peer currently in the table,
// evicting unresponsive ones and un-protecting survivors (spec.md §4.9
// step 2).
func (n *Node) refreshExisting(ctx context.Context) {
	for _, entry := range n.rt.ListPeers() {
		pingCtx, cancel := context.WithTimeout(ctx, refreshPingTimeout)
		_, err := n.client.Send(pingCtx, entry.ID, &pb.Message{Type: pb.PING})
		cancel()
		if err != nil {
			n.rt.Remove(entry.ID)
			n.errorCounter.Inc(1)
			continue
		}
		n.rt.MarkReplaceable(entry.ID, true)
	}
	n.tableSizeGauge.Update(int64(n.rt.Size()))
}

// peerDiscovery is phase 3: repeated random-target lookups plus a
// self-lookup each round, until the table reaches BucketSize peers or a
// bounded number of rounds elapse (spec.md §4.9 step 3).
func (n *Node) peerDiscovery(ctx context.Context) {
	self := key.Of([]byte(n.host.ID()))
	for round := 0; round < discoveryMaxRounds && n.rt.Size() < n.cfg.BucketSize; round++ {
		n.discoveryLookup(ctx, randomKey())
		n.discoveryLookup(ctx, self)
	}
}

// discoveryLookup runs a plain FIND_NODE lookup toward target purely to
// populate the routing table with whatever closer_peers responses surface;
// it ignores the lookup's own result peerset beyond evicting failures.
func (n *Node) discoveryLookup(ctx context.Context, target key.Key) {
	queryFn := func(ctx context.Context, peer host.PeerID) ([]host.AddrInfo, error) {
		resp, err := n.client.Send(ctx, peer, &pb.Message{Type: pb.FIND_NODE, Key: []byte(target)})
		if err != nil {
			return nil, err
		}
		infos := peersToAddrInfo(resp.CloserPeers)
		for _, info := range infos {
			if len(info.Addrs) > 0 {
				n.host.Peerstore().AddAddrs(info.ID, info.Addrs, n.cfg.ProviderAddrTTL)
			}
			n.rt.TryAdd(info.ID, true, true)
		}
		return infos, nil
	}
	stopFn := func(s qpeerset.Snapshot) bool { return n.rt.Size() >= n.cfg.BucketSize }

	res := lookup.Run(ctx, target, n.seedPeers(target), queryFn, stopFn, n.lookupConfig())
	n.evictUnreachable(res)
}

// healthCheck is phase 4: if the table is still thinner than Resiliency
// after discovery, fall back to the configured default bootstrap list and
// re-measure (spec.md §4.9 step 4). A node with no DefaultBootstrapPeers
// configured simply has nothing to fall back to and returns immediately.
func (n *Node) healthCheck(ctx context.Context) {
	if n.rt.Size() >= n.cfg.Resiliency {
		return
	}
	for _, info := range n.cfg.DefaultBootstrapPeers {
		if n.rt.Size() >= n.cfg.Resiliency {
			break
		}
		if info.ID == n.host.ID() {
			continue
		}
		n.host.Peerstore().AddAddrs(info.ID, info.Addrs, n.cfg.ProviderAddrTTL)

		dialCtx, cancel := context.WithTimeout(ctx, seedConnectTimeout)
		_, err := n.client.Send(dialCtx, info.ID, &pb.Message{Type: pb.PING})
		cancel()
		if err != nil {
			n.logger.Debug("dht: health-check default bootstrap peer unreachable", "peer", info.ID, "error", err)
			continue
		}
		n.host.ConnManager().Protect(info.ID, "bootstrap")
		n.rt.TryAdd(info.ID, false, false)
	}
	n.tableSizeGauge.Update(int64(n.rt.Size()))
}
