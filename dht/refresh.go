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

// refreshLoop ticks every cfg.RefreshInterval and refreshes under-full
// buckets (spec.md §4.9's gap-fill rule: every bucket up to the highest
// non-empty one, plus one beyond it, is probed if it isn't already full).
func (n *Node) refreshLoop(ctx context.Context) {
	defer close(n.refreshDone)
	ticker := time.NewTicker(n.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.refreshStop:
			return
		case <-ticker.C:
			n.refreshBuckets(ctx)
		}
	}
}

// refreshBuckets probes every CPL from 0 up to one past the highest
// non-empty bucket whose active list is under BucketSize, synthesizing a
// random target at that CPL and running a FIND_NODE lookup toward it.
func (n *Node) refreshBuckets(ctx context.Context) {
	highest := n.rt.HighestNonEmptyCPL()
	upTo := highest + 1
	if upTo < 0 {
		upTo = 0
	}
	for cpl := 0; cpl <= upTo; cpl++ {
		if n.rt.NPeersForCPL(cpl) >= n.cfg.BucketSize {
			continue
		}
		target, err := n.rt.GenRandomPeerIDWithCPL(cpl)
		if err != nil {
			n.logger.Debug("dht: refresh target generation failed", "cpl", cpl, "error", err)
			continue
		}
		n.refreshLookup(ctx, key.Of([]byte(target)))
	}
}

func (n *Node) refreshLookup(ctx context.Context, target key.Key) {
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
	stopFn := func(qpeerset.Snapshot) bool { return false }

	res := lookup.Run(ctx, target, n.seedPeers(target), queryFn, stopFn, n.lookupConfig())
	n.evictUnreachable(res)
}
