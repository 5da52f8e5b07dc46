package dht

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/aminokad/kaddht/dhterr"
	"github.com/aminokad/kaddht/host"
	"github.com/aminokad/kaddht/kbucket"
	"github.com/aminokad/kaddht/key"
	"github.com/aminokad/kaddht/logging"
	"github.com/aminokad/kaddht/lookup"
	"github.com/aminokad/kaddht/metrics"
	"github.com/aminokad/kaddht/pb"
	"github.com/aminokad/kaddht/provider"
	"github.com/aminokad/kaddht/qpeerset"
	"github.com/aminokad/kaddht/record"
	"github.com/aminokad/kaddht/rpc"
)

// Node is the core-facing public surface from spec.md §6.3.
type Node struct {
	host      host.Host
	cfg       Config
	rt        *kbucket.Table
	records   *record.MemoryStore
	validator record.Validator
	providers *provider.Store
	client    *rpc.Client
	server    *rpc.Server
	logger    logging.Logger

	metrics        metrics.Registry
	lookupCounter  metrics.Counter
	errorCounter   metrics.Counter
	tableSizeGauge metrics.Gauge

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc

	refreshStop chan struct{}
	refreshDone chan struct{}
}

// New assembles a Node over h using opts. The node is not started until
// Start is called.
func New(h host.Host, validator record.Validator, opts ...Option) *Node {
	cfg := newConfig(opts...)
	latency := h.LatencyMetrics()
	if latency == nil {
		latency = kbucket.NewEWMATracker(0.2, 4096)
	}
	rt := kbucket.New(h.ID(), 256, kbucket.Config{
		BucketSize:            cfg.BucketSize,
		MaxLatency:            cfg.MaxLatency,
		UsefulnessGracePeriod: cfg.UsefulnessGracePeriod,
		Latency:               latency,
		Logger:                cfg.Logger,
	})

	reg := metrics.NewRegistry()
	n := &Node{
		host:           h,
		cfg:            cfg,
		rt:             rt,
		records:        record.NewMemoryStore(),
		validator:      validator,
		providers:      provider.New(nil),
		logger:         cfg.Logger,
		metrics:        reg,
		lookupCounter:  metrics.GetOrRegisterCounter(reg, "dht/lookups_total"),
		errorCounter:   metrics.GetOrRegisterCounter(reg, "dht/query_errors_total"),
		tableSizeGauge: metrics.GetOrRegisterGauge(reg, "dht/routing_table_size"),
	}
	n.client = rpc.NewClient(h, cfg.clientConfig())
	return n
}

// Metrics returns the node's metrics registry (spec.md §9's metrics
// surface). Callers can wire it into metrics.NewServer for live
// inspection, or read it directly in tests.
func (n *Node) Metrics() metrics.Registry { return n.metrics }

// Start registers the RPC server and, if Mode allows serving, begins
// accepting inbound streams.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return dhterr.New("dht", dhterr.CodeNotStarted, "already started")
	}
	if n.cfg.Mode != ModeClient {
		n.server = rpc.NewServer(rpc.ServerConfig{
			Host:                       n.host,
			Routing:                    n.rt,
			Records:                    n.records,
			Providers:                  n.providers,
			Validator:                  n.validator,
			BucketSize:                 n.cfg.BucketSize,
			ProvideValidity:            n.cfg.ProvideValidity,
			FilterLocalhostInResponses: n.cfg.FilterLocalhostInResponses,
			Logger:                     n.logger,
		})
	}
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.started = true

	if n.cfg.AutoRefresh {
		n.refreshStop = make(chan struct{})
		n.refreshDone = make(chan struct{})
		go n.refreshLoop(ctx)
	}
	return nil
}

// Close stops the refresh loop and releases node-held resources.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	if n.cancel != nil {
		n.cancel()
	}
	if n.refreshStop != nil {
		close(n.refreshStop)
		<-n.refreshDone
	}
	if n.server != nil {
		n.host.RemoveStreamHandler(rpc.ProtocolID)
	}
	return nil
}

func (n *Node) requireStarted() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return dhterr.New("dht", dhterr.CodeClosed, "node is closed")
	}
	if !n.started {
		return dhterr.New("dht", dhterr.CodeNotStarted, "node is not started")
	}
	return nil
}

// lookupConfig builds a lookup.Config from cfg, wiring the peerstore
// collaborator and local peer id (spec.md §4.5).
func (n *Node) lookupConfig() lookup.Config {
	return lookup.Config{
		Alpha:          n.cfg.Concurrency,
		Resiliency:     n.cfg.Resiliency,
		OverallTimeout: n.cfg.QueryTimeout,
		PeerStore:      n.host.Peerstore(),
		Self:           n.host.ID(),
		Logger:         n.logger,
	}
}

// seedPeers returns the routing table's nearest peers to target, falling
// back to the configured bootstrap list if the table is empty (spec.md
// §4.5 step 1).
func (n *Node) seedPeers(target key.Key) []host.PeerID {
	seed := n.rt.Nearest(target, n.cfg.BucketSize)
	if len(seed) > 0 {
		return seed
	}
	out := make([]host.PeerID, 0, len(n.cfg.BootstrapPeers))
	for _, p := range n.cfg.BootstrapPeers {
		out = append(out, p.ID)
	}
	return out
}

// randomKey returns a uniformly random 32-byte key, used for bootstrap's
// random-target discovery lookups (spec.md §4.9).
func randomKey() key.Key {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return key.Key(b)
}

// --- find_peer ---------------------------------------------------------

func (n *Node) FindPeer(ctx context.Context, target host.PeerID) (host.AddrInfo, error) {
	if err := n.requireStarted(); err != nil {
		return host.AddrInfo{}, err
	}
	if info, ok := n.resolveFromRoutingTable(target); ok {
		return info, nil
	}

	found := make(chan host.AddrInfo, 1)
	queryFn := func(ctx context.Context, peer host.PeerID) ([]host.AddrInfo, error) {
		resp, err := n.client.Send(ctx, peer, &pb.Message{Type: pb.FIND_NODE, Key: []byte(target)})
		if err != nil {
			return nil, err
		}
		infos := peersToAddrInfo(resp.CloserPeers)
		for _, info := range infos {
			if info.ID == target {
				select {
				case found <- info:
				default:
				}
			}
		}
		return infos, nil
	}
	stopFn := func(qpeerset.Snapshot) bool {
		select {
		case <-found:
			return true
		default:
			return false
		}
	}

	res := lookup.Run(ctx, key.Of([]byte(target)), n.seedPeers(key.Of([]byte(target))), queryFn, stopFn, n.lookupConfig())
	n.evictUnreachable(res)

	if info, ok := n.resolveFromRoutingTable(target); ok {
		return info, nil
	}
	return host.AddrInfo{}, dhterr.New("dht", dhterr.CodeNotFound, "peer %q not found", target)
}

// resolveFromRoutingTable returns target's known address only if it is both
// present in the peerstore and an active member of the routing table — a
// peerstore hit alone isn't proof of reachability, since bootstrap records
// a candidate's addresses before it confirms the dial (spec.md §4.9 step 1).
func (n *Node) resolveFromRoutingTable(target host.PeerID) (host.AddrInfo, bool) {
	if _, inRT := n.rt.Find(target); !inRT {
		return host.AddrInfo{}, false
	}
	info, ok := n.host.Peerstore().GetPeer(target)
	if !ok || len(info.Addrs) == 0 {
		return host.AddrInfo{}, false
	}
	return info, true
}

// --- get_closest_peers ---------------------------------------------------

func (n *Node) GetClosestPeers(ctx context.Context, target []byte) ([]host.AddrInfo, error) {
	if err := n.requireStarted(); err != nil {
		return nil, err
	}
	tkey := key.Of(target)
	queryFn := func(ctx context.Context, peer host.PeerID) ([]host.AddrInfo, error) {
		resp, err := n.client.Send(ctx, peer, &pb.Message{Type: pb.FIND_NODE, Key: target})
		if err != nil {
			return nil, err
		}
		return peersToAddrInfo(resp.CloserPeers), nil
	}
	stopFn := func(s qpeerset.Snapshot) bool { return s.CountQueried() >= n.cfg.Resiliency }

	res := lookup.Run(ctx, tkey, n.seedPeers(tkey), queryFn, stopFn, n.lookupConfig())
	n.evictUnreachable(res)

	var out []host.AddrInfo
	for _, p := range res.Peerset.ClosestInState(qpeerset.Queried, n.cfg.Resiliency) {
		if info, ok := n.host.Peerstore().GetPeer(p); ok {
			out = append(out, info)
		} else {
			out = append(out, host.AddrInfo{ID: p})
		}
	}
	return out, nil
}

// --- get_value / put_value ----------------------------------------------

func (n *Node) GetValue(ctx context.Context, key_ string) ([]byte, error) {
	if err := n.requireStarted(); err != nil {
		return nil, err
	}
	if raw, ok := n.records.Get(key_); ok {
		if err := n.validator.Validate(key_, raw); err == nil {
			return decodeRecordValue(raw)
		}
	}

	var mu sync.Mutex
	var collected [][]byte
	queryFn := func(ctx context.Context, peer host.PeerID) ([]host.AddrInfo, error) {
		resp, err := n.client.Send(ctx, peer, &pb.Message{Type: pb.GET_VALUE, Key: []byte(key_)})
		if err != nil {
			return nil, err
		}
		if resp.Record != nil {
			raw, merr := resp.Record.Marshal()
			if merr == nil && n.validator.Validate(key_, raw) == nil {
				mu.Lock()
				collected = append(collected, raw)
				mu.Unlock()
			}
		}
		return peersToAddrInfo(resp.CloserPeers), nil
	}
	stopFn := func(s qpeerset.Snapshot) bool {
		if s.CountQueried() >= n.cfg.Resiliency {
			return true
		}
		mu.Lock()
		defer mu.Unlock()
		return len(collected) > 0 && s.CountQueried() >= 1
	}

	tkey := key.Of([]byte(key_))
	res := lookup.Run(ctx, tkey, n.seedPeers(tkey), queryFn, stopFn, n.lookupConfig())
	n.evictUnreachable(res)

	mu.Lock()
	defer mu.Unlock()
	if len(collected) == 0 {
		return nil, dhterr.New("dht", dhterr.CodeNotFound, "no value found for %q", key_)
	}
	idx, err := n.validator.Select(key_, collected)
	if err != nil {
		return nil, dhterr.Wrap("dht", dhterr.CodeValidation, err)
	}
	return decodeRecordValue(collected[idx])
}

func (n *Node) PutValue(ctx context.Context, key_ string, value []byte) error {
	if err := n.requireStarted(); err != nil {
		return err
	}
	priv, ok := n.host.KeyBook().PrivKey(n.host.ID())
	if !ok {
		return dhterr.New("dht", dhterr.CodeValidation, "no private key for local peer")
	}
	raw, err := record.Sign(priv, n.host.ID(), key_, value, time.Now())
	if err != nil {
		return err
	}
	if err := n.records.Put(n.validator, key_, raw); err != nil {
		return err
	}

	tkey := key.Of([]byte(key_))
	queryFn := func(ctx context.Context, peer host.PeerID) ([]host.AddrInfo, error) {
		resp, err := n.client.Send(ctx, peer, &pb.Message{Type: pb.FIND_NODE, Key: []byte(key_)})
		if err != nil {
			return nil, err
		}
		return peersToAddrInfo(resp.CloserPeers), nil
	}
	stopFn := func(s qpeerset.Snapshot) bool { return s.CountQueried() >= n.cfg.Resiliency }
	res := lookup.Run(ctx, tkey, n.seedPeers(tkey), queryFn, stopFn, n.lookupConfig())
	n.evictUnreachable(res)

	rec := &pb.Record{}
	if uerr := rec.Unmarshal(raw); uerr != nil {
		return uerr
	}
	successes := 0
	for _, peer := range res.Peerset.ClosestInState(qpeerset.Queried, n.cfg.Resiliency) {
		if _, err := n.client.Send(ctx, peer, &pb.Message{Type: pb.PUT_VALUE, Key: []byte(key_), Record: rec}); err == nil {
			successes++
		}
	}
	n.logger.Debug("dht: put_value", "key", key_, "successes", successes)
	return nil
}

// --- provide / find_providers --------------------------------------------

func (n *Node) Provide(ctx context.Context, cid host.CID, announce bool) error {
	if err := n.requireStarted(); err != nil {
		return err
	}
	n.providers.AddProvider(string(cid), n.host.ID(), n.selfAddrs(), time.Now().Add(n.cfg.ProvideValidity))
	if !announce {
		return nil
	}

	tkey := key.Of(cid)
	queryFn := func(ctx context.Context, peer host.PeerID) ([]host.AddrInfo, error) {
		resp, err := n.client.Send(ctx, peer, &pb.Message{Type: pb.FIND_NODE, Key: cid})
		if err != nil {
			return nil, err
		}
		return peersToAddrInfo(resp.CloserPeers), nil
	}
	stopFn := func(s qpeerset.Snapshot) bool { return s.CountQueried() >= n.cfg.Resiliency }
	res := lookup.Run(ctx, tkey, n.seedPeers(tkey), queryFn, stopFn, n.lookupConfig())
	n.evictUnreachable(res)

	self := &pb.Peer{ID: []byte(n.host.ID()), Addrs: addrsToBytes(n.selfAddrs())}
	for _, peer := range res.Peerset.ClosestInState(qpeerset.Queried, n.cfg.Resiliency) {
		_, _ = n.client.Send(ctx, peer, &pb.Message{Type: pb.ADD_PROVIDER, Key: cid, ProviderPeers: []*pb.Peer{self}})
	}
	return nil
}

// FindProviders returns up to max providers for cid, local providers first.
func (n *Node) FindProviders(ctx context.Context, cid host.CID, max int) ([]host.AddrInfo, error) {
	if err := n.requireStarted(); err != nil {
		return nil, err
	}
	seen := make(map[host.PeerID]bool)
	var out []host.AddrInfo
	for _, p := range n.providers.GetProviders(string(cid)) {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, host.AddrInfo{ID: p.ID, Addrs: p.Addrs})
		if len(out) >= max {
			return out, nil
		}
	}

	tkey := key.Of(cid)
	queryFn := func(ctx context.Context, peer host.PeerID) ([]host.AddrInfo, error) {
		resp, err := n.client.Send(ctx, peer, &pb.Message{Type: pb.GET_PROVIDERS, Key: cid})
		if err != nil {
			return nil, err
		}
		for _, p := range resp.ProviderPeers {
			id := host.PeerID(p.ID)
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, host.AddrInfo{ID: id, Addrs: bytesToAddrs(p.Addrs)})
		}
		return peersToAddrInfo(resp.CloserPeers), nil
	}
	stopFn := func(qpeerset.Snapshot) bool { return len(out) >= max }
	res := lookup.Run(ctx, tkey, n.seedPeers(tkey), queryFn, stopFn, n.lookupConfig())
	n.evictUnreachable(res)

	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}

// --- datastore passthrough (spec.md §6.3) --------------------------------

func (n *Node) Get(key string) ([]byte, bool)  { return n.records.Get(key) }
func (n *Node) Has(key string) bool            { return n.records.Has(key) }
func (n *Node) Remove(key string)              { n.records.Delete(key) }
func (n *Node) Keys() []string                 { return n.records.Keys() }
func (n *Node) Put(key string, value []byte) error {
	return n.records.Put(n.validator, key, value)
}

// --- helpers --------------------------------------------------------------

func (n *Node) evictUnreachable(res lookup.Result) {
	n.lookupCounter.Inc(1)
	unreachable := res.Peerset.ClosestInState(qpeerset.Unreachable, 1<<30)
	for _, p := range unreachable {
		n.rt.Remove(p)
	}
	if len(unreachable) > 0 {
		n.errorCounter.Inc(int64(len(unreachable)))
	}
	n.tableSizeGauge.Update(int64(n.rt.Size()))
}

func (n *Node) selfAddrs() []host.Multiaddr {
	info, _ := n.host.Peerstore().GetPeer(n.host.ID())
	return info.Addrs
}

func peersToAddrInfo(peers []*pb.Peer) []host.AddrInfo {
	out := make([]host.AddrInfo, 0, len(peers))
	for _, p := range peers {
		out = append(out, host.AddrInfo{ID: host.PeerID(p.ID), Addrs: bytesToAddrs(p.Addrs)})
	}
	return out
}

func bytesToAddrs(raw [][]byte) []host.Multiaddr {
	out := make([]host.Multiaddr, len(raw))
	for i, b := range raw {
		out[i] = host.Multiaddr(b)
	}
	return out
}

func addrsToBytes(addrs []host.Multiaddr) [][]byte {
	out := make([][]byte, len(addrs))
	for i, a := range addrs {
		out[i] = []byte(a)
	}
	return out
}

func decodeRecordValue(raw []byte) ([]byte, error) {
	rec := &pb.Record{}
	if err := rec.Unmarshal(raw); err != nil {
		return nil, dhterr.Wrap("dht", dhterr.CodeValidation, err)
	}
	return rec.Value, nil
}
