package dht

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aminokad/kaddht/host"
	"github.com/aminokad/kaddht/host/memhost"
	"github.com/aminokad/kaddht/metrics"
	"github.com/aminokad/kaddht/record"
)

func newTestNode(t *testing.T, net *memhost.Network, id host.PeerID, validator record.Validator, opts ...Option) (*Node, *memhost.Host) {
	t.Helper()
	h := memhost.New(net, id)
	n := New(h, validator, opts...)
	require.NoError(t, n.Start())
	t.Cleanup(func() { _ = n.Close() })
	return n, h
}

func addrInfo(id host.PeerID) host.AddrInfo {
	return host.AddrInfo{ID: id, Addrs: []host.Multiaddr{host.Multiaddr("/memhost/" + id)}}
}

func TestBootstrapSeedConnectMakesPeerReachable(t *testing.T) {
	net := memhost.NewNetwork()
	validator := record.NamespacedValidator{}
	_, _ = newTestNode(t, net, "b", validator)
	a, _ := newTestNode(t, net, "a", validator, WithBootstrapPeers(addrInfo("b")), WithAutoRefresh(false))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Bootstrap(ctx))

	info, err := a.FindPeer(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, host.PeerID("b"), info.ID)
}

func TestBootstrapSkipsUnreachableSeed(t *testing.T) {
	net := memhost.NewNetwork()
	validator := record.NamespacedValidator{}
	_, bHost := newTestNode(t, net, "b", validator)
	bHost.SetUnreachable(true)
	a, _ := newTestNode(t, net, "a", validator, WithBootstrapPeers(addrInfo("b")), WithAutoRefresh(false))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Bootstrap(ctx))

	_, err := a.FindPeer(ctx, "b")
	require.Error(t, err)
}

func TestBootstrapRefreshEvictsUnresponsivePeer(t *testing.T) {
	net := memhost.NewNetwork()
	validator := record.NamespacedValidator{}
	_, bHost := newTestNode(t, net, "b", validator)
	a, _ := newTestNode(t, net, "a", validator, WithBootstrapPeers(addrInfo("b")), WithAutoRefresh(false))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Bootstrap(ctx))
	_, err := a.FindPeer(ctx, "b")
	require.NoError(t, err)

	bHost.SetUnreachable(true)
	require.NoError(t, a.Bootstrap(ctx))

	_, err = a.FindPeer(ctx, "b")
	require.Error(t, err)
}

func TestBootstrapDiscoversThirdNodeThroughSeed(t *testing.T) {
	net := memhost.NewNetwork()
	validator := record.NamespacedValidator{}
	_, _ = newTestNode(t, net, "c", validator)
	b, _ := newTestNode(t, net, "b", validator, WithBootstrapPeers(addrInfo("c")), WithAutoRefresh(false))

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()
	require.NoError(t, b.Bootstrap(ctx))
	_, err := b.FindPeer(ctx, "c")
	require.NoError(t, err)

	a, _ := newTestNode(t, net, "a", validator, WithBootstrapPeers(addrInfo("b")), WithAutoRefresh(false))
	require.NoError(t, a.Bootstrap(ctx))

	info, err := a.FindPeer(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, host.PeerID("c"), info.ID)
}

func TestRefreshBucketsPopulatesFromExistingPeer(t *testing.T) {
	net := memhost.NewNetwork()
	validator := record.NamespacedValidator{}
	_, _ = newTestNode(t, net, "c", validator)
	b, _ := newTestNode(t, net, "b", validator, WithBootstrapPeers(addrInfo("c")), WithAutoRefresh(false))

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()
	require.NoError(t, b.Bootstrap(ctx))

	a, _ := newTestNode(t, net, "a", validator, WithBootstrapPeers(addrInfo("b")), WithAutoRefresh(false))
	a.seedConnect(ctx)
	a.refreshBuckets(ctx)

	info, err := a.FindPeer(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, host.PeerID("c"), info.ID)
}

func setupSignedPair(t *testing.T, net *memhost.Network) (*Node, *memhost.Host, *Node, *memhost.Host) {
	t.Helper()
	privA := record.GenerateSecp256k1Key([]byte("node-a-seed"))

	aHost := memhost.New(net, "a")
	aHost.KeyBook().(*memhost.KeyBook).SetPrivKey("a", privA)
	aHost.Peerstore().AddAddrs("a", []host.Multiaddr{host.Multiaddr("/memhost/a")}, time.Hour)

	bHost := memhost.New(net, "b")
	bHost.KeyBook().(*memhost.KeyBook).SetPubKey("a", privA.Public())

	validator := record.NamespacedValidator{
		"v": &record.GenericValidator{KeyBook: aHost.KeyBook(), Now: time.Now},
	}
	validatorB := record.NamespacedValidator{
		"v": &record.GenericValidator{KeyBook: bHost.KeyBook(), Now: time.Now},
	}

	a := New(aHost, validator)
	require.NoError(t, a.Start())
	t.Cleanup(func() { _ = a.Close() })

	b := New(bHost, validatorB, WithBootstrapPeers(addrInfo("a")), WithAutoRefresh(false))
	require.NoError(t, b.Start())
	t.Cleanup(func() { _ = b.Close() })

	return a, aHost, b, bHost
}

func TestPutValueThenGetValueAcrossNodes(t *testing.T) {
	net := memhost.NewNetwork()
	a, _, b, _ := setupSignedPair(t, net)

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()
	require.NoError(t, b.Bootstrap(ctx))

	require.NoError(t, a.PutValue(ctx, "/v/greeting", []byte("hello")))

	value, err := b.GetValue(ctx, "/v/greeting")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), value)
}

func TestProvideThenFindProvidersAcrossNodes(t *testing.T) {
	net := memhost.NewNetwork()
	validator := record.NamespacedValidator{}
	aHost := memhost.New(net, "a")
	aHost.Peerstore().AddAddrs("a", []host.Multiaddr{host.Multiaddr("/memhost/a")}, time.Hour)
	a := New(aHost, validator)
	require.NoError(t, a.Start())
	t.Cleanup(func() { _ = a.Close() })

	b, _ := newTestNode(t, net, "b", validator, WithBootstrapPeers(addrInfo("a")), WithAutoRefresh(false))

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()
	require.NoError(t, b.Bootstrap(ctx))

	cid := host.CID("content-123")
	require.NoError(t, a.Provide(ctx, cid, false))

	providers, err := b.FindProviders(ctx, cid, 10)
	require.NoError(t, err)
	require.Len(t, providers, 1)
	require.Equal(t, host.PeerID("a"), providers[0].ID)
}

func TestFindPeerReturnsNotFoundForUnknownPeer(t *testing.T) {
	net := memhost.NewNetwork()
	validator := record.NamespacedValidator{}
	a, _ := newTestNode(t, net, "a", validator, WithAutoRefresh(false))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := a.FindPeer(ctx, "ghost")
	require.Error(t, err)
}

func TestMetricsTrackBootstrapAndLookups(t *testing.T) {
	net := memhost.NewNetwork()
	validator := record.NamespacedValidator{}
	_, bHost := newTestNode(t, net, "b", validator)
	bHost.SetUnreachable(true)
	a, _ := newTestNode(t, net, "a", validator, WithBootstrapPeers(addrInfo("b")), WithAutoRefresh(false))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Bootstrap(ctx))

	_, err := a.FindPeer(ctx, "b")
	require.Error(t, err)

	snap := metrics.Snapshot(a.Metrics())
	require.Greater(t, snap["dht/lookups_total"], int64(0))
	require.Equal(t, int64(0), snap["dht/routing_table_size"])
}

func TestBootstrapHealthCheckFallsBackToDefaultPeers(t *testing.T) {
	net := memhost.NewNetwork()
	validator := record.NamespacedValidator{}
	_, _ = newTestNode(t, net, "c", validator)
	a, _ := newTestNode(t, net, "a", validator,
		WithAutoRefresh(false),
		WithResiliency(1),
		WithDefaultBootstrapPeers(addrInfo("c")),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// a has no BootstrapPeers configured, so phases 1-3 leave its routing
	// table empty; phase 4 must fall back to DefaultBootstrapPeers to meet
	// Resiliency.
	require.NoError(t, a.Bootstrap(ctx))

	info, err := a.FindPeer(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, host.PeerID("c"), info.ID)
}
