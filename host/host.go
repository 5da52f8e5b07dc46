// Package host declares the collaborator interfaces the DHT core consumes
// (spec.md §6.2) but does not implement: stream/connection management,
// multiplexing, identify and TLS, address book storage, connection
// protection and per-peer latency tracking. A production deployment backs
// these with a real libp2p host; package host/memhost backs them with an
// in-memory network for tests.
package host

import (
	"context"
	"time"
)

// PeerID is an opaque peer identifier. In a real deployment it is the
// multihash of a public key; the DHT core never derives it, only compares,
// hashes-as-a-key, and carries it (spec.md §4.1).
type PeerID string

// Multiaddr is an opaque binary multiaddress, carried but never parsed by
// the core beyond the minimal localhost/loopback sniffing needed for
// filter_localhost_in_responses (spec.md §6.4).
type Multiaddr []byte

// CID is the raw multihash bytes of a content identifier. CID parsing and
// construction are out of scope (spec.md §1); the DHT only ever sees the
// bytes a caller already derived.
type CID []byte

// ProtocolID identifies a stream protocol, e.g. "/ipfs/kad/1.0.0".
type ProtocolID string

// Stream is a single bidirectional, length-unaware byte stream opened for
// exactly one request/response exchange (or, for ADD_PROVIDER, one write).
type Stream interface {
	// Write sends a single delimited message. Framing is the host's concern;
	// the core treats each call as one logical message.
	Write(ctx context.Context, msg []byte) error
	// Read receives a single delimited message.
	Read(ctx context.Context) ([]byte, error)
	// Close ends the stream. The client closes streams it opened; server
	// handlers never close the stream they were handed (spec.md §4.7).
	Close() error
	// Protocol reports the negotiated protocol ID.
	Protocol() ProtocolID
	// RemotePeer reports the peer at the other end of the stream.
	RemotePeer() PeerID
	// RemoteMultiaddr reports the observed address of the remote endpoint,
	// used to populate the peerstore on inbound streams (spec.md §9, the
	// "v2" address-capture policy).
	RemoteMultiaddr() Multiaddr
}

// Host abstracts the libp2p host: identity, stream dialing, and the inbound
// stream-handler registration the RPC server side needs.
type Host interface {
	// ID returns the local peer's identifier.
	ID() PeerID
	// OpenStream dials peer and negotiates one of protocols, failing after
	// timeout.
	OpenStream(ctx context.Context, peer PeerID, protocols []ProtocolID, timeout time.Duration) (Stream, error)
	// SetStreamHandler registers the inbound-stream callback for protocol.
	// The callback must not block the host's accept loop; handlers are
	// expected to return promptly once the response (if any) is written.
	SetStreamHandler(protocol ProtocolID, handler func(Stream))
	// RemoveStreamHandler unregisters a previously set handler.
	RemoveStreamHandler(protocol ProtocolID)
	// Connectedness reports whether the host currently has an open
	// connection to peer, has one cached as reusable, or neither.
	Connectedness(peer PeerID) Connectedness
	// Peerstore returns the associated address book.
	Peerstore() PeerStore
	// KeyBook returns the associated key book.
	KeyBook() KeyBook
	// ConnManager returns the associated connection manager.
	ConnManager() ConnManager
	// LatencyMetrics returns the associated per-peer latency tracker.
	LatencyMetrics() PeerLatencyMetrics
}

// Connectedness mirrors libp2p's network.Connectedness enum, as reported by
// Host.Connectedness. The dht package does not consult it.
type Connectedness int

const (
	NotConnected Connectedness = iota
	Connected
	CanConnect
	CannotConnect
)

// AddrInfo pairs a peer with zero or more known addresses.
type AddrInfo struct {
	ID    PeerID
	Addrs []Multiaddr
}

// PeerStore is the shared address book (spec.md §6.2). The DHT only writes
// addresses discovered during queries and reads them back when assembling
// protocol responses or dialing.
type PeerStore interface {
	AddAddrs(peer PeerID, addrs []Multiaddr, ttl time.Duration)
	GetPeer(peer PeerID) (AddrInfo, bool)
}

// PublicKey and PrivateKey are opaque signing key handles. Package record
// provides a concrete secp256k1 implementation; a real deployment can also
// plug in ed25519/RSA handles behind the same interfaces.
type PublicKey interface {
	Bytes() []byte
	Verify(payload, signature []byte) (bool, error)
}

type PrivateKey interface {
	Public() PublicKey
	Sign(payload []byte) ([]byte, error)
}

// KeyBook resolves public/private keys for peers (spec.md §6.2). PrivKey is
// only ever resolvable for the local peer.
type KeyBook interface {
	PubKey(peer PeerID) (PublicKey, bool)
	PrivKey(peer PeerID) (PrivateKey, bool)
}

// ConnManager lets the DHT protect/unprotect connections to peers that
// populate its routing table, so the host's connection pruning doesn't drop
// them (spec.md §5, "Shared-resource policy").
type ConnManager interface {
	Protect(peer PeerID, tag string)
	Unprotect(peer PeerID, tag string)
}

// PeerLatencyMetrics answers the routing table's latency gate (spec.md §4.2).
type PeerLatencyMetrics interface {
	LatencyEWMA(peer PeerID) time.Duration
}
