package rpc

import (
	"context"
	"net"
	"time"

	"github.com/aminokad/kaddht/host"
	"github.com/aminokad/kaddht/kbucket"
	"github.com/aminokad/kaddht/key"
	"github.com/aminokad/kaddht/logging"
	"github.com/aminokad/kaddht/pb"
	"github.com/aminokad/kaddht/provider"
	"github.com/aminokad/kaddht/record"
)

// Routing is the subset of the routing table the server needs.
type Routing interface {
	TryAdd(peer host.PeerID, queryPeer, replaceable bool) bool
	Nearest(target key.Key, n int) []host.PeerID
}

// RecordStore is the subset of record.Store the server needs, parameterized
// so handlers can be tested against a fake.
type RecordStore interface {
	Put(validator record.Validator, key string, value []byte) error
	Get(key string) ([]byte, bool)
}

// ProviderStore is the subset of provider.Store the server needs.
type ProviderStore interface {
	AddProvider(contentKey string, peer host.PeerID, addrs []host.Multiaddr, expiresAt time.Time)
	GetProviders(contentKey string) []provider.Info
}

// ServerConfig wires the server's collaborators (spec.md §4.7, §6.4).
type ServerConfig struct {
	Host                       host.Host
	Routing                    Routing
	Records                    RecordStore
	Providers                  ProviderStore
	Validator                  record.Validator
	BucketSize                 int
	ProvideValidity            time.Duration
	FilterLocalhostInResponses bool
	Logger                     logging.Logger
}

func (c *ServerConfig) setDefaults() {
	if c.BucketSize <= 0 {
		c.BucketSize = kbucket.DefaultBucketSize
	}
	if c.ProvideValidity <= 0 {
		c.ProvideValidity = provider.DefaultProvideValidity
	}
	if c.Logger == nil {
		c.Logger = logging.Nop()
	}
}

// Server dispatches inbound DHT streams to the per-message handlers from
// spec.md §4.7's table.
type Server struct {
	cfg ServerConfig
}

// NewServer registers protocol handlers on cfg.Host and returns the server.
func NewServer(cfg ServerConfig) *Server {
	cfg.setDefaults()
	s := &Server{cfg: cfg}
	cfg.Host.SetStreamHandler(ProtocolID, s.handleStream)
	return s
}

func (s *Server) handleStream(stream host.Stream) {
	ctx := context.Background()
	raw, err := stream.Read(ctx)
	if err != nil {
		s.cfg.Logger.Debug("rpc: failed to read request", "peer", stream.RemotePeer(), "error", err)
		return
	}
	req := &pb.Message{}
	if err := req.Unmarshal(raw); err != nil {
		s.cfg.Logger.Debug("rpc: malformed request", "peer", stream.RemotePeer(), "error", err)
		return
	}

	sender := stream.RemotePeer()
	s.cfg.Routing.TryAdd(sender, true, true)

	resp, err := s.dispatch(ctx, sender, req)
	if err != nil {
		s.cfg.Logger.Debug("rpc: handler error", "peer", sender, "type", req.Type, "error", err)
		return
	}
	if resp == nil {
		return // ADD_PROVIDER: fire-and-forget, no response written.
	}
	if err := stream.Write(ctx, mustMarshal(resp)); err != nil {
		s.cfg.Logger.Debug("rpc: failed to write response", "peer", sender, "error", err)
	}
}

func mustMarshal(m *pb.Message) []byte {
	b, _ := m.Marshal()
	return b
}

func (s *Server) dispatch(ctx context.Context, sender host.PeerID, req *pb.Message) (*pb.Message, error) {
	switch req.Type {
	case pb.PING:
		return &pb.Message{Type: pb.PING}, nil
	case pb.FIND_NODE:
		return s.handleFindNode(sender, req)
	case pb.GET_VALUE:
		return s.handleGetValue(sender, req)
	case pb.PUT_VALUE:
		return s.handlePutValue(sender, req)
	case pb.GET_PROVIDERS:
		return s.handleGetProviders(sender, req)
	case pb.ADD_PROVIDER:
		return nil, s.handleAddProvider(sender, req)
	default:
		return nil, nil
	}
}

// closerPeers computes nearest(key, bucket_size) minus sender, resolving
// addresses from the peerstore and optionally filtering localhost
// (spec.md §4.7, §6.4 filter_localhost_in_responses).
func (s *Server) closerPeers(target key.Key, exclude host.PeerID) []*pb.Peer {
	var out []*pb.Peer
	for _, p := range s.cfg.Routing.Nearest(target, s.cfg.BucketSize) {
		if p == exclude || p == s.cfg.Host.ID() {
			continue
		}
		info, _ := s.cfg.Host.Peerstore().GetPeer(p)
		addrs := s.filterAddrs(info.Addrs)
		out = append(out, &pb.Peer{ID: []byte(p), Addrs: addrBytes(addrs)})
	}
	return out
}

func (s *Server) filterAddrs(addrs []host.Multiaddr) []host.Multiaddr {
	if !s.cfg.FilterLocalhostInResponses {
		return addrs
	}
	var out []host.Multiaddr
	for _, a := range addrs {
		if isLocalhost(a) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func addrBytes(addrs []host.Multiaddr) [][]byte {
	out := make([][]byte, len(addrs))
	for i, a := range addrs {
		out[i] = []byte(a)
	}
	return out
}

// isLocalhost does a best-effort sniff of a multiaddr's textual form for a
// loopback host component, since multiaddr parsing is out of scope
// (spec.md §1 Non-goals).
func isLocalhost(a host.Multiaddr) bool {
	s := string(a)
	for _, candidate := range []string{"127.", "::1", "localhost"} {
		if containsASCII(s, candidate) {
			return true
		}
	}
	if ip := net.ParseIP(s); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

func containsASCII(haystack, needle string) bool {
	if len(needle) == 0 || len(haystack) < len(needle) {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func (s *Server) handleFindNode(sender host.PeerID, req *pb.Message) (*pb.Message, error) {
	target := key.Of(req.Key)
	return &pb.Message{Type: pb.FIND_NODE, Key: req.Key, CloserPeers: s.closerPeers(target, sender)}, nil
}

func (s *Server) handleGetValue(sender host.PeerID, req *pb.Message) (*pb.Message, error) {
	resp := &pb.Message{Type: pb.GET_VALUE, Key: req.Key, CloserPeers: s.closerPeers(key.Of(req.Key), sender)}
	if raw, ok := s.cfg.Records.Get(string(req.Key)); ok {
		rec := &pb.Record{}
		if err := rec.Unmarshal(raw); err == nil {
			resp.Record = rec
		}
	}
	return resp, nil
}

func (s *Server) handlePutValue(sender host.PeerID, req *pb.Message) (*pb.Message, error) {
	if req.Record == nil {
		return nil, nil
	}
	raw, err := req.Record.Marshal()
	if err != nil {
		return nil, err
	}
	if err := s.cfg.Records.Put(s.cfg.Validator, string(req.Key), raw); err != nil {
		return nil, err
	}
	return &pb.Message{Type: pb.PUT_VALUE, Key: req.Key}, nil
}

func (s *Server) handleGetProviders(sender host.PeerID, req *pb.Message) (*pb.Message, error) {
	resp := &pb.Message{Type: pb.GET_PROVIDERS, Key: req.Key, CloserPeers: s.closerPeers(key.Of(req.Key), sender)}
	for _, p := range s.cfg.Providers.GetProviders(string(req.Key)) {
		resp.ProviderPeers = append(resp.ProviderPeers, &pb.Peer{ID: []byte(p.ID), Addrs: addrBytes(p.Addrs)})
	}
	return resp, nil
}

func (s *Server) handleAddProvider(sender host.PeerID, req *pb.Message) error {
	if len(req.ProviderPeers) == 0 {
		return nil
	}
	expires := time.Now().Add(s.cfg.ProvideValidity)
	for _, p := range req.ProviderPeers {
		addrs := make([]host.Multiaddr, len(p.Addrs))
		for i, a := range p.Addrs {
			addrs[i] = host.Multiaddr(a)
		}
		s.cfg.Providers.AddProvider(string(req.Key), host.PeerID(p.ID), addrs, expires)
	}
	return nil
}
