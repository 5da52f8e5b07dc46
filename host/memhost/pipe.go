package memhost

import (
	"context"

	"github.com/aminokad/kaddht/host"
)

// pipeStream is one end of an in-memory duplex message pipe. Each Write on
// one end becomes a Read on the other, via a pair of buffered channels, so
// client and server run independently instead of lockstepping every call.
type pipeStream struct {
	proto  host.ProtocolID
	local  host.PeerID
	remote host.PeerID

	send chan []byte
	recv chan []byte
}

// newPipePair builds the two connected ends of a stream opened by dialer
// against listener. The pair shares two channels crossed so that
// clientSide.send feeds serverSide.recv and vice versa.
func newPipePair(proto host.ProtocolID, dialer, listener host.PeerID) (clientSide, serverSide *pipeStream) {
	aToB := make(chan []byte, 1)
	bToA := make(chan []byte, 1)
	clientSide = &pipeStream{proto: proto, local: dialer, remote: listener, send: aToB, recv: bToA}
	serverSide = &pipeStream{proto: proto, local: listener, remote: dialer, send: bToA, recv: aToB}
	return clientSide, serverSide
}

func (s *pipeStream) Write(ctx context.Context, msg []byte) error {
	cp := append([]byte(nil), msg...)
	select {
	case s.send <- cp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *pipeStream) Read(ctx context.Context) ([]byte, error) {
	select {
	case b := <-s.recv:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *pipeStream) Close() error                      { return nil }
func (s *pipeStream) Protocol() host.ProtocolID          { return s.proto }
func (s *pipeStream) RemotePeer() host.PeerID            { return s.remote }
func (s *pipeStream) RemoteMultiaddr() host.Multiaddr    { return host.Multiaddr("/memhost/" + s.remote) }
