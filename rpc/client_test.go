package rpc

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aminokad/kaddht/dhterr"
	"github.com/aminokad/kaddht/host"
	"github.com/aminokad/kaddht/pb"
)

type fakeStream struct {
	writeErr error
	readResp []byte
	readErr  error
}

func (s *fakeStream) Write(ctx context.Context, msg []byte) error { return s.writeErr }
func (s *fakeStream) Read(ctx context.Context) ([]byte, error)    { return s.readResp, s.readErr }
func (s *fakeStream) Close() error                                { return nil }
func (s *fakeStream) Protocol() host.ProtocolID                   { return ProtocolID }
func (s *fakeStream) RemotePeer() host.PeerID                     { return "remote" }
func (s *fakeStream) RemoteMultiaddr() host.Multiaddr              { return nil }

type fakeHost struct {
	id           host.PeerID
	openStreamFn func(ctx context.Context, peer host.PeerID) (host.Stream, error)
	attempts     int
}

func (h *fakeHost) ID() host.PeerID { return h.id }
func (h *fakeHost) OpenStream(ctx context.Context, peer host.PeerID, protocols []host.ProtocolID, timeout time.Duration) (host.Stream, error) {
	h.attempts++
	return h.openStreamFn(ctx, peer)
}
func (h *fakeHost) SetStreamHandler(protocol host.ProtocolID, handler func(host.Stream)) {}
func (h *fakeHost) RemoveStreamHandler(protocol host.ProtocolID)                         {}
func (h *fakeHost) Connectedness(peer host.PeerID) host.Connectedness                    { return host.NotConnected }
func (h *fakeHost) Peerstore() host.PeerStore                                            { return nil }
func (h *fakeHost) KeyBook() host.KeyBook                                                { return nil }
func (h *fakeHost) ConnManager() host.ConnManager                                        { return nil }
func (h *fakeHost) LatencyMetrics() host.PeerLatencyMetrics                              { return nil }

func pingResponse(t *testing.T) []byte {
	t.Helper()
	b, err := (&pb.Message{Type: pb.PING}).Marshal()
	require.NoError(t, err)
	return b
}

func TestClientSendSucceedsFirstTry(t *testing.T) {
	h := &fakeHost{id: "local", openStreamFn: func(ctx context.Context, peer host.PeerID) (host.Stream, error) {
		return &fakeStream{readResp: pingResponse(t)}, nil
	}}
	c := NewClient(h, ClientConfig{MaxRetryAttempts: 2, InitialBackoff: time.Millisecond})
	resp, err := c.Send(context.Background(), "remote", &pb.Message{Type: pb.PING})
	require.NoError(t, err)
	assert.Equal(t, pb.PING, resp.Type)
	assert.Equal(t, 1, h.attempts)
}

func TestClientRetriesRetryableError(t *testing.T) {
	calls := 0
	h := &fakeHost{id: "local", openStreamFn: func(ctx context.Context, peer host.PeerID) (host.Stream, error) {
		calls++
		if calls < 3 {
			return nil, syscall.ECONNREFUSED
		}
		return &fakeStream{readResp: pingResponse(t)}, nil
	}}
	c := NewClient(h, ClientConfig{MaxRetryAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	resp, err := c.Send(context.Background(), "remote", &pb.Message{Type: pb.PING})
	require.NoError(t, err)
	assert.Equal(t, pb.PING, resp.Type)
	assert.Equal(t, 3, calls)
}

func TestClientExhaustsRetries(t *testing.T) {
	h := &fakeHost{id: "local", openStreamFn: func(ctx context.Context, peer host.PeerID) (host.Stream, error) {
		return nil, syscall.ECONNRESET
	}}
	c := NewClient(h, ClientConfig{MaxRetryAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	_, err := c.Send(context.Background(), "remote", &pb.Message{Type: pb.PING})
	require.Error(t, err)
	var maxRetries *dhterr.MaxRetriesExceeded
	require.ErrorAs(t, err, &maxRetries)
	assert.Equal(t, 3, maxRetries.Attempts)
	assert.Equal(t, 3, h.attempts)
}

func TestClientDoesNotRetryProtocolError(t *testing.T) {
	h := &fakeHost{id: "local", openStreamFn: func(ctx context.Context, peer host.PeerID) (host.Stream, error) {
		return &fakeStream{readResp: []byte{0xFF, 0xFF, 0xFF}}, nil // malformed
	}}
	c := NewClient(h, ClientConfig{MaxRetryAttempts: 3, InitialBackoff: time.Millisecond})
	_, err := c.Send(context.Background(), "remote", &pb.Message{Type: pb.PING})
	require.Error(t, err)
	assert.Equal(t, 1, h.attempts)
}

func TestClientRefusesSelfSend(t *testing.T) {
	h := &fakeHost{id: "local"}
	c := NewClient(h, ClientConfig{})
	_, err := c.Send(context.Background(), "local", &pb.Message{Type: pb.PING})
	require.Error(t, err)
	assert.True(t, errors.Is(err, dhterr.Protocol))
}
