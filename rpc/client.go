// Package rpc implements the wire-level client/server halves of the six DHT
// RPCs (spec.md §4.7): send-with-retry on the client side, message
// dispatch on the server side. Grounded on
// oascigil-go-libp2p-kad-dht/routing.go's messageSenderImpl retry loop
// (the same package's dht.go historically wraps this as
// `*messageSenderImpl.SendRequest`).
package rpc

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/aminokad/kaddht/dhterr"
	"github.com/aminokad/kaddht/host"
	"github.com/aminokad/kaddht/logging"
	"github.com/aminokad/kaddht/pb"
)

const ProtocolID host.ProtocolID = "/ipfs/kad/1.0.0"

// ClientConfig parameterizes send-with-retry (spec.md §4.7, §6.4).
type ClientConfig struct {
	NetworkTimeout   time.Duration
	MaxRetryAttempts int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	BackoffFactor    float64
	Logger           logging.Logger
}

func (c *ClientConfig) setDefaults() {
	if c.NetworkTimeout <= 0 {
		c.NetworkTimeout = 30 * time.Second
	}
	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = 2
	}
	if c.Logger == nil {
		c.Logger = logging.Nop()
	}
}

// Client sends requests and applies the retry policy from spec.md §4.7.
type Client struct {
	h   host.Host
	cfg ClientConfig
}

// NewClient wraps h with cfg's retry policy.
func NewClient(h host.Host, cfg ClientConfig) *Client {
	cfg.setDefaults()
	return &Client{h: h, cfg: cfg}
}

// Send dials peer, writes msg, and (unless msg is ADD_PROVIDER) reads one
// response, retrying retryable errors per the configured backoff schedule.
func (c *Client) Send(ctx context.Context, peer host.PeerID, msg *pb.Message) (*pb.Message, error) {
	if peer == c.h.ID() {
		return nil, dhterr.New("rpc", dhterr.CodeProtocol, "refusing to send to self")
	}

	backoff := c.cfg.InitialBackoff
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetryAttempts; attempt++ {
		resp, err := c.attempt(ctx, peer, msg)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !dhterr.IsRetryable(err) {
			return nil, err
		}
		if attempt == c.cfg.MaxRetryAttempts {
			break
		}
		c.cfg.Logger.Debug("rpc: retrying", "peer", peer, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, dhterr.Wrap("rpc", dhterr.CodeCancelled, ctx.Err())
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * c.cfg.BackoffFactor)
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
	return nil, &dhterr.MaxRetriesExceeded{Attempts: c.cfg.MaxRetryAttempts + 1, Cause: lastErr}
}

func (c *Client) attempt(ctx context.Context, peer host.PeerID, msg *pb.Message) (*pb.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.NetworkTimeout)
	defer cancel()

	stream, err := c.h.OpenStream(ctx, peer, []host.ProtocolID{ProtocolID}, c.cfg.NetworkTimeout)
	if err != nil {
		return nil, dhterr.Wrap("rpc", classifyDialError(err), err)
	}
	defer stream.Close()

	wire, err := msg.Marshal()
	if err != nil {
		return nil, dhterr.Wrap("rpc", dhterr.CodeProtocol, err)
	}
	if err := stream.Write(ctx, wire); err != nil {
		return nil, dhterr.Wrap("rpc", classifyDialError(err), err)
	}
	if msg.Type == pb.ADD_PROVIDER {
		return nil, nil
	}

	raw, err := stream.Read(ctx)
	if err != nil {
		return nil, dhterr.Wrap("rpc", classifyDialError(err), err)
	}
	resp := &pb.Message{}
	if err := resp.Unmarshal(raw); err != nil {
		return nil, dhterr.Wrap("rpc", dhterr.CodeProtocol, err)
	}
	if resp.Type != msg.Type {
		return nil, dhterr.New("rpc", dhterr.CodeProtocol, "unexpected response type %s for request %s", resp.Type, msg.Type)
	}
	return resp, nil
}

// classifyDialError maps a transport error to the retryable/non-retryable
// taxonomy from spec.md §4.7: connection refused/reset, broken pipe, host
// down, and generic timeouts are retryable Network/Timeout errors;
// anything else is treated as a non-retryable Protocol error.
func classifyDialError(err error) dhterr.Code {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return dhterr.CodeTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return dhterr.CodeTimeout
	}
	if errors.Is(err, context.Canceled) {
		return dhterr.CodeCancelled
	}
	if errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.EHOSTDOWN) {
		return dhterr.CodeNetwork
	}
	return dhterr.CodeProtocol
}
