// Package dht assembles the query coordinator, routing table, record and
// provider stores, and RPC client/server into the node described by
// spec.md §6.3, grounded on oascigil-go-libp2p-kad-dht/routing.go's
// IpfsDHT orchestrator (renamed Node here, and stripped of its eclipse-
// detection research code per spec.md's Non-goals — see DESIGN.md).
package dht

import (
	"time"

	"github.com/aminokad/kaddht/host"
	"github.com/aminokad/kaddht/kbucket"
	"github.com/aminokad/kaddht/logging"
	"github.com/aminokad/kaddht/provider"
	"github.com/aminokad/kaddht/record"
	"github.com/aminokad/kaddht/rpc"
)

// Mode controls whether the node serves RPCs (spec.md §6.4).
type Mode int

const (
	ModeAuto Mode = iota
	ModeClient
	ModeServer
)

// Config holds every recognized option from spec.md §6.4, set via
// functional options in the style of go-ethereum's node.Config/p2p.Config
// construction.
type Config struct {
	Mode Mode

	BucketSize  int
	Concurrency int
	Resiliency  int

	MaxRecordAge     time.Duration
	ProvideValidity  time.Duration
	ProviderAddrTTL  time.Duration

	NetworkTimeout time.Duration
	QueryTimeout   time.Duration

	MaxRetryAttempts  int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryBackoffFactor  float64

	RefreshInterval        time.Duration
	AutoRefresh            bool
	MaxLatency             time.Duration
	UsefulnessGracePeriod  time.Duration

	FilterLocalhostInResponses bool
	BootstrapPeers             []host.AddrInfo
	// DefaultBootstrapPeers backs spec.md §4.9's bootstrap phase 4 health
	// check: peers to fall back to when the routing table is still thinner
	// than Resiliency after seed connect, refresh, and discovery.
	DefaultBootstrapPeers []host.AddrInfo

	Logger logging.Logger
}

// Option mutates a Config during construction.
type Option func(*Config)

func WithMode(m Mode) Option                        { return func(c *Config) { c.Mode = m } }
func WithBucketSize(k int) Option                    { return func(c *Config) { c.BucketSize = k } }
func WithConcurrency(alpha int) Option               { return func(c *Config) { c.Concurrency = alpha } }
func WithResiliency(r int) Option                    { return func(c *Config) { c.Resiliency = r } }
func WithMaxRecordAge(d time.Duration) Option        { return func(c *Config) { c.MaxRecordAge = d } }
func WithProvideValidity(d time.Duration) Option     { return func(c *Config) { c.ProvideValidity = d } }
func WithProviderAddrTTL(d time.Duration) Option     { return func(c *Config) { c.ProviderAddrTTL = d } }
func WithNetworkTimeout(d time.Duration) Option      { return func(c *Config) { c.NetworkTimeout = d } }
func WithQueryTimeout(d time.Duration) Option        { return func(c *Config) { c.QueryTimeout = d } }
func WithMaxRetryAttempts(n int) Option              { return func(c *Config) { c.MaxRetryAttempts = n } }
func WithRetryBackoff(initial, max time.Duration, factor float64) Option {
	return func(c *Config) {
		c.RetryInitialBackoff = initial
		c.RetryMaxBackoff = max
		c.RetryBackoffFactor = factor
	}
}
func WithRefreshInterval(d time.Duration) Option { return func(c *Config) { c.RefreshInterval = d } }
func WithAutoRefresh(enabled bool) Option         { return func(c *Config) { c.AutoRefresh = enabled } }
func WithMaxLatency(d time.Duration) Option       { return func(c *Config) { c.MaxLatency = d } }
func WithUsefulnessGracePeriod(d time.Duration) Option {
	return func(c *Config) { c.UsefulnessGracePeriod = d }
}
func WithFilterLocalhostInResponses(enabled bool) Option {
	return func(c *Config) { c.FilterLocalhostInResponses = enabled }
}
func WithBootstrapPeers(peers ...host.AddrInfo) Option {
	return func(c *Config) { c.BootstrapPeers = peers }
}
func WithDefaultBootstrapPeers(peers ...host.AddrInfo) Option {
	return func(c *Config) { c.DefaultBootstrapPeers = peers }
}
func WithLogger(l logging.Logger) Option { return func(c *Config) { c.Logger = l } }

// defaultConfig matches the table in spec.md §6.4.
func defaultConfig() Config {
	return Config{
		Mode:                       ModeAuto,
		BucketSize:                 kbucket.DefaultBucketSize,
		Concurrency:                10,
		Resiliency:                 3,
		MaxRecordAge:               record.DefaultMaxRecordAge,
		ProvideValidity:            provider.DefaultProvideValidity,
		ProviderAddrTTL:            24 * time.Hour,
		NetworkTimeout:             30 * time.Second,
		QueryTimeout:               60 * time.Second,
		MaxRetryAttempts:           3,
		RetryInitialBackoff:        500 * time.Millisecond,
		RetryMaxBackoff:            30 * time.Second,
		RetryBackoffFactor:         2,
		RefreshInterval:            15 * time.Minute,
		AutoRefresh:                true,
		MaxLatency:                 10 * time.Second,
		UsefulnessGracePeriod:      kbucket.DefaultUsefulnessGracePeriod,
		FilterLocalhostInResponses: true,
		Logger:                     logging.NewDefault(),
	}
}

func newConfig(opts ...Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c Config) clientConfig() rpc.ClientConfig {
	return rpc.ClientConfig{
		NetworkTimeout:   c.NetworkTimeout,
		MaxRetryAttempts: c.MaxRetryAttempts,
		InitialBackoff:   c.RetryInitialBackoff,
		MaxBackoff:       c.RetryMaxBackoff,
		BackoffFactor:    c.RetryBackoffFactor,
		Logger:           c.Logger,
	}
}
