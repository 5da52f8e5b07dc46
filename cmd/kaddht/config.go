package main

import (
	"os"
	"time"

	"github.com/naoina/toml"

	"github.com/aminokad/kaddht/dht"
	"github.com/aminokad/kaddht/dhterr"
)

// kaddhtConfig is the on-disk shape loaded by loadConfig, mirroring
// go-ethereum's cmd/geth gethConfig: a thin TOML struct overlaid by CLI
// flags rather than consumed directly by the rest of the program.
type kaddhtConfig struct {
	Node NodeConfig
	Demo DemoConfig
}

// NodeConfig holds the subset of spec.md §6.4's table a deployer is
// expected to tune; durations are TOML strings ("30s", "15m") parsed with
// time.ParseDuration, since naoina/toml has no opinion on time.Duration.
type NodeConfig struct {
	BucketSize                 int
	Concurrency                int
	Resiliency                 int
	QueryTimeout               string
	NetworkTimeout             string
	RefreshInterval            string
	AutoRefresh                bool
	FilterLocalhostInResponses bool
}

// DemoConfig controls the in-process simnet cluster cmd/kaddht brings up
// to exercise a real dht.Node, since no real transport is wired (package
// host documents that a production deployment supplies one).
type DemoConfig struct {
	NodeCount   int
	MetricsAddr string
}

func defaultKaddhtConfig() kaddhtConfig {
	return kaddhtConfig{
		Node: NodeConfig{
			BucketSize:                 20,
			Concurrency:                10,
			Resiliency:                 3,
			QueryTimeout:               "60s",
			NetworkTimeout:             "30s",
			RefreshInterval:            "15m",
			AutoRefresh:                true,
			FilterLocalhostInResponses: true,
		},
		Demo: DemoConfig{
			NodeCount:   4,
			MetricsAddr: "127.0.0.1:6060",
		},
	}
}

// loadConfig decodes a TOML file at path into cfg, in the same shape
// ethereum-go-ethereum/cmd/geth's loadConfig uses naoina/toml for.
func loadConfig(path string, cfg *kaddhtConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return dhterr.Wrap("cmd/kaddht", dhterr.CodeConfig, err)
	}
	defer f.Close()

	decoder := toml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return dhterr.Wrap("cmd/kaddht", dhterr.CodeConfig, err)
	}
	return nil
}

// toOptions renders NodeConfig into the functional options dht.New expects.
func (n NodeConfig) toOptions() ([]dht.Option, error) {
	query, err := time.ParseDuration(n.QueryTimeout)
	if err != nil {
		return nil, dhterr.Wrap("cmd/kaddht", dhterr.CodeConfig, err)
	}
	network, err := time.ParseDuration(n.NetworkTimeout)
	if err != nil {
		return nil, dhterr.Wrap("cmd/kaddht", dhterr.CodeConfig, err)
	}
	refresh, err := time.ParseDuration(n.RefreshInterval)
	if err != nil {
		return nil, dhterr.Wrap("cmd/kaddht", dhterr.CodeConfig, err)
	}

	return []dht.Option{
		dht.WithBucketSize(n.BucketSize),
		dht.WithConcurrency(n.Concurrency),
		dht.WithResiliency(n.Resiliency),
		dht.WithQueryTimeout(query),
		dht.WithNetworkTimeout(network),
		dht.WithRefreshInterval(refresh),
		dht.WithAutoRefresh(n.AutoRefresh),
		dht.WithFilterLocalhostInResponses(n.FilterLocalhostInResponses),
	}, nil
}
