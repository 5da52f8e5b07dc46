// Command kaddht is the reference harness for package dht: it loads a
// naoina/toml config file, overlays urfave/cli/v2 flags, and brings up an
// in-process cluster of dht.Node instances over host/memhost (package host
// documents that a production deployment supplies a real transport; this
// binary is the dev/debug harness, not that deployment) bootstrapped into
// a chain, with the first node's metrics exposed over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/aminokad/kaddht/dht"
	"github.com/aminokad/kaddht/host"
	"github.com/aminokad/kaddht/internal/simnet"
	"github.com/aminokad/kaddht/logging"
	"github.com/aminokad/kaddht/metrics"
	"github.com/aminokad/kaddht/record"
)

func main() {
	app := &cli.App{
		Name:  "kaddht",
		Usage: "run an in-process kademlia DHT cluster for local development",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a TOML config file"},
			&cli.IntFlag{Name: "nodes", Usage: "override demo.node_count"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "override demo.metrics_addr"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "kaddht:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := defaultKaddhtConfig()
	if path := c.String("config"); path != "" {
		if err := loadConfig(path, &cfg); err != nil {
			return err
		}
	}
	if n := c.Int("nodes"); n > 0 {
		cfg.Demo.NodeCount = n
	}
	if addr := c.String("metrics-addr"); addr != "" {
		cfg.Demo.MetricsAddr = addr
	}
	if cfg.Demo.NodeCount < 1 {
		cfg.Demo.NodeCount = 1
	}

	logger := logging.NewDefault()
	opts, err := cfg.Node.toOptions()
	if err != nil {
		return err
	}
	opts = append(opts, dht.WithLogger(logger))

	cluster := simnet.NewCluster()
	defer cluster.Close()

	validator := record.NamespacedValidator{}
	ids := make([]host.PeerID, cfg.Demo.NodeCount)
	for i := range ids {
		ids[i] = host.PeerID(fmt.Sprintf("node-%d", i))
	}

	for i, id := range ids {
		nodeOpts := append([]dht.Option(nil), opts...)
		if i > 0 {
			nodeOpts = append(nodeOpts, dht.WithBootstrapPeers(simnet.SeedOf(ids[i-1])))
		}
		if _, err := cluster.Spawn(id, validator, nodeOpts...); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for i, id := range ids {
		if i == 0 {
			continue
		}
		if err := cluster.Node(id).Bootstrap(ctx); err != nil {
			logger.Warn("kaddht: bootstrap failed", "node", id, "error", err)
		}
	}
	logger.Info("kaddht: cluster started", "nodes", len(ids))

	srv := metrics.NewServer(cluster.Node(ids[0]).Metrics(), metrics.DefaultPushInterval, logger)
	mux := http.NewServeMux()
	mux.Handle("/metrics", srv)
	httpSrv := &http.Server{Addr: cfg.Demo.MetricsAddr, Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("kaddht: metrics server failed", "error", err)
		}
	}()
	logger.Info("kaddht: metrics server listening", "addr", cfg.Demo.MetricsAddr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return httpSrv.Shutdown(shutdownCtx)
}
