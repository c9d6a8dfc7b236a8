// Package main implements rulenet, a command that loads a rule network
// topology, materialises its segment and path memories in one or more engine
// instances and prints the resulting layout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/rulenet/agenda"
	"github.com/c360/rulenet/config"
	"github.com/c360/rulenet/linking"
	"github.com/c360/rulenet/linking/kvstore"
	"github.com/c360/rulenet/metric"
	"github.com/c360/rulenet/natsclient"
	"github.com/c360/rulenet/network"
	"github.com/c360/rulenet/pkg/cache"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "rulenet"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("rulenet failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cliCfg, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		return flag.ErrHelp
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	logger := setupLogger(stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	net, err := network.LoadFile(cliCfg.TopologyPath)
	if err != nil {
		return fmt.Errorf("load topology: %w", err)
	}
	logger.Info("Loaded topology",
		"network", net.ID(), "fingerprint", net.Fingerprint(), "nodes", net.Len())

	if cliCfg.Validate {
		logger.Info("Configuration and topology are valid")
		return nil
	}

	registry := metric.NewMetricsRegistry()
	registry.CoreMetrics().NetworksLoaded.Inc()
	linkMetrics, err := linking.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	var client *natsclient.Client
	if cfg.UsesNATS() {
		client, err = connectNATS(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Close(closeCtx); err != nil {
				logger.Warn("Closing NATS connection failed", "error", err)
			}
		}()
	}

	store, cacheStats, err := buildStore(ctx, cfg, client, registry, logger)
	if err != nil {
		return err
	}

	var notifier *agenda.NATSNotifier
	if cfg.Notify.Enabled {
		notifier, err = agenda.NewNATSNotifier(client, cfg.Notify.Subject,
			agenda.WithNotifierLogger(logger.With("component", "agenda")),
			agenda.WithPublishRate(cfg.Notify.RateLimit, cfg.Notify.Burst))
		if err != nil {
			return err
		}
	}

	instances := make([]*linking.Instance, 0, cfg.Linking.Instances)
	recorders := make([]*agenda.Recorder, 0, cfg.Linking.Instances)
	defer func() {
		for _, in := range instances {
			in.Close()
		}
	}()

	for i := 0; i < cfg.Linking.Instances; i++ {
		rec := &agenda.Recorder{}
		listener := agenda.Fanout{rec}
		if notifier != nil {
			listener = append(listener, notifier)
		}

		opts := []linking.Option{
			linking.WithLogger(logger.With("component", "linking")),
			linking.WithMetrics(linkMetrics),
			linking.WithListener(listener),
		}
		if store != nil {
			opts = append(opts, linking.WithPrototypeStore(store))
		}

		in := linking.NewInstance(net, opts...)
		instances = append(instances, in)
		recorders = append(recorders, rec)

		if err := in.MaterializeAll(); err != nil {
			return fmt.Errorf("materialise instance %s: %w", in.ID(), err)
		}
		if cliCfg.LinkAll {
			if err := linkAll(in); err != nil {
				return err
			}
		}
		logger.Info("Instance materialised",
			"instance", in.ID(), "segments", len(in.Segments()), "paths", len(in.Paths()))
	}

	report := buildReport(net, instances, recorders)
	if cacheStats != nil {
		summary := cacheStats.Summary()
		report.PrototypeCache = &summary
		logger.Debug("Prototype cache",
			"hits", summary.Hits, "misses", summary.Misses, "sets", summary.Sets,
			"size", summary.Size, "hit_ratio", summary.HitRatio)
	}
	if err := writeReport(stdout, report, cliCfg.Output); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if cliCfg.Serve && cfg.Metrics.Enabled {
		return serveMetrics(ctx, cfg.Metrics, registry, logger)
	}
	return nil
}

// loadConfig merges the config file, the environment and the command line.
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	if cliCfg.ConfigPath != "" {
		loader.AddLayer(cliCfg.ConfigPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cliCfg.LogLevel != "" {
		cfg.Logging.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Logging.Format = cliCfg.LogFormat
	}
	if cliCfg.Instances > 0 {
		cfg.Linking.Instances = cliCfg.Instances
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func connectNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*natsclient.Client, error) {
	client, err := natsclient.NewClient(cfg.NATS.URLs[0],
		natsclient.WithLogger(logger.With("component", "natsclient")),
		natsclient.WithTimeout(cfg.NATS.Timeout),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithName(cfg.NATS.Name),
		natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password),
		natsclient.WithToken(cfg.NATS.Token),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, cfg.NATS.Timeout)
	defer cancel()
	if err := client.Connect(connCtx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return client, nil
}

// buildStore returns a nil store when prototypes are not shared, and nil
// statistics when no process-local cache backs the store.
func buildStore(
	ctx context.Context,
	cfg *config.Config,
	client *natsclient.Client,
	registry *metric.MetricsRegistry,
	logger *slog.Logger,
) (linking.PrototypeStore, *cache.Statistics, error) {
	p := cfg.Linking.Prototypes
	var stats *cache.Statistics

	local := func() (linking.PrototypeStore, error) {
		c, err := cache.NewFromConfig[*linking.Prototype](p.Cache,
			cache.WithMetrics[*linking.Prototype](registry, "prototypes"))
		if err != nil {
			return nil, fmt.Errorf("create prototype cache: %w", err)
		}
		stats = c.Stats()
		return linking.NewCacheStore(c), nil
	}
	shared := func() (linking.PrototypeStore, error) {
		s, err := kvstore.Open(ctx, client, p.Bucket,
			kvstore.WithTimeout(p.Timeout),
			kvstore.WithLogger(logger.With("component", "kvstore")))
		if err != nil {
			return nil, fmt.Errorf("open prototype bucket: %w", err)
		}
		return s, nil
	}

	switch p.Mode {
	case config.PrototypeModeMemory:
		l, err := local()
		return l, stats, err
	case config.PrototypeModeKV:
		s, err := shared()
		return s, nil, err
	case config.PrototypeModeHybrid:
		l, err := local()
		if err != nil {
			return nil, nil, err
		}
		s, err := shared()
		if err != nil {
			return nil, nil, err
		}
		return linking.NewTieredStore(l, s), stats, nil
	default:
		return nil, nil, nil
	}
}

// linkAll links every node that carries link state.
func linkAll(in *linking.Instance) error {
	net := in.Network()
	for id := network.NodeID(0); int(id) < net.Len(); id++ {
		mem, ok := in.Memory(id)
		if !ok || mem.Bit == 0 || mem.Linked {
			continue
		}
		if err := in.LinkNode(id); err != nil {
			return fmt.Errorf("link node %d: %w", id, err)
		}
	}
	return nil
}

func serveMetrics(ctx context.Context, cfg config.MetricsConfig, registry *metric.MetricsRegistry, logger *slog.Logger) error {
	server := metric.NewServer(cfg.Port, cfg.Path, registry)
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		defer close(done)
		return server.Start()
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			logger.Info("Received shutdown signal")
			return server.Stop()
		case <-done:
			return nil
		}
	})
	logger.Info("Serving metrics", "address", server.Address())
	return g.Wait()
}
