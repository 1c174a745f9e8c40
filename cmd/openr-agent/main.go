// Command openr-agent wires together KV-Store, Link-Monitor,
// Prefix-Manager, Decision, and Fib into one running node (spec §2's
// component overview). Each component runs on its own goroutine,
// supervised by an errgroup, matching the "multiple components run in
// parallel threads" concurrency model (spec §5).
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/openr-go/openr/internal/decision"
	"github.com/openr-go/openr/internal/fib"
	"github.com/openr-go/openr/internal/kvstore"
	"github.com/openr-go/openr/internal/linkmonitor"
	"github.com/openr-go/openr/internal/prefixmanager"
	"github.com/openr-go/openr/pkg/config"
	"github.com/openr-go/openr/pkg/log"
	"github.com/openr-go/openr/pkg/model"
	"github.com/openr-go/openr/pkg/platform"
	"github.com/openr-go/openr/pkg/serrors"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var development bool

	cmd := &cobra.Command{
		Use:   "openr-agent",
		Short: "Run the routing agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Setup(development)
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "/etc/openr/openr.toml", "path to the agent's TOML configuration file")
	cmd.Flags().BoolVar(&development, "development", false, "use a human-readable development log encoder")
	return cmd
}

func run(ctx context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	areas, err := cfg.BuildAreaTable()
	if err != nil {
		return err
	}

	g, errCtx := errgroup.WithContext(ctx)

	store := kvstore.New(kvstore.Config{
		NodeID: cfg.NodeID,
		PeerClientDialer: func(spec platform.PeerSpec) platform.PeerClient {
			return unimplementedPeerClient{}
		},
	})
	g.Go(func() error {
		<-errCtx.Done()
		store.Close()
		return nil
	})
	for _, areaID := range areas.Areas() {
		areaCfg, _ := areas.Get(areaID)
		store.AddArea(areaID, areaCfg.KeyAccepted)
	}

	prefixMgr := prefixmanager.New(prefixmanager.Config{NodeID: cfg.NodeID, Areas: areas.Areas(), Store: store})

	cfgStore, err := linkmonitor.OpenConfigStore(cfg.LinkMon.ConfigStorePath)
	if err != nil {
		return err
	}
	g.Go(func() error {
		<-errCtx.Done()
		return cfgStore.Close()
	})

	monitor, err := linkmonitor.NewMonitor(linkmonitor.Config{
		NodeID:            cfg.NodeID,
		Areas:             areas,
		Store:             store,
		Prefixes:          prefixMgr,
		ConfigStore:       cfgStore,
		AssumeDrained:     cfg.LinkMon.AssumeDrained,
		UseRTTMetric:      cfg.LinkMon.UseRTTMetric,
		AdvertiseThrottle: cfg.LinkMon.AdvertiseThrottle,
		StartupHold:       cfg.LinkMon.StartupHold,
		BackoffInitial:    cfg.LinkMon.BackoffInitial,
		BackoffMax:        cfg.LinkMon.BackoffMax,
	})
	if err != nil {
		return err
	}
	g.Go(func() error {
		<-errCtx.Done()
		monitor.Close()
		return nil
	})

	operator := newOperatorServer(monitor, store)

	for _, areaID := range areas.Areas() {
		areaID := areaID
		engine := decision.NewEngine(decision.Config{
			NodeID:         cfg.NodeID,
			AreaID:         areaID,
			DebounceWindow: cfg.Decision.DebounceWindow,
		})
		fibber := fib.New(fib.Config{
			AreaID:      areaID,
			Programmer:  unimplementedRouteProgrammer{},
			ResyncEvery: cfg.Fib.ResyncInterval,
			RetryMax:    cfg.Fib.RetryMax,
		})
		operator.registerFib(areaID, fibber)

		pubs, err := store.Publications(areaID)
		if err != nil {
			return err
		}

		g.Go(func() error {
			defer log.HandlePanic()
			defer engine.Close()
			for {
				select {
				case pub, ok := <-pubs.Chan():
					if !ok {
						return nil
					}
					engine.ApplyPublication(pub)
				case <-errCtx.Done():
					return nil
				}
			}
		})
		g.Go(func() error {
			defer fibber.Close()
			fibber.RunFromBus(errCtx, engine.Deltas())
			return nil
		})
	}

	g.Go(func() error { return serveMetrics(errCtx, cfg.Metrics.ListenAddr) })

	// operator is the platform.OperatorServer a real RPC transport binds
	// to (spec §6, §1 "TLS/RPC transports ... external collaborators");
	// wiring that transport is out of scope here.
	log.Info("agent started", "node", cfg.NodeID, "areas", areas.Areas(), "operator_ready", operator != nil)
	return g.Wait()
}

func serveMetrics(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}),
	))
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		defer log.HandlePanic()
		<-ctx.Done()
		server.Close()
	}()

	log.Info("exporting prometheus metrics", "addr", addr)
	err := server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return serrors.Wrap("serving prometheus metrics", err)
	}
	return nil
}

// unimplementedPeerClient/unimplementedRouteProgrammer stand in for the
// Spark/netlink/kernel-FIB transports spec §1 declares out of scope;
// wiring a real transport only requires satisfying platform.PeerClient
// / platform.RouteProgrammer.
type unimplementedPeerClient struct{}

func (unimplementedPeerClient) GetKeyHashes(ctx context.Context, areaID, keyPrefix string) (map[string]model.Value, error) {
	return nil, serrors.New("peer RPC transport not wired")
}

func (unimplementedPeerClient) GetKeyValues(ctx context.Context, areaID string, keys []string) (map[string]model.Value, error) {
	return nil, serrors.New("peer RPC transport not wired")
}

func (unimplementedPeerClient) FloodPublication(ctx context.Context, pub model.Publication) error {
	return serrors.New("peer RPC transport not wired")
}

type unimplementedRouteProgrammer struct{}

func (unimplementedRouteProgrammer) AddUnicastRoutes(ctx context.Context, routes []model.UnicastRoute) error {
	return serrors.New("route programmer transport not wired")
}

func (unimplementedRouteProgrammer) DeleteUnicastRoutes(ctx context.Context, prefixes []string) error {
	return serrors.New("route programmer transport not wired")
}

func (unimplementedRouteProgrammer) AddMPLSRoutes(ctx context.Context, routes []model.MPLSRoute) error {
	return serrors.New("route programmer transport not wired")
}

func (unimplementedRouteProgrammer) DeleteMPLSRoutes(ctx context.Context, labels []uint32) error {
	return serrors.New("route programmer transport not wired")
}

func (unimplementedRouteProgrammer) SyncFib(ctx context.Context, unicast []model.UnicastRoute, mpls []model.MPLSRoute) error {
	return serrors.New("route programmer transport not wired")
}
