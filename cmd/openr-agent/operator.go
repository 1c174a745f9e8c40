package main

import (
	"context"
	"sync"

	"github.com/openr-go/openr/internal/fib"
	"github.com/openr-go/openr/internal/kvstore"
	"github.com/openr-go/openr/internal/linkmonitor"
	"github.com/openr-go/openr/pkg/model"
	"github.com/openr-go/openr/pkg/platform"
)

// operatorServer composes the per-component operator surfaces into the
// single platform.OperatorServer an RPC transport binds to (spec §6):
// state-mutating calls go to Link-Monitor, where they are sequenced
// onto its event loop; read calls fan out across KV-Store and every
// area's Fib.
type operatorServer struct {
	monitor *linkmonitor.Monitor
	store   *kvstore.Store

	mu   sync.RWMutex
	fibs map[string]*fib.Fib
}

func newOperatorServer(monitor *linkmonitor.Monitor, store *kvstore.Store) *operatorServer {
	return &operatorServer{monitor: monitor, store: store, fibs: make(map[string]*fib.Fib)}
}

func (o *operatorServer) registerFib(areaID string, f *fib.Fib) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fibs[areaID] = f
}

func (o *operatorServer) SetNodeOverload(ctx context.Context, overloaded bool) error {
	return o.monitor.SetNodeOverload(ctx, overloaded)
}

func (o *operatorServer) SetInterfaceOverload(ctx context.Context, ifName string, overloaded bool) error {
	return o.monitor.SetInterfaceOverload(ctx, ifName, overloaded)
}

func (o *operatorServer) SetLinkMetric(ctx context.Context, ifName string, metric *uint32) error {
	return o.monitor.SetLinkMetric(ctx, ifName, metric)
}

func (o *operatorServer) SetAdjacencyMetric(ctx context.Context, ifName, nodeID string, metric *uint32) error {
	return o.monitor.SetAdjacencyMetric(ctx, ifName, nodeID, metric)
}

func (o *operatorServer) GetInterfaces(ctx context.Context) (platform.InterfaceDatabase, error) {
	return o.monitor.GetInterfaces(ctx)
}

func (o *operatorServer) GetAdjacencies(ctx context.Context, areaFilter string) ([]model.AdjacencyDatabase, error) {
	return o.monitor.GetAdjacencies(ctx, areaFilter)
}

func (o *operatorServer) GetKvStoreKeyVals(ctx context.Context, areaID string, keys []string) (map[string]model.Value, error) {
	out := make(map[string]model.Value, len(keys))
	for _, k := range keys {
		v, ok, err := o.store.GetKey(ctx, areaID, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

func (o *operatorServer) GetKvStoreHashes(ctx context.Context, areaID, keyPrefix string) (map[string]model.Value, error) {
	return o.store.DumpHashes(ctx, areaID, keyPrefix)
}

// DumpRoutes aggregates every area's programmed routes (spec §6).
func (o *operatorServer) DumpRoutes(ctx context.Context) ([]model.UnicastRoute, []model.MPLSRoute, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var unicast []model.UnicastRoute
	var mpls []model.MPLSRoute
	for _, f := range o.fibs {
		u, m := f.Programmed()
		unicast = append(unicast, u...)
		mpls = append(mpls, m...)
	}
	return unicast, mpls, nil
}

// GetCounters implements the SUPPLEMENTED counters-dump RPC, matching
// the teacher's counters-snapshot pattern. It reports two values, the
// number of programmed unicast and MPLS routes, counted from DumpRoutes
// at call time; these are not Prometheus metrics, and no other
// component's counters are included.
func (o *operatorServer) GetCounters(ctx context.Context) (map[string]int64, error) {
	unicast, mplsRoutes, _ := o.DumpRoutes(ctx)
	return map[string]int64{
		"fib.programmed_unicast_routes": int64(len(unicast)),
		"fib.programmed_mpls_routes":    int64(len(mplsRoutes)),
	}, nil
}
