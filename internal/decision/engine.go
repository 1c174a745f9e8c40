package decision

import (
	"sync"
	"time"

	"github.com/openr-go/openr/pkg/bus"
	"github.com/openr-go/openr/pkg/log"
	"github.com/openr-go/openr/pkg/model"
	"github.com/openr-go/openr/pkg/throttle"
	"github.com/openr-go/openr/pkg/wire"
)

// Config configures one area's Engine.
type Config struct {
	NodeID string
	AreaID string
	// DebounceWindow bounds how long the engine waits after the first
	// LSDB change before running SPF, coalescing a burst of publications
	// into one run (spec §4.4 "debounced: a burst of LSDB changes yields
	// one SPF run").
	DebounceWindow time.Duration
}

// Engine owns one area's LSDB and SPF/route pipeline: it consumes
// KV-Store publications through ApplyPublication and produces
// RouteDatabaseDelta values for Fib (spec §4.4, §5). ApplyPublication
// mutates the LSDB on the caller's goroutine under mu; SPF and route
// computation run on the engine's own goroutine against a snapshot
// taken under the same lock.
type Engine struct {
	cfg Config
	log log.Logger

	lsdb  *LSDB
	debounce *throttle.Debouncer

	mu   sync.Mutex
	prev RouteDatabase

	deltas *bus.Queue[model.RouteDatabaseDelta]

	recompute chan struct{}
	closeCh   chan struct{}
}

// NewEngine constructs an Engine and starts its goroutine.
func NewEngine(cfg Config) *Engine {
	if cfg.DebounceWindow == 0 {
		cfg.DebounceWindow = 100 * time.Millisecond
	}
	e := &Engine{
		cfg:       cfg,
		log:       log.Root().With("area", cfg.AreaID, "component", "decision"),
		lsdb:      NewLSDB(),
		prev:      newRouteDatabase(),
		deltas:    bus.NewQueue[model.RouteDatabaseDelta](),
		recompute: make(chan struct{}, 1),
		closeCh:   make(chan struct{}),
	}
	e.debounce = throttle.New(cfg.DebounceWindow, e.requestRecompute)
	go e.run()
	return e
}

// Deltas returns a reader of this engine's computed route deltas.
func (e *Engine) Deltas() *bus.Reader[model.RouteDatabaseDelta] {
	return e.deltas.Reader()
}

// Close stops the engine's goroutine and the underlying queue.
func (e *Engine) Close() {
	close(e.closeCh)
	e.debounce.Close()
	e.deltas.Close()
}

func (e *Engine) requestRecompute() {
	select {
	case e.recompute <- struct{}{}:
	default:
	}
}

func (e *Engine) run() {
	defer log.HandlePanic()
	for {
		select {
		case <-e.recompute:
			e.recomputeRoutes()
		case <-e.closeCh:
			return
		}
	}
}

// ApplyPublication folds one KV-Store publication into the LSDB and
// arms the SPF debounce if anything actually changed (spec §4.4: only
// a real LSDB change triggers a recompute).
func (e *Engine) ApplyPublication(pub model.Publication) {
	e.mu.Lock()
	defer e.mu.Unlock()
	changed := false
	for key, v := range pub.KeyVals {
		if v.IsTTLRefresh() {
			continue // a ttl-refresh never changes topology/prefix content
		}
		if node, ok := model.ParseAdjKey(key); ok {
			adb, err := wire.DecodeAdjacencyDatabase(v.Data)
			if err != nil {
				e.log.Warn("dropping malformed adjacency database", "node", node, "err", err)
				continue
			}
			if e.lsdb.UpdateAdjacency(node, v.Version, adb) {
				changed = true
			}
			continue
		}
		if node, _, encoded, ok := model.ParsePrefixKey(key); ok {
			pe, err := wire.DecodePrefixEntry(v.Data)
			if err != nil {
				e.log.Warn("dropping malformed prefix entry", "node", node, "prefix", encoded, "err", err)
				continue
			}
			if e.lsdb.UpdatePrefix(node, encoded, v.Version, pe) {
				changed = true
			}
		}
	}
	for _, key := range pub.ExpiredKeys {
		if node, ok := model.ParseAdjKey(key); ok {
			e.lsdb.RemoveNode(node)
			changed = true
			continue
		}
		if node, _, encoded, ok := model.ParsePrefixKey(key); ok {
			e.lsdb.RemovePrefix(node, encoded)
			changed = true
		}
	}
	if changed {
		e.debounce.Request()
	}
}

func (e *Engine) recomputeRoutes() {
	e.mu.Lock()
	g := e.lsdb.Snapshot()
	e.mu.Unlock()
	spf := RunSPF(g, e.cfg.NodeID)
	owners := BestPrefixOwners(g)

	nodeLabels := make(map[string]uint32, len(g.Nodes))
	for id, n := range g.Nodes {
		nodeLabels[id] = n.NodeLabel
	}

	next := ComputeRoutes(g, e.cfg.NodeID, spf, owners, nodeLabels)

	e.mu.Lock()
	delta := Diff(e.cfg.AreaID, e.prev, next)
	e.prev = next
	e.mu.Unlock()

	if len(delta.UnicastRoutesAdded) == 0 && len(delta.UnicastRoutesRemoved) == 0 &&
		len(delta.MPLSRoutesAdded) == 0 && len(delta.MPLSRoutesRemoved) == 0 {
		return
	}
	e.deltas.Push(delta)
}
