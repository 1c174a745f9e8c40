package linkmonitor

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/openr-go/openr/pkg/areatable"
	"github.com/openr-go/openr/pkg/bus"
	"github.com/openr-go/openr/pkg/log"
	"github.com/openr-go/openr/pkg/model"
	"github.com/openr-go/openr/pkg/platform"
	"github.com/openr-go/openr/pkg/serrors"
	"github.com/openr-go/openr/pkg/throttle"
	"github.com/openr-go/openr/pkg/wire"
)

// KvStoreWriter and PeerUpdater are the subset of KV-Store's API
// Link-Monitor drives: publishing its own adjacency database, and
// adding/removing per-area peer sessions derived from adjacencies.
type KvStoreWriter interface {
	SetKeys(ctx context.Context, areaID string, kvs map[string]model.Value) error
	AddPeer(ctx context.Context, areaID, name string, spec platform.PeerSpec) error
	DelPeer(ctx context.Context, areaID, name string) error
}

// PrefixSyncer is the subset of Prefix-Manager's API used to
// redistribute interface addresses (spec §4.2 "Redistribution").
type PrefixSyncer interface {
	SyncPrefixesByType(ctx context.Context, typ model.PrefixType, entries []model.PrefixEntry) error
}

// Config configures a Monitor for one node.
type Config struct {
	NodeID        string
	Areas         *areatable.Table
	Store         KvStoreWriter
	Prefixes      PrefixSyncer
	ConfigStore   *ConfigStore
	AssumeDrained bool
	UseRTTMetric  bool

	AdvertiseThrottle time.Duration // kLinkThrottleTimeout
	StartupHold       time.Duration
	BackoffInitial    time.Duration
	BackoffMax        time.Duration

	NextVersion func() int64
}

// Monitor is Link-Monitor's event-loop-owned state (spec §4.2). All
// mutation happens inside run, driven off the Spark/netlink event
// readers and the operator command channel; no field here needs a
// lock (spec §5).
type Monitor struct {
	cfg Config
	log log.Logger

	ifs   *Interfaces
	state LinkMonitorState

	advertise *throttle.Debouncer
	startedAt time.Time

	peers map[string]map[string]platform.PeerSpec // area -> nodeID -> spec

	cmds    chan func()
	closeCh chan struct{}

	mu          sync.Mutex
	lastAdvertised map[string]model.AdjacencyDatabase // areaID -> last published
}

// NewMonitor constructs a Monitor, loading persisted state if present,
// and starts its event loop.
func NewMonitor(cfg Config) (*Monitor, error) {
	if cfg.AdvertiseThrottle == 0 {
		cfg.AdvertiseThrottle = 500 * time.Millisecond
	}
	if cfg.BackoffInitial == 0 {
		cfg.BackoffInitial = time.Second
	}
	if cfg.BackoffMax == 0 {
		cfg.BackoffMax = 5 * time.Minute
	}
	if cfg.NextVersion == nil {
		var counter int64
		cfg.NextVersion = func() int64 {
			counter++
			return counter
		}
	}

	state := NewLinkMonitorState(cfg.AssumeDrained)
	if cfg.ConfigStore != nil {
		if loaded, ok, err := cfg.ConfigStore.Load(); err != nil {
			return nil, err
		} else if ok {
			state = loaded
		}
	}

	m := &Monitor{
		cfg:            cfg,
		log:            log.Root().With("node", cfg.NodeID, "component", "linkmonitor"),
		ifs:            NewInterfaces(),
		state:          state,
		peers:          map[string]map[string]platform.PeerSpec{},
		cmds:           make(chan func(), 64),
		closeCh:        make(chan struct{}),
		lastAdvertised: map[string]model.AdjacencyDatabase{},
		startedAt:      time.Now(),
	}
	m.advertise = throttle.New(cfg.AdvertiseThrottle, func() { m.call(m.doAdvertise) })
	if cfg.StartupHold > 0 {
		time.AfterFunc(cfg.StartupHold, func() { m.call(m.doAdvertise) })
	}
	go m.run()
	return m, nil
}

// Close stops the event loop.
func (m *Monitor) Close() {
	close(m.closeCh)
	m.advertise.Close()
}

// call enqueues fn onto the event loop and blocks until it runs.
func (m *Monitor) call(fn func()) {
	done := make(chan struct{})
	select {
	case m.cmds <- func() { fn(); close(done) }:
	case <-m.closeCh:
		return
	}
	<-done
}

func (m *Monitor) run() {
	defer log.HandlePanic()
	for {
		select {
		case fn := <-m.cmds:
			fn()
		case <-m.closeCh:
			return
		}
	}
}

// HandleSparkEvent processes one neighbor-discovery event (spec §4.2's
// adjacency state machine).
func (m *Monitor) HandleSparkEvent(ev platform.SparkNeighborEvent) {
	m.call(func() {
		res := m.ifs.ApplySparkEvent(ev, time.Now())
		if !res.Changed {
			return
		}
		m.rederivePeers()
		if res.ImmediateKvPeerChange {
			m.doAdvertise()
		} else {
			m.advertise.Request()
		}
	})
}

// HandleNetlinkEvent processes one kernel link or address event: link
// events track the kernel interface table and flap backoff; address
// events track per-interface address sets and trigger redistribution
// of global-unicast addresses to Prefix-Manager (spec §4.2).
func (m *Monitor) HandleNetlinkEvent(ev platform.NetlinkEvent) {
	m.call(func() {
		switch ev.Type {
		case platform.NetlinkEventLink:
			m.applyLinkEvent(ev)
		case platform.NetlinkEventAddr:
			m.applyAddrEvent(ev)
		}
	})
}

// applyLinkEvent updates the kernel-interface table's up/down bit and
// ifindex, and tracks flap backoff off the transition (spec §4.2,
// §3 "Interface entry"). Must run on the event loop.
func (m *Monitor) applyLinkEvent(ev platform.NetlinkEvent) {
	if ev.Link == nil {
		return
	}
	attrs := ev.Link.Attrs()
	isUp := attrs.OperState.String() != "down"
	m.ifs.ApplyLink(attrs.Name, attrs.Index, isUp)
	if isUp {
		m.ifs.RecordStability(attrs.Name)
	} else {
		m.ifs.RecordFlap(attrs.Name, time.Now(), m.cfg.BackoffInitial, m.cfg.BackoffMax)
	}
}

// applyAddrEvent tracks one interface's address-set change and, for a
// global-unicast address on a redistribute-eligible interface,
// resyncs the full loopback-prefix set to Prefix-Manager (spec §4.2
// "Redistribution": "Global-unicast addresses discovered on interfaces
// whose name matches an area's redistribute-regex are emitted to the
// Prefix-Manager as LOOPBACK-type prefixes, tagged with interface
// name"). Must run on the event loop.
func (m *Monitor) applyAddrEvent(ev platform.NetlinkEvent) {
	if ev.Addr == nil {
		return
	}
	prefix, ok := addrToPrefix(ev.Addr.LinkAddress)
	if !ok || !prefix.Addr().IsGlobalUnicast() {
		return
	}
	ifName, changed := m.ifs.ApplyAddr(ev.Addr.LinkIndex, prefix, ev.Addr.NewAddr)
	if ifName == "" || !changed {
		return
	}
	if m.cfg.Areas == nil || len(m.cfg.Areas.AreasForRedistribute(ifName)) == 0 {
		return
	}
	m.syncRedistributedPrefixes()
}

// syncRedistributedPrefixes rebuilds the full set of redistributable
// loopback prefixes from every tracked interface's current address set
// and replaces Prefix-Manager's LOOPBACK-type set in one call; its own
// per-area publication resolves add/remove atomically per area (spec
// §4.2 "one sync-by-type request per area resolves add/remove
// atomically"). Must run on the event loop.
func (m *Monitor) syncRedistributedPrefixes() {
	if m.cfg.Prefixes == nil || m.cfg.Areas == nil {
		return
	}
	var entries []model.PrefixEntry
	for _, st := range m.ifs.IfaceSnapshot() {
		areas := m.cfg.Areas.AreasForRedistribute(st.Name)
		if len(areas) == 0 {
			continue
		}
		for prefix := range st.Addresses {
			entries = append(entries, model.PrefixEntry{
				Prefix:    prefix,
				Type:      model.PrefixTypeLoopback,
				Tags:      map[string]struct{}{st.Name: {}},
				AreaStack: areas,
			})
		}
	}
	if err := m.cfg.Prefixes.SyncPrefixesByType(context.Background(), model.PrefixTypeLoopback, entries); err != nil {
		m.log.Warn("failed to sync redistributed prefixes", "err", err)
	}
}

// addrToPrefix converts a netlink AddrUpdate's IPNet into a netip.Prefix.
func addrToPrefix(ipNet net.IPNet) (netip.Prefix, bool) {
	addr, ok := netip.AddrFromSlice(ipNet.IP)
	if !ok {
		return netip.Prefix{}, false
	}
	addr = addr.Unmap()
	ones, bits := ipNet.Mask.Size()
	if bits == 0 {
		return netip.Prefix{}, false
	}
	return netip.PrefixFrom(addr, ones), true
}

// RunFromBus drains SparkNeighborEvent and NetlinkEvent readers until
// either is closed, dispatching each onto the event loop. Intended to
// be run in its own goroutine per input stream.
func (m *Monitor) RunFromBus(ctx context.Context, spark *bus.Reader[platform.SparkNeighborEvent], netlink *bus.Reader[platform.NetlinkEvent]) {
	defer log.HandlePanic()
	for {
		select {
		case ev, ok := <-spark.Chan():
			if !ok {
				return
			}
			m.HandleSparkEvent(ev)
		case ev, ok := <-netlink.Chan():
			if !ok {
				return
			}
			m.HandleNetlinkEvent(ev)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) rederivePeers() {
	next := DerivePeers(m.ifs.Snapshot(), m.ifs, time.Now())

	for areaID, byNode := range m.peers {
		for nodeID := range byNode {
			if _, ok := next[areaID][nodeID]; !ok {
				if m.cfg.Store != nil {
					_ = m.cfg.Store.DelPeer(context.Background(), areaID, nodeID)
				}
			}
		}
	}
	for areaID, byNode := range next {
		for nodeID, spec := range byNode {
			if old, ok := m.peers[areaID][nodeID]; !ok || old != spec {
				if m.cfg.Store != nil {
					_ = m.cfg.Store.AddPeer(context.Background(), areaID, nodeID, spec)
				}
			}
		}
	}
	m.peers = next
}

// doAdvertise builds and publishes the local AdjacencyDatabase for
// every area on each call, without comparing it to the last one
// published (spec §4.2 "Advertise"). Until the startup hold has
// elapsed it returns without publishing.
func (m *Monitor) doAdvertise() {
	if m.cfg.Store == nil || m.cfg.Areas == nil {
		return
	}
	if time.Since(m.startedAt) < m.cfg.StartupHold {
		// Startup hold timer not yet elapsed (spec §4.2): defer the first
		// advertisement until initial discovery has had a chance to settle.
		return
	}
	byArea := map[string][]model.Adjacency{}
	for _, a := range m.ifs.Snapshot() {
		if a.Restarting || m.ifs.InBackoff(a.Key.IfName, time.Now()) {
			continue
		}
		useRTT := m.cfg.UseRTTMetric
		metric := Metric(a, useRTT, m.state)
		byArea[a.AreaID] = append(byArea[a.AreaID], model.Adjacency{
			OtherNodeName:   a.Key.NodeID,
			LocalIfName:     a.Key.IfName,
			RemoteIfName:    a.RemoteIfName,
			NextHopV4:       v4Of(a.TransportAddr),
			NextHopV6:       v6Of(a.TransportAddr),
			Metric:          metric,
			IsOverloaded:    IsLinkOverloaded(a, m.state),
			RTTMicroseconds: a.RTT.Microseconds(),
			Timestamp:       a.LastUpdate,
		})
	}

	for _, areaID := range m.cfg.Areas.Areas() {
		adb := model.AdjacencyDatabase{
			ThisNodeName: m.cfg.NodeID,
			NodeLabel:    m.state.NodeLabel,
			IsOverloaded: m.state.IsOverloaded,
			AreaID:       areaID,
			Adjacencies:  byArea[areaID],
		}
		v := model.Value{
			Version:      m.cfg.NextVersion(),
			OriginatorID: m.cfg.NodeID,
			Data:         wire.EncodeAdjacencyDatabase(adb),
			TTL:          model.TTLInfinity,
		}.WithHash()

		key := model.AdjKey(m.cfg.NodeID)
		if err := m.cfg.Store.SetKeys(context.Background(), areaID, map[string]model.Value{key: v}); err != nil {
			m.log.Warn("failed to publish adjacency database", "area", areaID, "err", err)
			continue
		}
		m.mu.Lock()
		m.lastAdvertised[areaID] = adb
		m.mu.Unlock()
	}
}

func v4Of(addr string) string {
	a, err := netip.ParseAddr(addr)
	if err != nil || !a.Is4() {
		return ""
	}
	return a.String()
}

func v6Of(addr string) string {
	a, err := netip.ParseAddr(addr)
	if err != nil || !a.Is6() {
		return ""
	}
	return a.String()
}

// persist saves m.state through the config store before returning to
// the caller (spec §4.2 "Drain": "state is persisted before the
// response is returned").
func (m *Monitor) persist() error {
	if m.cfg.ConfigStore == nil {
		return nil
	}
	if err := m.cfg.ConfigStore.Save(m.state); err != nil {
		return serrors.Wrap("persist link-monitor state", err)
	}
	return nil
}

// SetNodeOverload implements platform.OperatorServer: overload changes
// re-advertise immediately, not through the coalescing throttle (spec
// §4.2 "each change triggers re-advertisement (throttled except
// overload-set, which is immediate)").
func (m *Monitor) SetNodeOverload(ctx context.Context, overloaded bool) error {
	var persistErr error
	m.call(func() {
		m.state.IsOverloaded = overloaded
		persistErr = m.persist()
		m.doAdvertise()
	})
	return persistErr
}

// SetInterfaceOverload implements platform.OperatorServer.
func (m *Monitor) SetInterfaceOverload(ctx context.Context, ifName string, overloaded bool) error {
	var persistErr error
	m.call(func() {
		if overloaded {
			m.state.OverloadedLinks[ifName] = true
		} else {
			delete(m.state.OverloadedLinks, ifName)
		}
		persistErr = m.persist()
		m.doAdvertise()
	})
	return persistErr
}

// SetLinkMetric implements platform.OperatorServer. A nil metric
// clears the override.
func (m *Monitor) SetLinkMetric(ctx context.Context, ifName string, metric *uint32) error {
	var persistErr error
	m.call(func() {
		if metric == nil {
			delete(m.state.LinkMetricOverrides, ifName)
		} else {
			m.state.LinkMetricOverrides[ifName] = *metric
		}
		persistErr = m.persist()
		m.advertise.Request()
	})
	return persistErr
}

// SetAdjacencyMetric implements platform.OperatorServer. A nil metric
// clears the override.
func (m *Monitor) SetAdjacencyMetric(ctx context.Context, ifName, nodeID string, metric *uint32) error {
	var persistErr error
	m.call(func() {
		key := AdjacencyOverrideKey{NodeID: nodeID, IfName: ifName}
		if metric == nil {
			delete(m.state.AdjacencyMetricOverrides, key)
		} else {
			m.state.AdjacencyMetricOverrides[key] = *metric
		}
		persistErr = m.persist()
		m.advertise.Request()
	})
	return persistErr
}

// GetAdjacencies implements platform.OperatorServer.
func (m *Monitor) GetAdjacencies(ctx context.Context, areaFilter string) ([]model.AdjacencyDatabase, error) {
	var out []model.AdjacencyDatabase
	m.call(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for areaID, adb := range m.lastAdvertised {
			if areaFilter != "" && areaFilter != areaID {
				continue
			}
			out = append(out, adb)
		}
	})
	return out, nil
}

// GetInterfaces implements platform.OperatorServer, reporting every
// known kernel interface's up-bit, ifindex, and address set alongside
// its flap-backoff state (spec §3 "Interface entry"; supplement:
// getInterfaces, LinkMonitor.cpp's InterfaceEntry::getBackoff). An
// interface with no adjacency -- a loopback eligible only for
// redistribution, say -- still appears here as long as a link event
// has been seen for it.
func (m *Monitor) GetInterfaces(ctx context.Context) (platform.InterfaceDatabase, error) {
	db := platform.InterfaceDatabase{NodeID: m.cfg.NodeID, Interfaces: make(map[string]platform.InterfaceSnapshot)}
	m.call(func() {
		now := time.Now()
		for name, st := range m.ifs.IfaceSnapshot() {
			nets := make([]netip.Prefix, 0, len(st.Addresses))
			for p := range st.Addresses {
				nets = append(nets, p)
			}
			db.Interfaces[name] = platform.InterfaceSnapshot{
				IsUp:             st.IsUp,
				IfIndex:          st.IfIndex,
				Networks:         nets,
				InBackoff:        m.ifs.InBackoff(name, now),
				BackoffRemaining: m.ifs.BackoffRemaining(name, now),
			}
		}
	})
	return db, nil
}
