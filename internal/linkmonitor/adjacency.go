package linkmonitor

import (
	"net/netip"
	"time"

	"github.com/openr-go/openr/pkg/platform"
)

// AdjKey identifies one adjacency by (remote-node, local-if) pair,
// matching the state machine's "per (remote-node, local-if) pair"
// granularity (spec §4.2).
type AdjKey struct {
	NodeID string
	IfName string
}

// AdjState is one adjacency's tracked state.
type AdjState struct {
	Key          AdjKey
	RemoteIfName string
	AreaID       string
	TransportAddr string
	RPCPort      uint16
	RTT          time.Duration
	Restarting   bool
	Overloaded   bool
	LastUpdate   time.Time
}

// IfaceState is one kernel interface's tracked state (spec §3
// "Interface entry": kernel name, ifindex, up-bit, and address set),
// independent of whether an adjacency has ever been formed over it --
// a loopback eligible for redistribution never runs Spark at all.
type IfaceState struct {
	Name      string
	IfIndex   int
	IsUp      bool
	Addresses map[netip.Prefix]struct{}
}

// Interfaces owns both the adjacency table and the kernel-interface
// table for one node, shaped after the teacher's ifstate.Interfaces:
// plain maps with narrow mutating entrypoints. It holds no mutex; it is
// read and updated only from the owning event loop (spec §5's
// single-threaded component rule).
type Interfaces struct {
	adjacencies map[AdjKey]*AdjState
	backoffs    map[string]*interfaceBackoff

	ifaces  map[string]*IfaceState // kernel interface name -> state
	ifIndex map[int]string         // ifindex -> name, to resolve AddrUpdate.LinkIndex
}

// NewInterfaces constructs an empty adjacency/interface table.
func NewInterfaces() *Interfaces {
	return &Interfaces{
		adjacencies: make(map[AdjKey]*AdjState),
		backoffs:    make(map[string]*interfaceBackoff),
		ifaces:      make(map[string]*IfaceState),
		ifIndex:     make(map[int]string),
	}
}

// ApplyLink records a netlink link-state update: the interface's
// ifindex and up/down bit.
func (ifs *Interfaces) ApplyLink(name string, ifIndex int, isUp bool) {
	st := ifs.iface(name, ifIndex)
	st.IfIndex = ifIndex
	st.IsUp = isUp
	ifs.ifIndex[ifIndex] = name
}

// ApplyAddr records a netlink address-state update keyed by ifindex,
// since AddrUpdate carries no interface name. Returns the resolved
// interface name and whether the address set actually changed; an
// ifindex with no prior link update resolves to ("", false).
func (ifs *Interfaces) ApplyAddr(ifIndex int, prefix netip.Prefix, added bool) (ifName string, changed bool) {
	name, ok := ifs.ifIndex[ifIndex]
	if !ok {
		return "", false
	}
	st := ifs.iface(name, ifIndex)
	_, had := st.Addresses[prefix]
	switch {
	case added && !had:
		st.Addresses[prefix] = struct{}{}
		return name, true
	case !added && had:
		delete(st.Addresses, prefix)
		return name, true
	default:
		return name, false
	}
}

func (ifs *Interfaces) iface(name string, ifIndex int) *IfaceState {
	st, ok := ifs.ifaces[name]
	if !ok {
		st = &IfaceState{Name: name, IfIndex: ifIndex, Addresses: make(map[netip.Prefix]struct{})}
		ifs.ifaces[name] = st
	}
	return st
}

// IfaceSnapshot returns a defensive copy of every tracked kernel
// interface, keyed by name.
func (ifs *Interfaces) IfaceSnapshot() map[string]IfaceState {
	out := make(map[string]IfaceState, len(ifs.ifaces))
	for name, st := range ifs.ifaces {
		cp := IfaceState{Name: st.Name, IfIndex: st.IfIndex, IsUp: st.IsUp, Addresses: make(map[netip.Prefix]struct{}, len(st.Addresses))}
		for p := range st.Addresses {
			cp.Addresses[p] = struct{}{}
		}
		out[name] = cp
	}
	return out
}

// ApplyResult reports what an ApplySparkEvent call changed, so the
// caller can decide whether to re-derive peers and re-advertise.
type ApplyResult struct {
	// Changed is true if the adjacency set or any adjacency's
	// restarting/metric-relevant fields changed.
	Changed bool
	// ImmediateKvPeerChange is true when the event requires an
	// unthrottled KV-peer add/delete (UP/DOWN/RESTARTING), as opposed to
	// a metric-only change that only needs throttled re-advertisement.
	ImmediateKvPeerChange bool
}

// ApplySparkEvent applies one neighbor-discovery event to the
// adjacency table per the state-machine table in spec §4.2.
func (ifs *Interfaces) ApplySparkEvent(ev platform.SparkNeighborEvent, now time.Time) ApplyResult {
	key := AdjKey{NodeID: ev.NodeID, IfName: ev.LocalIfName}

	switch ev.Type {
	case platform.SparkNeighborUp, platform.SparkNeighborRestarted:
		ifs.adjacencies[key] = &AdjState{
			Key:           key,
			RemoteIfName:  ev.RemoteIfName,
			AreaID:        ev.AreaID,
			TransportAddr: ev.TransportAddr.String(),
			RPCPort:       ev.RPCPort,
			RTT:           ev.RTT,
			LastUpdate:    now,
		}
		return ApplyResult{Changed: true, ImmediateKvPeerChange: true}

	case platform.SparkNeighborRestarting:
		a, ok := ifs.adjacencies[key]
		if !ok {
			return ApplyResult{}
		}
		a.Restarting = true
		return ApplyResult{Changed: true, ImmediateKvPeerChange: true}

	case platform.SparkNeighborDown:
		if _, ok := ifs.adjacencies[key]; !ok {
			return ApplyResult{}
		}
		delete(ifs.adjacencies, key)
		return ApplyResult{Changed: true, ImmediateKvPeerChange: true}

	case platform.SparkNeighborRTTChange:
		a, ok := ifs.adjacencies[key]
		if !ok || a.Restarting {
			return ApplyResult{}
		}
		a.RTT = ev.RTT
		return ApplyResult{Changed: true}

	default:
		return ApplyResult{}
	}
}

// Snapshot returns a defensive copy of every currently tracked
// adjacency, used to build the AdjacencyDatabase and derive peers.
func (ifs *Interfaces) Snapshot() []AdjState {
	out := make([]AdjState, 0, len(ifs.adjacencies))
	for _, a := range ifs.adjacencies {
		out = append(out, *a)
	}
	return out
}

// InBackoff reports whether ifName is currently in flap backoff -- such
// an interface is "still tracked but reported as inactive for all
// derivations" (spec §4.2).
func (ifs *Interfaces) InBackoff(ifName string, now time.Time) bool {
	b, ok := ifs.backoffs[ifName]
	return ok && b.active(now)
}

// BackoffRemaining reports how much longer ifName's backoff window
// lasts as of now, so operators can distinguish "down" from "up but
// suppressed" (getInterfaces, LinkMonitor.cpp's InterfaceEntry::getBackoff).
func (ifs *Interfaces) BackoffRemaining(ifName string, now time.Time) time.Duration {
	b, ok := ifs.backoffs[ifName]
	if !ok {
		return 0
	}
	return b.remaining(now)
}

// RecordFlap registers an up->down->up transition on ifName, arming or
// doubling its backoff window (spec §4.2 "duration starts at
// initial-backoff and doubles on repeated flap, capped at max-backoff").
func (ifs *Interfaces) RecordFlap(ifName string, now time.Time, initial, max time.Duration) {
	b, ok := ifs.backoffs[ifName]
	if !ok {
		b = newInterfaceBackoff(initial, max)
		ifs.backoffs[ifName] = b
	}
	b.flap(now)
}

// RecordStability clears ifName's backoff once it has been up long
// enough to be considered stable ("backoff resets on sustained
// stability", spec §4.2).
func (ifs *Interfaces) RecordStability(ifName string) {
	delete(ifs.backoffs, ifName)
}
