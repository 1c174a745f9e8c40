// Package linkmonitor implements Link-Monitor (spec §4.2): it turns
// neighbor-discovery and kernel link/address events into an adjacency
// lifecycle state machine, derives one KV-Store peer session per
// (area, remote-node), computes per-adjacency metrics, and publishes
// the local AdjacencyDatabase into KV-Store.
//
// The adjacency bookkeeping here is shaped after the teacher's
// go/cs/ifstate package: a map of per-key state objects with narrow
// mutating entrypoints, owned by the event loop and holding no mutex.
package linkmonitor

// LinkMonitorState is the persisted configuration surface (spec §3,
// §6): node-label, node-overload, per-link overload flags, and metric
// overrides. It survives restarts; absence at startup is tolerated (an
// empty state, with IsOverloaded seeded from the assumeDrained flag).
type LinkMonitorState struct {
	NodeLabel                uint32
	IsOverloaded             bool
	OverloadedLinks          map[string]bool
	LinkMetricOverrides      map[string]uint32
	AdjacencyMetricOverrides map[AdjacencyOverrideKey]uint32
}

// AdjacencyOverrideKey identifies one (remote-node, local-if) pair for
// an adjacency-metric override.
type AdjacencyOverrideKey struct {
	NodeID string
	IfName string
}

// NewLinkMonitorState returns an empty state with IsOverloaded seeded
// from assumeDrained, matching "absence is tolerated... initial state
// takes isOverloaded from the assumeDrained command-line flag" (spec §6).
func NewLinkMonitorState(assumeDrained bool) LinkMonitorState {
	return LinkMonitorState{
		IsOverloaded:             assumeDrained,
		OverloadedLinks:          make(map[string]bool),
		LinkMetricOverrides:      make(map[string]uint32),
		AdjacencyMetricOverrides: make(map[AdjacencyOverrideKey]uint32),
	}
}

func (s LinkMonitorState) clone() LinkMonitorState {
	cp := LinkMonitorState{
		NodeLabel:                s.NodeLabel,
		IsOverloaded:             s.IsOverloaded,
		OverloadedLinks:          make(map[string]bool, len(s.OverloadedLinks)),
		LinkMetricOverrides:      make(map[string]uint32, len(s.LinkMetricOverrides)),
		AdjacencyMetricOverrides: make(map[AdjacencyOverrideKey]uint32, len(s.AdjacencyMetricOverrides)),
	}
	for k, v := range s.OverloadedLinks {
		cp.OverloadedLinks[k] = v
	}
	for k, v := range s.LinkMetricOverrides {
		cp.LinkMetricOverrides[k] = v
	}
	for k, v := range s.AdjacencyMetricOverrides {
		cp.AdjacencyMetricOverrides[k] = v
	}
	return cp
}
