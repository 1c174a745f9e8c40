package linkmonitor

import "time"

// Metric computes one adjacency's advertised metric (spec §4.2 "Metric
// pipeline"): base metric from RTT (or 1, flat), then an
// adjacency-metric override if present, else a link-metric override,
// else the base.
func Metric(a AdjState, useRTTMetric bool, state LinkMonitorState) uint32 {
	base := uint32(1)
	if useRTTMetric {
		base = rttBaseMetric(a.RTT)
	}

	if v, ok := state.AdjacencyMetricOverrides[AdjacencyOverrideKey{NodeID: a.Key.NodeID, IfName: a.Key.IfName}]; ok {
		return v
	}
	if v, ok := state.LinkMetricOverrides[a.Key.IfName]; ok {
		return v
	}
	return base
}

// rttBaseMetric implements "max(1, rtt_us/100)" (spec §4.2).
func rttBaseMetric(rtt time.Duration) uint32 {
	us := rtt.Microseconds()
	m := us / 100
	if m < 1 {
		return 1
	}
	return uint32(m)
}

// IsLinkOverloaded ORs the persisted per-link overload flag into an
// adjacency's overload state ("Overloaded-link flag OR'd from state",
// spec §4.2).
func IsLinkOverloaded(a AdjState, state LinkMonitorState) bool {
	return a.Overloaded || state.OverloadedLinks[a.Key.IfName]
}
