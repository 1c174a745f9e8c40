package decision

import (
	"net/netip"

	"github.com/openr-go/openr/pkg/model"
)

// RouteDatabase is one area's full computed route set, keyed for cheap
// diffing against the next SPF run.
type RouteDatabase struct {
	Unicast map[netip.Prefix]model.UnicastRoute
	MPLS    map[uint32]model.MPLSRoute
}

func newRouteDatabase() RouteDatabase {
	return RouteDatabase{
		Unicast: make(map[netip.Prefix]model.UnicastRoute),
		MPLS:    make(map[uint32]model.MPLSRoute),
	}
}

// ComputeRoutes turns an SPF result plus the prefix-ownership map into a
// RouteDatabase: IP next-hops for ForwardingIP prefixes, and for
// ForwardingSRMPLS prefixes one MPLS action per next-hop, PHP where the
// next-hop is the destination itself and PUSH of the destination's node
// label otherwise (spec §4.4). No SWAP action is produced.
//
// nodeLabels maps node-id -> its own segment-routing node label, needed
// to build PUSH label stacks toward indirect (multi-hop) next-hops.
func ComputeRoutes(g Graph, source string, spf SpfResult, owners map[string][]string, nodeLabels map[string]uint32) RouteDatabase {
	rdb := newRouteDatabase()

	for pkey, ownerNodes := range owners {
		var pe model.PrefixEntry
		found := false
		for _, n := range ownerNodes {
			if cand, ok := g.Prefixes[n][pkey]; ok {
				pe = cand
				found = true
				break
			}
		}
		if !found {
			continue
		}

		var nhs []model.NextHop
		for _, owner := range ownerNodes {
			if owner == source {
				continue // directly originated, no route needed toward self
			}
			edges, ok := spf.NextHops[owner]
			if !ok {
				continue
			}
			for _, e := range edges {
				nh := model.NextHop{
					NodeID: e.Neighbor,
					IfName: e.LocalIfName,
					Metric: spf.Distances[owner],
				}
				if v4, err := netip.ParseAddr(e.NextHopV4); err == nil {
					nh.AddrV4 = v4
				}
				if v6, err := netip.ParseAddr(e.NextHopV6); err == nil {
					nh.AddrV6 = v6
				}
				if pe.ForwardingType == model.ForwardingSRMPLS {
					nh.MPLS, nh.LabelStack = labelAction(e.Neighbor == owner, nodeLabels[owner])
				}
				nhs = append(nhs, nh)
			}
		}

		if pe.MinNexthop != nil && len(nhs) < *pe.MinNexthop {
			continue // spec §4.4: below the configured floor, withdraw entirely
		}
		if len(nhs) == 0 {
			continue
		}

		rdb.Unicast[pe.Prefix] = model.UnicastRoute{Prefix: pe.Prefix, NextHops: nhs}
		if pe.ForwardingType == model.ForwardingSRMPLS {
			label, ok := nodeLabels[ownerNodes[0]]
			if ok {
				rdb.MPLS[label] = model.MPLSRoute{Label: label, NextHops: nhs}
			}
		}
	}
	return rdb
}

// labelAction picks one next-hop edge's MPLS action: a next-hop that is
// itself the destination pops the label (PHP, no push needed since the
// neighbor strips its own label on receipt); every other next-hop
// pushes the destination's node-label, regardless of what any other
// edge in the same ECMP group looks like (spec §4.4; grounded on
// Decision.cpp's per-link PHP/PUSH selection, which classifies each
// next-hop edge independently rather than once per destination).
func labelAction(isDestination bool, destLabel uint32) (model.MPLSAction, []uint32) {
	if isDestination {
		return model.MPLSActionPHP, nil
	}
	return model.MPLSActionPush, []uint32{destLabel}
}

// Diff computes the delta from prev to next (spec §4.4 "route-delta
// computed via sorted-set diff against the previously emitted route
// database"), used so Fib only receives what actually changed.
func Diff(areaID string, prev, next RouteDatabase) model.RouteDatabaseDelta {
	delta := model.RouteDatabaseDelta{AreaID: areaID}

	for pfx, route := range next.Unicast {
		if old, ok := prev.Unicast[pfx]; !ok || !unicastEqual(old, route) {
			delta.UnicastRoutesAdded = append(delta.UnicastRoutesAdded, route)
		}
	}
	for pfx := range prev.Unicast {
		if _, ok := next.Unicast[pfx]; !ok {
			delta.UnicastRoutesRemoved = append(delta.UnicastRoutesRemoved, pfx)
		}
	}

	for label, route := range next.MPLS {
		if old, ok := prev.MPLS[label]; !ok || !mplsEqual(old, route) {
			delta.MPLSRoutesAdded = append(delta.MPLSRoutesAdded, route)
		}
	}
	for label := range prev.MPLS {
		if _, ok := next.MPLS[label]; !ok {
			delta.MPLSRoutesRemoved = append(delta.MPLSRoutesRemoved, label)
		}
	}
	return delta
}

func unicastEqual(a, b model.UnicastRoute) bool {
	return nextHopSliceEqualUnordered(a.NextHops, b.NextHops)
}

func mplsEqual(a, b model.MPLSRoute) bool {
	return nextHopSliceEqualUnordered(a.NextHops, b.NextHops)
}

// nextHopSliceEqualUnordered compares two next-hop sets ignoring order.
// model.NextHop carries a []uint32 label stack, so it isn't comparable
// and can't key a map; match greedily instead (ECMP groups are small).
func nextHopSliceEqualUnordered(a, b []model.NextHop) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, x := range a {
		found := false
		for j, y := range b {
			if !used[j] && nextHopEqual(x, y) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func nextHopEqual(a, b model.NextHop) bool {
	if a.NodeID != b.NodeID || a.AddrV4 != b.AddrV4 || a.AddrV6 != b.AddrV6 ||
		a.IfName != b.IfName || a.Metric != b.Metric || a.MPLS != b.MPLS ||
		len(a.LabelStack) != len(b.LabelStack) {
		return false
	}
	for i := range a.LabelStack {
		if a.LabelStack[i] != b.LabelStack[i] {
			return false
		}
	}
	return true
}
