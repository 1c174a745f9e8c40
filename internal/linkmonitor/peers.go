package linkmonitor

import (
	"net/netip"
	"sort"
	"time"

	"github.com/openr-go/openr/pkg/platform"
)

func parseTransportAddr(s string) (netip.Addr, error) {
	return netip.ParseAddr(s)
}

// DerivePeers implements spec §4.2's "Peer derivation": from the set
// of non-restarting, non-backoff adjacencies to a node in an area,
// select the one with the lexicographically smallest local-if-name;
// its transport address becomes the KV peer spec. Returns, per area, a
// map of remote-node -> chosen PeerSpec -- one KV session per
// (area, remote-node) even with parallel links.
func DerivePeers(adjacencies []AdjState, ifs *Interfaces, now time.Time) map[string]map[string]platform.PeerSpec {
	type candidate struct {
		areaID string
		nodeID string
		a      AdjState
	}
	byAreaNode := map[string][]candidate{}
	for _, a := range adjacencies {
		if a.Restarting || ifs.InBackoff(a.Key.IfName, now) {
			continue
		}
		k := a.AreaID + "\x00" + a.Key.NodeID
		byAreaNode[k] = append(byAreaNode[k], candidate{areaID: a.AreaID, nodeID: a.Key.NodeID, a: a})
	}

	out := map[string]map[string]platform.PeerSpec{}
	for _, cands := range byAreaNode {
		sort.Slice(cands, func(i, j int) bool { return cands[i].a.Key.IfName < cands[j].a.Key.IfName })
		best := cands[0]

		addr, _ := parseTransportAddr(best.a.TransportAddr)
		if out[best.areaID] == nil {
			out[best.areaID] = map[string]platform.PeerSpec{}
		}
		out[best.areaID][best.nodeID] = platform.PeerSpec{
			NodeID:        best.nodeID,
			TransportAddr: addr,
			RPCPort:       best.a.RPCPort,
		}
	}
	return out
}
