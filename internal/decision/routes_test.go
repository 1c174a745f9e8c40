package decision

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openr-go/openr/pkg/model"
)

// TestComputeRoutesClassifiesMixedDepthECMPPerEdge builds an ECMP group
// to node D that mixes a direct single-hop edge (A-D, metric 5) with an
// indirect two-hop edge at the same total cost (A-C metric 3, C-D
// metric 2), and checks that each edge's MPLS action is classified on
// its own: the direct edge pops (PHP), the indirect one pushes D's
// label, rather than one of them leaking the other's classification.
func TestComputeRoutesClassifiesMixedDepthECMPPerEdge(t *testing.T) {
	pfx := netip.MustParsePrefix("10.9.0.0/24")

	g := Graph{
		Nodes: map[string]nodeInfo{
			"A": {Adjacencies: []model.Adjacency{
				{OtherNodeName: "D", LocalIfName: "eth-d", RemoteIfName: "eth0", Metric: 5, NextHopV4: "10.0.0.2"},
				{OtherNodeName: "C", LocalIfName: "eth-c", RemoteIfName: "eth0", Metric: 3, NextHopV4: "10.0.1.2"},
			}},
			"C": {Adjacencies: []model.Adjacency{
				{OtherNodeName: "A", LocalIfName: "eth0", RemoteIfName: "eth-c", Metric: 3, NextHopV4: "10.0.1.1"},
				{OtherNodeName: "D", LocalIfName: "eth1", RemoteIfName: "eth0", Metric: 2, NextHopV4: "10.0.2.2"},
			}},
			"D": {NodeLabel: 700, Adjacencies: []model.Adjacency{
				{OtherNodeName: "A", LocalIfName: "eth0", RemoteIfName: "eth-d", Metric: 5, NextHopV4: "10.0.0.1"},
				{OtherNodeName: "C", LocalIfName: "eth0", RemoteIfName: "eth1", Metric: 2, NextHopV4: "10.0.2.1"},
			}},
		},
		Prefixes: map[string]map[string]model.PrefixEntry{
			"D": {
				pfx.String(): {
					Prefix:          pfx,
					ForwardingType:  model.ForwardingSRMPLS,
					ForwardingAlgorithm: model.AlgorithmSPECMP,
				},
			},
		},
	}

	spf := RunSPF(g, "A")
	require.Equal(t, uint32(5), spf.Distances["D"])
	require.Len(t, spf.NextHops["D"], 2, "both the direct and indirect paths to D tie at metric 5")

	owners := BestPrefixOwners(g)
	nodeLabels := map[string]uint32{"D": g.Nodes["D"].NodeLabel}

	rdb := ComputeRoutes(g, "A", spf, owners, nodeLabels)

	route, ok := rdb.Unicast[pfx]
	require.True(t, ok)
	require.Len(t, route.NextHops, 2)

	byNeighbor := make(map[string]model.NextHop, 2)
	for _, nh := range route.NextHops {
		byNeighbor[nh.NodeID] = nh
	}

	direct, ok := byNeighbor["D"]
	require.True(t, ok, "expected a next-hop directly to D")
	assert.Equal(t, model.MPLSActionPHP, direct.MPLS, "the destination itself must pop, not swap or push")
	assert.Empty(t, direct.LabelStack)

	indirect, ok := byNeighbor["C"]
	require.True(t, ok, "expected a next-hop via C")
	assert.Equal(t, model.MPLSActionPush, indirect.MPLS, "a two-hop next-hop must push D's label, not inherit the direct edge's classification")
	assert.Equal(t, []uint32{700}, indirect.LabelStack)
}
