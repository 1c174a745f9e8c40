package decision

import (
	"container/heap"

	"github.com/openr-go/openr/pkg/model"
)

// SpfResult is one area's shortest-path result: for every reachable
// node, the set of next hops on some shortest path to it (ECMP, spec
// §4.4 "compute shortest paths with equal-cost multi-path").
type SpfResult struct {
	// Distances holds the shortest metric to each reachable node.
	Distances map[string]uint32
	// NextHops holds, per destination node, the set of (neighbor,
	// local-if) pairs that lie on some shortest path to it. The
	// originating node itself always maps to an empty slice.
	NextHops map[string][]HopEdge
}

// HopEdge is one edge out of the source node used along a shortest path.
type HopEdge struct {
	Neighbor     string
	LocalIfName  string
	RemoteIfName string
	NextHopV4    string
	NextHopV6    string
	Metric       uint32
	RTTMicros    int64
}

type pqItem struct {
	node string
	dist uint32
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].dist < pq[j].dist }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	it := old[n-1]
	*pq = old[:n-1]
	return it
}

// RunSPF computes shortest paths from source over g, skipping
// overloaded transit nodes (spec §4.4 "an overloaded node is excluded
// from transit, but its own originated prefixes are still reachable
// via its neighbors up to the last hop").
func RunSPF(g Graph, source string) SpfResult {
	res := SpfResult{
		Distances: map[string]uint32{source: 0},
		NextHops:  map[string][]HopEdge{source: {}},
	}

	firstHop := map[string][]HopEdge{} // node -> edges out of source reaching it optimally

	pq := &priorityQueue{{node: source, dist: 0}}
	heap.Init(pq)
	visited := map[string]bool{}

	for pq.Len() > 0 {
		it := heap.Pop(pq).(pqItem)
		if visited[it.node] {
			continue
		}
		visited[it.node] = true

		info, ok := g.Nodes[it.node]
		if !ok {
			continue
		}
		if info.IsOverloaded && it.node != source {
			continue // no transit through an overloaded node
		}

		for _, adj := range info.Adjacencies {
			if adj.IsOverloaded {
				continue
			}
			nd := it.dist + adj.Metric
			cur, seen := res.Distances[adj.OtherNodeName]

			edge := HopEdge{
				Neighbor:     adj.OtherNodeName,
				LocalIfName:  adj.LocalIfName,
				RemoteIfName: adj.RemoteIfName,
				NextHopV4:    adj.NextHopV4,
				NextHopV6:    adj.NextHopV6,
				Metric:       adj.Metric,
				RTTMicros:    adj.RTTMicroseconds,
			}

			var outEdges []HopEdge
			if it.node == source {
				outEdges = []HopEdge{edge}
			} else {
				outEdges = firstHop[it.node]
			}

			switch {
			case !seen || nd < cur:
				res.Distances[adj.OtherNodeName] = nd
				firstHop[adj.OtherNodeName] = append([]HopEdge(nil), outEdges...)
				heap.Push(pq, pqItem{node: adj.OtherNodeName, dist: nd})
			case nd == cur:
				firstHop[adj.OtherNodeName] = mergeEdges(firstHop[adj.OtherNodeName], outEdges)
			}
		}
	}

	for node, edges := range firstHop {
		res.NextHops[node] = edges
	}
	return res
}

func mergeEdges(existing, add []HopEdge) []HopEdge {
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e.Neighbor+"|"+e.LocalIfName] = true
	}
	out := existing
	for _, e := range add {
		k := e.Neighbor + "|" + e.LocalIfName
		if !seen[k] {
			seen[k] = true
			out = append(out, e)
		}
	}
	return out
}

// BestPrefixOwners chooses, for each prefix key across all nodes that
// originate it, the winning entry(ies) by PrefixMetrics (spec §4.3
// "lexicographic-max PrefixMetrics wins; on a full tie, keep every
// tied originator for ECMP"). It returns prefix-key -> owning node ids.
func BestPrefixOwners(g Graph) map[string][]string {
	type candidate struct {
		node    string
		metrics model.PrefixMetrics
	}
	byPrefix := map[string][]candidate{}
	for node, prefixes := range g.Prefixes {
		for pkey, pe := range prefixes {
			byPrefix[pkey] = append(byPrefix[pkey], candidate{node: node, metrics: pe.Metrics})
		}
	}

	winners := make(map[string][]string, len(byPrefix))
	for pkey, cands := range byPrefix {
		best := cands[0]
		for _, c := range cands[1:] {
			if best.metrics.Less(c.metrics) {
				best = c
			}
		}
		var owners []string
		for _, c := range cands {
			if !c.metrics.Less(best.metrics) && !best.metrics.Less(c.metrics) {
				owners = append(owners, c.node)
			}
		}
		winners[pkey] = owners
	}
	return winners
}
