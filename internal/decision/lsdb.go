// Package decision implements the link-state database, debounced SPF,
// and route-delta computation described in spec §4.4: it consumes
// KV-Store publications, maintains node-id -> AdjacencyDatabase and
// (node, prefix) -> PrefixEntry maps, and produces a RouteDatabaseDelta
// per area.
//
// The graph is held in maps keyed by node-id strings, and SPF runs
// directly over those maps; node ids are not interned to integers.
package decision

import (
	"github.com/openr-go/openr/pkg/model"
)

// LSDB is one area's link-state database.
type LSDB struct {
	adjacencies map[string]model.AdjacencyDatabase      // nodeID -> its adjacency db
	adjVersion  map[string]int64                        // nodeID -> version that produced it
	prefixes    map[string]map[string]model.PrefixEntry // nodeID -> prefix-key -> entry
	pfxVersion  map[string]int64                        // "node\x00prefixKey" -> version
}

// NewLSDB creates an empty database.
func NewLSDB() *LSDB {
	return &LSDB{
		adjacencies: make(map[string]model.AdjacencyDatabase),
		adjVersion:  make(map[string]int64),
		prefixes:    make(map[string]map[string]model.PrefixEntry),
		pfxVersion:  make(map[string]int64),
	}
}

// UpdateAdjacency applies an adj:<node> key update, monotonically: a
// version no higher than what's already stored is dropped (spec §4.4
// "Updated monotonically by version; stale versions are dropped").
// version is the KV-Store Value.Version that carried adb.
func (l *LSDB) UpdateAdjacency(nodeID string, version int64, adb model.AdjacencyDatabase) (changed bool) {
	cur, ok := l.adjacencies[nodeID]
	if ok && version <= l.adjVersion[nodeID] {
		return false
	}
	l.adjacencies[nodeID] = adb
	l.adjVersion[nodeID] = version
	return !ok || !adjEqual(cur, adb)
}

// RemoveNode deletes a node's adjacency database (expired adj: key).
func (l *LSDB) RemoveNode(nodeID string) {
	delete(l.adjacencies, nodeID)
	delete(l.adjVersion, nodeID)
}

// UpdatePrefix stores nodeID's entry for one encoded prefix (the <enc>
// part of a prefix:<node>:<area>:<enc> key), so the same prefix
// originated by several nodes shares one key across their maps.
func (l *LSDB) UpdatePrefix(nodeID, prefixKey string, version int64, pe model.PrefixEntry) (changed bool) {
	m, ok := l.prefixes[nodeID]
	if !ok {
		m = make(map[string]model.PrefixEntry)
		l.prefixes[nodeID] = m
	}
	vkey := nodeID + "\x00" + prefixKey
	if _, ok := m[prefixKey]; ok && version <= l.pfxVersion[vkey] {
		return false
	}
	m[prefixKey] = pe
	l.pfxVersion[vkey] = version
	return true
}

// RemovePrefix deletes one node's prefix entry.
func (l *LSDB) RemovePrefix(nodeID, prefixKey string) {
	if m, ok := l.prefixes[nodeID]; ok {
		delete(m, prefixKey)
		delete(l.pfxVersion, nodeID+"\x00"+prefixKey)
	}
}

// Nodes returns every node-id currently present in the adjacency map.
func (l *LSDB) Nodes() []string {
	ids := make([]string, 0, len(l.adjacencies))
	for id := range l.adjacencies {
		ids = append(ids, id)
	}
	return ids
}

// Snapshot returns a read-only, point-in-time copy of the graph that
// SPF computes against (spec §5(c): "the SPF run reads a consistent
// snapshot of the LSDB").
func (l *LSDB) Snapshot() Graph {
	g := Graph{
		Nodes:    make(map[string]nodeInfo, len(l.adjacencies)),
		Prefixes: make(map[string]map[string]model.PrefixEntry, len(l.prefixes)),
	}
	for id, adb := range l.adjacencies {
		g.Nodes[id] = nodeInfo{
			NodeLabel:    adb.NodeLabel,
			IsOverloaded: adb.IsOverloaded,
			Adjacencies:  append([]model.Adjacency(nil), adb.Adjacencies...),
		}
	}
	for id, m := range l.prefixes {
		cp := make(map[string]model.PrefixEntry, len(m))
		for k, v := range m {
			cp[k] = v
		}
		g.Prefixes[id] = cp
	}
	return g
}

func adjEqual(a, b model.AdjacencyDatabase) bool {
	if a.NodeLabel != b.NodeLabel || a.IsOverloaded != b.IsOverloaded || len(a.Adjacencies) != len(b.Adjacencies) {
		return false
	}
	for i := range a.Adjacencies {
		if a.Adjacencies[i] != b.Adjacencies[i] {
			return false
		}
	}
	return true
}

// nodeInfo is the per-node slice of a Graph snapshot.
type nodeInfo struct {
	NodeLabel    uint32
	IsOverloaded bool
	Adjacencies  []model.Adjacency
}

// Graph is the consistent snapshot SPF runs over.
type Graph struct {
	Nodes    map[string]nodeInfo
	Prefixes map[string]map[string]model.PrefixEntry
}
