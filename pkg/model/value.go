// Package model defines the wire-level data model shared by every
// component: KV-Store Values and Publications, the AdjacencyDatabase
// and PrefixEntry types flooded through them, and the key-naming
// conventions that let any component parse a key without reference to
// the component that produced it (spec §3).
package model

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/openr-go/openr/pkg/serrors"
)

// TTLInfinity is the sentinel TTL meaning "never expires" (kTtlInfinity).
const TTLInfinity = int64(1<<63 - 1)

// Value is one KV-Store entry (spec §3).
type Value struct {
	Version      int64
	OriginatorID string
	// Data is nil for a ttl-refresh.
	Data       []byte
	TTL        int64 // milliseconds; TTLInfinity = never expires
	TTLVersion int64
	Hash       int64
}

// IsTTLRefresh reports whether v carries no data, i.e. is only an
// extension of an existing entry's expiry.
func (v Value) IsTTLRefresh() bool {
	return v.Data == nil
}

// ComputeHash implements H(version, originator-id, data): a
// deterministic function of the three fields, identical on every node
// (spec §3, §8 invariant on hash determinism).
func ComputeHash(version int64, originatorID string, data []byte) int64 {
	h := xxhash.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(version))
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(originatorID))
	_, _ = h.Write(data)
	return int64(h.Sum64())
}

// WithHash returns a copy of v with Hash recomputed from its current
// Version/OriginatorID/Data. Callers constructing a full (non-refresh)
// Value should always route it through WithHash before storing it.
func (v Value) WithHash() Value {
	v.Hash = ComputeHash(v.Version, v.OriginatorID, v.Data)
	return v
}

// Equivalent reports whether v and o have equal (version, originator,
// hash) -- the identity spec §3 uses to decide a ttl-refresh's target.
func (v Value) Equivalent(o Value) bool {
	return v.Version == o.Version && v.OriginatorID == o.OriginatorID && v.Hash == o.Hash
}

// compareOrder implements the merge-order tuple comparison (spec §3):
// higher version wins; tie broken by higher originator-id
// lexicographically; tie broken by higher hash; full tie is unordered.
// Returns >0 if a wins over b, <0 if b wins over a, 0 on full tie.
func compareOrder(a, b Value) int {
	if a.Version != b.Version {
		if a.Version > b.Version {
			return 1
		}
		return -1
	}
	if a.OriginatorID != b.OriginatorID {
		if a.OriginatorID > b.OriginatorID {
			return 1
		}
		return -1
	}
	if a.Hash != b.Hash {
		if a.Hash > b.Hash {
			return 1
		}
		return -1
	}
	return 0
}

// MergeResult describes the outcome of merging an incoming Value
// against a (possibly absent) local Value.
type MergeResult int

const (
	// MergeIncomingWins: store the incoming Value and flood it.
	MergeIncomingWins MergeResult = iota
	// MergeLocalWins: drop the incoming Value.
	MergeLocalWins
	// MergeTTLRefresh: accept as ttl-refresh; advance TTLVersion and
	// reset the expiry deadline, without replacing Data/Version/Hash.
	MergeTTLRefresh
	// MergeRejectedRefresh: a ttl-refresh that doesn't match the local
	// entry's identity, or doesn't strictly advance TTLVersion; dropped.
	MergeRejectedRefresh
)

// Merge applies the §3 merge rule given a local entry (present or not)
// and an incoming Value, returning the decision and, when the incoming
// value should be stored, the resulting Value to store.
func Merge(local *Value, incoming Value) (MergeResult, Value) {
	if incoming.IsTTLRefresh() {
		if local == nil || !incoming.Equivalent(*local) {
			return MergeRejectedRefresh, Value{}
		}
		if incoming.TTLVersion <= local.TTLVersion {
			return MergeRejectedRefresh, Value{}
		}
		merged := *local
		merged.TTLVersion = incoming.TTLVersion
		merged.TTL = incoming.TTL
		return MergeTTLRefresh, merged
	}
	if local == nil {
		return MergeIncomingWins, incoming
	}
	switch {
	case compareOrder(incoming, *local) > 0:
		return MergeIncomingWins, incoming
	default:
		// compareOrder == 0 keeps the local (first-arrived) entry, per the
		// one non-commutative case called out in spec §5(b).
		return MergeLocalWins, Value{}
	}
}

// Publication is the atomic unit of flooded state (spec §3).
type Publication struct {
	Area        string
	KeyVals     map[string]Value
	ExpiredKeys []string
	// Path is the traversal list of node-ids this publication has
	// already visited; used for loop prevention (spec §4.1).
	Path []string
	// FloodRootID optionally restricts forwarding to a spanning tree
	// rooted at this node-id (spec §4.1, §9 open question). Empty means
	// full-mesh split-horizon flooding.
	FloodRootID string
}

// Visited reports whether nodeID already appears in the traversal path.
func (p Publication) Visited(nodeID string) bool {
	for _, id := range p.Path {
		if id == nodeID {
			return true
		}
	}
	return false
}

// WithVisited returns a copy of p with nodeID appended to the traversal
// path, as done when forwarding a publication to peers.
func (p Publication) WithVisited(nodeID string) Publication {
	path := make([]string, len(p.Path), len(p.Path)+1)
	copy(path, p.Path)
	path = append(path, nodeID)
	p.Path = path
	return p
}

// Key-naming helpers (spec §3, §6): "adj:<node>" and
// "prefix:<node>:<area>:<encoded-prefix>".

const (
	adjKeyPrefix    = "adj:"
	prefixKeyPrefix = "prefix:"
)

// AdjKey builds the adjacency-database key for a node.
func AdjKey(nodeID string) string {
	return adjKeyPrefix + nodeID
}

// ParseAdjKey extracts the node-id from an "adj:<node>" key.
func ParseAdjKey(key string) (nodeID string, ok bool) {
	if !strings.HasPrefix(key, adjKeyPrefix) {
		return "", false
	}
	return key[len(adjKeyPrefix):], true
}

// PrefixKey builds a per-prefix advertisement key.
func PrefixKey(nodeID, areaID, encodedPrefix string) string {
	return prefixKeyPrefix + nodeID + ":" + areaID + ":" + encodedPrefix
}

// ParsePrefixKey extracts the (node, area, encoded-prefix) triple from a
// "prefix:<node>:<area>:<encoded-prefix>" key.
func ParsePrefixKey(key string) (nodeID, areaID, encodedPrefix string, ok bool) {
	if !strings.HasPrefix(key, prefixKeyPrefix) {
		return "", "", "", false
	}
	rest := key[len(prefixKeyPrefix):]
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// nodeNamePattern is [A-Za-z0-9_.-]+ (spec §6); validated lazily at
// construction points rather than on every key parse.
func ValidNodeName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '.' || r == '-':
		default:
			return false
		}
	}
	return true
}

// MustParseInt64 is a small helper for tests/tools decoding encoded
// prefix components; it panics-free, returning an error for callers
// that can report it as a user error (spec §7).
func MustParseInt64(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, serrors.Wrap("invalid integer", err, "value", s)
	}
	return v, nil
}
