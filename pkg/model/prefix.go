package model

import (
	"net/netip"
	"strconv"
)

// PrefixType enumerates the origin of a PrefixEntry.
type PrefixType int

const (
	PrefixTypeUnknown PrefixType = iota
	PrefixTypeLoopback
	PrefixTypeBGP
	PrefixTypeConfig
)

func (t PrefixType) String() string {
	switch t {
	case PrefixTypeLoopback:
		return "LOOPBACK"
	case PrefixTypeBGP:
		return "BGP"
	case PrefixTypeConfig:
		return "CONFIG"
	default:
		return "UNKNOWN"
	}
}

// ForwardingType selects how a prefix is forwarded.
type ForwardingType int

const (
	// ForwardingIP is plain IP forwarding, the lower (more conservative)
	// enum value so min() resolution (spec §4.3) prefers it.
	ForwardingIP ForwardingType = iota
	ForwardingSRMPLS
)

// ForwardingAlgorithm selects the ECMP/path-selection algorithm.
type ForwardingAlgorithm int

const (
	AlgorithmSPECMP ForwardingAlgorithm = iota
	AlgorithmKSP2EDECMP
)

// PrefixMetrics is the tuple used for best-path selection (spec §4.3):
// lexicographic max over (PathPreference, SourcePreference,
// -Distance).
type PrefixMetrics struct {
	PathPreference   int32
	SourcePreference int32
	Distance         int32
}

// Less reports whether m is strictly worse than o under the
// lexicographic-max rule ("(path-preference, source-preference,
// -distance)" -- higher distance is worse).
func (m PrefixMetrics) Less(o PrefixMetrics) bool {
	if m.PathPreference != o.PathPreference {
		return m.PathPreference < o.PathPreference
	}
	if m.SourcePreference != o.SourcePreference {
		return m.SourcePreference < o.SourcePreference
	}
	// -Distance: smaller Distance is better, i.e. larger -Distance.
	return -m.Distance < -o.Distance
}

// PrefixEntry is a single prefix advertisement (spec §3).
type PrefixEntry struct {
	Prefix              netip.Prefix
	Type                PrefixType
	ForwardingType      ForwardingType
	ForwardingAlgorithm ForwardingAlgorithm
	Metrics             PrefixMetrics
	Tags                map[string]struct{}
	AreaStack           []string
	// MinNexthop is optional; a computed route below this next-hop
	// count is withdrawn (spec §4.4).
	MinNexthop *int
}

// EncodedPrefix renders p.Prefix for use in a "prefix:" key, matching
// the "<family>/<len>:<addr>" encoding named in spec §6.
func EncodedPrefix(p netip.Prefix) string {
	family := "v4"
	if p.Addr().Is6() {
		family = "v6"
	}
	return family + "/" + strconv.Itoa(p.Bits()) + ":" + p.Addr().String()
}
