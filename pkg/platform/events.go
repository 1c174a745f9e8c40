// Package platform defines the Go-interface boundary to external
// collaborators named out of scope by spec §1: the Spark
// neighbor-discovery protocol, the kernel netlink decoder, and the
// platform route-programming interface. Only the shapes the core
// touches are specified here; wire decoding lives outside this module.
package platform

import (
	"net/netip"
	"time"

	"github.com/vishvananda/netlink"
)

// SparkEventType enumerates neighbor lifecycle events (spec §6).
type SparkEventType int

const (
	SparkNeighborUp SparkEventType = iota
	SparkNeighborDown
	SparkNeighborRestarting
	SparkNeighborRestarted
	SparkNeighborRTTChange
)

// SparkNeighborEvent is one ingress event from the neighbor-discovery
// beaconing protocol.
type SparkNeighborEvent struct {
	Type            SparkEventType
	AreaID          string
	NodeID          string
	LocalIfName     string
	RemoteIfName    string
	TransportAddr   netip.Addr
	RPCPort         uint16
	RTT             time.Duration
	KvStoreCmdPort  uint16
}

// NetlinkEventType distinguishes the two kernel event shapes the core
// consumes.
type NetlinkEventType int

const (
	NetlinkEventLink NetlinkEventType = iota
	NetlinkEventAddr
)

// NetlinkEvent is one ingress kernel link/address event. It embeds the
// vishvananda/netlink wire types directly: this module never decodes
// netlink sockets itself (out of scope, spec §1), it only consumes
// already-decoded updates handed to it by the platform layer.
type NetlinkEvent struct {
	Type NetlinkEventType
	Link *netlink.LinkUpdate
	Addr *netlink.AddrUpdate
}

// PeerSpec is the KV-Store peer connection spec derived by Link-Monitor
// from an adjacency (spec §4.2 "Peer derivation").
type PeerSpec struct {
	NodeID        string
	TransportAddr netip.Addr
	RPCPort       uint16
}

// PeerUpdateRequest is the ingress RPC for adjusting a KV-Store area's
// peer table (spec §6).
type PeerUpdateRequest struct {
	AreaID       string
	PeersToAdd   map[string]PeerSpec
	PeersToDelete []string
}

// InterfaceSnapshot is one interface's externally visible state,
// published on the InterfaceDatabase egress queue (spec §6).
type InterfaceSnapshot struct {
	IsUp     bool
	IfIndex  int
	Networks []netip.Prefix
	// InBackoff and BackoffRemaining distinguish "down" from "up but
	// suppressed by flap backoff" (spec supplement: getInterfaces).
	InBackoff        bool
	BackoffRemaining time.Duration
}

// InterfaceDatabase is the egress queue payload describing every known
// interface on this node.
type InterfaceDatabase struct {
	NodeID     string
	Interfaces map[string]InterfaceSnapshot
}

// PrefixUpdateCmd enumerates Prefix-Manager sync operations (spec §4.3).
type PrefixUpdateCmd int

const (
	PrefixCmdSyncByType PrefixUpdateCmd = iota
	PrefixCmdAdd
	PrefixCmdWithdraw
	PrefixCmdWithdrawByType
)
