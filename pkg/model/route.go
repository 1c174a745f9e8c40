package model

import "net/netip"

// MPLSAction is the label operation applied at one next-hop (spec §4.4,
// GLOSSARY: PHP, SWAP).
type MPLSAction int

const (
	// MPLSActionPush pushes the originator's node-label onto the stack.
	MPLSActionPush MPLSAction = iota
	// MPLSActionSwap replaces the top label (indirect next-hop).
	MPLSActionSwap
	// MPLSActionPHP pops the top label (the next-hop is the destination).
	MPLSActionPHP
)

// NextHop is one outgoing path to a destination: address, interface,
// accumulated metric, and (for SR-MPLS routes) the label action/stack.
type NextHop struct {
	NodeID    string
	AddrV4    netip.Addr
	AddrV6    netip.Addr
	IfName    string
	Metric    uint32
	MPLS      MPLSAction
	LabelStack []uint32
}

// UnicastRoute is a computed IP route: a destination prefix and its set
// of ECMP next-hops.
type UnicastRoute struct {
	Prefix   netip.Prefix
	NextHops []NextHop
}

// MPLSRoute is a computed label route: an incoming label and its set of
// ECMP next-hops (each carrying its own MPLS action/label stack).
type MPLSRoute struct {
	Label    uint32
	NextHops []NextHop
}

// RouteDatabaseDelta is Decision's output to Fib (spec §4.4, §6):
// added/updated/removed unicast routes and added/removed MPLS routes,
// computed against the previously emitted route DB.
type RouteDatabaseDelta struct {
	AreaID string

	UnicastRoutesAdded   []UnicastRoute
	UnicastRoutesRemoved []netip.Prefix

	MPLSRoutesAdded   []MPLSRoute
	MPLSRoutesRemoved []uint32
}
