package platform

import (
	"context"

	"github.com/openr-go/openr/pkg/model"
)

// RouteProgrammer is the platform route-programming interface Fib
// drives (spec §4.5, §6). A real implementation forwards these calls
// over the kernel FIB RPC/netlink transport, out of scope here (§1).
type RouteProgrammer interface {
	AddUnicastRoutes(ctx context.Context, routes []model.UnicastRoute) error
	DeleteUnicastRoutes(ctx context.Context, prefixes []string) error
	AddMPLSRoutes(ctx context.Context, routes []model.MPLSRoute) error
	DeleteMPLSRoutes(ctx context.Context, labels []uint32) error
	// SyncFib replaces the platform's entire route set with routes, used
	// for the periodic full resync (spec §4.5, §6 "Platform-sync period").
	SyncFib(ctx context.Context, unicast []model.UnicastRoute, mpls []model.MPLSRoute) error
}
