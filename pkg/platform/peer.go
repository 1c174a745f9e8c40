package platform

import (
	"context"

	"github.com/openr-go/openr/pkg/model"
)

// PeerClient is the KV-Store peer RPC boundary (spec §4.1 "Peering").
// Real transport (TLS/gRPC) is out of scope per §1; this interface is
// where the gossip logic in internal/kvstore meets it.
type PeerClient interface {
	// GetKeyHashes drives the initial/incremental sync diff: it returns
	// Values with Data stripped, for the given key-prefix.
	GetKeyHashes(ctx context.Context, areaID, keyPrefix string) (map[string]model.Value, error)
	// GetKeyValues fetches full Values for the given keys.
	GetKeyValues(ctx context.Context, areaID string, keys []string) (map[string]model.Value, error)
	// FloodPublication delivers pub to the peer asynchronously; the
	// caller never blocks waiting on peer processing (spec §4.1 failure
	// semantics).
	FloodPublication(ctx context.Context, pub model.Publication) error
}

// OperatorServer is the RPC surface an operator drives (spec §6). State
// mutating methods are sequenced onto the owning component's event
// loop; read methods may be served directly.
type OperatorServer interface {
	SetNodeOverload(ctx context.Context, overloaded bool) error
	SetInterfaceOverload(ctx context.Context, ifName string, overloaded bool) error
	SetLinkMetric(ctx context.Context, ifName string, metric *uint32) error
	SetAdjacencyMetric(ctx context.Context, ifName, nodeID string, metric *uint32) error
	GetInterfaces(ctx context.Context) (InterfaceDatabase, error)
	GetAdjacencies(ctx context.Context, areaFilter string) ([]model.AdjacencyDatabase, error)
	GetKvStoreKeyVals(ctx context.Context, areaID string, keys []string) (map[string]model.Value, error)
	GetKvStoreHashes(ctx context.Context, areaID, keyPrefix string) (map[string]model.Value, error)
	DumpRoutes(ctx context.Context) ([]model.UnicastRoute, []model.MPLSRoute, error)
	GetCounters(ctx context.Context) (map[string]int64, error)
}
