package decision

import (
	"net/netip"
	"testing"
	"time"

	"github.com/openr-go/openr/pkg/model"
	"github.com/openr-go/openr/pkg/wire"
)

func adjPub(node string, version int64, adb model.AdjacencyDatabase) model.Publication {
	return model.Publication{
		KeyVals: map[string]model.Value{
			model.AdjKey(node): {Version: version, OriginatorID: node, Data: wire.EncodeAdjacencyDatabase(adb)},
		},
	}
}

func prefixPub(node, encoded string, version int64, pe model.PrefixEntry) model.Publication {
	key := model.PrefixKey(node, "area1", encoded)
	return model.Publication{
		KeyVals: map[string]model.Value{
			key: {Version: version, OriginatorID: node, Data: wire.EncodePrefixEntry(pe)},
		},
	}
}

func TestEngineComputesShortestPathRoute(t *testing.T) {
	e := NewEngine(Config{NodeID: "A", AreaID: "area1", DebounceWindow: 10 * time.Millisecond})
	defer e.Close()
	deltas := e.Deltas()

	e.ApplyPublication(adjPub("A", 1, model.AdjacencyDatabase{
		ThisNodeName: "A",
		Adjacencies: []model.Adjacency{
			{OtherNodeName: "B", LocalIfName: "eth0", RemoteIfName: "eth0", Metric: 10, NextHopV4: "10.0.0.2"},
		},
	}))
	e.ApplyPublication(adjPub("B", 1, model.AdjacencyDatabase{
		ThisNodeName: "B",
		Adjacencies: []model.Adjacency{
			{OtherNodeName: "A", LocalIfName: "eth0", RemoteIfName: "eth0", Metric: 10, NextHopV4: "10.0.0.1"},
		},
	}))

	pfx := netip.MustParsePrefix("10.1.0.0/24")
	e.ApplyPublication(prefixPub("B", model.EncodedPrefix(pfx), 1, model.PrefixEntry{
		Prefix:  pfx,
		Metrics: model.PrefixMetrics{PathPreference: 100},
	}))

	select {
	case delta := <-deltas.Chan():
		if len(delta.UnicastRoutesAdded) != 1 {
			t.Fatalf("expected one added route, got %+v", delta)
		}
		got := delta.UnicastRoutesAdded[0]
		if got.Prefix != pfx {
			t.Fatalf("expected route to %v, got %v", pfx, got.Prefix)
		}
		if len(got.NextHops) != 1 || got.NextHops[0].NodeID != "B" {
			t.Fatalf("expected next hop via B, got %+v", got.NextHops)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a route delta")
	}
}

func TestEngineWithdrawsBelowMinNexthop(t *testing.T) {
	e := NewEngine(Config{NodeID: "A", AreaID: "area1", DebounceWindow: 5 * time.Millisecond})
	defer e.Close()
	deltas := e.Deltas()

	e.ApplyPublication(adjPub("A", 1, model.AdjacencyDatabase{
		ThisNodeName: "A",
		Adjacencies: []model.Adjacency{
			{OtherNodeName: "B", LocalIfName: "eth0", RemoteIfName: "eth0", Metric: 10, NextHopV4: "10.0.0.2"},
		},
	}))

	// B is reachable over a single next-hop, one short of the floor of 2.
	minNh := 2
	pfx := netip.MustParsePrefix("10.2.0.0/24")
	e.ApplyPublication(prefixPub("B", model.EncodedPrefix(pfx), 1, model.PrefixEntry{
		Prefix:     pfx,
		MinNexthop: &minNh,
	}))

	select {
	case delta := <-deltas.Chan():
		t.Fatalf("expected no route below min-nexthop floor, got %+v", delta)
	case <-time.After(150 * time.Millisecond):
		// no delta emitted, as expected
	}
}
