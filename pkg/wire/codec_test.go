package wire

import (
	"net/netip"
	"testing"
	"time"

	"github.com/openr-go/openr/pkg/model"
)

func TestAdjacencyDatabaseRoundTrip(t *testing.T) {
	adb := model.AdjacencyDatabase{
		ThisNodeName: "node1",
		NodeLabel:    100,
		IsOverloaded: false,
		AreaID:       "area1",
		Adjacencies: []model.Adjacency{
			{
				OtherNodeName:   "node2",
				LocalIfName:     "eth0",
				RemoteIfName:    "eth1",
				NextHopV4:       "10.0.0.1",
				NextHopV6:       "fe80::1",
				Metric:          10,
				AdjLabel:        200,
				RTTMicroseconds: 500,
				Timestamp:       time.Unix(1000, 0).UTC(),
				Weight:          1,
			},
		},
		PerfEvents: []model.PerfEvent{{Name: "SPF_START", Timestamp: time.Unix(2000, 0).UTC()}},
	}

	got, err := DecodeAdjacencyDatabase(EncodeAdjacencyDatabase(adb))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ThisNodeName != adb.ThisNodeName || got.NodeLabel != adb.NodeLabel || got.AreaID != adb.AreaID {
		t.Fatalf("scalar mismatch: %+v", got)
	}
	if len(got.Adjacencies) != 1 || got.Adjacencies[0].OtherNodeName != "node2" || got.Adjacencies[0].Metric != 10 {
		t.Fatalf("adjacency mismatch: %+v", got.Adjacencies)
	}
	if len(got.PerfEvents) != 1 || got.PerfEvents[0].Name != "SPF_START" {
		t.Fatalf("perf event mismatch: %+v", got.PerfEvents)
	}
}

func TestPrefixEntryRoundTrip(t *testing.T) {
	minNh := 2
	pe := model.PrefixEntry{
		Prefix:              netip.MustParsePrefix("10.1.0.0/24"),
		Type:                model.PrefixTypeLoopback,
		ForwardingType:      model.ForwardingSRMPLS,
		ForwardingAlgorithm: model.AlgorithmKSP2EDECMP,
		Metrics:             model.PrefixMetrics{PathPreference: 100, SourcePreference: 200, Distance: -1},
		Tags:                map[string]struct{}{"blue": {}},
		AreaStack:           []string{"area1", "area2"},
		MinNexthop:          &minNh,
	}

	got, err := DecodePrefixEntry(EncodePrefixEntry(pe))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Prefix != pe.Prefix || got.Type != pe.Type || got.ForwardingType != pe.ForwardingType {
		t.Fatalf("scalar mismatch: %+v", got)
	}
	if got.Metrics != pe.Metrics {
		t.Fatalf("metrics mismatch: %+v", got.Metrics)
	}
	if _, ok := got.Tags["blue"]; !ok {
		t.Fatalf("tags mismatch: %+v", got.Tags)
	}
	if len(got.AreaStack) != 2 || got.AreaStack[1] != "area2" {
		t.Fatalf("area stack mismatch: %+v", got.AreaStack)
	}
	if got.MinNexthop == nil || *got.MinNexthop != 2 {
		t.Fatalf("min nexthop mismatch: %+v", got.MinNexthop)
	}
}

func TestPrefixEntryNoMinNexthop(t *testing.T) {
	pe := model.PrefixEntry{Prefix: netip.MustParsePrefix("::/0")}
	got, err := DecodePrefixEntry(EncodePrefixEntry(pe))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.MinNexthop != nil {
		t.Fatalf("expected nil MinNexthop, got %v", *got.MinNexthop)
	}
}

func TestDecodeTruncatedPayloadErrors(t *testing.T) {
	if _, err := DecodeAdjacencyDatabase([]byte{schemaVersion}); err == nil {
		t.Fatal("expected error decoding truncated payload")
	}
}
