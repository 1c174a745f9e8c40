package linkmonitor

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openr-go/openr/pkg/platform"
)

func TestAdjacencyUpThenDown(t *testing.T) {
	ifs := NewInterfaces()
	now := time.Now()

	res := ifs.ApplySparkEvent(platform.SparkNeighborEvent{
		Type: platform.SparkNeighborUp, NodeID: "nodeB", LocalIfName: "eth0", RemoteIfName: "eth1",
		TransportAddr: netip.MustParseAddr("10.0.0.2"),
	}, now)
	require.True(t, res.Changed)
	require.True(t, res.ImmediateKvPeerChange)
	require.Len(t, ifs.Snapshot(), 1)

	res = ifs.ApplySparkEvent(platform.SparkNeighborEvent{Type: platform.SparkNeighborDown, NodeID: "nodeB", LocalIfName: "eth0"}, now)
	require.True(t, res.Changed)
	require.Empty(t, ifs.Snapshot())
}

func TestRestartingSuppressesRTTChange(t *testing.T) {
	ifs := NewInterfaces()
	now := time.Now()
	ifs.ApplySparkEvent(platform.SparkNeighborEvent{Type: platform.SparkNeighborUp, NodeID: "nodeB", LocalIfName: "eth0"}, now)
	ifs.ApplySparkEvent(platform.SparkNeighborEvent{Type: platform.SparkNeighborRestarting, NodeID: "nodeB", LocalIfName: "eth0"}, now)

	res := ifs.ApplySparkEvent(platform.SparkNeighborEvent{
		Type: platform.SparkNeighborRTTChange, NodeID: "nodeB", LocalIfName: "eth0", RTT: 5 * time.Millisecond,
	}, now)
	assert.False(t, res.Changed, "a restarting adjacency should not apply metric updates")
}

func TestInterfaceBackoffDoublesAndCaps(t *testing.T) {
	b := newInterfaceBackoff(time.Second, 4*time.Second)
	now := time.Now()

	b.flap(now)
	assert.Equal(t, time.Second, b.current)
	b.flap(now)
	assert.Equal(t, 2*time.Second, b.current)
	b.flap(now)
	assert.Equal(t, 4*time.Second, b.current)
	b.flap(now)
	assert.Equal(t, 4*time.Second, b.current, "must cap at max")

	assert.True(t, b.active(now.Add(time.Second)))
	assert.False(t, b.active(now.Add(5*time.Second)))
}

func TestMetricOverridePrecedence(t *testing.T) {
	state := NewLinkMonitorState(false)
	a := AdjState{Key: AdjKey{NodeID: "nodeB", IfName: "eth0"}, RTT: 1000 * time.Microsecond}

	assert.Equal(t, uint32(10), Metric(a, true, state), "base metric from rtt_us/100")

	state.LinkMetricOverrides["eth0"] = 50
	assert.Equal(t, uint32(50), Metric(a, true, state), "link-metric override applies over base")

	state.AdjacencyMetricOverrides[AdjacencyOverrideKey{NodeID: "nodeB", IfName: "eth0"}] = 99
	assert.Equal(t, uint32(99), Metric(a, true, state), "adjacency-metric override takes precedence over link-metric")
}

func TestDerivePeersPicksSmallestLocalIfName(t *testing.T) {
	ifs := NewInterfaces()
	adjs := []AdjState{
		{Key: AdjKey{NodeID: "nodeB", IfName: "eth1"}, AreaID: "area1", TransportAddr: "10.0.0.2"},
		{Key: AdjKey{NodeID: "nodeB", IfName: "eth0"}, AreaID: "area1", TransportAddr: "10.0.0.3"},
	}
	peers := DerivePeers(adjs, ifs, time.Now())
	require.Contains(t, peers, "area1")
	require.Contains(t, peers["area1"], "nodeB")
	assert.Equal(t, "10.0.0.3", peers["area1"]["nodeB"].TransportAddr.String(), "eth0 sorts before eth1")
}

func TestDerivePeersSkipsBackoffInterfaces(t *testing.T) {
	ifs := NewInterfaces()
	now := time.Now()
	ifs.RecordFlap("eth0", now, time.Minute, 10*time.Minute)

	adjs := []AdjState{
		{Key: AdjKey{NodeID: "nodeB", IfName: "eth0"}, AreaID: "area1", TransportAddr: "10.0.0.3"},
	}
	peers := DerivePeers(adjs, ifs, now)
	assert.Empty(t, peers, "the only adjacency is in backoff, so no peer should be derived")
}
