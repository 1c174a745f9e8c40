package linkmonitor

import (
	"context"
	"net"
	"net/netip"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"

	"github.com/openr-go/openr/pkg/areatable"
	"github.com/openr-go/openr/pkg/model"
	"github.com/openr-go/openr/pkg/platform"
)

type fakePrefixSyncCall struct {
	typ     model.PrefixType
	entries []model.PrefixEntry
}

type fakePrefixSyncer struct {
	calls []fakePrefixSyncCall
}

func (f *fakePrefixSyncer) SyncPrefixesByType(ctx context.Context, typ model.PrefixType, entries []model.PrefixEntry) error {
	f.calls = append(f.calls, fakePrefixSyncCall{typ: typ, entries: entries})
	return nil
}

type fakeKvStore struct{}

func (fakeKvStore) SetKeys(ctx context.Context, areaID string, kvs map[string]model.Value) error {
	return nil
}
func (fakeKvStore) AddPeer(ctx context.Context, areaID, name string, spec platform.PeerSpec) error {
	return nil
}
func (fakeKvStore) DelPeer(ctx context.Context, areaID, name string) error { return nil }

// fakeLink is a minimal netlink.Link so tests can build a LinkUpdate
// without a real kernel socket.
type fakeLink struct {
	attrs netlink.LinkAttrs
}

func (f *fakeLink) Attrs() *netlink.LinkAttrs { return &f.attrs }
func (f *fakeLink) Type() string              { return "device" }

func newTestAreas(t *testing.T) *areatable.Table {
	t.Helper()
	table, err := areatable.New([]areatable.Config{{
		AreaID:              "area1",
		InterfaceRegexes:    []*regexp.Regexp{regexp.MustCompile("^eth")},
		RedistributeRegexes: []*regexp.Regexp{regexp.MustCompile("^lo")},
	}})
	require.NoError(t, err)
	return table
}

func linkEvent(name string, index int, up bool) platform.NetlinkEvent {
	var state netlink.LinkOperState = netlink.OperDown
	if up {
		state = netlink.OperUp
	}
	return platform.NetlinkEvent{
		Type: platform.NetlinkEventLink,
		Link: &netlink.LinkUpdate{Link: &fakeLink{attrs: netlink.LinkAttrs{Name: name, Index: index, OperState: state}}},
	}
}

func addrEvent(index int, addr string, added bool) platform.NetlinkEvent {
	ip, ipNet, _ := net.ParseCIDR(addr)
	ipNet.IP = ip
	return platform.NetlinkEvent{
		Type: platform.NetlinkEventAddr,
		Addr: &netlink.AddrUpdate{LinkAddress: *ipNet, LinkIndex: index, NewAddr: added},
	}
}

func TestHandleNetlinkEventRedistributesGlobalUnicastAddress(t *testing.T) {
	prefixes := &fakePrefixSyncer{}
	m, err := NewMonitor(Config{
		NodeID:   "nodeA",
		Areas:    newTestAreas(t),
		Store:    fakeKvStore{},
		Prefixes: prefixes,
	})
	require.NoError(t, err)
	defer m.Close()

	m.HandleNetlinkEvent(linkEvent("lo0", 5, true))
	m.HandleNetlinkEvent(addrEvent(5, "192.0.2.10/32", true))

	require.Len(t, prefixes.calls, 1, "a redistribute-eligible address change must trigger exactly one sync")
	call := prefixes.calls[0]
	assert.Equal(t, model.PrefixTypeLoopback, call.typ)
	require.Len(t, call.entries, 1)
	assert.Equal(t, netip.MustParsePrefix("192.0.2.10/32"), call.entries[0].Prefix)
	assert.Equal(t, []string{"area1"}, call.entries[0].AreaStack)

	db, err := m.GetInterfaces(context.Background())
	require.NoError(t, err)
	snap, ok := db.Interfaces["lo0"]
	require.True(t, ok, "an interface with no adjacency must still be reported")
	assert.True(t, snap.IsUp)
	assert.Equal(t, 5, snap.IfIndex)
	require.Len(t, snap.Networks, 1)
	assert.Equal(t, netip.MustParsePrefix("192.0.2.10/32"), snap.Networks[0])
}

func TestHandleNetlinkEventIgnoresNonRedistributeEligibleInterface(t *testing.T) {
	prefixes := &fakePrefixSyncer{}
	m, err := NewMonitor(Config{
		NodeID:   "nodeA",
		Areas:    newTestAreas(t),
		Store:    fakeKvStore{},
		Prefixes: prefixes,
	})
	require.NoError(t, err)
	defer m.Close()

	m.HandleNetlinkEvent(linkEvent("eth0", 7, true))
	m.HandleNetlinkEvent(addrEvent(7, "198.51.100.5/32", true))

	assert.Empty(t, prefixes.calls, "eth0 does not match the area's redistribute-regex")
}

func TestHandleNetlinkEventWithdrawsRemovedAddress(t *testing.T) {
	prefixes := &fakePrefixSyncer{}
	m, err := NewMonitor(Config{
		NodeID:   "nodeA",
		Areas:    newTestAreas(t),
		Store:    fakeKvStore{},
		Prefixes: prefixes,
	})
	require.NoError(t, err)
	defer m.Close()

	m.HandleNetlinkEvent(linkEvent("lo0", 5, true))
	m.HandleNetlinkEvent(addrEvent(5, "192.0.2.10/32", true))
	m.HandleNetlinkEvent(addrEvent(5, "192.0.2.10/32", false))

	require.Len(t, prefixes.calls, 2)
	assert.Empty(t, prefixes.calls[1].entries, "the last address on the interface was withdrawn")
}

func TestHandleNetlinkEventTracksFlapBackoff(t *testing.T) {
	m, err := NewMonitor(Config{
		NodeID: "nodeA",
		Areas:  newTestAreas(t),
		Store:  fakeKvStore{},
	})
	require.NoError(t, err)
	defer m.Close()

	m.HandleNetlinkEvent(linkEvent("eth0", 7, true))
	m.HandleNetlinkEvent(linkEvent("eth0", 7, false))

	db, err := m.GetInterfaces(context.Background())
	require.NoError(t, err)
	snap, ok := db.Interfaces["eth0"]
	require.True(t, ok)
	assert.False(t, snap.IsUp)
	assert.True(t, snap.InBackoff)
}
