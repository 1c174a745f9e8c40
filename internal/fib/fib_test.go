package fib

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openr-go/openr/pkg/model"
)

type fakeProgrammer struct {
	added   []model.UnicastRoute
	deleted []string
	mplsAdded []model.MPLSRoute
	syncCalls int
	failNext  bool
}

func (f *fakeProgrammer) AddUnicastRoutes(ctx context.Context, routes []model.UnicastRoute) error {
	if f.failNext {
		f.failNext = false
		return context.DeadlineExceeded
	}
	f.added = append(f.added, routes...)
	return nil
}
func (f *fakeProgrammer) DeleteUnicastRoutes(ctx context.Context, prefixes []string) error {
	f.deleted = append(f.deleted, prefixes...)
	return nil
}
func (f *fakeProgrammer) AddMPLSRoutes(ctx context.Context, routes []model.MPLSRoute) error {
	f.mplsAdded = append(f.mplsAdded, routes...)
	return nil
}
func (f *fakeProgrammer) DeleteMPLSRoutes(ctx context.Context, labels []uint32) error { return nil }
func (f *fakeProgrammer) SyncFib(ctx context.Context, unicast []model.UnicastRoute, mpls []model.MPLSRoute) error {
	f.syncCalls++
	return nil
}

func TestApplyProgramsAddedRoutes(t *testing.T) {
	prog := &fakeProgrammer{}
	f := New(Config{AreaID: "area1", Programmer: prog, ResyncEvery: time.Hour})
	defer f.Close()

	pfx := netip.MustParsePrefix("10.0.0.0/24")
	delta := model.RouteDatabaseDelta{
		AreaID:             "area1",
		UnicastRoutesAdded: []model.UnicastRoute{{Prefix: pfx, NextHops: []model.NextHop{{NodeID: "B"}}}},
	}
	require.NoError(t, f.Apply(context.Background(), delta))
	require.Len(t, prog.added, 1)
	assert.Equal(t, pfx, prog.added[0].Prefix)

	unicast, _ := f.Programmed()
	require.Len(t, unicast, 1)

	route, ok := f.LookupUnicast(netip.MustParseAddr("10.0.0.5"))
	require.True(t, ok)
	assert.Equal(t, pfx, route.Prefix)
}

func TestApplyRetriesOnFailure(t *testing.T) {
	prog := &fakeProgrammer{failNext: true}
	f := New(Config{AreaID: "area1", Programmer: prog, ResyncEvery: time.Hour, RetryMax: time.Second})
	defer f.Close()

	pfx := netip.MustParsePrefix("10.0.1.0/24")
	delta := model.RouteDatabaseDelta{UnicastRoutesAdded: []model.UnicastRoute{{Prefix: pfx}}}
	require.NoError(t, f.Apply(context.Background(), delta))
	assert.Len(t, prog.added, 1, "should have succeeded on the retry")
}

func TestMPLSRoutePrefersPHPOverSwap(t *testing.T) {
	prog := &fakeProgrammer{}
	f := New(Config{AreaID: "area1", Programmer: prog, ResyncEvery: time.Hour})
	defer f.Close()

	delta := model.RouteDatabaseDelta{
		MPLSRoutesAdded: []model.MPLSRoute{{
			Label: 100,
			NextHops: []model.NextHop{
				{NodeID: "B", MPLS: model.MPLSActionPHP},
				{NodeID: "C", MPLS: model.MPLSActionSwap},
			},
		}},
	}
	require.NoError(t, f.Apply(context.Background(), delta))
	require.Len(t, prog.mplsAdded, 1)
	assert.Len(t, prog.mplsAdded[0].NextHops, 1, "the swap next-hop should have been dropped")
	assert.Equal(t, model.MPLSActionPHP, prog.mplsAdded[0].NextHops[0].MPLS)
}
