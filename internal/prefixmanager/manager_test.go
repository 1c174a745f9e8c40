package prefixmanager

import (
	"context"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openr-go/openr/pkg/model"
	"github.com/openr-go/openr/pkg/wire"
)

type fakeStore struct {
	writes []map[string]model.Value
}

func (f *fakeStore) SetKeys(ctx context.Context, areaID string, kvs map[string]model.Value) error {
	f.writes = append(f.writes, kvs)
	return nil
}

func TestAddPrefixPublishesEncodedEntry(t *testing.T) {
	store := &fakeStore{}
	m := New(Config{NodeID: "node1", Areas: []string{"area1"}, Store: store})

	pfx := netip.MustParsePrefix("10.0.0.0/24")
	require.NoError(t, m.AddPrefix(context.Background(), model.PrefixTypeLoopback, model.PrefixEntry{Prefix: pfx}))

	require.Len(t, store.writes, 1)
	key := model.PrefixKey("node1", "area1", model.EncodedPrefix(pfx))
	v, ok := store.writes[0][key]
	require.True(t, ok, "expected write for key %q", key)

	decoded, err := wire.DecodePrefixEntry(v.Data)
	require.NoError(t, err)
	assert.Equal(t, pfx, decoded.Prefix)
}

func TestConflictingTypesResolveToBestMetrics(t *testing.T) {
	store := &fakeStore{}
	m := New(Config{NodeID: "node1", Areas: []string{"area1"}, Store: store})
	pfx := netip.MustParsePrefix("10.0.1.0/24")

	require.NoError(t, m.AddPrefix(context.Background(), model.PrefixTypeConfig, model.PrefixEntry{
		Prefix: pfx, Metrics: model.PrefixMetrics{PathPreference: 10},
	}))
	require.NoError(t, m.AddPrefix(context.Background(), model.PrefixTypeBGP, model.PrefixEntry{
		Prefix: pfx, Metrics: model.PrefixMetrics{PathPreference: 100},
	}))

	last := store.writes[len(store.writes)-1]
	key := model.PrefixKey("node1", "area1", model.EncodedPrefix(pfx))
	decoded, err := wire.DecodePrefixEntry(last[key].Data)
	require.NoError(t, err)
	assert.Equal(t, int32(100), decoded.Metrics.PathPreference, "higher path preference from BGP should win")
}

func TestWithdrawPrefixRemovesFromAggregate(t *testing.T) {
	store := &fakeStore{}
	m := New(Config{NodeID: "node1", Areas: []string{"area1"}, Store: store})
	pfx := netip.MustParsePrefix("10.0.2.0/24")

	require.NoError(t, m.AddPrefix(context.Background(), model.PrefixTypeConfig, model.PrefixEntry{Prefix: pfx}))
	require.NoError(t, m.WithdrawPrefix(context.Background(), model.PrefixTypeConfig, pfx))

	m.mu.Lock()
	_, present := m.aggregateLocked()[pfx]
	m.mu.Unlock()
	assert.False(t, present, "prefix should no longer be in the aggregate after withdrawal")

	key := model.PrefixKey("node1", "area1", model.EncodedPrefix(pfx))
	var sawShortTTL bool
	for _, w := range store.writes {
		if v, ok := w[key]; ok && v.TTL == 1 {
			sawShortTTL = true
		}
	}
	assert.True(t, sawShortTTL, "expected a short-TTL republish to trigger expiry-driven removal")
}
