package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openr-go/openr/pkg/model"
	"github.com/openr-go/openr/pkg/platform"
)

type fakePeerClient struct {
	received chan model.Publication
}

func newFakePeerClient() *fakePeerClient {
	return &fakePeerClient{received: make(chan model.Publication, 16)}
}

func (f *fakePeerClient) GetKeyHashes(ctx context.Context, area, prefix string) (map[string]model.Value, error) {
	return map[string]model.Value{}, nil
}

func (f *fakePeerClient) GetKeyValues(ctx context.Context, area string, keys []string) (map[string]model.Value, error) {
	return map[string]model.Value{}, nil
}

func (f *fakePeerClient) FloodPublication(ctx context.Context, pub model.Publication) error {
	f.received <- pub
	return nil
}

func testStore(t *testing.T, nodeID string, dialer func(platform.PeerSpec) platform.PeerClient) *Store {
	s := New(Config{NodeID: nodeID, PeerClientDialer: dialer})
	s.AddArea("area1", nil)
	t.Cleanup(s.Close)
	return s
}

func TestSetKeyFloodsToInitializedPeer(t *testing.T) {
	peerClient := newFakePeerClient()
	s := testStore(t, "nodeA", func(platform.PeerSpec) platform.PeerClient { return peerClient })

	require.NoError(t, s.AddPeer(context.Background(), "area1", "nodeB", platform.PeerSpec{NodeID: "nodeB"}))

	require.Eventually(t, func() bool {
		al, err := s.area("area1")
		require.NoError(t, err)
		var st PeerState
		_ = al.call(func(a *areaState) { st = a.peers["nodeB"].state })
		return st == StateInitialized
	}, time.Second, 5*time.Millisecond)

	v := model.Value{Version: 1, OriginatorID: "nodeA", Data: []byte("hello"), TTL: model.TTLInfinity}.WithHash()
	require.NoError(t, s.SetKeys(context.Background(), "area1", map[string]model.Value{"adj:nodeA": v}))

	select {
	case pub := <-peerClient.received:
		assert.Contains(t, pub.KeyVals, "adj:nodeA")
		assert.Equal(t, []string{"nodeA"}, pub.Path)
	case <-time.After(time.Second):
		t.Fatal("expected publication to reach peer")
	}
}

func TestReceivePublicationLoopPrevention(t *testing.T) {
	s := testStore(t, "nodeA", func(platform.PeerSpec) platform.PeerClient { return newFakePeerClient() })

	pub := model.Publication{
		Area:    "area1",
		KeyVals: map[string]model.Value{"adj:nodeC": model.Value{Version: 1, OriginatorID: "nodeC", TTL: model.TTLInfinity}.WithHash()},
		Path:    []string{"nodeB", "nodeA"}, // already visited nodeA
	}
	require.NoError(t, s.ReceivePublication(context.Background(), "area1", "nodeB", pub))

	_, ok, err := s.GetKey(context.Background(), "area1", "adj:nodeC")
	require.NoError(t, err)
	assert.False(t, ok, "publication that already visited this node must be dropped")
}

func TestReceivePublicationMergeAndForward(t *testing.T) {
	peerClient := newFakePeerClient()
	s := testStore(t, "nodeA", func(platform.PeerSpec) platform.PeerClient { return peerClient })
	require.NoError(t, s.AddPeer(context.Background(), "area1", "nodeC", platform.PeerSpec{NodeID: "nodeC"}))
	require.Eventually(t, func() bool {
		al, _ := s.area("area1")
		var st PeerState
		_ = al.call(func(a *areaState) { st = a.peers["nodeC"].state })
		return st == StateInitialized
	}, time.Second, 5*time.Millisecond)

	v := model.Value{Version: 1, OriginatorID: "nodeB", Data: []byte("x"), TTL: model.TTLInfinity}.WithHash()
	pub := model.Publication{Area: "area1", KeyVals: map[string]model.Value{"adj:nodeB": v}, Path: []string{"nodeB"}}
	require.NoError(t, s.ReceivePublication(context.Background(), "area1", "nodeB-peer-name", pub))

	got, ok, err := s.GetKey(context.Background(), "area1", "adj:nodeB")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, v.Data, got.Data)

	select {
	case fwd := <-peerClient.received:
		assert.Equal(t, []string{"nodeB", "nodeA"}, fwd.Path)
	case <-time.After(time.Second):
		t.Fatal("expected publication to be forwarded to nodeC")
	}
}
