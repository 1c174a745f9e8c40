// Package kvstore implements the per-area, eventually-consistent,
// flooded key-value database described in spec §4.1: versioned writes
// with TTL expiry, merge semantics, and topology-aware flood reduction.
//
// Each area runs its own single-threaded event loop (spec §5): all
// public methods enqueue a closure onto that loop and wait for it to
// run, so state mutation never needs a lock inside the loop itself.
package kvstore

import (
	"context"
	"sync"
	"time"

	"github.com/openr-go/openr/pkg/bus"
	"github.com/openr-go/openr/pkg/log"
	"github.com/openr-go/openr/pkg/model"
	"github.com/openr-go/openr/pkg/platform"
	"github.com/openr-go/openr/pkg/serrors"
)

// KvStoreSyncEvent is emitted once per peer, the first time it
// transitions SYNCING -> INITIALIZED (spec §4.1).
type KvStoreSyncEvent struct {
	AreaID string
	PeerID string
}

// Config configures one Store instance.
type Config struct {
	NodeID string
	// PeerClientDialer resolves a PeerSpec to a usable PeerClient; the
	// transport itself is out of scope (spec §1).
	PeerClientDialer func(platform.PeerSpec) platform.PeerClient
	// RefreshFraction is applied to a Value's TTL to get the
	// originator's self-refresh period (spec §4.1: 3/4 * ttl).
	RefreshFraction float64
}

// Store manages the per-area key-value databases.
type Store struct {
	cfg   Config
	mu    sync.Mutex
	areas map[string]*areaLoop
}

// New creates an empty Store; areas are added with AddArea.
func New(cfg Config) *Store {
	if cfg.RefreshFraction <= 0 {
		cfg.RefreshFraction = 0.75
	}
	return &Store{cfg: cfg, areas: make(map[string]*areaLoop)}
}

// AddArea starts the event loop for a new area. keyAccept implements
// the area's KV-store key filter (spec §2 Area Table).
func (s *Store) AddArea(areaID string, keyAccept func(string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.areas[areaID]; ok {
		return
	}
	al := newAreaLoop(areaID, s.cfg, keyAccept)
	s.areas[areaID] = al
	go al.run()
}

// Close stops every area's event loop.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, al := range s.areas {
		al.close()
	}
}

func (s *Store) area(areaID string) (*areaLoop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	al, ok := s.areas[areaID]
	if !ok {
		return nil, serrors.New("unknown area", "area", areaID)
	}
	return al, nil
}

// Publications returns a reader over every accepted publication in
// areaID, for local subscribers (Decision, etc).
func (s *Store) Publications(areaID string) (*bus.Reader[model.Publication], error) {
	al, err := s.area(areaID)
	if err != nil {
		return nil, err
	}
	return al.publications.Reader(), nil
}

// SyncEvents returns a reader over KvStoreSyncEvents for areaID.
func (s *Store) SyncEvents(areaID string) (*bus.Reader[KvStoreSyncEvent], error) {
	al, err := s.area(areaID)
	if err != nil {
		return nil, err
	}
	return al.syncEvents.Reader(), nil
}

// SetKeys is setKeys from spec §4.1: apply the merge rule per key and
// flood what wins. A key that loses the merge is dropped without an
// error and does not abort the batch; the only errors returned are for
// an unknown area or a stopped area loop.
func (s *Store) SetKeys(ctx context.Context, areaID string, kvs map[string]model.Value) error {
	al, err := s.area(areaID)
	if err != nil {
		return err
	}
	return al.call(func(a *areaState) {
		a.setKeys(kvs, nil)
	})
}

// GetKey performs a point lookup.
func (s *Store) GetKey(ctx context.Context, areaID, key string) (model.Value, bool, error) {
	al, err := s.area(areaID)
	if err != nil {
		return model.Value{}, false, err
	}
	var v model.Value
	var ok bool
	err = al.call(func(a *areaState) {
		v, ok = a.keys[key]
	})
	return v, ok, err
}

// DumpAll returns every key matching keyPrefix whose originator is in
// originators (nil/empty originators means no filter), per spec §4.1.
func (s *Store) DumpAll(ctx context.Context, areaID, keyPrefix string, originators map[string]struct{}) (map[string]model.Value, error) {
	al, err := s.area(areaID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Value)
	err = al.call(func(a *areaState) {
		for k, v := range a.keys {
			if !hasPrefix(k, keyPrefix) {
				continue
			}
			if len(originators) > 0 {
				if _, ok := originators[v.OriginatorID]; !ok {
					continue
				}
			}
			out[k] = v
		}
	})
	return out, err
}

// DumpHashes is dumpHashes: like DumpAll but strips Data, used to drive
// incremental sync (spec §4.1).
func (s *Store) DumpHashes(ctx context.Context, areaID, keyPrefix string) (map[string]model.Value, error) {
	all, err := s.DumpAll(ctx, areaID, keyPrefix, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range all {
		v.Data = nil
		all[k] = v
	}
	return all, nil
}

// AddPeer adds name to areaID's peer table and begins SYNCING (spec
// §4.1 "Peering").
func (s *Store) AddPeer(ctx context.Context, areaID, name string, spec platform.PeerSpec) error {
	al, err := s.area(areaID)
	if err != nil {
		return err
	}
	return al.call(func(a *areaState) {
		a.addPeer(name, spec)
	})
}

// DelPeer removes name from areaID's peer table.
func (s *Store) DelPeer(ctx context.Context, areaID, name string) error {
	al, err := s.area(areaID)
	if err != nil {
		return err
	}
	return al.call(func(a *areaState) {
		a.delPeer(name)
	})
}

// ReceivePublication applies an incoming publication from a peer (spec
// §4.1 "Flooding").
func (s *Store) ReceivePublication(ctx context.Context, areaID, ingressPeer string, pub model.Publication) error {
	al, err := s.area(areaID)
	if err != nil {
		return err
	}
	return al.call(func(a *areaState) {
		a.receivePublication(ingressPeer, pub)
	})
}

// Counters returns a snapshot of this area's counters (spec §4.1,
// SPEC_FULL getCounters()).
func (s *Store) Counters(ctx context.Context, areaID string) (map[string]int64, error) {
	al, err := s.area(areaID)
	if err != nil {
		return nil, err
	}
	var out map[string]int64
	err = al.call(func(a *areaState) {
		out = a.counters.snapshot()
	})
	return out, err
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// clockNow is a package-level clock hook; no code or test in this
// package reads or overrides it.
var clockNow = time.Now

// logArea builds a per-area logger.
func logArea(areaID string) log.Logger {
	return log.Root().With("area", areaID)
}
