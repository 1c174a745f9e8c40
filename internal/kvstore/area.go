package kvstore

import (
	"time"

	"github.com/openr-go/openr/pkg/log"
	"github.com/openr-go/openr/pkg/model"
)

// areaState holds one area's KV-store keys, peer table, and counters.
// Every method here runs only inside the owning areaLoop goroutine.
type areaState struct {
	areaID    string
	cfg       Config
	keyAccept func(string) bool
	loop      *areaLoop
	log       log.Logger

	keys   map[string]model.Value
	expiry *expiryIndex

	peers map[string]*peerState

	refreshTimers map[string]*time.Timer

	counters *counters
}

func newAreaState(areaID string, cfg Config, keyAccept func(string) bool, loop *areaLoop) *areaState {
	if keyAccept == nil {
		keyAccept = func(string) bool { return true }
	}
	return &areaState{
		areaID:        areaID,
		cfg:           cfg,
		keyAccept:     keyAccept,
		loop:          loop,
		log:           logArea(areaID),
		keys:          make(map[string]model.Value),
		expiry:        newExpiryIndex(),
		peers:         make(map[string]*peerState),
		refreshTimers: make(map[string]*time.Timer),
		counters:      newCounters(areaID),
	}
}

// applyMerge applies the §3 merge rule to every (key, Value) pair,
// storing and returning the subset that won -- the set to flood.
func (a *areaState) applyMerge(kvs map[string]model.Value) map[string]model.Value {
	accepted := make(map[string]model.Value)
	for key, incoming := range kvs {
		if !a.keyAccept(key) {
			continue
		}
		var localPtr *model.Value
		if local, ok := a.keys[key]; ok {
			localPtr = &local
		}
		result, merged := model.Merge(localPtr, incoming)
		switch result {
		case model.MergeIncomingWins, model.MergeTTLRefresh:
			a.keys[key] = merged
			a.expiry.set(key, ttlDuration(merged))
			accepted[key] = merged
			a.counters.mergeWinsTotal.Inc()
			if merged.OriginatorID == a.cfg.NodeID {
				a.scheduleRefresh(key, merged)
			} else {
				a.cancelRefresh(key)
			}
		case model.MergeLocalWins, model.MergeRejectedRefresh:
			a.counters.mergeLossTotal.Inc()
		}
	}
	a.counters.keyCount.Set(float64(len(a.keys)))
	return accepted
}

func ttlDuration(v model.Value) time.Duration {
	if v.TTL <= 0 || v.TTL == model.TTLInfinity {
		return 0
	}
	return time.Duration(v.TTL) * time.Millisecond
}

// setKeys is the local-write entry point (setKey/setKeys, spec §4.1):
// merge, then flood anything that won as a fresh publication.
func (a *areaState) setKeys(kvs map[string]model.Value, _ *string) {
	accepted := a.applyMerge(kvs)
	if len(accepted) > 0 {
		a.floodWithPath(accepted, nil, nil, "", nil)
	}
}

// receivePublication applies an incoming publication from ingressPeer,
// enforcing loop prevention (spec §4.1, invariant 4).
func (a *areaState) receivePublication(ingressPeer string, pub model.Publication) {
	if pub.Visited(a.cfg.NodeID) {
		a.counters.loopDropsTotal.Inc()
		return
	}
	accepted := a.applyMerge(pub.KeyVals)

	var removedHere []string
	for _, key := range pub.ExpiredKeys {
		if _, ok := a.keys[key]; ok {
			delete(a.keys, key)
			a.expiry.remove(key)
			a.cancelRefresh(key)
			a.counters.expiredTotal.Inc()
			removedHere = append(removedHere, key)
		}
	}
	a.counters.keyCount.Set(float64(len(a.keys)))
	if len(accepted) == 0 && len(removedHere) == 0 {
		return
	}
	// Forward onward using the publication's own traversal path, not a
	// fresh one, and exclude the ingress peer (split-horizon).
	a.floodWithPath(accepted, removedHere, pub.Path, pub.FloodRootID, &ingressPeer)
}

// handleExpiry fires when the expiry index's deadline elapses for key:
// remove it and flood a publication carrying it under expired-keys
// (spec §4.1 "TTL expiry").
func (a *areaState) handleExpiry(key string) {
	if _, ok := a.keys[key]; !ok {
		return
	}
	delete(a.keys, key)
	a.cancelRefresh(key)
	a.counters.expiredTotal.Inc()
	a.counters.keyCount.Set(float64(len(a.keys)))
	a.floodWithPath(nil, []string{key}, nil, "", nil)
}

// scheduleRefresh (re)arms a locally-originated key's self-refresh
// timer at RefreshFraction*ttl (spec §4.1: "3/4 * ttl").
func (a *areaState) scheduleRefresh(key string, v model.Value) {
	a.cancelRefresh(key)
	if v.TTL <= 0 || v.TTL == model.TTLInfinity {
		return
	}
	period := time.Duration(float64(v.TTL)*a.cfg.RefreshFraction) * time.Millisecond
	a.refreshTimers[key] = time.AfterFunc(period, func() {
		refresh := model.Value{
			Version:      v.Version,
			OriginatorID: v.OriginatorID,
			Data:         nil,
			TTL:          v.TTL,
			TTLVersion:   v.TTLVersion + 1,
			Hash:         v.Hash,
		}
		_ = a.loop.call(func(state *areaState) {
			state.setKeys(map[string]model.Value{key: refresh}, nil)
		})
	})
}

func (a *areaState) cancelRefresh(key string) {
	if t, ok := a.refreshTimers[key]; ok {
		t.Stop()
		delete(a.refreshTimers, key)
	}
}
