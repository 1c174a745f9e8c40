package kvstore

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/openr-go/openr/pkg/log"
	"github.com/openr-go/openr/pkg/model"
	"github.com/openr-go/openr/pkg/platform"
)

// PeerState is a KV-Store peer's lifecycle state (spec §3).
type PeerState int

const (
	StateIdle PeerState = iota
	StateSyncing
	StateInitialized
)

func (s PeerState) String() string {
	switch s {
	case StateSyncing:
		return "SYNCING"
	case StateInitialized:
		return "INITIALIZED"
	default:
		return "IDLE"
	}
}

type peerState struct {
	name   string
	spec   platform.PeerSpec
	state  PeerState
	client platform.PeerClient
	cancel context.CancelFunc
}

// addPeer adds name to the peer table and kicks off initial sync (spec
// §4.1 "Peering"). Re-adding an existing peer is a no-op.
func (a *areaState) addPeer(name string, spec platform.PeerSpec) {
	if _, ok := a.peers[name]; ok {
		return
	}
	client := a.cfg.PeerClientDialer(spec)
	syncCtx, cancel := context.WithCancel(context.Background())
	p := &peerState{name: name, spec: spec, state: StateSyncing, client: client, cancel: cancel}
	a.peers[name] = p
	go a.runSync(syncCtx, p)
}

// delPeer removes name from the peer table, aborting any in-flight sync.
func (a *areaState) delPeer(name string) {
	p, ok := a.peers[name]
	if !ok {
		return
	}
	p.cancel()
	delete(a.peers, name)
}

// runSync drives one peer's SYNCING -> INITIALIZED transition: request
// a hash dump, diff against local keys, pull the differing full
// Values, and apply them. RPC failures are retried with exponential
// backoff (spec §4.1 "On RPC failure, back off and retry").
func (a *areaState) runSync(ctx context.Context, p *peerState) {
	defer log.HandlePanic()
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // retry until ctx is cancelled
	bo := backoff.WithContext(b, ctx)

	op := func() error {
		return a.syncOnce(ctx, p)
	}
	if err := backoff.Retry(op, bo); err != nil {
		return // ctx cancelled (peer removed); nothing more to do
	}

	_ = a.loop.call(func(state *areaState) {
		cur, ok := state.peers[p.name]
		if !ok || cur.state == StateInitialized {
			return
		}
		cur.state = StateInitialized
		state.loop.syncEvents.Push(KvStoreSyncEvent{AreaID: state.areaID, PeerID: p.name})
	})
}

func (a *areaState) syncOnce(ctx context.Context, p *peerState) error {
	remoteHashes, err := p.client.GetKeyHashes(ctx, a.areaID, "")
	if err != nil {
		a.bumpPeerErrors()
		return err
	}

	var toPull []string
	_ = a.loop.call(func(state *areaState) {
		for key, remote := range remoteHashes {
			local, ok := state.keys[key]
			if !ok {
				toPull = append(toPull, key)
				continue
			}
			// The hash dump carries no Data; give the probe an empty,
			// non-nil Data so Merge compares the merge-order tuple
			// instead of treating it as a ttl-refresh.
			probe := remote
			probe.Data = []byte{}
			result, _ := model.Merge(&local, probe)
			if result == model.MergeIncomingWins {
				toPull = append(toPull, key)
			}
		}
	})
	if len(toPull) == 0 {
		return nil
	}

	full, err := p.client.GetKeyValues(ctx, a.areaID, toPull)
	if err != nil {
		a.bumpPeerErrors()
		return err
	}
	return a.loop.call(func(state *areaState) {
		accepted := state.applyMerge(full)
		if len(accepted) > 0 {
			state.floodWithPath(accepted, nil, nil, "", &p.name)
		}
	})
}

func (a *areaState) bumpPeerErrors() {
	_ = a.loop.call(func(state *areaState) {
		state.counters.peerErrorsTotal.Inc()
	})
}
