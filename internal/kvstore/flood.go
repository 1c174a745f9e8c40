package kvstore

import (
	"context"
	"time"

	"github.com/openr-go/openr/pkg/model"
)

// floodWithPath builds one outgoing publication from changed/expired
// keys, appends the local node-id to basePath, and forwards it to
// every INITIALIZED peer except excludePeer (spec §4.1 "Flooding").
// Local subscribers always get a copy regardless of peer state.
func (a *areaState) floodWithPath(changed map[string]model.Value, expired []string, basePath []string, floodRoot string, excludePeer *string) {
	path := make([]string, len(basePath), len(basePath)+1)
	copy(path, basePath)
	path = append(path, a.cfg.NodeID)

	pub := model.Publication{
		Area:        a.areaID,
		KeyVals:     changed,
		ExpiredKeys: expired,
		Path:        path,
		FloodRootID: floodRoot,
	}

	a.loop.publications.Push(pub)

	for name, p := range a.peers {
		if excludePeer != nil && name == *excludePeer {
			continue
		}
		if p.state != StateInitialized {
			continue
		}
		if floodRoot != "" && !a.onSpanningTree(name, floodRoot) {
			continue
		}
		a.counters.floodedTotal.Inc()
		go a.sendToPeer(p, pub)
	}
}

// onSpanningTree restricts forwarding to a spanning tree rooted at
// floodRoot when one is specified (spec §4.1, §9 open question). The
// source's precise root-election algorithm isn't specified; per §9 we
// fail closed to full-mesh split-horizon whenever we can't establish
// tree membership, so this always returns true until a concrete
// spanning-tree computation is wired in.
func (a *areaState) onSpanningTree(peerName, floodRoot string) bool {
	return true
}

func (a *areaState) sendToPeer(p *peerState, pub model.Publication) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.client.FloodPublication(ctx, pub); err != nil {
		a.log.Warn("flood to peer failed", "peer", p.name, "err", err)
		_ = a.loop.call(func(state *areaState) {
			state.counters.peerErrorsTotal.Inc()
		})
	}
}
