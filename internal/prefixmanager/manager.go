// Package prefixmanager implements Prefix-Manager (spec §4.3): it
// aggregates prefixes advertised by other local components (Link-
// Monitor's loopback/interface prefixes, BGP, static config), resolves
// duplicate advertisements of the same prefix by different types down
// to one entry, and publishes the result into KV-Store as
// "prefix:<node>:<area>:<encoded>" keys.
package prefixmanager

import (
	"context"
	"net/netip"
	"sync"

	"github.com/openr-go/openr/pkg/log"
	"github.com/openr-go/openr/pkg/model"
	"github.com/openr-go/openr/pkg/serrors"
	"github.com/openr-go/openr/pkg/wire"
)

// KvStoreWriter is the subset of the KV-Store API Prefix-Manager needs
// to publish its aggregated view.
type KvStoreWriter interface {
	SetKeys(ctx context.Context, areaID string, kvs map[string]model.Value) error
}

// Config configures a Manager for one node.
type Config struct {
	NodeID string
	Areas  []string
	Store  KvStoreWriter
	// NextVersion supplies the KV-Store version to stamp on each write;
	// tests can substitute a deterministic counter.
	NextVersion func() int64
}

// Manager owns one node's locally-originated prefix advertisements
// across all types (spec §3's PrefixType), keyed by (prefix, type) so
// that withdrawing one type's advertisement never disturbs another's.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	byType  map[model.PrefixType]map[netip.Prefix]model.PrefixEntry
	version int64
}

// New constructs a Manager.
func New(cfg Config) *Manager {
	if cfg.NextVersion == nil {
		var counter int64
		cfg.NextVersion = func() int64 {
			counter++
			return counter
		}
	}
	return &Manager{cfg: cfg, byType: make(map[model.PrefixType]map[netip.Prefix]model.PrefixEntry)}
}

// SyncPrefixesByType replaces the full set of prefixes owned by typ
// (spec operation SYNC_PREFIXES_BY_TYPE), then republishes the
// resulting aggregate.
func (m *Manager) SyncPrefixesByType(ctx context.Context, typ model.PrefixType, entries []model.PrefixEntry) error {
	m.mu.Lock()
	fresh := make(map[netip.Prefix]model.PrefixEntry, len(entries))
	for _, e := range entries {
		e.Type = typ
		fresh[e.Prefix] = e
	}
	m.byType[typ] = fresh
	agg := m.aggregateLocked()
	m.mu.Unlock()

	return m.publish(ctx, agg)
}

// AddPrefix adds or replaces a single prefix advertisement of typ
// (spec operation ADD_PREFIX).
func (m *Manager) AddPrefix(ctx context.Context, typ model.PrefixType, entry model.PrefixEntry) error {
	m.mu.Lock()
	entry.Type = typ
	if m.byType[typ] == nil {
		m.byType[typ] = make(map[netip.Prefix]model.PrefixEntry)
	}
	m.byType[typ][entry.Prefix] = entry
	agg := m.aggregateLocked()
	m.mu.Unlock()

	return m.publish(ctx, agg)
}

// WithdrawPrefix removes one prefix's advertisement of typ (spec
// operation WITHDRAW_PREFIX).
func (m *Manager) WithdrawPrefix(ctx context.Context, typ model.PrefixType, prefix netip.Prefix) error {
	m.mu.Lock()
	before, hadBefore := m.aggregateLocked()[prefix]
	delete(m.byType[typ], prefix)
	agg := m.aggregateLocked()
	m.mu.Unlock()

	if _, stillPresent := agg[prefix]; !stillPresent && hadBefore {
		if err := m.publishWithdrawal(ctx, before); err != nil {
			return err
		}
	}
	return m.publish(ctx, agg)
}

// WithdrawPrefixesByType removes every prefix advertised under typ
// (spec operation WITHDRAW_PREFIXES_BY_TYPE).
func (m *Manager) WithdrawPrefixesByType(ctx context.Context, typ model.PrefixType) error {
	m.mu.Lock()
	removed := m.byType[typ]
	delete(m.byType, typ)
	agg := m.aggregateLocked()
	m.mu.Unlock()

	for pfx, entry := range removed {
		if _, stillPresent := agg[pfx]; !stillPresent {
			if err := m.publishWithdrawal(ctx, entry); err != nil {
				return err
			}
		}
	}
	return m.publish(ctx, agg)
}

// aggregateLocked resolves, per prefix, the single winning entry when
// more than one type advertises it: forwarding type/algorithm resolve
// to their minimum enum value (spec §4.3, "conservative wins on a
// disagreement": ForwardingIP < ForwardingSRMPLS, AlgorithmSPECMP <
// AlgorithmKSP2EDECMP), and PrefixMetrics resolve to the
// lexicographic-max across contributing types. Caller must hold m.mu.
func (m *Manager) aggregateLocked() map[netip.Prefix]model.PrefixEntry {
	byPrefix := make(map[netip.Prefix][]model.PrefixEntry)
	for _, entries := range m.byType {
		for pfx, e := range entries {
			byPrefix[pfx] = append(byPrefix[pfx], e)
		}
	}

	out := make(map[netip.Prefix]model.PrefixEntry, len(byPrefix))
	for pfx, entries := range byPrefix {
		out[pfx] = resolve(entries)
	}
	return out
}

// resolve merges multiple types' entries for the same prefix into one.
func resolve(entries []model.PrefixEntry) model.PrefixEntry {
	best := entries[0]
	for _, e := range entries[1:] {
		if e.ForwardingType < best.ForwardingType {
			best.ForwardingType = e.ForwardingType
		}
		if e.ForwardingAlgorithm < best.ForwardingAlgorithm {
			best.ForwardingAlgorithm = e.ForwardingAlgorithm
		}
		if best.Metrics.Less(e.Metrics) {
			best.Metrics = e.Metrics
		}
	}
	return best
}

func (m *Manager) publish(ctx context.Context, agg map[netip.Prefix]model.PrefixEntry) error {
	if m.cfg.Store == nil {
		return nil
	}
	kvs := make(map[string]model.Value, len(agg))
	for pfx, entry := range agg {
		key := model.PrefixKey(m.cfg.NodeID, m.areaOf(entry), model.EncodedPrefix(pfx))
		v := model.Value{
			Version:      m.cfg.NextVersion(),
			OriginatorID: m.cfg.NodeID,
			Data:         wire.EncodePrefixEntry(entry),
			TTL:          model.TTLInfinity,
		}.WithHash()
		kvs[key] = v
	}
	for _, areaID := range m.cfg.Areas {
		areaKvs := make(map[string]model.Value)
		for key, v := range kvs {
			if node, area, _, ok := model.ParsePrefixKey(key); ok && node == m.cfg.NodeID && area == areaID {
				areaKvs[key] = v
			}
		}
		if len(areaKvs) == 0 {
			continue
		}
		if err := m.cfg.Store.SetKeys(ctx, areaID, areaKvs); err != nil {
			return serrors.Wrap("publish prefixes", err, "area", areaID)
		}
	}
	return nil
}

// publishWithdrawal announces the removal of entry's prefix by
// republishing its key with a near-zero TTL: KV-Store's expiry timer
// then does the actual deletion and floods the ExpiredKeys notice
// (spec §4.1 treats expiry, not a distinct tombstone message, as the
// removal signal).
func (m *Manager) publishWithdrawal(ctx context.Context, entry model.PrefixEntry) error {
	if m.cfg.Store == nil {
		return nil
	}
	log.Info("withdrawing prefix", "node", m.cfg.NodeID, "prefix", entry.Prefix)
	key := model.PrefixKey(m.cfg.NodeID, m.areaOf(entry), model.EncodedPrefix(entry.Prefix))
	v := model.Value{
		Version:      m.cfg.NextVersion(),
		OriginatorID: m.cfg.NodeID,
		Data:         wire.EncodePrefixEntry(entry),
		TTL:          1,
	}.WithHash()
	return m.cfg.Store.SetKeys(ctx, m.areaOf(entry), map[string]model.Value{key: v})
}

func (m *Manager) areaOf(entry model.PrefixEntry) string {
	if len(entry.AreaStack) > 0 {
		return entry.AreaStack[0]
	}
	if len(m.cfg.Areas) > 0 {
		return m.cfg.Areas[0]
	}
	return ""
}
