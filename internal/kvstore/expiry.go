package kvstore

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// expiryIndex tracks each key's deadline = receipt-time + ttl and wakes
// the owning area loop exactly once per expiry, matching spec §4.1's
// "a single per-area timer wakes at the nearest deadline". It is built
// on ttlcache, which maintains its own internal min-deadline timer; we
// only store presence here; the area's `keys` map is still the
// authoritative value store.
type expiryIndex struct {
	cache     *ttlcache.Cache[string, struct{}]
	expiredCh chan string
}

func newExpiryIndex() *expiryIndex {
	cache := ttlcache.New[string, struct{}]()
	ei := &expiryIndex{cache: cache, expiredCh: make(chan string, 256)}
	cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, struct{}]) {
		if reason != ttlcache.EvictionReasonExpired {
			return
		}
		select {
		case ei.expiredCh <- item.Key():
		default:
		}
	})
	go cache.Start()
	return ei
}

// set (re)arms key's deadline. ttl <= 0 or model.TTLInfinity means
// "never expires": such keys are simply not tracked.
func (ei *expiryIndex) set(key string, ttl time.Duration) {
	ei.cache.Delete(key)
	if ttl <= 0 {
		return
	}
	ei.cache.Set(key, struct{}{}, ttl)
}

func (ei *expiryIndex) remove(key string) {
	ei.cache.Delete(key)
}

func (ei *expiryIndex) close() {
	ei.cache.Stop()
}
