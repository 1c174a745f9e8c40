// Package fib implements Fib (spec §4.5): it receives route deltas
// from Decision, maintains a shadow of what has actually been
// programmed into the platform, applies deltas through
// platform.RouteProgrammer with retry, and periodically does a full
// resync to correct for any drift.
package fib

import (
	"context"
	"net/netip"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gaissmai/bart"

	"github.com/openr-go/openr/pkg/bus"
	"github.com/openr-go/openr/pkg/log"
	"github.com/openr-go/openr/pkg/model"
	"github.com/openr-go/openr/pkg/platform"
)

// Config configures a Fib instance for one area.
type Config struct {
	AreaID      string
	Programmer  platform.RouteProgrammer
	ResyncEvery time.Duration
	RetryMax    time.Duration
}

// Fib owns the programmed-route shadow and drives platform.RouteProgrammer.
type Fib struct {
	cfg Config
	log log.Logger

	programmedUnicast map[netip.Prefix]model.UnicastRoute
	programmedMPLS    map[uint32]model.MPLSRoute

	// lpm mirrors programmedUnicast in a BART (Balanced Routing Trie),
	// giving operators a longest-prefix-match lookup by destination
	// address rather than only by exact programmed prefix.
	lpm bart.Table[model.UnicastRoute]

	closeCh chan struct{}
}

// New constructs a Fib and starts its periodic resync timer.
func New(cfg Config) *Fib {
	if cfg.ResyncEvery == 0 {
		cfg.ResyncEvery = 2 * time.Minute
	}
	if cfg.RetryMax == 0 {
		cfg.RetryMax = 30 * time.Second
	}
	f := &Fib{
		cfg:               cfg,
		log:               log.Root().With("area", cfg.AreaID, "component", "fib"),
		programmedUnicast: make(map[netip.Prefix]model.UnicastRoute),
		programmedMPLS:    make(map[uint32]model.MPLSRoute),
		closeCh:           make(chan struct{}),
	}
	go f.resyncLoop()
	return f
}

// Close stops the resync loop.
func (f *Fib) Close() { close(f.closeCh) }

// RunFromBus drains deltas until the reader closes, applying each in
// turn. Intended to run in its own goroutine.
func (f *Fib) RunFromBus(ctx context.Context, deltas *bus.Reader[model.RouteDatabaseDelta]) {
	defer log.HandlePanic()
	for {
		select {
		case d, ok := <-deltas.Chan():
			if !ok {
				return
			}
			if err := f.Apply(ctx, d); err != nil {
				f.log.Warn("failed to apply route delta", "err", err)
			}
		case <-ctx.Done():
			return
		case <-f.closeCh:
			return
		}
	}
}

// Apply programs one RouteDatabaseDelta, retrying transient failures
// with exponential backoff (spec §4.5 "On error, schedule a retry with
// exponential backoff").
func (f *Fib) Apply(ctx context.Context, delta model.RouteDatabaseDelta) error {
	delta = applyMPLSPHPPreference(delta)

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = f.cfg.RetryMax
	bo := backoff.WithContext(b, ctx)

	op := func() error { return f.apply(ctx, delta) }
	return backoff.Retry(op, bo)
}

func (f *Fib) apply(ctx context.Context, delta model.RouteDatabaseDelta) error {
	if len(delta.UnicastRoutesRemoved) > 0 {
		prefixes := make([]string, len(delta.UnicastRoutesRemoved))
		for i, p := range delta.UnicastRoutesRemoved {
			prefixes[i] = p.String()
		}
		if err := f.cfg.Programmer.DeleteUnicastRoutes(ctx, prefixes); err != nil {
			return err
		}
	}
	if len(delta.UnicastRoutesAdded) > 0 {
		if err := f.cfg.Programmer.AddUnicastRoutes(ctx, delta.UnicastRoutesAdded); err != nil {
			return err
		}
	}
	if len(delta.MPLSRoutesRemoved) > 0 {
		if err := f.cfg.Programmer.DeleteMPLSRoutes(ctx, delta.MPLSRoutesRemoved); err != nil {
			return err
		}
	}
	if len(delta.MPLSRoutesAdded) > 0 {
		if err := f.cfg.Programmer.AddMPLSRoutes(ctx, delta.MPLSRoutesAdded); err != nil {
			return err
		}
	}

	for _, p := range delta.UnicastRoutesRemoved {
		delete(f.programmedUnicast, p)
		f.lpm.Delete(p)
	}
	for _, r := range delta.UnicastRoutesAdded {
		f.programmedUnicast[r.Prefix] = r
		f.lpm.Insert(r.Prefix, r)
	}
	for _, l := range delta.MPLSRoutesRemoved {
		delete(f.programmedMPLS, l)
	}
	for _, r := range delta.MPLSRoutesAdded {
		f.programmedMPLS[r.Label] = r
	}
	return nil
}

// LookupUnicast returns the programmed route matching addr by longest
// prefix, used by operator tooling to answer "which route covers this
// destination" without scanning every programmed prefix.
func (f *Fib) LookupUnicast(addr netip.Addr) (model.UnicastRoute, bool) {
	return f.lpm.Lookup(addr)
}

// Programmed returns a defensive snapshot of the current shadow state.
func (f *Fib) Programmed() (unicast []model.UnicastRoute, mpls []model.MPLSRoute) {
	for _, r := range f.programmedUnicast {
		unicast = append(unicast, r)
	}
	for _, r := range f.programmedMPLS {
		mpls = append(mpls, r)
	}
	return unicast, mpls
}

func (f *Fib) resyncLoop() {
	defer log.HandlePanic()
	t := time.NewTicker(f.cfg.ResyncEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			f.resync()
		case <-f.closeCh:
			return
		}
	}
}

// resync performs a full SyncFib against the programmed shadow,
// correcting for any drift between the shadow and reality (spec §4.5
// "a periodic full resync").
func (f *Fib) resync() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	unicast, mpls := f.Programmed()
	if err := f.cfg.Programmer.SyncFib(ctx, unicast, mpls); err != nil {
		f.log.Warn("full resync failed", "err", err)
	}
}

// applyMPLSPHPPreference implements spec §4.5's MPLS next-hop
// selection rule: within one MPLS route's next-hop set, if any PHP
// next-hop is present, drop every SWAP next-hop from that route, to
// avoid asymmetric label handling within one ECMP group.
func applyMPLSPHPPreference(delta model.RouteDatabaseDelta) model.RouteDatabaseDelta {
	for i, r := range delta.MPLSRoutesAdded {
		hasPHP := false
		for _, nh := range r.NextHops {
			if nh.MPLS == model.MPLSActionPHP {
				hasPHP = true
				break
			}
		}
		if !hasPHP {
			continue
		}
		filtered := make([]model.NextHop, 0, len(r.NextHops))
		for _, nh := range r.NextHops {
			if nh.MPLS != model.MPLSActionSwap {
				filtered = append(filtered, nh)
			}
		}
		delta.MPLSRoutesAdded[i].NextHops = filtered
	}
	return delta
}
