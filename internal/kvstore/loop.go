package kvstore

import (
	"github.com/openr-go/openr/pkg/bus"
	"github.com/openr-go/openr/pkg/log"
	"github.com/openr-go/openr/pkg/model"
	"github.com/openr-go/openr/pkg/serrors"
)

var errClosed = serrors.New("area event loop closed")

// areaLoop is the single-threaded reactor owning one area's state (spec
// §5: "a single-threaded cooperative reactor per component processing
// timers, queue-reads, and RPC callbacks"). Every mutation of areaState
// happens inside run, so areaState itself needs no locking.
type areaLoop struct {
	cmds    chan func(*areaState)
	closeCh chan struct{}

	publications *bus.Queue[model.Publication]
	syncEvents   *bus.Queue[KvStoreSyncEvent]

	state *areaState
}

func newAreaLoop(areaID string, cfg Config, keyAccept func(string) bool) *areaLoop {
	al := &areaLoop{
		cmds:         make(chan func(*areaState), 64),
		closeCh:      make(chan struct{}),
		publications: bus.NewQueue[model.Publication](),
		syncEvents:   bus.NewQueue[KvStoreSyncEvent](),
	}
	al.state = newAreaState(areaID, cfg, keyAccept, al)
	return al
}

// call enqueues fn onto the loop and blocks until it has run.
func (al *areaLoop) call(fn func(*areaState)) error {
	done := make(chan struct{})
	wrapped := func(a *areaState) {
		fn(a)
		close(done)
	}
	select {
	case al.cmds <- wrapped:
	case <-al.closeCh:
		return errClosed
	}
	<-done
	return nil
}

func (al *areaLoop) run() {
	defer log.HandlePanic()
	for {
		select {
		case fn := <-al.cmds:
			fn(al.state)
		case key := <-al.state.expiry.expiredCh:
			al.state.handleExpiry(key)
		case <-al.closeCh:
			al.drain()
			al.state.expiry.close()
			return
		}
	}
}

// drain runs any commands already queued before shutdown, honoring the
// "drains outstanding local work then exits" cancellation rule (§5).
func (al *areaLoop) drain() {
	for {
		select {
		case fn := <-al.cmds:
			fn(al.state)
		default:
			return
		}
	}
}

func (al *areaLoop) close() {
	close(al.closeCh)
	al.publications.Close()
	al.syncEvents.Close()
}
