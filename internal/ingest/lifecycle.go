package ingest

import (
	"context"
	"sync"
	"time"
)

// Handle is the exclusive capability to abort one item's transfer.
type Handle struct {
	itemID string
	cancel context.CancelFunc

	mu        sync.Mutex
	cancelled bool
	released  bool
}

func newHandle(itemID string, cancel context.CancelFunc) *Handle {
	return &Handle{itemID: itemID, cancel: cancel}
}

// ItemID is the item this handle belongs to.
func (h *Handle) ItemID() string { return h.itemID }

// Cancel aborts the transfer. Only the first call before release has an
// effect; it reports whether this call did the cancelling.
func (h *Handle) Cancel() bool {
	h.mu.Lock()
	if h.cancelled || h.released {
		h.mu.Unlock()
		return false
	}
	h.cancelled = true
	h.mu.Unlock()

	h.cancel()
	return true
}

// Cancelled reports whether Cancel took effect.
func (h *Handle) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// release retires the handle once the transfer is over. The underlying
// context is freed but the handle does not count as cancelled.
func (h *Handle) release() {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	cancelled := h.cancelled
	h.mu.Unlock()

	if !cancelled {
		h.cancel()
	}
}

// Guard tracks whether the owning view is still mounted, the cancellation
// handles of active transfers and pending timers. Every state mutation goes
// through Do, so nothing changes once Teardown has flipped the mounted flag.
type Guard struct {
	mu         sync.Mutex
	mounted    bool
	handles    map[string]*Handle
	timers     map[*time.Timer]struct{}
	onTeardown []func()
}

func NewGuard() *Guard {
	return &Guard{
		mounted: true,
		handles: make(map[string]*Handle),
		timers:  make(map[*time.Timer]struct{}),
	}
}

func (g *Guard) Mounted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mounted
}

// Do runs fn while mounted and reports whether it ran. fn must not call back
// into the Guard.
func (g *Guard) Do(fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.mounted {
		return false
	}
	fn()
	return true
}

// Register adds an active handle. It fails after teardown, in which case the
// caller owns the handle and must not start the transfer.
func (g *Guard) Register(h *Handle) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.mounted {
		return false
	}
	g.handles[h.itemID] = h
	return true
}

// Release retires h and drops it from the registry.
func (g *Guard) Release(h *Handle) {
	g.mu.Lock()
	if g.handles[h.itemID] == h {
		delete(g.handles, h.itemID)
	}
	g.mu.Unlock()

	h.release()
}

// Cancel aborts the active transfer of itemID, if any.
func (g *Guard) Cancel(itemID string) bool {
	g.mu.Lock()
	h, ok := g.handles[itemID]
	if ok {
		delete(g.handles, itemID)
	}
	g.mu.Unlock()

	if !ok {
		return false
	}
	return h.Cancel()
}

// Active is the number of registered handles.
func (g *Guard) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.handles)
}

// AfterFunc runs fn after d unless the guard is torn down first.
func (g *Guard) AfterFunc(d time.Duration, fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.mounted {
		return false
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		g.mu.Lock()
		_, pending := g.timers[t]
		delete(g.timers, t)
		run := pending && g.mounted
		g.mu.Unlock()

		if run {
			fn()
		}
	})
	g.timers[t] = struct{}{}
	return true
}

// Pending is the number of timers that have not fired.
func (g *Guard) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.timers)
}

// OnTeardown registers fn to run once during Teardown.
func (g *Guard) OnTeardown(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onTeardown = append(g.onTeardown, fn)
}

// Teardown unmounts, cancels every registered handle and stops every pending
// timer. Calls after the first are no-ops.
func (g *Guard) Teardown() {
	g.mu.Lock()
	if !g.mounted {
		g.mu.Unlock()
		return
	}
	g.mounted = false
	handles := g.handles
	timers := g.timers
	hooks := g.onTeardown
	g.handles = make(map[string]*Handle)
	g.timers = make(map[*time.Timer]struct{})
	g.onTeardown = nil
	g.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
	for t := range timers {
		t.Stop()
	}
	for _, fn := range hooks {
		fn()
	}
}
