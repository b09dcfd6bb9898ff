package ingest

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingHandle(id string) (*Handle, *int32) {
	var n int32
	return newHandle(id, func() { atomic.AddInt32(&n, 1) }), &n
}

func TestHandleCancelIsIdempotent(t *testing.T) {
	h, calls := countingHandle("a")

	assert.True(t, h.Cancel())
	assert.False(t, h.Cancel())
	assert.True(t, h.Cancelled())
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestHandleNotInvokedAfterRelease(t *testing.T) {
	h, calls := countingHandle("a")

	h.release()
	assert.False(t, h.Cancel())
	assert.False(t, h.Cancelled())
	// release frees the context exactly once
	h.release()
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestGuardTeardownCancelsEachHandleOnce(t *testing.T) {
	g := NewGuard()
	h1, c1 := countingHandle("one")
	h2, c2 := countingHandle("two")
	require.True(t, g.Register(h1))
	require.True(t, g.Register(h2))
	assert.Equal(t, 2, g.Active())

	var hooks int32
	g.OnTeardown(func() { atomic.AddInt32(&hooks, 1) })

	g.Teardown()
	g.Teardown()

	assert.False(t, g.Mounted())
	assert.EqualValues(t, 1, atomic.LoadInt32(c1))
	assert.EqualValues(t, 1, atomic.LoadInt32(c2))
	assert.EqualValues(t, 1, atomic.LoadInt32(&hooks))
	assert.Zero(t, g.Active())

	h3, c3 := countingHandle("three")
	assert.False(t, g.Register(h3))
	assert.False(t, g.Do(func() { t.Fatal("must not run after teardown") }))
	assert.Zero(t, atomic.LoadInt32(c3))
}

func TestGuardCancelAndRelease(t *testing.T) {
	g := NewGuard()
	h, calls := countingHandle("a")
	require.True(t, g.Register(h))

	assert.True(t, g.Cancel("a"))
	assert.False(t, g.Cancel("a"))
	assert.False(t, g.Cancel("unknown"))

	g.Release(h)
	assert.Zero(t, g.Active())
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))

	released, _ := countingHandle("b")
	require.True(t, g.Register(released))
	g.Release(released)
	assert.False(t, g.Cancel("b"))
	g.Teardown()
	assert.False(t, released.Cancelled())
}

func TestGuardAfterFunc(t *testing.T) {
	g := NewGuard()
	fired := make(chan struct{})

	require.True(t, g.AfterFunc(5*time.Millisecond, func() { close(fired) }))
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	assert.Eventually(t, func() bool { return g.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestGuardTeardownStopsTimers(t *testing.T) {
	g := NewGuard()
	var fired int32

	require.True(t, g.AfterFunc(20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) }))
	assert.Equal(t, 1, g.Pending())

	g.Teardown()
	time.Sleep(60 * time.Millisecond)

	assert.Zero(t, atomic.LoadInt32(&fired))
	assert.Zero(t, g.Pending())
	assert.False(t, g.AfterFunc(time.Millisecond, func() {}))
}
