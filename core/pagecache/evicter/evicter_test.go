package evicter_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riverstonedb/pagecache/core/pagecache"
	"github.com/riverstonedb/pagecache/core/pagecache/evicter"
	"github.com/riverstonedb/pagecache/core/pagecache/pagecachetest"
)

func TestPageUnevictableWhileWaiterAttached(t *testing.T) {
	ser := pagecachetest.New()
	ev := evicter.New(64)
	c := pagecache.NewCache(ser, ev)
	defer c.Close()

	ptr := c.NewPtrFromAllocated(make([]byte, 16))
	defer ptr.Reset()

	acq := c.NewAcq(ptr, pagecache.ReadAccess)
	require.True(t, ev.PageIsInUnevictableBag(ptr.GetForRead()))

	acq.Close()
	require.False(t, ev.PageIsInUnevictableBag(ptr.GetForRead()))
}

func TestReclaimEvictsResidentDiskBackedPages(t *testing.T) {
	ser := pagecachetest.New()
	ser.Put(1, []byte("aaaaaaaa"))
	ev := evicter.New(64)
	c := pagecache.NewCache(ser, ev)
	defer c.Close()

	ptr := c.NewPtrFromBlockID(1)
	defer ptr.Reset()

	acq := c.NewAcq(ptr, pagecache.ReadAccess)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := acq.ReadBuf(ctx)
	require.NoError(t, err)
	acq.Close() // no waiters left; page is now evictable-disk-backed

	n := c.Reclaim(1 << 20)
	require.Equal(t, 1, n)
	require.False(t, ptr.GetForRead().Snapshot().BytesResident)
	require.True(t, ptr.GetForRead().Snapshot().HasToken)
}

// TestReloadAfterEvictionWithConcurrentWaiters reproduces spec scenario
// 4: a page is evicted (bytes gone, token kept), then two read Acqs bind
// before the resulting reload commits. Both must observe the reloaded
// bytes and only one BlockRead may happen — a second addWaiter call that
// spawned its own loadUsingToken would trip publishSentinel's "load
// already in flight" invariant.
func TestReloadAfterEvictionWithConcurrentWaiters(t *testing.T) {
	ser := pagecachetest.New()
	ser.Put(1, []byte("reload me"))
	ev := evicter.New(64)
	c := pagecache.NewCache(ser, ev)
	defer c.Close()

	ptr := c.NewPtrFromBlockID(1)
	defer ptr.Reset()

	warm := c.NewAcq(ptr, pagecache.ReadAccess)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := warm.ReadBuf(ctx)
	require.NoError(t, err)
	warm.Close() // no waiters left; page is now evictable-disk-backed

	n := c.Reclaim(1 << 20)
	require.Equal(t, 1, n)
	require.False(t, ptr.GetForRead().Snapshot().BytesResident)
	require.True(t, ptr.GetForRead().Snapshot().HasToken)

	ser.BlockReadGate = make(chan struct{})

	a1 := c.NewAcq(ptr, pagecache.ReadAccess)
	defer a1.Close()
	a2 := c.NewAcq(ptr, pagecache.ReadAccess)
	defer a2.Close()

	select {
	case <-a1.Ready():
		t.Fatal("a1 became ready before the gated BlockRead unblocked")
	case <-time.After(20 * time.Millisecond):
	}

	close(ser.BlockReadGate)

	require.NoError(t, a1.Await(ctx))
	require.NoError(t, a2.Await(ctx))

	buf1, err := a1.ReadBuf(ctx)
	require.NoError(t, err)
	sz1, err := a1.BufSize(ctx)
	require.NoError(t, err)
	require.Equal(t, "reload me", string(buf1[:sz1]))

	buf2, err := a2.ReadBuf(ctx)
	require.NoError(t, err)
	sz2, err := a2.BufSize(ctx)
	require.NoError(t, err)
	require.Equal(t, "reload me", string(buf2[:sz2]))

	// One BlockRead for the initial load plus exactly one for the reload.
	require.Equal(t, 2, ser.BlockReadCalls, "only one reload should have run for both waiters")
}

func TestReclaimSkipsUnbackedPages(t *testing.T) {
	ser := pagecachetest.New()
	ev := evicter.New(64)
	c := pagecache.NewCache(ser, ev)
	defer c.Close()

	ptr := c.NewPtrFromAllocated(make([]byte, 16)) // no token, never evictable
	defer ptr.Reset()

	n := c.Reclaim(1 << 20)
	require.Equal(t, 0, n)
	require.True(t, ptr.GetForRead().Snapshot().BytesResident)
}
