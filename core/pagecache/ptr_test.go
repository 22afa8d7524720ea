package pagecache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riverstonedb/pagecache/core/pagecache"
	"github.com/riverstonedb/pagecache/core/pagecache/pagecachetest"
)

func TestGetForWriteNoForkWhenUnshared(t *testing.T) {
	ser := pagecachetest.New()
	c := pagecache.NewCache(ser, pagecachetest.NewEvicter())
	defer c.Close()

	ptr := c.NewPtrFromAllocated(make([]byte, 16))
	defer ptr.Reset()

	before := ptr.GetForRead()
	after := ptr.GetForWrite()
	require.Same(t, before, after, "no other snapshot referenced this page; GetForWrite must not fork")
}

func TestGetForWriteForksOnSharedSnapshot(t *testing.T) {
	ser := pagecachetest.New()
	c := pagecache.NewCache(ser, pagecachetest.NewEvicter())
	defer c.Close()

	ptr := c.NewPtrFromAllocated(make([]byte, 16))
	defer ptr.Reset()
	shared := ptr.Clone()
	defer shared.Reset()

	original := ptr.GetForRead()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// NewAcq forks ptr's page (since shared also references it) before
	// attaching the write waiter.
	acq := c.NewAcq(ptr, pagecache.WriteAccess)
	defer acq.Close()
	buf, err := acq.WriteBuf(ctx)
	require.NoError(t, err)
	buf[0] = 1

	forked := ptr.GetForRead()
	require.NotSame(t, original, forked, "snapshot_refs was 2; GetForWrite must fork a private copy")
	require.Same(t, original, shared.GetForRead(), "the other snapshot must keep seeing the original page")
}

func TestPtrResetIsIdempotent(t *testing.T) {
	ser := pagecachetest.New()
	c := pagecache.NewCache(ser, pagecachetest.NewEvicter())
	defer c.Close()

	ptr := c.NewPtrFromAllocated(make([]byte, 8))
	require.True(t, ptr.Has())
	ptr.Reset()
	require.False(t, ptr.Has())
	ptr.Reset() // must not panic

	var zero pagecache.Ptr
	zero.Reset() // must not panic on an unbound Ptr either
}
