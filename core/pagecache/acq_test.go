package pagecache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riverstonedb/pagecache/core/pagecache"
	"github.com/riverstonedb/pagecache/core/pagecache/pagecachetest"
)

func TestMultipleReadersAllowed(t *testing.T) {
	ser := pagecachetest.New()
	c := pagecache.NewCache(ser, pagecachetest.NewEvicter())
	defer c.Close()

	ptr := c.NewPtrFromAllocated(make([]byte, 4))
	defer ptr.Reset()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	a1 := c.NewAcq(ptr, pagecache.ReadAccess)
	defer a1.Close()
	a2 := c.NewAcq(ptr, pagecache.ReadAccess)
	defer a2.Close()

	_, err := a1.ReadBuf(ctx)
	require.NoError(t, err)
	_, err = a2.ReadBuf(ctx)
	require.NoError(t, err)
}

func TestWriteBufOnReadAcqNotAllowed(t *testing.T) {
	ser := pagecachetest.New()
	c := pagecache.NewCache(ser, pagecachetest.NewEvicter())
	defer c.Close()

	ptr := c.NewPtrFromAllocated(make([]byte, 4))
	defer ptr.Reset()

	a := c.NewAcq(ptr, pagecache.ReadAccess)
	defer a.Close()

	require.Panics(t, func() {
		_, _ = a.WriteBuf(context.Background())
	})
}

func TestAcqInitTwiceReusePanics(t *testing.T) {
	ser := pagecachetest.New()
	c := pagecache.NewCache(ser, pagecachetest.NewEvicter())
	defer c.Close()

	ptr := c.NewPtrFromAllocated(make([]byte, 4))
	defer ptr.Reset()

	a := &pagecache.Acq{}
	a.Init(c, ptr.GetForRead(), pagecache.ReadAccess)
	defer a.Close()

	require.Panics(t, func() {
		a.Init(c, ptr.GetForRead(), pagecache.ReadAccess)
	})
}

func TestAcqCloseIsIdempotent(t *testing.T) {
	ser := pagecachetest.New()
	c := pagecache.NewCache(ser, pagecachetest.NewEvicter())
	defer c.Close()

	ptr := c.NewPtrFromAllocated(make([]byte, 4))
	defer ptr.Reset()

	a := c.NewAcq(ptr, pagecache.ReadAccess)
	a.Close()
	a.Close() // must not panic

	var zero pagecache.Acq
	zero.Close() // never Init'd; must not panic
}
